package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/atelier-commerce/checkout/internal/domain/order"
	"github.com/atelier-commerce/checkout/internal/domain/pricing"
)

// Sentinel errors for cart mutations.
var (
	ErrLineNotFound      = errors.New("cart line not found")
	ErrUnknownVariantKey = errors.New("unknown variant key")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
)

// Store funnels every cart mutation through one read-modify-write point.
// Each mutation loads the full line list, applies the change, re-derives
// prices where needed, and persists the whole list in a single write.
// Concurrent writers follow last-writer-wins; no invariant depends on
// cross-writer atomicity.
type Store struct {
	repo   Repository
	prices *pricing.Engine
	badge  CountPublisher
}

// NewStore creates a Store. badge may be nil when no count observer exists.
func NewStore(repo Repository, prices *pricing.Engine, badge CountPublisher) *Store {
	return &Store{repo: repo, prices: prices, badge: badge}
}

// Lines returns the user's current cart lines.
func (s *Store) Lines(ctx context.Context, userID string) ([]Line, error) {
	return s.repo.Get(ctx, userID)
}

// Count returns the total item quantity across all lines.
func (s *Store) Count(ctx context.Context, userID string) (int, error) {
	lines, err := s.repo.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return countItems(lines), nil
}

// AddLine appends a product to the cart. Adding a product+variant pair that
// is already present is a no-op, keeping the operation idempotent.
func (s *Store) AddLine(ctx context.Context, userID string, p Product, v Variant) error {
	return s.mutate(ctx, userID, func(lines []Line) ([]Line, error) {
		for _, l := range lines {
			if l.sameSelection(p, v) {
				return lines, nil
			}
		}
		line := Line{
			ProductName:     p.Name,
			Family:          p.Family,
			BaseUnitPrice:   p.BasePrice,
			UnitPrice:       p.BasePrice,
			Quantity:        1,
			SelectedSize:    v.Size,
			SelectedColor:   v.Color,
			Selected:        true,
			AvailableColors: p.AvailableColors,
			AvailableSizes:  p.AvailableSizes,
			Image:           p.Image,
		}
		line.UnitPrice = s.priceOf(line)
		return append(lines, line), nil
	})
}

// SetQuantity sets a line's quantity. A quantity at or below zero removes
// the line.
func (s *Store) SetQuantity(ctx context.Context, userID string, index, qty int) error {
	return s.mutate(ctx, userID, func(lines []Line) ([]Line, error) {
		if index < 0 || index >= len(lines) {
			return nil, ErrLineNotFound
		}
		if qty <= 0 {
			return append(lines[:index], lines[index+1:]...), nil
		}
		lines[index].Quantity = qty
		return lines, nil
	})
}

// SetVariant updates a line's size or color selection and re-derives the unit
// price synchronously before persisting, so the stored price is never stale.
func (s *Store) SetVariant(ctx context.Context, userID string, index int, key, value string) error {
	return s.mutate(ctx, userID, func(lines []Line) ([]Line, error) {
		if index < 0 || index >= len(lines) {
			return nil, ErrLineNotFound
		}
		switch key {
		case VariantKeySize:
			lines[index].SelectedSize = value
		case VariantKeyColor:
			lines[index].SelectedColor = value
		default:
			return nil, errors.Wrapf(ErrUnknownVariantKey, "key %q", key)
		}
		lines[index].UnitPrice = s.priceOf(lines[index])
		return lines, nil
	})
}

// ToggleSelected marks a line as in or out of checkout scope.
func (s *Store) ToggleSelected(ctx context.Context, userID string, index int, selected bool) error {
	return s.mutate(ctx, userID, func(lines []Line) ([]Line, error) {
		if index < 0 || index >= len(lines) {
			return nil, ErrLineNotFound
		}
		lines[index].Selected = selected
		return lines, nil
	})
}

// RemoveLine deletes a line by index.
func (s *Store) RemoveLine(ctx context.Context, userID string, index int) error {
	return s.mutate(ctx, userID, func(lines []Line) ([]Line, error) {
		if index < 0 || index >= len(lines) {
			return nil, ErrLineNotFound
		}
		return append(lines[:index], lines[index+1:]...), nil
	})
}

// Clear removes either every line or only the selected ones. Unselected lines
// survive a selected-only clear untouched.
func (s *Store) Clear(ctx context.Context, userID string, selectedOnly bool) error {
	if !selectedOnly {
		if err := s.repo.Del(ctx, userID); err != nil {
			return err
		}
		s.publish(ctx, userID, 0)
		return nil
	}
	return s.mutate(ctx, userID, func(lines []Line) ([]Line, error) {
		kept := lines[:0]
		for _, l := range lines {
			if !l.Selected {
				kept = append(kept, l)
			}
		}
		return kept, nil
	})
}

// Prune removes exactly the lines at the given indices, preserving the rest.
// Checkout uses this to drop only the submitted lines.
func (s *Store) Prune(ctx context.Context, userID string, indices []int) error {
	drop := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		drop[i] = struct{}{}
	}
	return s.mutate(ctx, userID, func(lines []Line) ([]Line, error) {
		kept := lines[:0]
		for i, l := range lines {
			if _, ok := drop[i]; !ok {
				kept = append(kept, l)
			}
		}
		return kept, nil
	})
}

// mutate is the single serialization point: load, apply, persist, publish.
func (s *Store) mutate(ctx context.Context, userID string, apply func([]Line) ([]Line, error)) error {
	lines, err := s.repo.Get(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "load cart")
	}
	next, err := apply(lines)
	if err != nil {
		return err
	}
	if err := s.repo.Set(ctx, userID, next); err != nil {
		return errors.Wrap(err, "persist cart")
	}
	s.publish(ctx, userID, countItems(next))
	return nil
}

// priceOf derives a line's unit price from the variant tables, falling back
// to the current price so an unknown combination never blanks the display.
func (s *Store) priceOf(l Line) decimal.Decimal {
	if !s.prices.HasVariantPricing(l.Family) {
		return l.BaseUnitPrice
	}
	return s.prices.PriceFor(l.Family, l.SelectedSize, l.SelectedColor, l.UnitPrice)
}

func (s *Store) publish(ctx context.Context, userID string, count int) {
	if s.badge != nil {
		s.badge.PublishCount(ctx, userID, count)
	}
}

func countItems(lines []Line) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

// OrderLine converts a cart line into a priced order line with its total
// rounded to 2 decimal places.
func (l Line) OrderLine() order.Line {
	qty := l.Quantity
	if qty < 1 {
		qty = 1
	}
	return order.Line{
		ProductName: l.ProductName,
		UnitPrice:   l.UnitPrice,
		Quantity:    qty,
		LineTotal:   order.Round2(l.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))),
		Size:        l.SelectedSize,
		Color:       l.SelectedColor,
	}
}
