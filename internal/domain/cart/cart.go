// Package cart holds the shopping cart model and the Store through which
// every cart mutation is funneled.
package cart

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/atelier-commerce/checkout/internal/domain/pricing"
)

// Variant keys accepted by Store.SetVariant.
const (
	VariantKeySize  = "size"
	VariantKeyColor = "selectedColor"
)

// Product is the catalog data needed to add a line to the cart.
type Product struct {
	Name            string          `json:"name"`
	Family          pricing.Family  `json:"family"`
	BasePrice       decimal.Decimal `json:"base_price"`
	AvailableColors []string        `json:"available_colors,omitempty"`
	AvailableSizes  []string        `json:"available_sizes,omitempty"`
	Image           string          `json:"image,omitempty"`
}

// Variant is an optional size/color selection made when adding a product.
type Variant struct {
	Size  string `json:"size,omitempty"`
	Color string `json:"color,omitempty"`
}

// Line is one product entry in the cart. UnitPrice is derived from the
// pricing tables whenever the product family has variant pricing; it is never
// authoritative on its own.
type Line struct {
	ProductName     string          `json:"product_name"`
	Family          pricing.Family  `json:"family"`
	BaseUnitPrice   decimal.Decimal `json:"base_unit_price"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Quantity        int             `json:"quantity"`
	SelectedSize    string          `json:"selected_size,omitempty"`
	SelectedColor   string          `json:"selected_color,omitempty"`
	Selected        bool            `json:"selected"`
	AvailableColors []string        `json:"available_colors,omitempty"`
	AvailableSizes  []string        `json:"available_sizes,omitempty"`
	Image           string          `json:"image,omitempty"`
}

// NeedsColor reports whether checkout must reject this line until a color is
// chosen.
func (l Line) NeedsColor() bool {
	return len(l.AvailableColors) > 0 && l.SelectedColor == ""
}

// sameSelection reports whether the line matches a product+variant pair,
// used to keep AddLine idempotent.
func (l Line) sameSelection(p Product, v Variant) bool {
	return l.ProductName == p.Name && l.SelectedSize == v.Size && l.SelectedColor == v.Color
}

// Repository persists the full cart line list under a single per-user key.
// Get returns an empty slice for an unknown user. Set replaces the whole list
// atomically; there are no partial writes.
type Repository interface {
	Get(ctx context.Context, userID string) ([]Line, error)
	Set(ctx context.Context, userID string, lines []Line) error
	Del(ctx context.Context, userID string) error
}

// CountPublisher announces the cart's item count after a successful mutation
// so externally observed badges can refresh. Publishing is best-effort.
type CountPublisher interface {
	PublishCount(ctx context.Context, userID string, count int)
}
