package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atelier-commerce/checkout/internal/domain/address"
	"github.com/atelier-commerce/checkout/internal/domain/cart"
	"github.com/atelier-commerce/checkout/internal/domain/order"
)

// Service orchestrates a single checkout pass.
type Service struct {
	cart      *cart.Store
	addresses address.Repository
	submitter Submitter
	pending   PendingQueue
	policy    order.ShippingPolicy
	now       func() time.Time
}

// NewService creates a checkout Service.
func NewService(
	cartStore *cart.Store,
	addresses address.Repository,
	submitter Submitter,
	pending PendingQueue,
	policy order.ShippingPolicy,
) *Service {
	return &Service{
		cart:      cartStore,
		addresses: addresses,
		submitter: submitter,
		pending:   pending,
		policy:    policy,
		now:       time.Now,
	}
}

// Submit runs the staged checkout pipeline. Validation rejections come back
// as *StageError; any other error is infrastructure failure. The cart is
// pruned of the submitted lines only after a definitive outcome — a caller
// abandoning mid-flight leaves the cart untouched.
func (s *Service) Submit(ctx context.Context, req Request) (*Result, error) {
	if req.UserID == "" {
		return nil, stageErr(StageAuth, "sign in to place an order", "/signin")
	}

	lines, err := s.cart.Lines(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}

	// Scope: selected lines when any are selected, otherwise all lines.
	scope := selectedIndices(lines)
	if len(scope) == 0 {
		scope = allIndices(lines)
	}
	if len(scope) == 0 {
		return nil, stageErr(StageCart, "your cart is empty", "")
	}

	addrs, err := s.addresses.ListByUser(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "list addresses")
	}
	if len(addrs) == 0 {
		return nil, stageErr(StageAddress, "add a shipping address to continue", "/account/addresses")
	}

	for _, i := range scope {
		if lines[i].NeedsColor() {
			return nil, &StageError{
				Stage:       StageVariant,
				Reason:      "choose a color",
				LineIndex:   i,
				ProductName: lines[i].ProductName,
			}
		}
	}

	switch {
	case req.PaymentMethod == "":
		return nil, stageErr(StagePayment, "choose a payment method", "")
	case req.CourierService == "":
		return nil, stageErr(StagePayment, "choose a courier service", "")
	}

	items := make([]order.Line, 0, len(scope))
	subtotal := decimal.Zero
	for _, i := range scope {
		ol := lines[i].OrderLine()
		items = append(items, ol)
		subtotal = subtotal.Add(ol.LineTotal)
	}
	subtotal = order.Round2(subtotal)
	shipping := order.Round2(s.policy.FeeFor(subtotal))
	total := order.Round2(subtotal.Add(shipping))

	// Snapshot the default (or first) address into the draft. Drafts never
	// reference an address by id.
	def, err := s.addresses.Default(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "resolve default address")
	}
	snapshot := def.Snapshot()

	now := s.now()
	draft := &order.Draft{
		OrderID:        order.NewOrderID(now),
		OrderNumber:    fmt.Sprintf("%d", now.UnixMilli()),
		UserID:         req.UserID,
		Items:          items,
		Subtotal:       subtotal,
		Shipping:       shipping,
		Total:          total,
		PaymentMethod:  req.PaymentMethod,
		CourierService: req.CourierService,
		CustomerEmail:  req.CustomerEmail,
		CustomerPhone:  req.CustomerPhone,
		Address:        &snapshot,
		CreatedAt:      now,
	}

	outcome, err := s.submitter.Submit(ctx, draft)
	if err != nil {
		return nil, errors.Wrap(err, "submit order")
	}

	result := &Result{Draft: draft, Attempts: outcome.Attempts}
	if outcome.Delivered {
		result.OrderID = outcome.OrderID
		result.Source = SourceRemote
		result.Endpoint = outcome.Endpoint
	} else {
		// Exhausted fallback: queue locally. Failure to queue is the one
		// case where the user cannot be told the order was placed.
		if err := s.pending.Append(ctx, req.UserID, draft); err != nil {
			return nil, errors.Wrap(err, "queue pending order")
		}
		result.OrderID = draft.OrderID
		result.Source = SourcePending
	}

	// Prune only the submitted lines; out-of-scope lines stay untouched.
	// The outcome above is definitive, so a prune failure must not undo it:
	// failing here would leave the submitted lines in the cart and invite a
	// retry that duplicates the order. Log and report success.
	if err := s.cart.Prune(ctx, req.UserID, scope); err != nil {
		zctx.From(ctx).Error("prune cart after checkout",
			zap.String("user_id", req.UserID),
			zap.String("order_id", result.OrderID),
			zap.Error(err))
	}

	return result, nil
}

func selectedIndices(lines []cart.Line) []int {
	var idx []int
	for i, l := range lines {
		if l.Selected {
			idx = append(idx, i)
		}
	}
	return idx
}

func allIndices(lines []cart.Line) []int {
	idx := make([]int, len(lines))
	for i := range lines {
		idx[i] = i
	}
	return idx
}
