// Package checkout sequences the cart-to-order pipeline: pre-flight
// validation, total computation, address snapshotting, prioritized
// submission, and cart pruning.
package checkout

import (
	"context"
	"fmt"

	"github.com/atelier-commerce/checkout/internal/domain/order"
	"github.com/atelier-commerce/checkout/internal/submit"
)

// Stage identifies the checkout stage that rejected a request. Each stage
// fails fast: the user corrects the problem and resubmits.
type Stage string

const (
	StageAuth    Stage = "authentication"
	StageCart    Stage = "empty-cart"
	StageAddress Stage = "shipping-address"
	StageVariant Stage = "variant"
	StagePayment Stage = "payment-courier"
)

// StageError is a validation rejection carrying enough context to render a
// specific user message. It is always recovered locally, never a crash.
type StageError struct {
	Stage       Stage
	Reason      string
	LineIndex   int    // -1 when not line-specific
	ProductName string // set for line-specific rejections
	Redirect    string // suggested redirect path, when applicable
}

func (e *StageError) Error() string {
	if e.ProductName != "" {
		return fmt.Sprintf("checkout %s: %s (line %d, %s)", e.Stage, e.Reason, e.LineIndex, e.ProductName)
	}
	return fmt.Sprintf("checkout %s: %s", e.Stage, e.Reason)
}

func stageErr(stage Stage, reason, redirect string) *StageError {
	return &StageError{Stage: stage, Reason: reason, LineIndex: -1, Redirect: redirect}
}

// Source says how a placed order was recorded.
type Source string

const (
	// SourceRemote means a candidate endpoint confirmed the order.
	SourceRemote Source = "remote"
	// SourcePending means every candidate failed and the draft was queued
	// locally. The order is still "placed" from the user's perspective.
	SourcePending Source = "pending-queue"
)

// Request carries the user's checkout selections.
type Request struct {
	UserID         string `json:"user_id"`
	PaymentMethod  string `json:"payment_method"`
	CourierService string `json:"courier_service"`
	CustomerEmail  string `json:"customer_email"`
	CustomerPhone  string `json:"customer_phone"`
}

// Result is the outcome of a successful checkout pass.
type Result struct {
	OrderID  string
	Source   Source
	Endpoint string
	Draft    *order.Draft
	Attempts []submit.Attempt
}

// Submitter delivers a draft to the candidate endpoints.
type Submitter interface {
	Submit(ctx context.Context, draft *order.Draft) (*submit.Outcome, error)
}

// PendingQueue is the local fallback store for drafts no endpoint accepted.
// Appended drafts are inspectable and never silently dropped.
type PendingQueue interface {
	Append(ctx context.Context, userID string, draft *order.Draft) error
}
