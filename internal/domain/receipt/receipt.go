// Package receipt normalizes raw order payloads into one canonical,
// self-consistent shape.
//
// The same logical value can arrive under different field names depending on
// where the order came from (primary API, legacy backend, or the local
// pending queue), and numbers may be missing or stale. Normalization happens
// once at the system boundary so everything downstream sees a single shape
// whose totals always reconcile.
package receipt

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is one normalized receipt line.
type Item struct {
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
	Size        string          `json:"size,omitempty"`
	Color       string          `json:"color,omitempty"`
}

// Receipt is the canonical renderable receipt. Total is always recomputed
// from Subtotal+Shipping, never read from the raw payload, so a receipt is
// self-consistent even when upstream data is stale or partially written.
type Receipt struct {
	OrderID        string          `json:"order_id"`
	OrderNumber    string          `json:"order_number,omitempty"`
	Items          []Item          `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Shipping       decimal.Decimal `json:"shipping"`
	Total          decimal.Decimal `json:"total"`
	PaymentMethod  string          `json:"payment_method,omitempty"`
	CourierService string          `json:"courier_service,omitempty"`
	CustomerEmail  string          `json:"customer_email,omitempty"`
	CustomerPhone  string          `json:"customer_phone,omitempty"`
	PlacedAt       time.Time       `json:"placed_at,omitempty"`
}
