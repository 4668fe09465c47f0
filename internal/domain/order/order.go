// Package order defines the order draft assembled at checkout, the persisted
// order contract, and the shipping fee policy shared by checkout and receipts.
package order

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// orderIDPrefix namespaces client-generated order identifiers.
const orderIDPrefix = "ATL-"

// Status enumerates order lifecycle states.
type Status string

const (
	StatusPlaced     Status = "placed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Line is a single priced line item in an order.
type Line struct {
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
	Size        string          `json:"size,omitempty"`
	Color       string          `json:"color,omitempty"`
}

// AddressSnapshot is the shipping address flattened into an order at creation
// time. Orders never reference an address row by id: addresses are mutable
// and receipts must stay historically accurate.
type AddressSnapshot struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Draft is the client-assembled, not-yet-persisted representation of an order.
// Invariants: Total == round2(Subtotal+Shipping), Subtotal == sum of line
// totals, and every LineTotal == round2(UnitPrice*Quantity).
type Draft struct {
	OrderID        string           `json:"order_id"`
	OrderNumber    string           `json:"order_number"`
	UserID         string           `json:"user_id"`
	Items          []Line           `json:"items"`
	Subtotal       decimal.Decimal  `json:"subtotal"`
	Shipping       decimal.Decimal  `json:"shipping"`
	Total          decimal.Decimal  `json:"total"`
	PaymentMethod  string           `json:"payment_method"`
	CourierService string           `json:"courier_service"`
	CustomerEmail  string           `json:"customer_email"`
	CustomerPhone  string           `json:"customer_phone"`
	Address        *AddressSnapshot `json:"shipping_address,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// NewOrderID generates a client-side order identifier of the form
// ATL-<timestamp36>.
func NewOrderID(now time.Time) string {
	return orderIDPrefix + strconv.FormatInt(now.UnixMilli(), 36)
}

// Round2 rounds a monetary amount to 2 decimal places, half up.
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// ShippingPolicy is the single source of the flat shipping fee and its
// free-shipping threshold. Both the checkout totals step and the receipt
// normalizer consume this same value.
type ShippingPolicy struct {
	FreeThreshold decimal.Decimal
	FlatFee       decimal.Decimal
}

// FeeFor returns the shipping fee for a subtotal: zero at or above the free
// threshold, the flat fee below it.
func (p ShippingPolicy) FeeFor(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(p.FreeThreshold) {
		return decimal.Zero
	}
	return p.FlatFee
}

// Persisted is an order read back from storage, header plus line items.
type Persisted struct {
	Draft
	PersistedID int64  `json:"id"`
	Status      Status `json:"status"`
}

// Repository defines the persistence boundary for orders. Create must insert
// the header, then every line item, and delete the header again if item
// insertion fails — an order_items row must never exist without its parent,
// and a header must never outlive a failed item write.
type Repository interface {
	Create(ctx context.Context, draft *Draft) (int64, error)
	GetByOrderID(ctx context.Context, orderID string) (*Persisted, error)
	ListByUser(ctx context.Context, userID string) ([]Persisted, error)
	UpdateStatus(ctx context.Context, orderID string, status Status) error
	Cancel(ctx context.Context, orderID string) error
}
