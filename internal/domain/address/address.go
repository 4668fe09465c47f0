// Package address defines the shipping address records consumed by checkout.
package address

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/atelier-commerce/checkout/internal/domain/order"
)

// ErrNoAddresses is returned when a user has no shipping addresses on file.
var ErrNoAddresses = errors.New("no shipping addresses")

// Address is a stored, mutable shipping address.
type Address struct {
	ID         int64  `json:"id"`
	UserID     string `json:"user_id"`
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	IsDefault  bool   `json:"is_default"`
}

// Snapshot flattens the address into an immutable order snapshot.
func (a Address) Snapshot() order.AddressSnapshot {
	return order.AddressSnapshot{
		FullName:   a.FullName,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

// Repository provides address lookup. Default returns the user's default
// address, or the first available one, or ErrNoAddresses.
type Repository interface {
	ListByUser(ctx context.Context, userID string) ([]Address, error)
	Default(ctx context.Context, userID string) (*Address, error)
}
