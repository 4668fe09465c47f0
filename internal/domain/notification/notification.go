// Package notification defines user-facing notifications emitted on order
// lifecycle events. Notifications are purely additive: nothing past the read
// flag ever changes.
package notification

import (
	"context"
	"time"
)

// Type enumerates notification categories.
type Type string

const (
	TypeOrderPlaced Type = "order_placed"
	TypeOrderStatus Type = "order_status"
)

// Notification is one user-facing message tied to an order event.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	OrderID   string    `json:"order_id,omitempty"`
	Type      Type      `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository persists notifications. Create is called fire-and-forget by
// order flows: its failure must never fail the order.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string) ([]Notification, error)
	MarkRead(ctx context.Context, id string) error
}
