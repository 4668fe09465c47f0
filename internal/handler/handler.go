// Package handler exposes the checkout pipeline over HTTP: the generic
// read/write data API, the checkout endpoint, receipts, and cart CRUD.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atelier-commerce/checkout/internal/domain/address"
	"github.com/atelier-commerce/checkout/internal/domain/cart"
	"github.com/atelier-commerce/checkout/internal/domain/checkout"
	"github.com/atelier-commerce/checkout/internal/domain/notification"
	"github.com/atelier-commerce/checkout/internal/domain/order"
	"github.com/atelier-commerce/checkout/internal/domain/preference"
	"github.com/atelier-commerce/checkout/internal/domain/product"
	"github.com/atelier-commerce/checkout/internal/domain/receipt"
)

// ReceiptStore persists normalized receipts, at most one per order.
type ReceiptStore interface {
	Save(ctx context.Context, rec *receipt.Receipt) error
	Get(ctx context.Context, orderID string) (*receipt.Receipt, error)
}

// Handler wires the HTTP surface to the domain services.
type Handler struct {
	cart          *cart.Store
	checkout      *checkout.Service
	orders        order.Repository
	receipts      ReceiptStore
	notifications notification.Repository
	addresses     address.Repository
	preferences   preference.Repository
	products      product.Repository
	policy        order.ShippingPolicy
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cartStore *cart.Store,
	checkoutService *checkout.Service,
	orders order.Repository,
	receipts ReceiptStore,
	notifications notification.Repository,
	addresses address.Repository,
	preferences preference.Repository,
	products product.Repository,
	policy order.ShippingPolicy,
) *Handler {
	return &Handler{
		cart:          cartStore,
		checkout:      checkoutService,
		orders:        orders,
		receipts:      receipts,
		notifications: notifications,
		addresses:     addresses,
		preferences:   preferences,
		products:      products,
		policy:        policy,
	}
}

// Routes mounts every endpoint under /api.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/data", h.readData)
		r.Post("/data", h.writeData)

		r.Post("/checkout", h.postCheckout)

		r.Post("/receipt", h.postReceipt)
		r.Get("/receipt/{orderID}", h.getReceipt)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.getCart)
			r.Post("/", h.addCartLine)
			r.Delete("/", h.clearCart)
			r.Get("/count", h.getCartCount)
			r.Patch("/{index}", h.patchCartLine)
			r.Delete("/{index}", h.removeCartLine)
		})
	})
}

// envelope is the uniform response shape: success plus either data or error.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: msg})
}

// userID resolves the caller identity: the X-User-ID header wins, then the
// userId query parameter. An empty result means an unauthenticated caller.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("userId")
}
