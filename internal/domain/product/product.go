// Package product holds the catalog model the ingest pipeline and the cart
// add path read from.
package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/atelier-commerce/checkout/internal/domain/pricing"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is one catalog item keyed by SKU. BasePrice is the price used when
// the family has no variant pricing, and the fallback when a variant lookup
// misses.
type Product struct {
	SKU       string          `json:"sku"`
	Family    pricing.Family  `json:"family,omitempty"`
	Name      string          `json:"name"`
	BasePrice decimal.Decimal `json:"base_price"`
}

// VariantPrice is one size/color-class price row for a SKU. ColorClass is
// empty for size-only families.
type VariantPrice struct {
	SKU        string          `json:"sku"`
	Size       string          `json:"size"`
	ColorClass string          `json:"color_class,omitempty"`
	Price      decimal.Decimal `json:"price"`
}

// Repository defines catalog access. Upserts are idempotent so the ingest
// pipeline can be re-run over the same feed.
type Repository interface {
	Upsert(ctx context.Context, p *Product) error
	UpsertVariantPrice(ctx context.Context, v *VariantPrice) error
	GetBySKU(ctx context.Context, sku string) (*Product, error)
	List(ctx context.Context) ([]Product, error)
}
