package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/atelier-commerce/checkout/internal/domain/pricing"
	"github.com/atelier-commerce/checkout/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

const (
	upsertProductSQL = `INSERT INTO products (sku, family, name, base_price)
	VALUES ($1,$2,$3,$4)
	ON CONFLICT (sku) DO UPDATE SET family = EXCLUDED.family, name = EXCLUDED.name, base_price = EXCLUDED.base_price`

	upsertVariantPriceSQL = `INSERT INTO variant_prices (sku, size, color_class, price)
	VALUES ($1,$2,$3,$4)
	ON CONFLICT (sku, size, color_class) DO UPDATE SET price = EXCLUDED.price`

	selectProductSQL = `SELECT sku, family, name, base_price FROM products WHERE sku = $1`
	listProductsSQL  = `SELECT sku, family, name, base_price FROM products ORDER BY sku`
)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db DB
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(db DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Upsert inserts or refreshes a catalog product.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	_, err := r.db.Exec(ctx, upsertProductSQL, p.SKU, string(p.Family), p.Name, p.BasePrice)
	if err != nil {
		return errors.Wrapf(err, "upsert product %q", p.SKU)
	}
	return nil
}

// UpsertVariantPrice inserts or refreshes one variant price row.
func (r *ProductRepository) UpsertVariantPrice(ctx context.Context, v *product.VariantPrice) error {
	_, err := r.db.Exec(ctx, upsertVariantPriceSQL, v.SKU, v.Size, v.ColorClass, v.Price)
	if err != nil {
		return errors.Wrapf(err, "upsert variant price %q/%q/%q", v.SKU, v.Size, v.ColorClass)
	}
	return nil
}

// GetBySKU loads a single product or product.ErrNotFound.
func (r *ProductRepository) GetBySKU(ctx context.Context, sku string) (*product.Product, error) {
	var (
		p      product.Product
		family string
	)
	err := r.db.QueryRow(ctx, selectProductSQL, sku).Scan(&p.SKU, &family, &p.Name, &p.BasePrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "select product %q", sku)
	}
	p.Family = pricing.Family(family)
	return &p, nil
}

// List returns the full catalog ordered by SKU.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	defer rows.Close()

	var out []product.Product
	for rows.Next() {
		var (
			p      product.Product
			family string
		)
		if err := rows.Scan(&p.SKU, &family, &p.Name, &p.BasePrice); err != nil {
			return nil, errors.Wrap(err, "scan product")
		}
		p.Family = pricing.Family(family)
		out = append(out, p)
	}
	return out, rows.Err()
}
