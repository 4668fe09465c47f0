package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/atelier-commerce/checkout/internal/domain/receipt"
)

const (
	resolveByOrderIDSQL     = `SELECT order_id FROM orders WHERE order_id = $1`
	resolveByOrderNumberSQL = `SELECT order_id FROM orders WHERE order_number = $1 ORDER BY id LIMIT 1`

	upsertReceiptSQL = `INSERT INTO receipts (order_id, payload)
	VALUES ($1, $2)
	ON CONFLICT (order_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`

	selectReceiptSQL = `SELECT payload FROM receipts WHERE order_id = $1`
)

// ReceiptRepository stores normalized receipts, at most one per order.
type ReceiptRepository struct {
	db DB
}

// NewReceiptRepository returns a ReceiptRepository that uses the given pool.
func NewReceiptRepository(db DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// Save upserts a receipt keyed by the resolved order id: lookup by order id
// first, then by order number. A resubmission updates the existing row. When
// neither lookup resolves an order this fails with ErrOrderNotFound — a
// receipt must never exist without its order.
func (r *ReceiptRepository) Save(ctx context.Context, rec *receipt.Receipt) error {
	resolved, err := r.resolve(ctx, rec.OrderID, rec.OrderNumber)
	if err != nil {
		return err
	}

	// Store the payload under the resolved id so a receipt that arrived with
	// only an order number still self-identifies.
	stored := *rec
	stored.OrderID = resolved
	payload, err := json.Marshal(&stored)
	if err != nil {
		return errors.Wrap(err, "marshal receipt")
	}

	if _, err := r.db.Exec(ctx, upsertReceiptSQL, resolved, payload); err != nil {
		return errors.Wrapf(err, "upsert receipt for order %q", resolved)
	}
	return nil
}

// Get returns the stored receipt payload for an order, or ErrOrderNotFound.
func (r *ReceiptRepository) Get(ctx context.Context, orderID string) (*receipt.Receipt, error) {
	var payload []byte
	err := r.db.QueryRow(ctx, selectReceiptSQL, orderID).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, errors.Wrapf(err, "select receipt for order %q", orderID)
	}

	var rec receipt.Receipt
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, errors.Wrapf(err, "decode receipt for order %q", orderID)
	}
	return &rec, nil
}

func (r *ReceiptRepository) resolve(ctx context.Context, orderID, orderNumber string) (string, error) {
	if orderID != "" {
		var resolved string
		err := r.db.QueryRow(ctx, resolveByOrderIDSQL, orderID).Scan(&resolved)
		if err == nil {
			return resolved, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", errors.Wrapf(err, "resolve order %q", orderID)
		}
	}

	if orderNumber != "" {
		var resolved string
		err := r.db.QueryRow(ctx, resolveByOrderNumberSQL, orderNumber).Scan(&resolved)
		if err == nil {
			return resolved, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", errors.Wrapf(err, "resolve order number %q", orderNumber)
		}
	}

	return "", errors.Wrapf(ErrOrderNotFound, "order %q / number %q", orderID, orderNumber)
}
