package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/atelier-commerce/checkout/internal/domain/order"
)

// Sentinel errors for the order persistence boundary.
var (
	// ErrOrderNotFound is returned when no order matches the given id.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrphanedOrder is returned when line-item insertion failed AND the
	// compensating delete of the order header also failed. The header is now
	// an orphan requiring manual reconciliation.
	ErrOrphanedOrder = errors.New("orphaned order header: compensating delete failed")
)

// DB is the subset of pgxpool.Pool the repositories need.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ order.Repository = (*OrderRepository)(nil)

const (
	insertOrderSQL = `INSERT INTO orders (
		order_id, order_number, user_id, subtotal, shipping, total,
		payment_method, courier_service, customer_email, customer_phone, status,
		ship_full_name, ship_phone, ship_line1, ship_line2,
		ship_city, ship_state, ship_postal_code, ship_country, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	RETURNING id`

	insertOrderItemSQL = `INSERT INTO order_items
		(order_pk, product_name, unit_price, quantity, line_total, size, color)
	VALUES ($1,$2,$3,$4,$5,$6,$7)`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	selectOrderSQL = `SELECT id, order_id, order_number, user_id, subtotal, shipping, total,
		payment_method, courier_service, customer_email, customer_phone, status,
		ship_full_name, ship_phone, ship_line1, ship_line2,
		ship_city, ship_state, ship_postal_code, ship_country, created_at
	FROM orders`

	selectOrderItemsSQL = `SELECT product_name, unit_price, quantity, line_total, size, color
	FROM order_items WHERE order_pk = $1 ORDER BY id`

	updateOrderStatusSQL = `UPDATE orders SET status = $2 WHERE order_id = $1`
)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db DB
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(db DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order header, then every line item. If any item insert
// fails, the header is deleted again before the error propagates: an
// order_items row must never exist without its parent, and a header must
// never outlive a failed item write.
func (r *OrderRepository) Create(ctx context.Context, d *order.Draft) (int64, error) {
	snap := d.Address
	if snap == nil {
		snap = &order.AddressSnapshot{}
	}

	var id int64
	err := r.db.QueryRow(ctx, insertOrderSQL,
		d.OrderID, d.OrderNumber, d.UserID, d.Subtotal, d.Shipping, d.Total,
		d.PaymentMethod, d.CourierService, d.CustomerEmail, d.CustomerPhone, string(order.StatusPlaced),
		snap.FullName, snap.Phone, snap.Line1, snap.Line2,
		snap.City, snap.State, snap.PostalCode, snap.Country, d.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrapf(err, "insert order %q", d.OrderID)
	}

	for i, it := range d.Items {
		_, err := r.db.Exec(ctx, insertOrderItemSQL,
			id, it.ProductName, it.UnitPrice, it.Quantity, it.LineTotal, it.Size, it.Color,
		)
		if err == nil {
			continue
		}

		// Compensating delete: no orphan headers.
		if _, delErr := r.db.Exec(ctx, deleteOrderSQL, id); delErr != nil {
			zctx.From(ctx).Error("ORPHANED ORDER: header survived failed item insert",
				zap.String("order_id", d.OrderID),
				zap.Int64("persisted_id", id),
				zap.NamedError("item_error", err),
				zap.NamedError("delete_error", delErr),
			)
			return 0, errors.Wrapf(ErrOrphanedOrder, "order %q: item %d: %v (delete: %v)", d.OrderID, i, err, delErr)
		}
		return 0, errors.Wrapf(err, "insert item %d of order %q (header rolled back)", i, d.OrderID)
	}

	return id, nil
}

// GetByOrderID loads an order header and its line items.
func (r *OrderRepository) GetByOrderID(ctx context.Context, orderID string) (*order.Persisted, error) {
	row := r.db.QueryRow(ctx, selectOrderSQL+" WHERE order_id = $1", orderID)
	p, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, errors.Wrapf(err, "select order %q", orderID)
	}

	items, err := r.loadItems(ctx, p.PersistedID)
	if err != nil {
		return nil, errors.Wrapf(err, "select items of order %q", orderID)
	}
	p.Items = items
	return p, nil
}

// ListByUser returns the user's orders, newest first, without line items.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Persisted, error) {
	rows, err := r.db.Query(ctx, selectOrderSQL+" WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders for user %q", userID)
	}
	defer rows.Close()

	var out []order.Persisted
	for rows.Next() {
		p, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdateStatus transitions an order to the given status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status order.Status) error {
	tag, err := r.db.Exec(ctx, updateOrderStatusSQL, orderID, string(status))
	if err != nil {
		return errors.Wrapf(err, "update status of order %q", orderID)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// Cancel marks an order cancelled.
func (r *OrderRepository) Cancel(ctx context.Context, orderID string) error {
	return r.UpdateStatus(ctx, orderID, order.StatusCancelled)
}

func (r *OrderRepository) loadItems(ctx context.Context, orderPK int64) ([]order.Line, error) {
	rows, err := r.db.Query(ctx, selectOrderItemsSQL, orderPK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []order.Line
	for rows.Next() {
		var it order.Line
		if err := rows.Scan(&it.ProductName, &it.UnitPrice, &it.Quantity, &it.LineTotal, &it.Size, &it.Color); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanOrder(row pgx.Row) (*order.Persisted, error) {
	var (
		p      order.Persisted
		snap   order.AddressSnapshot
		status string
	)
	err := row.Scan(
		&p.PersistedID, &p.OrderID, &p.OrderNumber, &p.UserID, &p.Subtotal, &p.Shipping, &p.Total,
		&p.PaymentMethod, &p.CourierService, &p.CustomerEmail, &p.CustomerPhone, &status,
		&snap.FullName, &snap.Phone, &snap.Line1, &snap.Line2,
		&snap.City, &snap.State, &snap.PostalCode, &snap.Country, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = order.Status(status)
	p.Address = &snap
	return &p, nil
}
