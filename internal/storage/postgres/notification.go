package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/atelier-commerce/checkout/internal/domain/notification"
)

var _ notification.Repository = (*NotificationRepository)(nil)

const (
	insertNotificationSQL = `INSERT INTO notifications (id, user_id, order_id, type, title, message, read, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,FALSE,$7)`

	listNotificationsSQL = `SELECT id, user_id, order_id, type, title, message, read, created_at
	FROM notifications WHERE user_id = $1 ORDER BY created_at DESC`

	markNotificationReadSQL = `UPDATE notifications SET read = TRUE WHERE id = $1`
)

// NotificationRepository implements notification.Repository backed by
// PostgreSQL.
type NotificationRepository struct {
	db DB
}

// NewNotificationRepository returns a NotificationRepository that uses the
// given pool.
func NewNotificationRepository(db DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification. A missing id or timestamp is filled in.
func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	_, err := r.db.Exec(ctx, insertNotificationSQL,
		n.ID, n.UserID, n.OrderID, string(n.Type), n.Title, n.Message, n.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "insert notification for user %q", n.UserID)
	}
	return nil
}

// ListByUser returns the user's notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string) ([]notification.Notification, error) {
	rows, err := r.db.Query(ctx, listNotificationsSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "list notifications for user %q", userID)
	}
	defer rows.Close()

	var out []notification.Notification
	for rows.Next() {
		var (
			n     notification.Notification
			ntype string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.OrderID, &ntype, &n.Title, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		n.Type = notification.Type(ntype)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flips the read flag, the only mutation notifications allow.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, markNotificationReadSQL, id)
	if err != nil {
		return errors.Wrapf(err, "mark notification %q read", id)
	}
	return nil
}
