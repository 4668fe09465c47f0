package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/atelier-commerce/checkout/internal/domain/checkout"
	"github.com/atelier-commerce/checkout/internal/domain/order"
)

var _ checkout.PendingQueue = (*PendingQueue)(nil)

// PendingQueue holds drafts that no remote endpoint accepted. Entries are
// appended in checkout order and kept until an operator drains them; the
// queue is the durability guarantee behind the "order placed" answer a user
// gets when every endpoint is down.
type PendingQueue struct {
	client *redis.Client
}

// NewPendingQueue returns a PendingQueue on the given client.
func NewPendingQueue(client *redis.Client) *PendingQueue {
	return &PendingQueue{client: client}
}

func pendingKey(userID string) string {
	return fmt.Sprintf("pending_orders:%s", userID)
}

// Append pushes a draft onto the tail of the user's pending list.
func (q *PendingQueue) Append(ctx context.Context, userID string, draft *order.Draft) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return errors.Wrapf(err, "encode pending order %q", draft.OrderID)
	}
	if err := q.client.RPush(ctx, pendingKey(userID), data).Err(); err != nil {
		return errors.Wrapf(err, "append pending order %q for user %q", draft.OrderID, userID)
	}
	return nil
}

// List returns the user's queued drafts in append order.
func (q *PendingQueue) List(ctx context.Context, userID string) ([]order.Draft, error) {
	entries, err := q.client.LRange(ctx, pendingKey(userID), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "list pending orders for user %q", userID)
	}

	out := make([]order.Draft, 0, len(entries))
	for _, e := range entries {
		var d order.Draft
		if err := json.Unmarshal([]byte(e), &d); err != nil {
			return nil, errors.Wrapf(err, "decode pending order for user %q", userID)
		}
		out = append(out, d)
	}
	return out, nil
}

// Len reports how many drafts wait in the user's queue.
func (q *PendingQueue) Len(ctx context.Context, userID string) (int64, error) {
	n, err := q.client.LLen(ctx, pendingKey(userID)).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "count pending orders for user %q", userID)
	}
	return n, nil
}
