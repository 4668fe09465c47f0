package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/atelier-commerce/checkout/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository keeps each user's full cart as one JSON value. The whole
// line list is replaced on every write, which keeps reads and writes atomic
// without transactions.
type CartRepository struct {
	client *redis.Client
}

// NewCartRepository returns a CartRepository on the given client.
func NewCartRepository(client *redis.Client) *CartRepository {
	return &CartRepository{client: client}
}

func cartKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}

// Get returns the user's cart lines. An unknown user has an empty cart.
func (r *CartRepository) Get(ctx context.Context, userID string) ([]cart.Line, error) {
	data, err := r.client.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get cart for user %q", userID)
	}

	var lines []cart.Line
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, errors.Wrapf(err, "decode cart for user %q", userID)
	}
	return lines, nil
}

// Set replaces the user's cart with the given lines.
func (r *CartRepository) Set(ctx context.Context, userID string, lines []cart.Line) error {
	if lines == nil {
		lines = []cart.Line{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return errors.Wrapf(err, "encode cart for user %q", userID)
	}
	if err := r.client.Set(ctx, cartKey(userID), data, 0).Err(); err != nil {
		return errors.Wrapf(err, "set cart for user %q", userID)
	}
	return nil
}

// Del removes the user's cart entirely.
func (r *CartRepository) Del(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return errors.Wrapf(err, "delete cart for user %q", userID)
	}
	return nil
}
