package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/atelier-commerce/checkout/internal/domain/cart"
)

var _ cart.CountPublisher = (*BadgePublisher)(nil)

// badgeChannel carries cart count updates to any subscribed frontends.
const badgeChannel = "cart:badge"

func badgeKey(userID string) string {
	return fmt.Sprintf("cart_count:%s", userID)
}

// BadgePublisher fans out the cart item count after each mutation. The count
// is cached under its own key so a fresh page load can read it without
// waiting for the next publish. Publishing is best-effort: a failure is
// logged, never surfaced, because a stale badge must not fail a cart write.
type BadgePublisher struct {
	client *redis.Client
}

// NewBadgePublisher returns a BadgePublisher on the given client.
func NewBadgePublisher(client *redis.Client) *BadgePublisher {
	return &BadgePublisher{client: client}
}

// PublishCount caches the count and announces it on the badge channel.
func (p *BadgePublisher) PublishCount(ctx context.Context, userID string, count int) {
	lg := zctx.From(ctx)

	if err := p.client.Set(ctx, badgeKey(userID), count, 0).Err(); err != nil {
		lg.Warn("cache cart badge", zap.String("user_id", userID), zap.Error(err))
	}
	payload := fmt.Sprintf("%s:%d", userID, count)
	if err := p.client.Publish(ctx, badgeChannel, payload).Err(); err != nil {
		lg.Warn("publish cart badge", zap.String("user_id", userID), zap.Error(err))
	}
}

// Watch subscribes to the badge channel and invokes fn for every count
// update until ctx is cancelled. Malformed payloads are dropped.
func (p *BadgePublisher) Watch(ctx context.Context, fn func(userID string, count int)) error {
	sub := p.client.Subscribe(ctx, badgeChannel)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if userID, count, ok := parseBadgePayload(msg.Payload); ok {
				fn(userID, count)
			}
		}
	}
}

// parseBadgePayload splits "<userID>:<count>". The count follows the last
// colon since user ids may contain colons themselves.
func parseBadgePayload(payload string) (string, int, bool) {
	i := strings.LastIndexByte(payload, ':')
	if i <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(payload[i+1:])
	if err != nil {
		return "", 0, false
	}
	return payload[:i], n, true
}

// Count reads the cached badge count for a user, zero when none is cached.
func (p *BadgePublisher) Count(ctx context.Context, userID string) (int, error) {
	val, err := p.client.Get(ctx, badgeKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "get cart badge for user %q", userID)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, errors.Wrapf(err, "decode cart badge for user %q", userID)
	}
	return n, nil
}
