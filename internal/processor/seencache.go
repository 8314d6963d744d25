package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"courier/internal/constants"
)

// SeenCache remembers idempotency ids this service has already handled so a
// redelivered event can be dropped without a store round trip. It is an
// optimization in front of the store's own idempotency, never the source of
// truth.
type SeenCache interface {
	// MarkSeen returns true when the id was not seen before.
	MarkSeen(ctx context.Context, idempotencyID string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, idempotencyID string) error
}

type RedisSeenCache struct {
	client *redis.Client
}

func NewSeenCache(client *redis.Client) SeenCache {
	return &RedisSeenCache{client: client}
}

func (c *RedisSeenCache) MarkSeen(ctx context.Context, idempotencyID string, ttl time.Duration) (bool, error) {
	key := constants.CacheKeyPrefixSeen + idempotencyID
	first, err := c.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX failed: %w", err)
	}
	return first, nil
}

func (c *RedisSeenCache) Forget(ctx context.Context, idempotencyID string) error {
	key := constants.CacheKeyPrefixSeen + idempotencyID
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis DEL failed: %w", err)
	}
	return nil
}
