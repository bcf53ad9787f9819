package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDedupTTL bounds how long a processed payment result is remembered.
const DefaultDedupTTL = 24 * time.Hour

// Deduplicator remembers which orders already had a payment result applied.
type Deduplicator interface {
	// Claim reports whether the caller is the first to process orderID.
	Claim(ctx context.Context, orderID int64) (bool, error)
	// Forget drops a claim so a redelivered result can be applied again.
	Forget(ctx context.Context, orderID int64) error
}

type RedisDeduplicator struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduplicator(client *redis.Client, ttl time.Duration) *RedisDeduplicator {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDeduplicator{client: client, ttl: ttl}
}

func (d *RedisDeduplicator) Claim(ctx context.Context, orderID int64) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupKey(orderID), time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

func (d *RedisDeduplicator) Forget(ctx context.Context, orderID int64) error {
	if err := d.client.Del(ctx, dedupKey(orderID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func dedupKey(orderID int64) string {
	return fmt.Sprintf("payment-result:%d", orderID)
}
