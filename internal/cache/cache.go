package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use. Nothing stored here is authoritative;
// callers must stay correct when the cache is empty or unreachable.
type Cache interface {
	Ping(ctx context.Context) error
	// MarkEventSeen records a gateway event id. It returns false when the id was already
	// marked within ttl.
	MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	ClearEvent(ctx context.Context, eventID string) error
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

var _ Cache = (*RedisCache)(nil)

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	err := c.client.SetArgs(ctx, EventKey(eventID), time.Now().Unix(), redis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) ClearEvent(ctx context.Context, eventID string) error {
	return c.client.Del(ctx, EventKey(eventID)).Err()
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
