// Package cache provides the short-TTL response cache on Redis.
//
// The cache is advisory: any entry may be evicted at any time and every
// cached blob must be reproducible from the store.
package cache

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/sentiment-pipeline/internal/domain"
)

// Client implements domain.Cache with a namespace prefix on every key.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// New constructs a cache Client. All keys are namespaced under prefix.
func New(rdb *redis.Client, prefix string) *Client {
	return &Client{rdb: rdb, prefix: prefix}
}

func (c *Client) key(k string) string { return c.prefix + ":" + k }

// Get returns the stored blob, or ok=false on miss.
func (c *Client) Get(ctx domain.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("op=cache.get: %w", err)
	}
	return b, true, nil
}

// SetEx overwrites the key atomically with the given TTL.
func (c *Client) SetEx(ctx domain.Context, key string, ttl time.Duration, val []byte) error {
	if err := c.rdb.Set(ctx, c.key(key), val, ttl).Err(); err != nil {
		return fmt.Errorf("op=cache.setex: %w", err)
	}
	return nil
}

// Ping probes the Redis connection.
func (c *Client) Ping(ctx domain.Context) error {
	return c.rdb.Ping(ctx).Err()
}
