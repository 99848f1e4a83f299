package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client is the Redis-backed read cache. Entries live under a per-namespace
// version; invalidating a namespace bumps the version so every older entry
// becomes unreachable and ages out through its TTL.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewClient creates a new Redis client and checks connectivity
func NewClient(addr, password string, db int, ttl time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, ttl: ttl}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func versionKey(namespace string) string {
	return fmt.Sprintf("cache:%s:version", namespace)
}

func entryKey(namespace string, version int64, key string) string {
	return fmt.Sprintf("cache:%s:v%d:%s", namespace, version, key)
}

func (c *Client) version(ctx context.Context, namespace string) (int64, error) {
	v, err := c.rdb.Get(ctx, versionKey(namespace)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// GetJSON loads a cached value into dst. It reports false on a miss. The
// returned version is the one the lookup was made under; pass it to SetJSON
// when filling the miss.
func (c *Client) GetJSON(ctx context.Context, namespace, key string, dst interface{}) (int64, bool, error) {
	version, err := c.version(ctx, namespace)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read cache version: %w", err)
	}

	raw, err := c.rdb.Get(ctx, entryKey(namespace, version, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return version, false, nil
	}
	if err != nil {
		return version, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return version, false, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return version, true, nil
}

// SetJSON stores value under the given namespace version. If the namespace
// was invalidated after that version was read, the entry is written where no
// reader looks and simply expires.
func (c *Client) SetJSON(ctx context.Context, namespace, key string, version int64, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	return c.rdb.Set(ctx, entryKey(namespace, version, key), raw, c.ttl).Err()
}

// Invalidate drops every entry in a namespace
func (c *Client) Invalidate(ctx context.Context, namespace string) error {
	return c.rdb.Incr(ctx, versionKey(namespace)).Err()
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
