package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTLDaily keeps entries for one trading day
const TTLDaily = 24 * time.Hour

// Cache stores JSON-encoded values of one type under a key namespace
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache[T any] struct {
	client    *Client
	namespace string
	ttl       time.Duration
}

// NewCache creates a typed cache; ttl <= 0 falls back to TTLDaily
func NewCache[T any](client *Client, ttl time.Duration, namespace ...string) *Cache[T] {
	if ttl <= 0 {
		ttl = TTLDaily
	}
	return &Cache[T]{
		client:    client,
		namespace: Key(namespace...),
		ttl:       ttl,
	}
}

// Key joins non-empty parts with ':'
func Key(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ":")
}

// Key returns the full Redis key for key
func (c *Cache[T]) Key(key string) string {
	return Key(c.namespace, key)
}

// TTL returns the expiry applied by Set
func (c *Cache[T]) TTL() time.Duration {
	return c.ttl
}

// Get loads the value for key; a miss or a disabled client returns (zero, false, nil)
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var value T
	if !c.client.Enabled() {
		return value, false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.Key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return value, false, nil
	case err != nil:
		return value, false, fmt.Errorf("cache get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, &value); err != nil {
		return value, false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value with the cache TTL
func (c *Cache[T]) Set(ctx context.Context, key string, value T) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.client.Redis().Set(ctx, c.Key(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete removes key
func (c *Cache[T]) Delete(ctx context.Context, key string) error {
	if !c.client.Enabled() {
		return nil
	}
	return c.client.Redis().Del(ctx, c.Key(key)).Err()
}
