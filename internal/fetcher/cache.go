package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/movers/internal/contracts"
	"github.com/wonny/movers/pkg/redis"
)

// Fingerprint identifies one fetch request: hex SHA-256 of the canonical
// JSON encoding of {instrument, start, end}.
func Fingerprint(id contracts.InstrumentID, window contracts.FetchWindow) string {
	// struct field order fixes the key order
	payload, _ := json.Marshal(struct {
		Instrument string `json:"instrument"`
		Start      string `json:"start"`
		End        string `json:"end"`
	}{
		Instrument: string(id),
		Start:      window.Start.String(),
		End:        window.End.String(),
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Cache stores successful fetch results by fingerprint.
// Failures are never written.
type Cache interface {
	Get(ctx context.Context, key string) ([]contracts.PriceBar, bool, error)
	Set(ctx context.Context, key string, bars []contracts.PriceBar) error
}

// MemoryCache is a process-local cache scoped to one run
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]contracts.PriceBar
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]contracts.PriceBar)}
}

// Get returns a copy of the cached bars
func (c *MemoryCache) Get(_ context.Context, key string) ([]contracts.PriceBar, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	bars, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return cloneBars(bars), true, nil
}

// Set stores a copy of bars
func (c *MemoryCache) Set(_ context.Context, key string, bars []contracts.PriceBar) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cloneBars(bars)
	return nil
}

// Len returns the number of cached fingerprints
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisCache shares fetch results across processes so a resumed run
// reuses what an earlier attempt already fetched.
type RedisCache struct {
	cache *redis.Cache[[]contracts.PriceBar]
}

// NewRedisCache stores bars under "<prefix>:bars:<fingerprint>"
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{cache: redis.NewCache[[]contracts.PriceBar](client, ttl, prefix, "bars")}
}

// Get looks the fingerprint up in Redis
func (c *RedisCache) Get(ctx context.Context, key string) ([]contracts.PriceBar, bool, error) {
	bars, found, err := c.cache.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("redis fetch cache: %w", err)
	}
	return bars, found, nil
}

// Set writes the bars with the cache's default TTL
func (c *RedisCache) Set(ctx context.Context, key string, bars []contracts.PriceBar) error {
	if bars == nil {
		bars = []contracts.PriceBar{}
	}
	if err := c.cache.Set(ctx, key, bars); err != nil {
		return fmt.Errorf("redis fetch cache: %w", err)
	}
	return nil
}

// TieredCache checks each layer in order and back-fills earlier layers on a hit
type TieredCache struct {
	layers []Cache
}

// NewTieredCache builds a read-through chain, fastest layer first
func NewTieredCache(layers ...Cache) *TieredCache {
	return &TieredCache{layers: layers}
}

// Get returns the first hit. A layer error is returned only if no layer hits.
func (c *TieredCache) Get(ctx context.Context, key string) ([]contracts.PriceBar, bool, error) {
	var firstErr error
	for i, layer := range c.layers {
		bars, ok, err := layer.Get(ctx, key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !ok {
			continue
		}
		for _, earlier := range c.layers[:i] {
			_ = earlier.Set(ctx, key, bars)
		}
		return bars, true, nil
	}
	return nil, false, firstErr
}

// Set writes through to every layer
func (c *TieredCache) Set(ctx context.Context, key string, bars []contracts.PriceBar) error {
	var firstErr error
	for _, layer := range c.layers {
		if err := layer.Set(ctx, key, bars); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func cloneBars(bars []contracts.PriceBar) []contracts.PriceBar {
	if bars == nil {
		return []contracts.PriceBar{}
	}
	out := make([]contracts.PriceBar, len(bars))
	copy(out, bars)
	return out
}
