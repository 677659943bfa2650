package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/movers/pkg/config"
)

func disabledClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(context.Background(), &config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	return client
}

// liveClient connects to REDIS_TEST_ADDR or skips
func liveClient(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFromRedis(rdb)
}

func TestNewClient_Disabled(t *testing.T) {
	client := disabledClient(t)

	assert.False(t, client.Enabled())
	assert.NoError(t, client.Ping(context.Background()))
	assert.NoError(t, client.Close())
	assert.False(t, NewFromRedis(nil).Enabled())
}

func TestOptions(t *testing.T) {
	opts := Options(&config.Config{
		Pipeline: config.PipelineConfig{Workers: 4},
		Redis:    config.RedisConfig{Host: "cache", Port: "6380", Password: "pw", DB: 2},
	})

	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 6, opts.PoolSize)
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(disabledClient(t), "test")
	cfg := ProviderRateLimit("yahoo", 5)

	d, err := limiter.Allow(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, cfg.Limit, d.Remaining)
	assert.Zero(t, d.RetryAfter)

	assert.NoError(t, limiter.For(cfg).Wait(context.Background()))
}

func TestProviderRateLimit(t *testing.T) {
	cfg := ProviderRateLimit("yahoo", 5)
	assert.Equal(t, RateLimitConfig{Key: "yahoo", Limit: 5, Window: time.Second}, cfg)
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache[[]string](disabledClient(t), 0, "test")
	assert.Equal(t, TTLDaily, cache.TTL())

	result, found, err := cache.Get(context.Background(), "key")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, result)

	assert.NoError(t, cache.Set(context.Background(), "key", []string{"a"}))
	assert.NoError(t, cache.Delete(context.Background(), "key"))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "movers:bars:abc123", Key("movers", "bars", "abc123"))
	assert.Equal(t, "movers:abc", Key("", "movers", "", "abc"))
	assert.Equal(t, "", Key())

	cache := NewCache[int](disabledClient(t), time.Minute, "movers", "bars")
	assert.Equal(t, "movers:bars:abc123", cache.Key("abc123"))
	assert.Equal(t, time.Minute, cache.TTL())
}

func TestCache_Live(t *testing.T) {
	cache := NewCache[[]int](liveClient(t), time.Minute, "movers-test", "cache")
	ctx := context.Background()
	key := "live-test"
	defer cache.Delete(ctx, key)

	require.NoError(t, cache.Set(ctx, key, []int{1, 2, 3}))

	got, found, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []int{1, 2, 3}, got)

	require.NoError(t, cache.Delete(ctx, key))
	_, found, err = cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRateLimiter_Live(t *testing.T) {
	limiter := NewRateLimiter(liveClient(t), "movers-test")
	cfg := RateLimitConfig{Key: "live-" + time.Now().Format("150405.000"), Limit: 2, Window: time.Minute}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := limiter.Allow(ctx, cfg)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 1-i, d.Remaining)
	}

	d, err := limiter.Allow(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, limiter.Wait(waitCtx, cfg), context.DeadlineExceeded)
}
