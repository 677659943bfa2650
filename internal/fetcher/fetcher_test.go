package fetcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/movers/internal/contracts"
	"github.com/wonny/movers/internal/metrics"
	"github.com/wonny/movers/pkg/logger"
	"github.com/wonny/movers/pkg/redis"
)

var testWindow = DefaultWindow(contracts.NewDate(2024, time.March, 15))

type fakeProvider struct {
	mu    sync.Mutex
	calls map[contracts.InstrumentID]int
	bars  map[contracts.InstrumentID][]contracts.PriceBar
	// failures before the first success; -1 fails forever
	failures map[contracts.InstrumentID]int
	hook     func(id contracts.InstrumentID)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		calls:    map[contracts.InstrumentID]int{},
		bars:     map[contracts.InstrumentID][]contracts.PriceBar{},
		failures: map[contracts.InstrumentID]int{},
	}
}

func (p *fakeProvider) GetDailyBars(ctx context.Context, id contracts.InstrumentID, start, end contracts.Date) ([]contracts.PriceBar, error) {
	if p.hook != nil {
		p.hook(id)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls[id]++
	if f := p.failures[id]; f < 0 || p.calls[id] <= f {
		return nil, errors.New("provider unavailable")
	}
	return p.bars[id], nil
}

func (p *fakeProvider) callCount(id contracts.InstrumentID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[id]
}

func bar(id contracts.InstrumentID, day int, close string) contracts.PriceBar {
	px := decimal.RequireFromString(close)
	return contracts.PriceBar{
		Instrument: id,
		Date:       contracts.NewDate(2024, time.March, day),
		Open:       px,
		High:       px,
		Low:        px,
		Close:      px,
		Volume:     10,
	}
}

// newTestFetcher records backoff sleeps instead of waiting
func newTestFetcher(p contracts.MarketDataProvider, cache Cache) (*Fetcher, *[]time.Duration) {
	var sleeps []time.Duration
	f := New(p, cache, DefaultOptions(), logger.Nop())
	f.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return f, &sleeps
}

func TestDefaultWindow(t *testing.T) {
	w := DefaultWindow(contracts.NewDate(2024, time.March, 15))

	assert.Equal(t, contracts.NewDate(2024, time.March, 16), w.End)
	assert.Equal(t, contracts.NewDate(2024, time.March, 9), w.Start)
	assert.NoError(t, w.Validate())
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("AAA", testWindow)

	assert.Len(t, a, 64)
	assert.Equal(t, a, Fingerprint("AAA", testWindow))
	assert.NotEqual(t, a, Fingerprint("BBB", testWindow))

	shifted := contracts.FetchWindow{Start: testWindow.Start.AddDays(1), End: testWindow.End}
	assert.NotEqual(t, a, Fingerprint("AAA", shifted))
}

func TestFetch_SortsAndDeduplicates(t *testing.T) {
	p := newFakeProvider()
	p.bars["AAA"] = []contracts.PriceBar{
		bar("", 13, "11"),
		bar("", 11, "10"),
		bar("", 13, "12"),
		bar("", 12, "10.5"),
	}
	f, _ := newTestFetcher(p, nil)

	res := f.Fetch(context.Background(), "AAA", testWindow)
	require.NoError(t, res.Err)

	require.Len(t, res.Bars, 3)
	assert.Equal(t, 11, res.Bars[0].Date.Day)
	assert.Equal(t, 12, res.Bars[1].Date.Day)
	assert.Equal(t, 13, res.Bars[2].Date.Day)
	assert.Equal(t, "12", res.Bars[2].Close.String(), "last bar for a repeated date wins")
	for _, b := range res.Bars {
		assert.Equal(t, contracts.InstrumentID("AAA"), b.Instrument)
	}
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.Cached)
}

func TestFetch_Idempotent(t *testing.T) {
	p := newFakeProvider()
	p.bars["AAA"] = []contracts.PriceBar{bar("AAA", 14, "10"), bar("AAA", 15, "11")}
	f, _ := newTestFetcher(p, NewMemoryCache())

	first := f.Fetch(context.Background(), "AAA", testWindow)
	second := f.Fetch(context.Background(), "AAA", testWindow)

	require.NoError(t, first.Err)
	require.NoError(t, second.Err)
	assert.Equal(t, first.Bars, second.Bars)
	assert.True(t, second.Cached)
	assert.Equal(t, 0, second.Attempts)
	assert.Equal(t, 1, p.callCount("AAA"))
}

func TestFetch_ConcurrentIdenticalCallsCollapse(t *testing.T) {
	p := newFakeProvider()
	p.bars["AAA"] = []contracts.PriceBar{bar("AAA", 15, "11")}
	release := make(chan struct{})
	p.hook = func(contracts.InstrumentID) { <-release }
	f, _ := newTestFetcher(p, nil)

	var wg sync.WaitGroup
	var ok int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := f.Fetch(context.Background(), "AAA", testWindow); res.OK() && len(res.Bars) == 1 {
				atomic.AddInt32(&ok, 1)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(8), ok)
	assert.Equal(t, 1, p.callCount("AAA"))
}

func TestFetch_RetriesThenSucceeds(t *testing.T) {
	p := newFakeProvider()
	p.bars["BBB"] = []contracts.PriceBar{bar("BBB", 15, "20")}
	p.failures["BBB"] = 2
	f, sleeps := newTestFetcher(p, nil)

	res := f.Fetch(context.Background(), "BBB", testWindow)

	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, res.Bars, 1)
	assert.Equal(t, []time.Duration{DefaultBackoff, DefaultBackoff}, *sleeps)
}

func TestFetch_RetriesExhausted(t *testing.T) {
	p := newFakeProvider()
	p.failures["DDD"] = -1
	f, sleeps := newTestFetcher(p, nil)

	res := f.Fetch(context.Background(), "DDD", testWindow)

	require.Error(t, res.Err)
	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err, ErrRetriesExhausted)
	assert.Contains(t, res.Err.Error(), "provider unavailable")
	assert.Equal(t, 3, res.Attempts)
	assert.Nil(t, res.Bars)
	assert.Equal(t, 3, p.callCount("DDD"))
	assert.Len(t, *sleeps, 2, "no sleep after the final attempt")

	// failures are never cached
	again := f.Fetch(context.Background(), "DDD", testWindow)
	assert.Error(t, again.Err)
	assert.Equal(t, 6, p.callCount("DDD"))
}

func TestFetch_EmptyResultIsSuccess(t *testing.T) {
	p := newFakeProvider()
	cache := NewMemoryCache()
	f, _ := newTestFetcher(p, cache)

	res := f.Fetch(context.Background(), "ZZZ", testWindow)

	require.NoError(t, res.Err)
	assert.True(t, res.Empty())
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, cache.Len(), "empty results are cached")

	again := f.Fetch(context.Background(), "ZZZ", testWindow)
	assert.True(t, again.Cached)
	assert.True(t, again.Empty())
	assert.Equal(t, 1, p.callCount("ZZZ"))
}

func TestFetch_CancelDuringBackoff(t *testing.T) {
	p := newFakeProvider()
	p.failures["DDD"] = -1
	f := New(p, nil, Options{MaxAttempts: 3, Backoff: time.Hour}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res := f.Fetch(ctx, "DDD", testWindow)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.ErrorIs(t, res.Err, ErrRetriesExhausted)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, 1, res.Attempts)
}

func TestFetch_DoesNotShareBarsWithCache(t *testing.T) {
	p := newFakeProvider()
	p.bars["AAA"] = []contracts.PriceBar{bar("AAA", 15, "11")}
	f, _ := newTestFetcher(p, nil)

	first := f.Fetch(context.Background(), "AAA", testWindow)
	first.Bars[0].Close = decimal.NewFromInt(999)

	second := f.Fetch(context.Background(), "AAA", testWindow)
	assert.Equal(t, "11", second.Bars[0].Close.String())
}

func TestFetch_Metrics(t *testing.T) {
	p := newFakeProvider()
	p.bars["AAA"] = []contracts.PriceBar{bar("AAA", 15, "11")}
	p.failures["DDD"] = -1
	m := metrics.New()
	f, _ := newTestFetcher(p, nil)
	f.WithMetrics(m)

	f.Fetch(context.Background(), "AAA", testWindow)
	f.Fetch(context.Background(), "AAA", testWindow)
	f.Fetch(context.Background(), "DDD", testWindow)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchAttempts.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.FetchAttempts.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchResults.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchResults.WithLabelValues("exhausted")))
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]contracts.PriceBar, bool, error) {
	return nil, false, errors.New("cache down")
}

func (failingCache) Set(context.Context, string, []contracts.PriceBar) error {
	return errors.New("cache down")
}

func TestFetch_CacheErrorsAreNotFatal(t *testing.T) {
	p := newFakeProvider()
	p.bars["AAA"] = []contracts.PriceBar{bar("AAA", 15, "11")}
	f, _ := newTestFetcher(p, failingCache{})

	res := f.Fetch(context.Background(), "AAA", testWindow)
	require.NoError(t, res.Err)
	assert.Len(t, res.Bars, 1)
}

func TestTieredCache_Backfills(t *testing.T) {
	front := NewMemoryCache()
	back := NewMemoryCache()
	tiered := NewTieredCache(front, back)
	ctx := context.Background()

	require.NoError(t, back.Set(ctx, "k", []contracts.PriceBar{bar("AAA", 15, "1")}))
	assert.Equal(t, 0, front.Len())

	bars, ok, err := tiered.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, bars, 1)
	assert.Equal(t, 1, front.Len())

	_, ok, err = NewTieredCache(failingCache{}, front).Get(ctx, "k")
	assert.NoError(t, err, "a later hit hides an earlier layer error")
	assert.True(t, ok)
}

func TestRedisCache_Disabled(t *testing.T) {
	cache := NewRedisCache(redis.NewFromRedis(nil), "movers", redis.TTLDaily)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", nil))
	_, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
