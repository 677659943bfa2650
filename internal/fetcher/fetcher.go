package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wonny/movers/internal/contracts"
	"github.com/wonny/movers/internal/metrics"
	"github.com/wonny/movers/pkg/logger"
)

// ErrRetriesExhausted is wrapped by every Result.Err
var ErrRetriesExhausted = errors.New("fetch retries exhausted")

const (
	// DefaultMaxAttempts total provider calls per fetch, first call included
	DefaultMaxAttempts = 3
	// DefaultBackoff fixed wait between attempts
	DefaultBackoff = 10 * time.Second
	// DefaultWindowDays calendar days requested per instrument
	DefaultWindowDays = 7
)

// Options controls retry behaviour
type Options struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultOptions returns 3 attempts with a 10s fixed backoff
func DefaultOptions() Options {
	return Options{MaxAttempts: DefaultMaxAttempts, Backoff: DefaultBackoff}
}

// Result is the tagged outcome of one instrument fetch.
// Err == nil means success, possibly with zero bars.
type Result struct {
	Instrument contracts.InstrumentID
	Bars       []contracts.PriceBar
	Attempts   int  // provider calls made, 0 on a cache hit
	Cached     bool // served from cache
	Shared     bool // joined an identical in-flight fetch
	Err        error
}

// OK reports whether the fetch succeeded
func (r Result) OK() bool {
	return r.Err == nil
}

// Empty reports a successful fetch that returned no bars
func (r Result) Empty() bool {
	return r.Err == nil && len(r.Bars) == 0
}

// DefaultWindow is the fetch window for a run on `today`
func DefaultWindow(today contracts.Date) contracts.FetchWindow {
	return contracts.NewFetchWindow(today, DefaultWindowDays)
}

// Fetcher retrieves daily bars with bounded retry, caching and
// in-flight de-duplication.
// ⭐ SSOT: 시세 수집 재시도 정책은 여기서만
type Fetcher struct {
	provider contracts.MarketDataProvider
	cache    Cache
	group    singleflight.Group
	opts     Options
	logger   *logger.Logger
	metrics  *metrics.Registry
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates a Fetcher. A nil cache gets a fresh MemoryCache.
func New(provider contracts.MarketDataProvider, cache Cache, opts Options, log *logger.Logger) *Fetcher {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Fetcher{
		provider: provider,
		cache:    cache,
		opts:     opts,
		logger:   log.WithModule("fetcher"),
		sleep:    sleepCtx,
	}
}

// WithMetrics attaches a metrics registry
func (f *Fetcher) WithMetrics(m *metrics.Registry) *Fetcher {
	f.metrics = m
	return f
}

// Options returns the effective retry options
func (f *Fetcher) Options() Options {
	return f.opts
}

type outcome struct {
	bars     []contracts.PriceBar
	attempts int
	cached   bool
}

// Fetch returns the bars for id over window. It never panics and never
// returns a partial result: either all bars or Err.
func (f *Fetcher) Fetch(ctx context.Context, id contracts.InstrumentID, window contracts.FetchWindow) Result {
	key := Fingerprint(id, window)

	v, err, shared := f.group.Do(key, func() (interface{}, error) {
		return f.fetch(ctx, id, window, key)
	})

	res := Result{Instrument: id, Shared: shared}
	out, _ := v.(outcome)
	res.Attempts = out.attempts
	res.Cached = out.cached
	if err != nil {
		res.Err = err
		return res
	}
	res.Bars = cloneBars(out.bars)
	return res
}

func (f *Fetcher) fetch(ctx context.Context, id contracts.InstrumentID, window contracts.FetchWindow, key string) (outcome, error) {
	log := f.logger.WithInstrument(string(id)).WithField("window", window.String())

	bars, hit, err := f.cache.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("Fetch cache lookup failed, treating as miss")
	}
	f.metrics.ObserveCache(hit)
	if hit {
		log.Debug("Fetch served from cache")
		f.metrics.ObserveFetch(outcomeLabel(bars))
		return outcome{bars: bars, cached: true}, nil
	}

	bars, attempts, err := f.retry(ctx, id, window, log)
	if err != nil {
		f.metrics.ObserveFetch("exhausted")
		log.WithError(err).WithField("attempts", attempts).Error("Fetch failed")
		return outcome{attempts: attempts}, err
	}

	if len(bars) == 0 {
		log.Warn("Provider returned no bars")
	}
	if err := f.cache.Set(ctx, key, bars); err != nil {
		log.WithError(err).Warn("Failed to cache fetch result")
	}
	f.metrics.ObserveFetch(outcomeLabel(bars))

	return outcome{bars: bars, attempts: attempts}, nil
}

// retry is a bounded loop: MaxAttempts calls with a fixed backoff between them
func (f *Fetcher) retry(ctx context.Context, id contracts.InstrumentID, window contracts.FetchWindow, log *logger.Logger) ([]contracts.PriceBar, int, error) {
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= f.opts.MaxAttempts; attempt++ {
		attempts = attempt

		bars, err := f.provider.GetDailyBars(ctx, id, window.Start, window.End)
		f.metrics.ObserveAttempt(err)
		if err == nil {
			return normalize(id, bars), attempts, nil
		}
		lastErr = err

		log.WithError(err).WithFields(map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": f.opts.MaxAttempts,
		}).Warn("Provider call failed")

		if ctxErr := ctx.Err(); ctxErr != nil {
			lastErr = fmt.Errorf("%w (last error: %v)", ctxErr, lastErr)
			break
		}
		if attempt == f.opts.MaxAttempts {
			break
		}
		if err := f.sleep(ctx, f.opts.Backoff); err != nil {
			lastErr = fmt.Errorf("backoff interrupted: %w (last error: %v)", err, lastErr)
			break
		}
	}

	return nil, attempts, fmt.Errorf("%w: %s after %d attempt(s): %w", ErrRetriesExhausted, id, attempts, lastErr)
}

// normalize sorts bars by date and keeps the last bar for a repeated date
func normalize(id contracts.InstrumentID, bars []contracts.PriceBar) []contracts.PriceBar {
	sorted := make([]contracts.PriceBar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	out := make([]contracts.PriceBar, 0, len(sorted))
	for _, bar := range sorted {
		bar.Instrument = id
		if n := len(out); n > 0 && out[n-1].Date == bar.Date {
			out[n-1] = bar
			continue
		}
		out = append(out, bar)
	}
	return out
}

func outcomeLabel(bars []contracts.PriceBar) string {
	if len(bars) == 0 {
		return "empty"
	}
	return "success"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
