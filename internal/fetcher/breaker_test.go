package fetcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/movers/internal/contracts"
	"github.com/wonny/movers/pkg/logger"
)

func TestBreakerProvider_TripsAndFailsFast(t *testing.T) {
	p := newFakeProvider()
	p.failures["DDD"] = -1
	b := NewBreakerProvider(p, BreakerSettings{Failures: 2, Timeout: time.Hour}, logger.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := b.GetDailyBars(ctx, "DDD", testWindow.Start, testWindow.End)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, "open", b.State())

	_, err := b.GetDailyBars(ctx, "DDD", testWindow.Start, testWindow.End)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, p.callCount("DDD"), "open breaker does not reach the provider")
}

type statusErr struct{ temp bool }

func (e statusErr) Error() string   { return "status error" }
func (e statusErr) Temporary() bool { return e.temp }

type erroringProvider struct{ err error }

func (p erroringProvider) GetDailyBars(context.Context, contracts.InstrumentID, contracts.Date, contracts.Date) ([]contracts.PriceBar, error) {
	return nil, p.err
}

func TestBreakerProvider_PermanentErrorsDoNotTrip(t *testing.T) {
	b := NewBreakerProvider(erroringProvider{err: fmt.Errorf("wrapped: %w", statusErr{temp: false})},
		BreakerSettings{Failures: 2, Timeout: time.Hour}, logger.Nop())

	for i := 0; i < 5; i++ {
		_, err := b.GetDailyBars(context.Background(), "ZZZ", testWindow.Start, testWindow.End)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, "closed", b.State())

	b = NewBreakerProvider(erroringProvider{err: statusErr{temp: true}},
		BreakerSettings{Failures: 2, Timeout: time.Hour}, logger.Nop())
	for i := 0; i < 2; i++ {
		_, _ = b.GetDailyBars(context.Background(), "DDD", testWindow.Start, testWindow.End)
	}
	assert.Equal(t, "open", b.State())
}

func TestHealthy(t *testing.T) {
	assert.True(t, healthy(nil))
	assert.True(t, healthy(context.Canceled))
	assert.True(t, healthy(statusErr{temp: false}))
	assert.False(t, healthy(statusErr{temp: true}))
	assert.False(t, healthy(errors.New("connection reset")))
}

func TestBreakerProvider_PassesThrough(t *testing.T) {
	p := newFakeProvider()
	p.bars["AAA"] = []contracts.PriceBar{bar("AAA", 15, "11")}
	b := NewBreakerProvider(p, BreakerSettings{}, logger.Nop())

	bars, err := b.GetDailyBars(context.Background(), "AAA", testWindow.Start, testWindow.End)
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.Equal(t, "closed", b.State())
}

func TestBreakerProvider_WithFetcher(t *testing.T) {
	p := newFakeProvider()
	p.failures["DDD"] = -1
	b := NewBreakerProvider(p, BreakerSettings{Failures: 1, Timeout: time.Hour}, logger.Nop())
	f, _ := newTestFetcher(b, nil)

	res := f.Fetch(context.Background(), "DDD", testWindow)

	assert.ErrorIs(t, res.Err, ErrRetriesExhausted)
	assert.ErrorIs(t, res.Err, ErrCircuitOpen)
	assert.Equal(t, 3, res.Attempts, "rejected calls still count as attempts")
	assert.Equal(t, 1, p.callCount("DDD"))
}
