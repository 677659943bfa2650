package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wonny/movers/internal/contracts"
	"github.com/wonny/movers/pkg/logger"
)

// ErrCircuitOpen is returned while the provider breaker is failing fast
var ErrCircuitOpen = errors.New("provider circuit open")

// BreakerSettings configures the provider circuit breaker
type BreakerSettings struct {
	Name     string
	Failures uint32        // consecutive failures before tripping
	Timeout  time.Duration // open duration before a half-open probe
}

// BreakerProvider fails fast once the wrapped provider keeps failing.
// A rejected call is an ordinary provider error to the retry loop.
type BreakerProvider struct {
	next   contracts.MarketDataProvider
	cb     *gobreaker.CircuitBreaker
	logger *logger.Logger
}

// NewBreakerProvider wraps next with a circuit breaker
func NewBreakerProvider(next contracts.MarketDataProvider, s BreakerSettings, log *logger.Logger) *BreakerProvider {
	if s.Name == "" {
		s.Name = "market-data"
	}
	if s.Failures == 0 {
		s.Failures = 10
	}
	log = log.WithModule("breaker")

	settings := gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.Failures
		},
		IsSuccessful: healthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &BreakerProvider{
		next:   next,
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: log,
	}
}

// temporary is implemented by provider errors that classify themselves
type temporary interface {
	Temporary() bool
}

// healthy reports whether err leaves the provider's health untouched.
// A cancelled run or a request the provider answered and refused
// (unknown symbol, bad range) does not count toward tripping.
func healthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var t temporary
	if errors.As(err, &t) {
		return !t.Temporary()
	}
	return false
}

// GetDailyBars calls the wrapped provider through the breaker
func (b *BreakerProvider) GetDailyBars(ctx context.Context, symbol contracts.InstrumentID, start, end contracts.Date) ([]contracts.PriceBar, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.GetDailyBars(ctx, symbol, start, end)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}
	bars, _ := out.([]contracts.PriceBar)
	return bars, nil
}

// State returns the breaker state name (closed, half-open, open)
func (b *BreakerProvider) State() string {
	return b.cb.State().String()
}
