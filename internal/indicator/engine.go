package indicator

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/wonny/movers/internal/contracts"
)

// DefaultWindow is the trailing window for moving average and volatility
const DefaultWindow = 5

// Engine computes rolling indicators over one instrument's series.
// It has no side effects: output is a fresh slice and input is never mutated.
// ⭐ SSOT: 이동평균/수익률/변동성 계산은 여기서만
type Engine struct {
	window int
}

// New creates an Engine with the given trailing window (values < 2 fall back to DefaultWindow)
func New(window int) *Engine {
	if window < 2 {
		window = DefaultWindow
	}
	return &Engine{window: window}
}

// Window returns the trailing window size
func (e *Engine) Window() int {
	return e.window
}

// Compute uses the default 5-bar window
func Compute(bars []contracts.PriceBar) []contracts.IndicatorRow {
	return New(DefaultWindow).Compute(bars)
}

// Compute derives MovingAverage, PeriodReturn and Volatility for bars.
// bars must already be sorted ascending by date.
func (e *Engine) Compute(bars []contracts.PriceBar) []contracts.IndicatorRow {
	rows := make([]contracts.IndicatorRow, len(bars))
	if len(bars) == 0 {
		return rows
	}

	returns := periodReturns(bars)
	w := decimal.NewFromInt(int64(e.window))

	sum := decimal.Zero
	for i, bar := range bars {
		rows[i] = contracts.IndicatorRow{
			PriceBar:     bar,
			PeriodReturn: returns[i],
		}

		sum = sum.Add(bar.Close)
		if i >= e.window {
			sum = sum.Sub(bars[i-e.window].Close)
		}
		if i >= e.window-1 {
			rows[i].MovingAverage = decimal.NewNullDecimal(sum.Div(w))
		}

		rows[i].Volatility = e.volatility(returns, i)
	}

	return rows
}

// periodReturns computes (close[i]-close[i-1])/close[i-1]; absent at i=0 and after a zero close
func periodReturns(bars []contracts.PriceBar) []decimal.NullDecimal {
	out := make([]decimal.NullDecimal, len(bars))
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev.IsZero() {
			continue
		}
		out[i] = decimal.NewNullDecimal(bars[i].Close.Sub(prev).Div(prev))
	}
	return out
}

// volatility is the sample standard deviation of the trailing window of returns ending at i.
// Absent if any return in the window is absent.
// decimal has no Sqrt, so it is computed in float64: the stored value is the
// shortest decimal form of that float (about 15-17 significant digits), not
// decimal-exact like the other columns.
func (e *Engine) volatility(returns []decimal.NullDecimal, i int) decimal.NullDecimal {
	if i-e.window+1 < 0 {
		return decimal.NullDecimal{}
	}

	vals := make([]float64, 0, e.window)
	for j := i - e.window + 1; j <= i; j++ {
		if !returns[j].Valid {
			return decimal.NullDecimal{}
		}
		vals = append(vals, returns[j].Decimal.InexactFloat64())
	}

	return decimal.NewNullDecimal(decimal.NewFromFloat(sampleStdDev(vals)))
}

func sampleStdDev(vals []float64) float64 {
	n := float64(len(vals))
	var mean float64
	for _, v := range vals {
		mean += v
	}
	mean /= n

	var ss float64
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / (n - 1))
}
