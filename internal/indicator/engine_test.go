package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/movers/internal/contracts"
)

func series(closes ...string) []contracts.PriceBar {
	day := contracts.NewDate(2024, time.March, 4)
	bars := make([]contracts.PriceBar, len(closes))
	for i, c := range closes {
		px := decimal.RequireFromString(c)
		bars[i] = contracts.PriceBar{
			Instrument: "AAA",
			Date:       day.AddDays(i),
			Open:       px,
			High:       px,
			Low:        px,
			Close:      px,
			Volume:     100,
		}
	}
	return bars
}

func TestCompute_Empty(t *testing.T) {
	rows := Compute(nil)
	assert.Empty(t, rows)
	assert.NotNil(t, rows)
}

func TestCompute_MovingAverage(t *testing.T) {
	bars := series("10", "11", "12", "13", "14", "20", "7.5")
	rows := Compute(bars)
	require.Len(t, rows, len(bars))

	for i := range rows {
		if i < 4 {
			assert.False(t, rows[i].MovingAverage.Valid, "index %d must be absent", i)
			continue
		}
		sum := decimal.Zero
		for j := i - 4; j <= i; j++ {
			sum = sum.Add(bars[j].Close)
		}
		want := sum.Div(decimal.NewFromInt(5))
		require.True(t, rows[i].MovingAverage.Valid)
		assert.True(t, want.Equal(rows[i].MovingAverage.Decimal), "index %d: want %s got %s", i, want, rows[i].MovingAverage.Decimal)
	}

	assert.Equal(t, "12", rows[4].MovingAverage.Decimal.String())
}

func TestCompute_PeriodReturn(t *testing.T) {
	bars := series("100", "105", "0", "10", "10")
	rows := Compute(bars)

	assert.False(t, rows[0].PeriodReturn.Valid, "first bar has no prior close")
	assert.Equal(t, "0.05", rows[1].PeriodReturn.Decimal.String())
	assert.Equal(t, "-1", rows[2].PeriodReturn.Decimal.String())
	assert.False(t, rows[3].PeriodReturn.Valid, "prior close of zero must not divide")
	assert.True(t, rows[4].PeriodReturn.Decimal.IsZero())

	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev.IsZero() {
			continue
		}
		want := bars[i].Close.Sub(prev).Div(prev)
		assert.True(t, want.Equal(rows[i].PeriodReturn.Decimal), "index %d", i)
	}
}

func TestCompute_Volatility(t *testing.T) {
	bars := series("100", "101", "99", "102", "100", "103", "104")
	rows := Compute(bars)

	for i := 0; i < 5; i++ {
		assert.False(t, rows[i].Volatility.Valid, "index %d must be absent", i)
	}
	require.True(t, rows[5].Volatility.Valid)
	require.True(t, rows[6].Volatility.Valid)

	var rets []float64
	for i := 1; i <= 5; i++ {
		rets = append(rets, rows[i].PeriodReturn.Decimal.InexactFloat64())
	}
	var mean float64
	for _, r := range rets {
		mean += r
	}
	mean /= 5
	var ss float64
	for _, r := range rets {
		ss += (r - mean) * (r - mean)
	}
	want := math.Sqrt(ss / 4)

	assert.InDelta(t, want, rows[5].Volatility.Decimal.InexactFloat64(), 1e-12)
	// float64 precision, carried over as the float's shortest decimal form
	assert.True(t, decimal.NewFromFloat(want).Equal(rows[5].Volatility.Decimal), "got %s", rows[5].Volatility.Decimal)
}

func TestCompute_VolatilityAbsentAfterZeroClose(t *testing.T) {
	bars := series("10", "0", "10", "11", "12", "13", "14", "15")
	rows := Compute(bars)

	// return at index 2 is absent, so every window covering it is absent
	for i := 2; i <= 6; i++ {
		assert.False(t, rows[i].Volatility.Valid, "index %d", i)
	}
	assert.True(t, rows[7].Volatility.Valid)
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	bars := series("10", "11", "12", "13", "14", "15")
	snapshot := make([]contracts.PriceBar, len(bars))
	copy(snapshot, bars)

	first := Compute(bars)
	second := Compute(bars)

	assert.Equal(t, snapshot, bars)
	assert.Equal(t, first, second, "computation must be deterministic")
	assert.Equal(t, bars[3], first[3].PriceBar)
}

func TestNew_Window(t *testing.T) {
	assert.Equal(t, DefaultWindow, New(0).Window())
	assert.Equal(t, 3, New(3).Window())

	rows := New(3).Compute(series("1", "2", "3"))
	assert.True(t, rows[2].MovingAverage.Valid)
	assert.Equal(t, "2", rows[2].MovingAverage.Decimal.String())
}
