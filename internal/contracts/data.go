package contracts

import (
	"github.com/shopspring/decimal"
)

// InstrumentID is an exchange-qualified symbol such as "PETR4.SA"
type InstrumentID string

// PriceBar is one trading day for one instrument
// ⭐ SSOT: Fetcher → Indicator 일봉 데이터 전달
type PriceBar struct {
	Instrument InstrumentID    `json:"instrument"`
	Date       Date            `json:"date"`
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
	Volume     int64           `json:"volume"`
}

// IndicatorRow is a PriceBar extended with derived columns.
// Absent values (Valid == false) are expected for the head of every series.
type IndicatorRow struct {
	PriceBar
	MovingAverage decimal.NullDecimal `json:"moving_average"`
	Volatility    decimal.NullDecimal `json:"volatility"`
	PeriodReturn  decimal.NullDecimal `json:"period_return"`
}

// RowKey uniquely identifies a row inside a partition
type RowKey struct {
	Instrument InstrumentID
	Date       Date
}

// Key returns the (instrument, date) identity of the row
func (r IndicatorRow) Key() RowKey {
	return RowKey{Instrument: r.Instrument, Date: r.Date}
}

// DailyPartition groups every row sharing one calendar date
type DailyPartition struct {
	Date Date           `json:"date"`
	Rows []IndicatorRow `json:"rows"`
}
