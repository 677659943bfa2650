package contracts

import "github.com/shopspring/decimal"

// Mover is an instrument ranked by day-over-day close change
// ⭐ SSOT: Ranker → Report 결과 전달
type Mover struct {
	Instrument InstrumentID    `json:"instrument"`
	Date       Date            `json:"date"`
	PctChange  decimal.Decimal `json:"pct_change"`
}

// MoverReport is the ranked summary for the latest trading date of a run.
// It is emitted, never stored as state.
type MoverReport struct {
	AsOf       Date    `json:"as_of_date"`
	TopGainers []Mover `json:"top_gainers"`
	TopLosers  []Mover `json:"top_losers"`
	Eligible   int     `json:"eligible"` // instruments with a day-over-day change on AsOf
}

// IsEmpty reports whether neither side has entries
func (r *MoverReport) IsEmpty() bool {
	return len(r.TopGainers) == 0 && len(r.TopLosers) == 0
}
