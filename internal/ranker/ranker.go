package ranker

import (
	"sort"

	"github.com/wonny/movers/internal/contracts"
	"github.com/wonny/movers/pkg/logger"
)

// DefaultTopN entries per side of the report
const DefaultTopN = 3

// Ranker picks the top gainers and losers of the latest date
// ⭐ SSOT: 상승/하락 랭킹 로직은 여기서만
type Ranker struct {
	topN   int
	logger *logger.Logger
}

// New creates a ranker; topN < 1 falls back to DefaultTopN
func New(topN int, log *logger.Logger) *Ranker {
	if topN < 1 {
		topN = DefaultTopN
	}
	return &Ranker{
		topN:   topN,
		logger: log.WithModule("ranker"),
	}
}

// TopN returns the per-side limit
func (r *Ranker) TopN() int {
	return r.topN
}

// Rank builds the mover report for the latest date present in rows.
// The change is close on that date against the instrument's previous
// available close. Ties keep the order of `order`; instruments missing
// from it come last, by id.
func (r *Ranker) Rank(rows []contracts.IndicatorRow, order []contracts.InstrumentID) contracts.MoverReport {
	report := contracts.MoverReport{
		TopGainers: []contracts.Mover{},
		TopLosers:  []contracts.Mover{},
	}
	if len(rows) == 0 {
		return report
	}

	asOf := rows[0].Date
	for _, row := range rows[1:] {
		if row.Date.After(asOf) {
			asOf = row.Date
		}
	}
	report.AsOf = asOf

	latest := make(map[contracts.InstrumentID]contracts.IndicatorRow)
	prior := make(map[contracts.InstrumentID]contracts.IndicatorRow)
	for _, row := range rows {
		if row.Date == asOf {
			latest[row.Instrument] = row
			continue
		}
		if p, ok := prior[row.Instrument]; !ok || !row.Date.Before(p.Date) {
			prior[row.Instrument] = row
		}
	}

	movers := make([]contracts.Mover, 0, len(latest))
	for id, row := range latest {
		p, ok := prior[id]
		if !ok || p.Close.IsZero() {
			r.logger.WithFields(map[string]interface{}{
				"instrument": id,
				"as_of":      asOf.String(),
			}).Debug("No prior close, instrument not ranked")
			continue
		}
		movers = append(movers, contracts.Mover{
			Instrument: id,
			Date:       asOf,
			PctChange:  row.Close.Sub(p.Close).Div(p.Close),
		})
	}
	report.Eligible = len(movers)

	pos := position(order)
	byOrder := func(a, b contracts.Mover) bool {
		pa, oka := pos[a.Instrument]
		pb, okb := pos[b.Instrument]
		switch {
		case oka && okb:
			return pa < pb
		case oka != okb:
			return oka
		default:
			return a.Instrument < b.Instrument
		}
	}
	// fixed starting order so the result never depends on map iteration
	sort.Slice(movers, func(i, j int) bool { return byOrder(movers[i], movers[j]) })

	var gainers, losers []contracts.Mover
	for _, m := range movers {
		switch m.PctChange.Sign() {
		case 1:
			gainers = append(gainers, m)
		case -1:
			losers = append(losers, m)
		}
	}
	sort.SliceStable(gainers, func(i, j int) bool { return gainers[i].PctChange.GreaterThan(gainers[j].PctChange) })
	sort.SliceStable(losers, func(i, j int) bool { return losers[i].PctChange.LessThan(losers[j].PctChange) })

	report.TopGainers = append(report.TopGainers, head(gainers, r.topN)...)
	report.TopLosers = append(report.TopLosers, head(losers, r.topN)...)

	r.logger.WithFields(map[string]interface{}{
		"as_of":    asOf.String(),
		"eligible": report.Eligible,
		"gainers":  len(report.TopGainers),
		"losers":   len(report.TopLosers),
	}).Info("Movers ranked")

	return report
}

func position(order []contracts.InstrumentID) map[contracts.InstrumentID]int {
	pos := make(map[contracts.InstrumentID]int, len(order))
	for i, id := range order {
		if _, dup := pos[id]; !dup {
			pos[id] = i
		}
	}
	return pos
}

func head(movers []contracts.Mover, n int) []contracts.Mover {
	if len(movers) > n {
		return movers[:n]
	}
	return movers
}
