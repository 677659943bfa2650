package quality

import (
	"github.com/wonny/movers/internal/contracts"
	"github.com/wonny/movers/pkg/logger"
)

// Coverage keys
const (
	CoveragePrice   = "price"   // bar on the as-of date
	CoverageVolume  = "volume"  // bar with volume > 0
	CoverageChange  = "change"  // day-over-day change computable
	CoverageHistory = "history" // moving average present
)

// Config holds quality gate thresholds
type Config struct {
	MinPriceCoverage  float64 `yaml:"min_price_coverage"`
	MinVolumeCoverage float64 `yaml:"min_volume_coverage"`
	MinChangeCoverage float64 `yaml:"min_change_coverage"`
}

// DefaultConfig returns the production thresholds
func DefaultConfig() Config {
	return Config{
		MinPriceCoverage:  0.90,
		MinVolumeCoverage: 0.90,
		MinChangeCoverage: 0.80,
	}
}

// 가중치 (합계 = 1.0)
var weights = map[string]float64{
	CoveragePrice:   0.35,
	CoverageVolume:  0.25,
	CoverageChange:  0.25,
	CoverageHistory: 0.15,
}

// Gate scores how much of the universe made it into a run's latest date.
// A failing gate is a warning; the report is still emitted.
type Gate struct {
	config Config
	logger *logger.Logger
}

// NewGate creates a new Gate
func NewGate(config Config, log *logger.Logger) *Gate {
	return &Gate{
		config: config,
		logger: log.WithModule("quality"),
	}
}

// Config returns the thresholds in use
func (g *Gate) Config() Config {
	return g.config
}

// Check validates coverage of report.AsOf over the universe order
// ⭐ SSOT: 실행 결과 품질 검증
func (g *Gate) Check(order []contracts.InstrumentID, rows []contracts.IndicatorRow, report contracts.MoverReport) *contracts.DataQualitySnapshot {
	snapshot := &contracts.DataQualitySnapshot{
		AsOf:             report.AsOf,
		TotalInstruments: len(order),
		Coverage:         make(map[string]float64, len(weights)),
		Missing:          []contracts.InstrumentID{},
	}

	latest := make(map[contracts.InstrumentID]contracts.IndicatorRow)
	if !report.AsOf.IsZero() {
		for _, row := range rows {
			if row.Date == report.AsOf {
				latest[row.Instrument] = row
			}
		}
	}

	var withVolume, withHistory int
	for _, id := range order {
		row, ok := latest[id]
		if !ok {
			snapshot.Missing = append(snapshot.Missing, id)
			continue
		}
		snapshot.ValidInstruments++
		if row.Volume > 0 {
			withVolume++
		}
		if row.MovingAverage.Valid {
			withHistory++
		}
	}

	snapshot.Coverage[CoveragePrice] = ratio(snapshot.ValidInstruments, len(order))
	snapshot.Coverage[CoverageVolume] = ratio(withVolume, len(order))
	snapshot.Coverage[CoverageChange] = ratio(report.Eligible, len(order))
	snapshot.Coverage[CoverageHistory] = ratio(withHistory, len(order))

	snapshot.QualityScore = calculateScore(snapshot.Coverage)
	snapshot.Passed = g.passed(snapshot.Coverage)

	if !snapshot.Passed {
		g.logger.WithFields(map[string]interface{}{
			"as_of":    report.AsOf.String(),
			"coverage": snapshot.Coverage,
			"missing":  len(snapshot.Missing),
		}).Warn("Data quality below threshold")
	}

	return snapshot
}

func (g *Gate) passed(coverage map[string]float64) bool {
	return coverage[CoveragePrice] >= g.config.MinPriceCoverage &&
		coverage[CoverageVolume] >= g.config.MinVolumeCoverage &&
		coverage[CoverageChange] >= g.config.MinChangeCoverage
}

// calculateScore calculates overall quality score using weighted average
func calculateScore(coverage map[string]float64) float64 {
	score := 0.0
	for key, weight := range weights {
		if cov, exists := coverage[key]; exists {
			score += cov * weight
		}
	}
	return score
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}
