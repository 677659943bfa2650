package contracts

// DataQualitySnapshot is the coverage of the latest trading date of a run
// ⭐ SSOT: Quality Gate → Run Result 품질 정보 전달
type DataQualitySnapshot struct {
	AsOf             Date               `json:"as_of_date"`
	TotalInstruments int                `json:"total_instruments"`
	ValidInstruments int                `json:"valid_instruments"` // with a bar on AsOf
	Coverage         map[string]float64 `json:"coverage"`
	QualityScore     float64            `json:"quality_score"`
	Passed           bool               `json:"passed"`
	Missing          []InstrumentID     `json:"missing"` // no bar on AsOf, universe order
}
