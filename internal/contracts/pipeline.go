package contracts

import (
	"fmt"
	"time"
)

// Pipeline Stage 정의 (SSOT)
// 로그 필드와 메트릭 라벨은 이 상수를 사용해야 함
//
// 파이프라인 흐름:
//   S0 → S1 → S2 → S3 → S4
//   Fetch  Indicators  Store  Rank  Report

// Stage represents a pipeline stage
type Stage string

const (
	// StageFetch S0: 종목별 일봉 수집 (retry + cache)
	// 위치: internal/fetcher/
	StageFetch Stage = "S0_FETCH"

	// StageIndicators S1: 이동평균/수익률/변동성 계산
	// 위치: internal/indicator/
	StageIndicators Stage = "S1_INDICATORS"

	// StageStore S2: 일자별 파티션 저장
	// 위치: internal/store/
	StageStore Stage = "S2_STORE"

	// StageRank S3: 상승/하락 상위 종목 선정
	// 위치: internal/ranker/
	StageRank Stage = "S3_RANK"

	// StageReport S4: 리포트 발행
	// 위치: internal/report/
	StageReport Stage = "S4_REPORT"
)

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// ShortName returns abbreviated stage name (e.g., "S0", "S1")
func (s Stage) ShortName() string {
	switch s {
	case StageFetch:
		return "S0"
	case StageIndicators:
		return "S1"
	case StageStore:
		return "S2"
	case StageRank:
		return "S3"
	case StageReport:
		return "S4"
	default:
		return "UNKNOWN"
	}
}

// AllStages returns all pipeline stages in order
func AllStages() []Stage {
	return []Stage{
		StageFetch,
		StageIndicators,
		StageStore,
		StageRank,
		StageReport,
	}
}

// InstrumentFailure records an instrument excluded from aggregation
type InstrumentFailure struct {
	Instrument InstrumentID `json:"instrument"`
	Stage      Stage        `json:"stage"`
	Attempts   int          `json:"attempts"`
	Err        error        `json:"-"`
}

func (f InstrumentFailure) Error() string {
	return fmt.Sprintf("%s failed at %s after %d attempt(s): %v", f.Instrument, f.Stage.ShortName(), f.Attempts, f.Err)
}

// Unwrap exposes the underlying cause
func (f InstrumentFailure) Unwrap() error {
	return f.Err
}

// RunMeta identifies a single pipeline run
type RunMeta struct {
	RunID     string      `json:"run_id"`
	Window    FetchWindow `json:"window"`
	StartedAt time.Time   `json:"started_at"`
}

// RunResult summarizes one pipeline run
// ⭐ SSOT: Run Coordinator → CLI/API 실행 결과 전달
type RunResult struct {
	RunMeta
	FinishedAt  time.Time            `json:"finished_at"`
	Succeeded   []InstrumentID       `json:"succeeded"`
	Empty       []InstrumentID       `json:"empty"` // succeeded with zero bars
	Failed      []InstrumentFailure  `json:"failed"`
	Rows        int                  `json:"rows"`
	Partitions  []string             `json:"partitions"`
	Report      *MoverReport         `json:"report,omitempty"`
	Quality     *DataQualitySnapshot `json:"quality,omitempty"`
	ReportError string               `json:"report_error,omitempty"` // report sink failure; the run still succeeds
}

// FailedInstruments returns the ids of failed instruments in universe order
func (r *RunResult) FailedInstruments() []InstrumentID {
	ids := make([]InstrumentID, 0, len(r.Failed))
	for _, f := range r.Failed {
		ids = append(ids, f.Instrument)
	}
	return ids
}

// Duration returns the wall-clock run time
func (r *RunResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
