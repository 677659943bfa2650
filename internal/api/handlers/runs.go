package handlers

import (
	"net/http"
	"time"

	"github.com/wonny/movers/internal/contracts"
	"github.com/wonny/movers/internal/report"
	"github.com/wonny/movers/pkg/logger"
)

// RunSource exposes pipeline state to the API
type RunSource interface {
	LastResult() *contracts.RunResult
	Universe() contracts.Universe
	Window() contracts.FetchWindow
}

// RunsHandler serves run results and the universe
// ⭐ SSOT: 실행 결과 API 핸들러는 이 구조체에서만
type RunsHandler struct {
	source RunSource
	logger *logger.Logger
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(source RunSource, log *logger.Logger) *RunsHandler {
	return &RunsHandler{
		source: source,
		logger: log,
	}
}

// FailureResponse is an instrument failure with its error text
type FailureResponse struct {
	Instrument contracts.InstrumentID `json:"instrument"`
	Stage      contracts.Stage        `json:"stage"`
	Attempts   int                    `json:"attempts"`
	Error      string                 `json:"error"`
}

// RunResponse is the JSON view of a run
type RunResponse struct {
	RunID       string                         `json:"run_id"`
	Window      contracts.FetchWindow          `json:"window"`
	StartedAt   time.Time                      `json:"started_at"`
	FinishedAt  time.Time                      `json:"finished_at"`
	Duration    string                         `json:"duration"`
	Succeeded   int                            `json:"succeeded"`
	Empty       []contracts.InstrumentID       `json:"empty"`
	Failed      []FailureResponse              `json:"failed"`
	Rows        int                            `json:"rows"`
	Partitions  []string                       `json:"partitions"`
	Report      *contracts.MoverReport         `json:"report,omitempty"`
	Table       []report.Entry                 `json:"table,omitempty"`
	Quality     *contracts.DataQualitySnapshot `json:"quality,omitempty"`
	ReportError string                         `json:"report_error,omitempty"`
}

func toRunResponse(r *contracts.RunResult) RunResponse {
	resp := RunResponse{
		RunID:       r.RunID,
		Window:      r.Window,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Duration:    r.Duration().String(),
		Succeeded:   len(r.Succeeded),
		Empty:       r.Empty,
		Failed:      make([]FailureResponse, 0, len(r.Failed)),
		Rows:        r.Rows,
		Partitions:  r.Partitions,
		Report:      r.Report,
		Quality:     r.Quality,
		ReportError: r.ReportError,
	}
	for _, f := range r.Failed {
		fr := FailureResponse{Instrument: f.Instrument, Stage: f.Stage, Attempts: f.Attempts}
		if f.Err != nil {
			fr.Error = f.Err.Error()
		}
		resp.Failed = append(resp.Failed, fr)
	}
	if r.Report != nil {
		resp.Table = report.Table(*r.Report)
	}
	return resp
}

// GetLatest returns the most recent run
// GET /api/runs/latest
func (h *RunsHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	last := h.source.LastResult()
	if last == nil {
		respondError(w, http.StatusNotFound, "No run has finished yet")
		return
	}

	respondJSON(w, http.StatusOK, toRunResponse(last))
}

// GetUniverse returns the instrument universe and the next fetch window
// GET /api/universe
func (h *RunsHandler) GetUniverse(w http.ResponseWriter, r *http.Request) {
	u := h.source.Universe()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"name":        u.Name(),
		"count":       u.Count(),
		"instruments": u.Instruments(),
		"window":      h.source.Window(),
	})
}
