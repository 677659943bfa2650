package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wonny/movers/internal/contracts"
	"github.com/wonny/movers/pkg/logger"
)

// LogSink writes the rendered report to the log
type LogSink struct {
	logger *logger.Logger
}

// NewLogSink creates a log-backed report sink
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{logger: log.WithModule("report")}
}

// Emit logs the report text at info level
func (s *LogSink) Emit(_ context.Context, meta contracts.RunMeta, r contracts.MoverReport) error {
	s.logger.WithFields(map[string]interface{}{
		"run_id":   meta.RunID,
		"as_of":    r.AsOf.String(),
		"gainers":  len(r.TopGainers),
		"losers":   len(r.TopLosers),
		"eligible": r.Eligible,
	}).Info("Daily report generated:\n" + Render(r))
	return nil
}

// artifact is the JSON document written by BlobSink
type artifact struct {
	Key      string                `json:"key"`
	RunID    string                `json:"run_id"`
	Window   contracts.FetchWindow `json:"window"`
	AsOf     contracts.Date        `json:"as_of_date"`
	Eligible int                   `json:"eligible"`
	Table    []Entry               `json:"table"`
	Text     string                `json:"text"`
}

// BlobSink stores the ranked table as reports/<as_of>/daily_top_stocks.json
type BlobSink struct {
	blobs contracts.BlobSink
}

// NewBlobSink writes report artifacts through blobs
func NewBlobSink(blobs contracts.BlobSink) *BlobSink {
	return &BlobSink{blobs: blobs}
}

// ArtifactName is the blob name for a report date
func ArtifactName(asOf contracts.Date) string {
	return fmt.Sprintf("reports/%s/%s.json", asOf, ArtifactKey)
}

// Emit serializes and stores the report. Reports without a date are skipped;
// a dated report with empty lists is still written.
func (s *BlobSink) Emit(ctx context.Context, meta contracts.RunMeta, r contracts.MoverReport) error {
	if r.AsOf.IsZero() {
		return nil
	}

	payload, err := json.MarshalIndent(artifact{
		Key:      ArtifactKey,
		RunID:    meta.RunID,
		Window:   meta.Window,
		AsOf:     r.AsOf,
		Eligible: r.Eligible,
		Table:    Table(r),
		Text:     Render(r),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report artifact: %w", err)
	}

	if err := s.blobs.Put(ctx, ArtifactName(r.AsOf), payload); err != nil {
		return fmt.Errorf("store report artifact: %w", err)
	}
	return nil
}

// MultiSink fans a report out to every sink. All sinks are tried;
// the joined error reports every failure.
type MultiSink []contracts.ReportSink

// Emit calls each sink in order
func (m MultiSink) Emit(ctx context.Context, meta contracts.RunMeta, r contracts.MoverReport) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Emit(ctx, meta, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
