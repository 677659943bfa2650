package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wonny/movers/internal/contracts"
	"github.com/wonny/movers/pkg/logger"
)

// Schema creates the report table
const Schema = `
CREATE SCHEMA IF NOT EXISTS movers;

CREATE TABLE IF NOT EXISTS movers.report_artifacts (
    run_id      UUID        NOT NULL,
    artifact    TEXT        NOT NULL,
    as_of_date  DATE        NOT NULL,
    side        TEXT        NOT NULL,
    rank        SMALLINT    NOT NULL,
    instrument  TEXT        NOT NULL,
    pct_change  NUMERIC     NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (run_id, side, rank)
);

CREATE INDEX IF NOT EXISTS idx_report_artifacts_as_of ON movers.report_artifacts (as_of_date);
`

// Execer is the part of pgxpool.Pool the sink needs
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink appends the ranked table to movers.report_artifacts
// ⭐ SSOT: 리포트 DB 저장은 여기서만
type PostgresSink struct {
	db     Execer
	logger *logger.Logger
}

// NewPostgresSink creates a sink writing through db
func NewPostgresSink(db Execer, log *logger.Logger) *PostgresSink {
	return &PostgresSink{
		db:     db,
		logger: log.WithModule("report_pg"),
	}
}

// EnsureSchema creates the report table if needed
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create report schema: %w", err)
	}
	return nil
}

// Emit upserts every table entry in a single statement, keyed by run id
func (s *PostgresSink) Emit(ctx context.Context, meta contracts.RunMeta, r contracts.MoverReport) error {
	entries := Table(r)
	if len(entries) == 0 {
		return nil
	}

	query, args := insertStatement(meta.RunID, r.AsOf, entries)
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert report artifacts: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"run_id": meta.RunID,
		"rows":   tag.RowsAffected(),
	}).Info("Report saved to database")
	return nil
}

func insertStatement(runID string, asOf contracts.Date, entries []Entry) (string, []any) {
	const cols = 7
	var b strings.Builder
	b.WriteString(`INSERT INTO movers.report_artifacts
    (run_id, artifact, as_of_date, side, rank, instrument, pct_change)
VALUES `)

	args := make([]any, 0, len(entries)*cols)
	for i, e := range entries {
		if i > 0 {
			b.WriteString(", ")
		}
		n := i * cols
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7)
		args = append(args,
			runID,
			ArtifactKey,
			asOf.Time(),
			string(e.Side),
			e.Rank,
			string(e.Instrument),
			e.PctChange.String(),
		)
	}
	b.WriteString(`
ON CONFLICT (run_id, side, rank) DO UPDATE SET
    as_of_date = EXCLUDED.as_of_date,
    instrument = EXCLUDED.instrument,
    pct_change = EXCLUDED.pct_change`)

	return b.String(), args
}
