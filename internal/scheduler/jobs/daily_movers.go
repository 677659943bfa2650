package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/movers/internal/contracts"
	"github.com/wonny/movers/internal/metrics"
	"github.com/wonny/movers/pkg/logger"
)

// DefaultSchedule weekdays at 19:00 market time, after the B3 close
const DefaultSchedule = "0 0 19 * * MON-FRI"

// Runner executes one pipeline run
type Runner interface {
	Run(ctx context.Context) (*contracts.RunResult, error)
}

// DailyMoversJob runs the movers pipeline on a fixed cadence
// ⭐ SSOT: 일일 파이프라인 스케줄은 이 Job에서만
type DailyMoversJob struct {
	runner   Runner
	schedule string
	metrics  *metrics.Registry
	textfile string
	logger   *logger.Logger
}

// NewDailyMoversJob creates the daily job; an empty schedule uses DefaultSchedule
func NewDailyMoversJob(runner Runner, schedule string, log *logger.Logger) *DailyMoversJob {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &DailyMoversJob{
		runner:   runner,
		schedule: schedule,
		logger:   log.WithModule("daily_movers_job"),
	}
}

// WithTextfile dumps metrics to path after every run
func (j *DailyMoversJob) WithTextfile(m *metrics.Registry, path string) *DailyMoversJob {
	j.metrics = m
	j.textfile = path
	return j
}

// Name returns the job name
func (j *DailyMoversJob) Name() string {
	return "daily_movers"
}

// Schedule returns the cron schedule (with seconds)
func (j *DailyMoversJob) Schedule() string {
	return j.schedule
}

// Run executes one pipeline run
func (j *DailyMoversJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled movers run")

	result, err := j.runner.Run(ctx)

	if werr := j.metrics.WriteTextfile(j.textfile); werr != nil {
		j.logger.WithError(werr).Warn("Failed to write metrics textfile")
	}
	if err != nil {
		return fmt.Errorf("movers run: %w", err)
	}

	if n := len(result.Failed); n > 0 {
		j.logger.WithFields(map[string]interface{}{
			"run_id": result.RunID,
			"failed": n,
		}).Warn("Run completed with failed instruments")
	}
	return nil
}
