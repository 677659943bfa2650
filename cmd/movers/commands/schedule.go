package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/wonny/movers/internal/api"
	"github.com/wonny/movers/internal/api/handlers"
	"github.com/wonny/movers/internal/scheduler"
	"github.com/wonny/movers/internal/scheduler/jobs"
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "고정 주기 데몬 실행",
	Long: `cron 주기(SCHEDULE)로 파이프라인을 실행하는 데몬을 시작합니다.

데몬은 운영용 HTTP 엔드포인트를 함께 띄웁니다:
  GET  /health
  GET  /metrics
  GET  /api/runs/latest
  GET  /api/universe
  GET  /api/jobs
  GET  /api/jobs/{name}/history
  POST /api/jobs/{name}/run

이전 실행이 끝나지 않았으면 다음 tick 은 건너뜁니다.
Ctrl+C로 종료할 수 있습니다.

Example:
  go run ./cmd/movers schedule
  go run ./cmd/movers schedule --run-now --port 9000`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

var (
	// Schedule flags
	scheduleRunNow  bool
	schedulePort    string
	scheduleRetries int
)

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().BoolVar(&scheduleRunNow, "run-now", false, "trigger one run immediately on start")
	scheduleCmd.Flags().StringVar(&schedulePort, "port", "", "API port (overrides API_PORT)")
	scheduleCmd.Flags().IntVar(&scheduleRetries, "retries", 0, "re-run a failed job this many times before waiting for the next tick")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if schedulePort != "" {
		cfg.Scheduler.APIPort = schedulePort
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// 1. Scheduler + daily job
	sched := scheduler.New(log, scheduler.Options{
		MaxRetries: scheduleRetries,
		RetryDelay: time.Minute,
		Location:   cfg.Location(),
	})
	job := jobs.NewDailyMoversJob(a.pipeline, cfg.Scheduler.Schedule, log).
		WithTextfile(a.metrics, cfg.MetricsTextfile)
	if err := sched.AddJob(job); err != nil {
		return fmt.Errorf("register job: %w", err)
	}

	// 2. API server
	var gatherer prometheus.Gatherer
	if a.metrics != nil {
		gatherer = a.metrics.Gatherer()
	}
	router := api.NewRouter(api.Handlers{
		Runs: handlers.NewRunsHandler(a.pipeline, log),
		Jobs: handlers.NewJobsHandler(sched, log),
	}, gatherer, log)
	server := api.New(cfg, log, router)
	if err := server.Listen(); err != nil {
		return err
	}

	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run(serverCtx)
	}()

	sched.Start()

	PrintHeader("Daily Movers Scheduler", []KeyValue{
		{"Schedule", job.Schedule()},
		{"Timezone", cfg.Location().String()},
		{"API", server.Addr()},
	})
	fmt.Println("Press Ctrl+C to stop")

	if scheduleRunNow {
		if err := sched.RunJob(job.Name()); err != nil {
			log.WithError(err).Warn("Initial run not started")
		}
	}

	select {
	case <-ctx.Done():
		fmt.Println("\nShutting down...")
		stopServer()
		if err := <-serverErr; err != nil {
			log.WithError(err).Warn("API server shutdown failed")
		}
	case err := <-serverErr:
		if err != nil {
			log.WithError(err).Error("API server stopped")
		}
	}

	sched.Stop()

	PrintSuccess("Scheduler stopped")
	return nil
}
