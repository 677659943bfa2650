package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/movers/internal/contracts"
	"github.com/wonny/movers/internal/report"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "파이프라인 1회 실행",
	Long: `파이프라인을 한 번 실행합니다. 인자 없이 movers 를 실행한 것과 같습니다.

실패한 종목은 제외하고 나머지로 리포트를 만듭니다.
성공한 종목이 하나도 없거나 저장/리포트 단계가 실패하면 exit code 1.

Example:
  go run ./cmd/movers run
  go run ./cmd/movers run --date 2024-03-15 --format parquet`,
	Args: cobra.NoArgs,
	RunE: runOnce,
}

var (
	// Run flags
	runDate   string
	runLayout string
	runFormat string
)

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&runDate, "date", "", "run as of this market date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&runLayout, "layout", "", "partition layout: daily|instrument (overrides PARTITION_LAYOUT)")
	cmd.Flags().StringVar(&runFormat, "format", "", "partition format: csv|parquet (overrides PARTITION_FORMAT)")
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if runLayout != "" {
		cfg.Store.Layout = strings.ToLower(runLayout)
	}
	if runFormat != "" {
		cfg.Store.Format = strings.ToLower(runFormat)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if runDate != "" {
		day, err := contracts.ParseDate(runDate)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
		loc := cfg.Location()
		a.pipeline.WithClock(func() time.Time {
			return time.Date(day.Year, day.Month, day.Day, 12, 0, 0, 0, loc)
		})
	}

	window := a.pipeline.Window()
	PrintHeader("Daily Movers", []KeyValue{
		{"Universe", fmt.Sprintf("%s (%d)", a.pipeline.Universe().Name(), a.pipeline.Universe().Count())},
		{"Window", window.String()},
		{"Storage", fmt.Sprintf("%s (%s/%s)", cfg.Store.DataDir, cfg.Store.Layout, cfg.Store.Format)},
	})

	result, runErr := a.pipeline.Run(ctx)
	if err := a.metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
		log.WithError(err).Warn("Failed to write metrics textfile")
	}

	printResult(result)

	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}
	return nil
}

// printResult prints the report and the run summary
func printResult(result *contracts.RunResult) {
	if result == nil {
		return
	}

	if result.Report != nil {
		fmt.Println()
		fmt.Print(report.Render(*result.Report))
	}

	PrintSeparator()
	PrintKeyValue("Run ID", result.RunID, 10)
	PrintKeyValue("Succeeded", fmt.Sprintf("%d (empty: %d)", len(result.Succeeded), len(result.Empty)), 10)
	PrintKeyValue("Rows", fmt.Sprintf("%d", result.Rows), 10)
	PrintKeyValue("Partitions", fmt.Sprintf("%d", len(result.Partitions)), 10)
	PrintKeyValue("Duration", result.Duration().Round(time.Millisecond).String(), 10)

	if result.ReportError != "" {
		PrintWarning("Report not fully delivered: " + result.ReportError)
	}

	if len(result.Failed) > 0 {
		PrintWarning(fmt.Sprintf("%d instrument(s) failed:", len(result.Failed)))
		items := make([]string, 0, len(result.Failed))
		for _, f := range result.Failed {
			items = append(items, f.Error())
		}
		PrintList(items)
	}
}
