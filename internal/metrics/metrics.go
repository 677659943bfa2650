package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/wonny/movers/internal/contracts"
)

// Registry holds all Prometheus metrics for the movers pipeline
// ⭐ SSOT: 메트릭 정의는 여기서만
type Registry struct {
	reg *prometheus.Registry

	// Fetch stage
	FetchAttempts *prometheus.CounterVec // result=ok|error
	FetchResults  *prometheus.CounterVec // outcome=success|empty|exhausted
	CacheLookups  *prometheus.CounterVec // result=hit|miss

	// Stage timing
	StageDuration *prometheus.HistogramVec

	// Run level
	Runs            *prometheus.CounterVec // status=success|failed
	RowsWritten     prometheus.Counter
	PartitionWrites prometheus.Counter
	LastRunSuccess  prometheus.Gauge
	LastRunUnixTime prometheus.Gauge
	ReportFailures  prometheus.Counter

	// Data quality of the latest run
	DataCoverage *prometheus.GaugeVec // kind=price|volume|change|history
	QualityScore prometheus.Gauge
}

// New creates a registry with every pipeline metric registered
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		FetchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "movers_fetch_attempts_total",
				Help: "Provider calls made by the fetcher",
			},
			[]string{"result"},
		),

		FetchResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "movers_fetch_results_total",
				Help: "Per-instrument fetch outcomes",
			},
			[]string{"outcome"},
		),

		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "movers_fetch_cache_lookups_total",
				Help: "Fetch cache lookups by result",
			},
			[]string{"result"},
		),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "movers_stage_duration_seconds",
				Help:    "Duration of each pipeline stage in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),

		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "movers_runs_total",
				Help: "Pipeline runs by final status",
			},
			[]string{"status"},
		),

		RowsWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "movers_rows_written_total",
				Help: "Indicator rows handed to the partitioned store",
			},
		),

		PartitionWrites: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "movers_partition_writes_total",
				Help: "Partition artifacts written",
			},
		),

		LastRunSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "movers_last_run_success",
				Help: "1 if the last run succeeded, 0 otherwise",
			},
		),

		LastRunUnixTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "movers_last_run_timestamp_seconds",
				Help: "Unix time the last run finished",
			},
		),

		DataCoverage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "movers_data_coverage_ratio",
				Help: "Share of the universe covered on the latest date, by kind",
			},
			[]string{"kind"},
		),

		ReportFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "movers_report_failures_total",
				Help: "Runs whose report sinks failed after partitions were stored",
			},
		),

		QualityScore: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "movers_data_quality_score",
				Help: "Weighted coverage score of the latest run (0..1)",
			},
		),
	}

	r.reg.MustRegister(
		r.FetchAttempts,
		r.FetchResults,
		r.CacheLookups,
		r.StageDuration,
		r.Runs,
		r.RowsWritten,
		r.PartitionWrites,
		r.LastRunSuccess,
		r.LastRunUnixTime,
		r.ReportFailures,
		r.DataCoverage,
		r.QualityScore,
		collectors.NewGoCollector(),
	)

	// 모든 stage 시계열을 0 으로 노출
	for _, stage := range contracts.AllStages() {
		r.StageDuration.WithLabelValues(stage.ShortName())
	}

	return r
}

// Gatherer exposes the underlying registry for promhttp
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ObserveStage records how long a stage took
func (r *Registry) ObserveStage(stage contracts.Stage, d time.Duration) {
	if r == nil {
		return
	}
	r.StageDuration.WithLabelValues(stage.ShortName()).Observe(d.Seconds())
}

// ObserveAttempt records one provider call
func (r *Registry) ObserveAttempt(err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.FetchAttempts.WithLabelValues("error").Inc()
		return
	}
	r.FetchAttempts.WithLabelValues("ok").Inc()
}

// ObserveCache records a cache lookup
func (r *Registry) ObserveCache(hit bool) {
	if r == nil {
		return
	}
	if hit {
		r.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	r.CacheLookups.WithLabelValues("miss").Inc()
}

// ObserveFetch records the final outcome for one instrument
func (r *Registry) ObserveFetch(outcome string) {
	if r == nil {
		return
	}
	r.FetchResults.WithLabelValues(outcome).Inc()
}

// ObserveRun records a finished run
func (r *Registry) ObserveRun(result *contracts.RunResult, runErr error) {
	if r == nil {
		return
	}
	status := "success"
	if runErr != nil {
		status = "failed"
	}
	r.Runs.WithLabelValues(status).Inc()

	if runErr == nil {
		r.LastRunSuccess.Set(1)
	} else {
		r.LastRunSuccess.Set(0)
	}
	if result != nil {
		r.RowsWritten.Add(float64(result.Rows))
		r.PartitionWrites.Add(float64(len(result.Partitions)))
		if !result.FinishedAt.IsZero() {
			r.LastRunUnixTime.Set(float64(result.FinishedAt.Unix()))
		}
		if result.ReportError != "" {
			r.ReportFailures.Inc()
		}
		if q := result.Quality; q != nil {
			for kind, cov := range q.Coverage {
				r.DataCoverage.WithLabelValues(kind).Set(cov)
			}
			r.QualityScore.Set(q.QualityScore)
		}
	}
}

// WriteTextfile dumps the registry for the node_exporter textfile collector.
// One-shot CLI runs use this since nothing scrapes them.
func (r *Registry) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
