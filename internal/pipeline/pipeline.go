package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/movers/internal/contracts"
	"github.com/wonny/movers/internal/fetcher"
	"github.com/wonny/movers/internal/indicator"
	"github.com/wonny/movers/internal/metrics"
	"github.com/wonny/movers/internal/quality"
	"github.com/wonny/movers/internal/ranker"
	"github.com/wonny/movers/internal/store"
	"github.com/wonny/movers/pkg/logger"
)

// ErrNoInstruments is returned when every instrument of a run failed
var ErrNoInstruments = errors.New("no instrument fetched successfully")

// DefaultWorkers concurrent instrument tasks
const DefaultWorkers = 4

// Deps are the collaborators of a run
type Deps struct {
	Universe contracts.Universe
	Provider contracts.MarketDataProvider
	Blobs    contracts.BlobSink
	Reports  contracts.ReportSink

	// SharedCache outlives a run (e.g. Redis); nil keeps caching per run only
	SharedCache fetcher.Cache
	Metrics     *metrics.Registry
}

// Options tune a run
type Options struct {
	Workers         int
	WindowDays      int
	TopN            int
	IndicatorWindow int
	Location        *time.Location // decides "today"
	Fetch           fetcher.Options
	Layout          store.Layout
	Encoder         store.Encoder
	Quality         *quality.Config // nil uses quality.DefaultConfig
}

// Pipeline coordinates one daily run: fetch, indicators, store, rank, report.
// ⭐ SSOT: 실행 조정은 여기서만
type Pipeline struct {
	deps   Deps
	opts   Options
	engine *indicator.Engine
	ranker *ranker.Ranker
	gate   *quality.Gate
	now    func() time.Time
	logger *logger.Logger

	mu   sync.RWMutex
	last *contracts.RunResult

	// fetch cache shared by runs over the same window
	cacheMu     sync.Mutex
	cacheWindow contracts.FetchWindow
	cache       *fetcher.MemoryCache
}

// New validates deps and fills option defaults
func New(deps Deps, opts Options, log *logger.Logger) (*Pipeline, error) {
	if deps.Universe.Count() == 0 {
		return nil, fmt.Errorf("pipeline: empty universe")
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("pipeline: nil market data provider")
	}
	if deps.Blobs == nil {
		return nil, fmt.Errorf("pipeline: nil blob sink")
	}
	if deps.Reports == nil {
		return nil, fmt.Errorf("pipeline: nil report sink")
	}
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}
	if opts.WindowDays < 1 {
		opts.WindowDays = fetcher.DefaultWindowDays
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Fetch.MaxAttempts < 1 {
		opts.Fetch = fetcher.DefaultOptions()
	}
	layout, err := store.ParseLayout(string(opts.Layout))
	if err != nil {
		return nil, err
	}
	opts.Layout = layout
	if opts.Encoder == nil {
		opts.Encoder = store.CSVEncoder{}
	}
	gateConfig := quality.DefaultConfig()
	if opts.Quality != nil {
		gateConfig = *opts.Quality
	}

	return &Pipeline{
		deps:   deps,
		opts:   opts,
		engine: indicator.New(opts.IndicatorWindow),
		ranker: ranker.New(opts.TopN, log),
		gate:   quality.NewGate(gateConfig, log),
		now:    time.Now,
		logger: log.WithModule("pipeline"),
	}, nil
}

// WithClock replaces the wall clock used to pick the window
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Universe returns the instrument universe of every run
func (p *Pipeline) Universe() contracts.Universe {
	return p.deps.Universe
}

// Window returns the fetch window a run started now would use
func (p *Pipeline) Window() contracts.FetchWindow {
	today := contracts.DateOf(p.now().In(p.opts.Location))
	return contracts.NewFetchWindow(today, p.opts.WindowDays)
}

// LastResult returns the most recent finished run, nil before the first
func (p *Pipeline) LastResult() *contracts.RunResult {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// slot is one instrument's task output; tasks never share state
type slot struct {
	rows    []contracts.IndicatorRow
	empty   bool
	failure *contracts.InstrumentFailure
}

// Run executes one full pass over the universe.
// Instrument failures are recorded and skipped; the run fails only when no
// instrument succeeds or the store step fails, in which case nothing is
// persisted or reported. A report sink failure is recorded in ReportError.
func (p *Pipeline) Run(ctx context.Context) (*contracts.RunResult, error) {
	result := &contracts.RunResult{
		RunMeta: contracts.RunMeta{
			RunID:     uuid.NewString(),
			Window:    p.Window(),
			StartedAt: p.now(),
		},
	}
	log := p.logger.WithRun(result.RunID).WithField("window", result.Window.String())

	err := p.run(ctx, result, log)

	result.FinishedAt = p.now()
	p.deps.Metrics.ObserveRun(result, err)
	p.mu.Lock()
	p.last = result
	p.mu.Unlock()

	fields := map[string]interface{}{
		"succeeded":  len(result.Succeeded),
		"empty":      len(result.Empty),
		"failed":     len(result.Failed),
		"rows":       result.Rows,
		"partitions": len(result.Partitions),
		"duration":   result.Duration().String(),
	}
	if err != nil {
		log.WithError(err).WithFields(fields).Error("Run failed")
		return result, err
	}
	log.WithFields(fields).Info("Run completed")
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, result *contracts.RunResult, log *logger.Logger) error {
	ids := p.deps.Universe.Instruments()

	log.WithFields(map[string]interface{}{
		"universe":    p.deps.Universe.Name(),
		"instruments": len(ids),
		"workers":     p.opts.Workers,
	}).Info("Starting run")

	// S0+S1: per-instrument fetch and indicators, bounded parallelism
	f := fetcher.New(p.deps.Provider, p.windowCache(result.Window), p.opts.Fetch, p.logger).WithMetrics(p.deps.Metrics)
	slots := make([]slot, len(ids))

	started := time.Now()
	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			slots[i] = p.process(ctx, f, id, result.Window)
			return nil
		})
	}
	_ = g.Wait()
	p.deps.Metrics.ObserveStage(contracts.StageFetch, time.Since(started))

	var rows []contracts.IndicatorRow
	for i, s := range slots {
		switch {
		case s.failure != nil:
			result.Failed = append(result.Failed, *s.failure)
		case s.empty:
			result.Empty = append(result.Empty, ids[i])
			result.Succeeded = append(result.Succeeded, ids[i])
		default:
			result.Succeeded = append(result.Succeeded, ids[i])
			rows = append(rows, s.rows...)
		}
	}
	result.Rows = len(rows)

	for _, failure := range result.Failed {
		log.WithInstrument(string(failure.Instrument)).WithStage(failure.Stage.ShortName()).WithError(failure.Err).
			WithField("attempts", failure.Attempts).
			Warn("Instrument excluded from run")
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled: %w", err)
	}
	if len(result.Succeeded) == 0 {
		return fmt.Errorf("%w: %d failed [%s]", ErrNoInstruments, len(result.Failed), joinIDs(result.FailedInstruments()))
	}

	// S2: persist partitions
	started = time.Now()
	st, err := store.New(p.deps.Blobs, p.opts.Layout, p.opts.Encoder, p.logger)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	partitions, err := st.Write(ctx, rows)
	result.Partitions = partitions
	if err != nil {
		return fmt.Errorf("%s: %w", contracts.StageStore, err)
	}
	p.deps.Metrics.ObserveStage(contracts.StageStore, time.Since(started))

	// S3: rank
	started = time.Now()
	report := p.ranker.Rank(rows, ids)
	result.Report = &report
	result.Quality = p.gate.Check(ids, rows, report)
	p.deps.Metrics.ObserveStage(contracts.StageRank, time.Since(started))

	// S4: report. 파티션은 이미 저장됐으므로 발행 실패는 run 실패가 아님
	started = time.Now()
	if err := p.deps.Reports.Emit(ctx, result.RunMeta, report); err != nil {
		result.ReportError = err.Error()
		log.WithStage(contracts.StageReport.ShortName()).WithError(err).Error("Report emission failed")
	}
	p.deps.Metrics.ObserveStage(contracts.StageReport, time.Since(started))

	return nil
}

// process runs fetch and indicators for one instrument
func (p *Pipeline) process(ctx context.Context, f *fetcher.Fetcher, id contracts.InstrumentID, window contracts.FetchWindow) slot {
	res := f.Fetch(ctx, id, window)
	if res.Err != nil {
		return slot{failure: &contracts.InstrumentFailure{
			Instrument: id,
			Stage:      contracts.StageFetch,
			Attempts:   res.Attempts,
			Err:        res.Err,
		}}
	}
	if len(res.Bars) == 0 {
		return slot{empty: true}
	}

	started := time.Now()
	rows := p.engine.Compute(res.Bars)
	p.deps.Metrics.ObserveStage(contracts.StageIndicators, time.Since(started))

	if len(res.Bars) < p.engine.Window() {
		p.logger.WithInstrument(string(id)).WithStage(contracts.StageIndicators.ShortName()).WithFields(map[string]interface{}{
			"bars":   len(res.Bars),
			"window": p.engine.Window(),
		}).Warn("Insufficient history, indicators left absent")
	}
	return slot{rows: rows}
}

// windowCache returns the memory cache for window, replacing it when the
// window moves on, backed by the shared cache when configured. A retried
// run over the same window reuses every earlier success.
func (p *Pipeline) windowCache(window contracts.FetchWindow) fetcher.Cache {
	p.cacheMu.Lock()
	if p.cache == nil || p.cacheWindow != window {
		p.cache = fetcher.NewMemoryCache()
		p.cacheWindow = window
	}
	mem := p.cache
	p.cacheMu.Unlock()

	if p.deps.SharedCache == nil {
		return mem
	}
	return fetcher.NewTieredCache(mem, p.deps.SharedCache)
}

func joinIDs(ids []contracts.InstrumentID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
