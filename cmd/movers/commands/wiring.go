package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/movers/internal/contracts"
	"github.com/wonny/movers/internal/external/yahoo"
	"github.com/wonny/movers/internal/fetcher"
	"github.com/wonny/movers/internal/metrics"
	"github.com/wonny/movers/internal/pipeline"
	"github.com/wonny/movers/internal/report"
	"github.com/wonny/movers/internal/store"
	"github.com/wonny/movers/internal/universe"
	"github.com/wonny/movers/pkg/config"
	"github.com/wonny/movers/pkg/database"
	"github.com/wonny/movers/pkg/httputil"
	"github.com/wonny/movers/pkg/logger"
	"github.com/wonny/movers/pkg/redis"
)

// app holds the wired pipeline and the resources it owns
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	pipeline *pipeline.Pipeline
	metrics  *metrics.Registry
	closers  []func()
}

// Close releases connections in reverse order
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// loadConfig loads config and applies global flag overrides
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if universeFile != "" {
		cfg.Pipeline.UniverseFile = universeFile
	}
	return cfg, logger.New(cfg), nil
}

// buildApp wires every component from config
// ⭐ SSOT: 의존성 조립은 이 함수에서만
func buildApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	// 1. Universe
	u, err := universe.LoadOrDefault(cfg.Pipeline.UniverseFile)
	if err != nil {
		return nil, fmt.Errorf("load universe: %w", err)
	}

	// 2. Metrics
	if cfg.MetricsEnabled {
		a.metrics = metrics.New()
	}

	// 3. Redis (optional): shared fetch cache + distributed rate limit
	rdb, err := redis.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = rdb.Close() })

	httpClient := httputil.New(cfg, log)
	var shared fetcher.Cache
	if rdb.Enabled() {
		limiter := redis.NewRateLimiter(rdb, "movers").
			For(redis.ProviderRateLimit("provider", cfg.Fetch.RatePerSecond))
		httpClient = httpClient.WithLimiter(limiter)
		shared = fetcher.NewRedisCache(rdb, "movers", cfg.Redis.CacheTTL)
		log.Info("Redis fetch cache enabled")
	}

	// 4. Market data provider
	var provider contracts.MarketDataProvider = yahoo.NewClient(httpClient, log, cfg.Fetch.ProviderBaseURL)
	if cfg.Fetch.BreakerEnabled {
		provider = fetcher.NewBreakerProvider(provider, fetcher.BreakerSettings{
			Failures: uint32(cfg.Fetch.BreakerFailures),
			Timeout:  cfg.Fetch.BreakerTimeout,
		}, log)
	}

	// 5. Storage
	layout, err := store.ParseLayout(cfg.Store.Layout)
	if err != nil {
		return nil, err
	}
	encoder, err := store.NewEncoder(cfg.Store.Format)
	if err != nil {
		return nil, err
	}
	blobs := store.NewFileSink(cfg.Store.DataDir)

	// 6. Report sinks
	sinks := report.MultiSink{report.NewLogSink(log), report.NewBlobSink(blobs)}
	db, err := database.New(ctx, cfg)
	switch {
	case errors.Is(err, database.ErrDisabled):
	case err != nil:
		return nil, fmt.Errorf("connect to database: %w", err)
	default:
		a.closers = append(a.closers, db.Close)
		pg := report.NewPostgresSink(db, log)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		if status, err := db.HealthCheck(ctx); err == nil {
			log.WithFields(map[string]interface{}{
				"response_time": status.ResponseTime.String(),
				"max_conns":     status.Stats.MaxConns,
			}).Info("Connected to report database")
		}
		sinks = append(sinks, pg)
	}

	// 7. Pipeline
	p, err := pipeline.New(pipeline.Deps{
		Universe:    u,
		Provider:    provider,
		Blobs:       blobs,
		Reports:     sinks,
		SharedCache: shared,
		Metrics:     a.metrics,
	}, pipeline.Options{
		Workers:         cfg.Pipeline.Workers,
		WindowDays:      cfg.Pipeline.WindowDays,
		TopN:            cfg.Pipeline.TopN,
		IndicatorWindow: cfg.Pipeline.IndicatorWindow,
		Location:        cfg.Location(),
		Fetch: fetcher.Options{
			MaxAttempts: cfg.Fetch.MaxAttempts,
			Backoff:     cfg.Fetch.Backoff,
		},
		Layout:  layout,
		Encoder: encoder,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	a.pipeline = p

	log.WithFields(map[string]interface{}{
		"universe":    u.Name(),
		"instruments": u.Count(),
		"layout":      layout,
		"format":      encoder.Format(),
		"data_dir":    blobs.Root(),
	}).Info("Pipeline initialized")

	ok = true
	return a, nil
}
