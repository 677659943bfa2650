package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the movers pipeline
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	Env string // development, staging, production

	Pipeline  PipelineConfig
	Fetch     FetchConfig
	Store     StoreConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	Scheduler SchedulerConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled  bool
	MetricsTextfile string // node_exporter textfile collector target, empty = disabled
}

// PipelineConfig holds run-level settings
type PipelineConfig struct {
	UniverseFile    string // YAML universe, empty = built-in list
	WindowDays      int    // calendar days fetched per run
	MarketTZ        string // IANA zone used to decide "today"
	Workers         int    // concurrent instrument pipelines
	TopN            int    // gainers/losers per side
	IndicatorWindow int    // rolling window for MA and volatility
}

// FetchConfig holds market-data provider and retry settings
type FetchConfig struct {
	MaxAttempts     int
	Backoff         time.Duration
	ProviderBaseURL string
	ProviderTimeout time.Duration
	RatePerSecond   int

	BreakerEnabled  bool
	BreakerFailures int
	BreakerTimeout  time.Duration
}

// StoreConfig holds partition persistence settings
type StoreConfig struct {
	DataDir string
	Layout  string // daily, instrument
	Format  string // csv, parquet
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	CacheTTL time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	StatementTimeout time.Duration // per report write
}

// Enabled reports whether a report database is configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// SchedulerConfig holds daemon-mode settings
type SchedulerConfig struct {
	Schedule string // cron expression with seconds
	APIPort  string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		Pipeline: PipelineConfig{
			UniverseFile:    getEnv("UNIVERSE_FILE", ""),
			WindowDays:      getEnvAsInt("WINDOW_DAYS", 7),
			MarketTZ:        getEnv("MARKET_TZ", "America/Sao_Paulo"),
			Workers:         getEnvAsInt("WORKERS", 4),
			TopN:            getEnvAsInt("TOP_N", 3),
			IndicatorWindow: getEnvAsInt("INDICATOR_WINDOW", 5),
		},

		Fetch: FetchConfig{
			MaxAttempts:     getEnvAsInt("FETCH_MAX_ATTEMPTS", 3),
			Backoff:         getEnvAsDuration("FETCH_BACKOFF", "10s"),
			ProviderBaseURL: getEnv("PROVIDER_BASE_URL", "https://query1.finance.yahoo.com"),
			ProviderTimeout: getEnvAsDuration("PROVIDER_TIMEOUT", "15s"),
			RatePerSecond:   getEnvAsInt("PROVIDER_RATE_PER_SEC", 5),
			BreakerEnabled:  getEnvAsBool("BREAKER_ENABLED", true),
			BreakerFailures: getEnvAsInt("BREAKER_FAILURES", 10),
			BreakerTimeout:  getEnvAsDuration("BREAKER_TIMEOUT", "30s"),
		},

		Store: StoreConfig{
			DataDir: getEnv("DATA_DIR", "data"),
			Layout:  strings.ToLower(getEnv("PARTITION_LAYOUT", "daily")),
			Format:  strings.ToLower(getEnv("PARTITION_FORMAT", "csv")),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			CacheTTL: getEnvAsDuration("REDIS_CACHE_TTL", "24h"),
		},

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 4),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),

			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", "10s"),
		},

		Scheduler: SchedulerConfig{
			Schedule: getEnv("SCHEDULE", "0 0 19 * * MON-FRI"),
			APIPort:  getEnv("API_PORT", "8089"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled:  getEnvAsBool("METRICS_ENABLED", true),
		MetricsTextfile: getEnv("METRICS_TEXTFILE", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if configuration values are usable
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Pipeline.WindowDays < 1 || c.Pipeline.WindowDays > 366 {
		return fmt.Errorf("WINDOW_DAYS must be between 1 and 366, got %d", c.Pipeline.WindowDays)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("WORKERS must be positive, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.TopN < 1 {
		return fmt.Errorf("TOP_N must be positive, got %d", c.Pipeline.TopN)
	}
	if c.Pipeline.IndicatorWindow < 2 {
		return fmt.Errorf("INDICATOR_WINDOW must be at least 2, got %d", c.Pipeline.IndicatorWindow)
	}
	if _, err := time.LoadLocation(c.Pipeline.MarketTZ); err != nil {
		return fmt.Errorf("MARKET_TZ %q: %w", c.Pipeline.MarketTZ, err)
	}

	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("FETCH_MAX_ATTEMPTS must be positive, got %d", c.Fetch.MaxAttempts)
	}
	if c.Fetch.Backoff < 0 {
		return fmt.Errorf("FETCH_BACKOFF must not be negative")
	}
	if c.Fetch.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}

	switch c.Store.Layout {
	case "daily", "instrument":
	default:
		return fmt.Errorf("PARTITION_LAYOUT must be one of: daily, instrument")
	}
	switch c.Store.Format {
	case "csv", "parquet":
	default:
		return fmt.Errorf("PARTITION_FORMAT must be one of: csv, parquet")
	}

	return nil
}

// Location returns the market time zone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Pipeline.MarketTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
