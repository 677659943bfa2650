package logger_test

import (
	"errors"

	"github.com/wonny/movers/pkg/config"
	"github.com/wonny/movers/pkg/logger"
)

// Example_withFields demonstrates structured logging for a fetch
func Example_withFields() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	}

	log := logger.New(cfg).WithModule("fetcher")

	log.WithFields(map[string]interface{}{
		"instrument": "PETR4.SA",
		"attempt":    2,
	}).Warn("Provider call failed")
}

// Example_withError demonstrates attaching an error
func Example_withError() {
	cfg := &config.Config{
		Env:       "development",
		LogLevel:  "debug",
		LogFormat: "console",
	}

	log := logger.New(cfg)

	err := errors.New("connection refused")
	log.WithError(err).WithField("instrument", "VALE3.SA").Error("Fetch failed")
}
