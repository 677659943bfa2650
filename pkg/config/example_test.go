package config_test

import (
	"fmt"

	"github.com/wonny/movers/pkg/config"
)

// Example demonstrates how to use the config package
func Example() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return
	}

	fmt.Printf("Environment: %s\n", cfg.Env)
	fmt.Printf("Market timezone: %s\n", cfg.Location())
	fmt.Printf("Partitions: %s/%s as %s\n", cfg.Store.DataDir, cfg.Store.Layout, cfg.Store.Format)
	fmt.Printf("Retry: %d attempts, %s backoff\n", cfg.Fetch.MaxAttempts, cfg.Fetch.Backoff)
}
