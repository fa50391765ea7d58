package config

import (
	"path/filepath"
	"time"
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	homeDir := DefaultHomeDir()

	return &Config{
		Core: CoreConfig{
			HomeDir: homeDir,
			DataDir: filepath.Join(homeDir, "data"),
			Debug:   false,
		},
		Engine: EngineConfig{
			MaxWorkers:  4,
			MaxReplans:  3,
			NodeTimeout: 2 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			Backoff:      "exponential",
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
		},
		Trace: TraceConfig{
			Enabled: true,
			Dir:     filepath.Join(homeDir, "traces"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "",
		},
	}
}
