package config

import (
	"time"

	"github.com/Jalkey-Chen/InterLines/internal/graph"
)

// Config is the root configuration for the engine.
type Config struct {
	Core    CoreConfig    `mapstructure:"core" yaml:"core" validate:"required"`
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine" validate:"required"`
	Retry   RetryConfig   `mapstructure:"retry" yaml:"retry"`
	Trace   TraceConfig   `mapstructure:"trace" yaml:"trace"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// CoreConfig contains core application settings.
type CoreConfig struct {
	HomeDir string `mapstructure:"home_dir" yaml:"home_dir"`
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
	Debug   bool   `mapstructure:"debug" yaml:"debug"`
}

// EngineConfig bounds the scheduler and planner for a run.
type EngineConfig struct {
	// MaxWorkers bounds concurrent node execution.
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers" validate:"min=1,max=64"`

	// MaxReplans bounds review-driven replans per run.
	MaxReplans int `mapstructure:"max_replans" yaml:"max_replans" validate:"min=0,max=10"`

	// NodeTimeout is the per-attempt timeout for nodes that declare none.
	// Zero disables the default timeout.
	NodeTimeout time.Duration `mapstructure:"node_timeout" yaml:"node_timeout"`
}

// RetryConfig is the default retry policy for nodes that declare none.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts" validate:"min=1,max=10"`
	Backoff      string        `mapstructure:"backoff" yaml:"backoff" validate:"oneof=constant linear exponential"`
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay" validate:"min=0"`
	MaxDelay     time.Duration `mapstructure:"max_delay" yaml:"max_delay" validate:"min=0"`
	Multiplier   float64       `mapstructure:"multiplier" yaml:"multiplier" validate:"min=1"`
}

// Policy converts the retry configuration to a node retry policy.
func (c RetryConfig) Policy() *graph.RetryPolicy {
	return &graph.RetryPolicy{
		MaxAttempts:     c.MaxAttempts,
		BackoffStrategy: graph.BackoffStrategy(c.Backoff),
		InitialDelay:    c.InitialDelay,
		MaxDelay:        c.MaxDelay,
		Multiplier:      c.Multiplier,
	}
}

// TraceConfig controls trace recording.
type TraceConfig struct {
	// Enabled turns JSONL trace recording on.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Dir is the trace directory; defaults under the data dir when empty.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=json text"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}
