package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jalkey-Chen/InterLines/internal/graph"
	"github.com/Jalkey-Chen/InterLines/internal/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, NewValidator().Validate(cfg))

	assert.Equal(t, 4, cfg.Engine.MaxWorkers)
	assert.Equal(t, 3, cfg.Engine.MaxReplans)
	assert.Equal(t, "exponential", cfg.Retry.Backoff)
	assert.True(t, cfg.Trace.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadMergesPartialFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
engine:
  max_workers: 8
logging:
  level: debug
`)

	cfg, err := NewLoader(NewValidator()).Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Engine.MaxWorkers)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unspecified sections inherit defaults.
	assert.Equal(t, 3, cfg.Engine.MaxReplans)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := NewLoader(NewValidator()).Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.CONFIG_LOAD_FAILED))
}

func TestLoadWithDefaultsFallsBack(t *testing.T) {
	cfg, err := NewLoader(NewValidator()).LoadWithDefaults(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Engine.MaxWorkers, cfg.Engine.MaxWorkers)
}

func TestLoadInterpolatesEnvironment(t *testing.T) {
	t.Setenv("INTERLINES_TEST_TRACES", "/var/lib/interlines/traces")

	path := writeConfig(t, `
trace:
  enabled: true
  dir: ${INTERLINES_TEST_TRACES}
`)

	cfg, err := NewLoader(NewValidator()).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/interlines/traces", cfg.Trace.Dir)
}

func TestLoadLeavesUnsetVariablesVisible(t *testing.T) {
	path := writeConfig(t, `
trace:
  dir: ${INTERLINES_UNSET_VARIABLE}
`)

	cfg, err := NewLoader(NewValidator()).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "${INTERLINES_UNSET_VARIABLE}", cfg.Trace.Dir)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Engine.MaxWorkers = 0 }},
		{"too many workers", func(c *Config) { c.Engine.MaxWorkers = 100 }},
		{"negative replans", func(c *Config) { c.Engine.MaxReplans = -1 }},
		{"unknown backoff", func(c *Config) { c.Retry.Backoff = "fibonacci" }},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"initial delay above max", func(c *Config) {
			c.Retry.InitialDelay = 10 * time.Second
			c.Retry.MaxDelay = time.Second
		}},
		{"trace enabled without dir", func(c *Config) {
			c.Trace.Enabled = true
			c.Trace.Dir = ""
		}},
		{"tracing enabled without endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Endpoint = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := NewValidator().Validate(cfg)
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.CONFIG_VALIDATION_FAILED))
		})
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := writeConfig(t, `
engine:
  max_workers: 0
`)

	_, err := NewLoader(NewValidator()).Load(path)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.CONFIG_VALIDATION_FAILED))
}

func TestRetryConfigPolicy(t *testing.T) {
	policy := RetryConfig{
		MaxAttempts:  5,
		Backoff:      "linear",
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   1.5,
	}.Policy()

	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, graph.BackoffLinear, policy.BackoffStrategy)
	assert.Equal(t, time.Second, policy.InitialDelay)
	assert.Equal(t, 10*time.Second, policy.MaxDelay)
	assert.Equal(t, 1.5, policy.Multiplier)
}

func TestDefaultConfigPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/tmp/home", "config.yaml"), DefaultConfigPath("/tmp/home"))
}
