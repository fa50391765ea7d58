package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/Jalkey-Chen/InterLines/internal/types"
)

// Loader handles loading configuration from files.
type Loader interface {
	Load(path string) (*Config, error)
	LoadWithDefaults(path string) (*Config, error)
}

// viperLoader implements Loader using Viper.
type viperLoader struct {
	validator Validator
}

// NewLoader creates a new Loader instance.
func NewLoader(validator Validator) Loader {
	return &viperLoader{
		validator: validator,
	}
}

// Load loads configuration from the specified file path.
// Returns an error if the file doesn't exist or cannot be parsed.
func (l *viperLoader) Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED, "failed to read config file", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED, "failed to unmarshal config", err)
	}

	// Path-like fields support ${VAR} interpolation against the process
	// environment, which LoadDotenv may have extended from .env files.
	cfg.Core.HomeDir = interpolateString(cfg.Core.HomeDir)
	cfg.Core.DataDir = interpolateString(cfg.Core.DataDir)
	cfg.Trace.Dir = interpolateString(cfg.Trace.Dir)
	cfg.Tracing.Endpoint = interpolateString(cfg.Tracing.Endpoint)
	cfg.Logging.Level = interpolateString(cfg.Logging.Level)
	cfg.Logging.Format = interpolateString(cfg.Logging.Format)

	if err := l.validator.Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadWithDefaults loads configuration from the specified file path.
// If the file doesn't exist, returns default configuration.
func (l *viperLoader) LoadWithDefaults(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := l.validator.Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	return l.Load(path)
}

// setDefaults seeds viper so a partial file inherits the rest.
func setDefaults(v *viper.Viper) {
	def := DefaultConfig()

	v.SetDefault("core.home_dir", def.Core.HomeDir)
	v.SetDefault("core.data_dir", def.Core.DataDir)
	v.SetDefault("core.debug", def.Core.Debug)
	v.SetDefault("engine.max_workers", def.Engine.MaxWorkers)
	v.SetDefault("engine.max_replans", def.Engine.MaxReplans)
	v.SetDefault("engine.node_timeout", def.Engine.NodeTimeout)
	v.SetDefault("retry.max_attempts", def.Retry.MaxAttempts)
	v.SetDefault("retry.backoff", def.Retry.Backoff)
	v.SetDefault("retry.initial_delay", def.Retry.InitialDelay)
	v.SetDefault("retry.max_delay", def.Retry.MaxDelay)
	v.SetDefault("retry.multiplier", def.Retry.Multiplier)
	v.SetDefault("trace.enabled", def.Trace.Enabled)
	v.SetDefault("trace.dir", def.Trace.Dir)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("tracing.enabled", def.Tracing.Enabled)
	v.SetDefault("tracing.endpoint", def.Tracing.Endpoint)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// interpolateString replaces ${VAR_NAME} with environment variable values.
// Unset variables are left as-is so validation can surface them.
func interpolateString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if envValue := os.Getenv(varName); envValue != "" {
			return envValue
		}
		return match
	})
}
