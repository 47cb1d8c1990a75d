package config

import (
	"strings"

	"github.com/marmos91/dittobroker/pkg/api"
	"github.com/marmos91/dittobroker/pkg/validator"
)

// DefaultValidators is the chain used when none is configured: a handoff
// token stands in for a password, otherwise the password is checked.
var DefaultValidators = []string{validator.NameHandoff, validator.NamePassword}

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	cfg.Database.ApplyDefaults()
	applyMetricsDefaults(&cfg.Metrics)
	applyAPIDefaults(&cfg.API)
	cfg.Broker.ApplyDefaults()
	cfg.Pool.ApplyDefaults()
	cfg.Backing.ApplyDefaults()
	cfg.Credentials.ApplyDefaults()
	applyValidatorDefaults(&cfg.Validators)
}

// applyLoggingDefaults sets logging defaults and normalizes the level.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Address == "" {
		cfg.Address = ":9090"
	}
}

// applyAPIDefaults leaves Enabled unset so it keeps meaning "default on".
func applyAPIDefaults(cfg *api.APIConfig) {
	cfg.ApplyDefaults()
}

func applyValidatorDefaults(cfg *validator.Config) {
	if len(cfg.Enabled) == 0 {
		cfg.Enabled = append([]string(nil), DefaultValidators...)
	}
}

// GetDefaultConfig returns a Config with all default values applied.
// Used for generating sample files and in tests.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
