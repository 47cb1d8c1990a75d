package config

import (
	"testing"
	"time"

	"github.com/marmos91/dittobroker/pkg/controlplane/store"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_Broker(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Broker.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.Broker.ShutdownTimeout)
	}
	if cfg.Broker.IdleTimeout != 30*time.Minute {
		t.Errorf("Expected default idle timeout 30m, got %v", cfg.Broker.IdleTimeout)
	}
	if cfg.Broker.MaxSessions != 0 {
		t.Errorf("Expected unlimited sessions by default, got %d", cfg.Broker.MaxSessions)
	}
}

func TestApplyDefaults_API(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.API.Address != ":8080" {
		t.Errorf("Expected default API address :8080, got %q", cfg.API.Address)
	}
	if cfg.API.ReadTimeout != 10*time.Second {
		t.Errorf("Expected default read timeout 10s, got %v", cfg.API.ReadTimeout)
	}
	if cfg.API.RetryAfter != 5*time.Second {
		t.Errorf("Expected default retry-after 5s, got %v", cfg.API.RetryAfter)
	}
	if cfg.API.Enabled != nil {
		t.Error("Expected Enabled to stay unset")
	}
	if cfg.API.RequestTimeout <= cfg.Pool.CheckoutTimeout {
		t.Errorf("Expected request timeout %v above checkout timeout %v",
			cfg.API.RequestTimeout, cfg.Pool.CheckoutTimeout)
	}
}

func TestApplyDefaults_Components(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Database.Type != store.DatabaseTypeSQLite || cfg.Database.SQLite.Path == "" {
		t.Errorf("Expected sqlite directory with a path, got %+v", cfg.Database)
	}
	if cfg.Backing.Type != "memory" {
		t.Errorf("Expected memory backing, got %q", cfg.Backing.Type)
	}
	if cfg.Credentials.TTL != time.Minute || cfg.Credentials.Store != "memory" {
		t.Errorf("Unexpected credentials defaults: %+v", cfg.Credentials)
	}
	if cfg.Metrics.Enabled || cfg.Metrics.Address != ":9090" {
		t.Errorf("Unexpected metrics defaults: %+v", cfg.Metrics)
	}
	if cfg.Telemetry.SampleRate != 1.0 || len(cfg.Telemetry.Profiling.ProfileTypes) == 0 {
		t.Errorf("Unexpected telemetry defaults: %+v", cfg.Telemetry)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "warn", Format: "json", Output: "stderr"},
	}
	cfg.Pool.MaxSize = 3
	cfg.Broker.IdleTimeout = time.Minute
	cfg.Validators.Enabled = []string{"password"}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "WARN" || cfg.Logging.Format != "json" || cfg.Logging.Output != "stderr" {
		t.Errorf("Logging overwritten: %+v", cfg.Logging)
	}
	if cfg.Pool.MaxSize != 3 {
		t.Errorf("Expected max_size 3, got %d", cfg.Pool.MaxSize)
	}
	if cfg.Broker.IdleTimeout != time.Minute {
		t.Errorf("Expected idle timeout 1m, got %v", cfg.Broker.IdleTimeout)
	}
	if len(cfg.Validators.Enabled) != 1 {
		t.Errorf("Expected explicit validator chain kept, got %v", cfg.Validators.Enabled)
	}
}

func TestGetDefaultConfig_DoesNotShareValidators(t *testing.T) {
	a := GetDefaultConfig()
	a.Validators.Enabled[0] = "mutated"

	b := GetDefaultConfig()
	if b.Validators.Enabled[0] == "mutated" {
		t.Error("Default validator chain shared between configs")
	}
}
