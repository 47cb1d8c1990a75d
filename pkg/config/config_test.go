package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/dittobroker/pkg/controlplane/store"
	"github.com/marmos91/dittobroker/pkg/validator"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are escape sequences.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, `
logging:
  level: "info"

database:
  type: sqlite
  sqlite:
    path: "`+yamlSafePath(tmpDir)+`/directory.db"

api:
  address: "127.0.0.1:8081"
  jwt:
    secret: "test-secret-key-for-testing-minimum-32-chars"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected level normalized to INFO, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Broker.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Broker.ShutdownTimeout)
	}
	if cfg.API.Address != "127.0.0.1:8081" {
		t.Errorf("Expected api address 127.0.0.1:8081, got %q", cfg.API.Address)
	}
	if !cfg.API.IsEnabled() {
		t.Error("Expected API enabled by default")
	}
	if cfg.Pool.MaxSize < 1 {
		t.Errorf("Expected pool max_size default, got %d", cfg.Pool.MaxSize)
	}
	if len(cfg.Validators.Enabled) != 2 || cfg.Validators.Enabled[0] != validator.NameHandoff {
		t.Errorf("Expected default validator chain, got %v", cfg.Validators.Enabled)
	}
}

func TestLoad_Durations(t *testing.T) {
	configPath := writeConfig(t, `
broker:
  idle_timeout: 90s
  reap_interval: 15s
  max_sessions: 100
pool:
  max_size: 4
  checkout_timeout: 250ms
credentials:
  ttl: 2m
  store: badger
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Broker.IdleTimeout != 90*time.Second {
		t.Errorf("Expected idle_timeout 90s, got %v", cfg.Broker.IdleTimeout)
	}
	if cfg.Broker.ReapInterval != 15*time.Second {
		t.Errorf("Expected reap_interval 15s, got %v", cfg.Broker.ReapInterval)
	}
	if cfg.Broker.MaxSessions != 100 {
		t.Errorf("Expected max_sessions 100, got %d", cfg.Broker.MaxSessions)
	}
	if cfg.Pool.CheckoutTimeout != 250*time.Millisecond {
		t.Errorf("Expected checkout_timeout 250ms, got %v", cfg.Pool.CheckoutTimeout)
	}
	if cfg.Credentials.TTL != 2*time.Minute || cfg.Credentials.Store != "badger" {
		t.Errorf("Unexpected credentials config: %+v", cfg.Credentials)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg.API.Address != ":8080" {
		t.Errorf("Expected default API address :8080, got %q", cfg.API.Address)
	}
	if cfg.Database.Type != store.DatabaseTypeSQLite {
		t.Errorf("Expected sqlite directory, got %q", cfg.Database.Type)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DBROKER_LOGGING_LEVEL", "debug")
	t.Setenv("DBROKER_POOL_MAX_SIZE", "7")

	configPath := writeConfig(t, `
logging:
  level: INFO
pool:
  max_size: 3
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected env to override level, got %q", cfg.Logging.Level)
	}
	if cfg.Pool.MaxSize != 7 {
		t.Errorf("Expected env to override pool.max_size, got %d", cfg.Pool.MaxSize)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	configPath := writeConfig(t, `
pool:
  max_size: 2
  min_size: 5
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected validation error for min_size > max_size")
	}
	if !strings.Contains(err.Error(), "min_size") {
		t.Errorf("Expected error to mention min_size, got: %v", err)
	}
}

func TestMustLoad_Missing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	_, err := MustLoad("")
	if err == nil {
		t.Fatal("Expected error when default config does not exist")
	}
	if !strings.Contains(err.Error(), "dbroker config init") {
		t.Errorf("Expected init instructions, got: %v", err)
	}

	_, err = MustLoad(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected not found error, got: %v", err)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Pool.MaxSize = 12
	cfg.Broker.IdleTimeout = 5 * time.Minute
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Expected 0600 permissions, got %o", perm)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load of saved config failed: %v", err)
	}
	if loaded.Pool.MaxSize != 12 {
		t.Errorf("Expected max_size 12, got %d", loaded.Pool.MaxSize)
	}
	if loaded.Broker.IdleTimeout != 5*time.Minute {
		t.Errorf("Expected idle_timeout 5m, got %v", loaded.Broker.IdleTimeout)
	}
}

func TestGetConfigDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if got := GetConfigDir(); got != filepath.Join(dir, "dbroker") {
		t.Errorf("Expected %s, got %s", filepath.Join(dir, "dbroker"), got)
	}
	if got := GetDefaultConfigPath(); got != filepath.Join(dir, "dbroker", "config.yaml") {
		t.Errorf("Unexpected default config path %s", got)
	}
	if DefaultConfigExists() {
		t.Error("Expected no default config in empty dir")
	}
}

func TestSchema(t *testing.T) {
	out, err := Schema()
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("Schema is not valid JSON: %v", err)
	}

	props, ok := doc["properties"].(map[string]any)
	if !ok {
		t.Fatal("Schema has no properties")
	}
	for _, key := range []string{"logging", "database", "api", "broker", "pool", "credentials", "validators"} {
		if _, ok := props[key]; !ok {
			t.Errorf("Schema missing %q", key)
		}
	}

	broker := props["broker"].(map[string]any)["properties"].(map[string]any)
	idle := broker["idle_timeout"].(map[string]any)
	if idle["type"] != "string" {
		t.Errorf("Expected durations as strings, got %v", idle["type"])
	}
}
