package api

import (
	"os"
	"time"

	"github.com/marmos91/dittobroker/internal/logger"
)

// EnvAPISecret overrides the JWT signing secret from the config file.
const EnvAPISecret = "DBROKER_API_SECRET"

// APIConfig configures the HTTP gateway and admin API.
type APIConfig struct {
	// Enabled defaults to true. A pointer distinguishes unset from false.
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`

	// Address is the listen address.
	// Default: ":8080"
	Address string `mapstructure:"address" yaml:"address"`

	// Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// Default: 10s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// RequestTimeout bounds every request, including a connect waiting on
	// a full pool. Keep it above the pool checkout timeout.
	// Default: 30s
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	// RetryAfter is advertised on capacity errors.
	// Default: 5s
	RetryAfter time.Duration `mapstructure:"retry_after" yaml:"retry_after"`

	JWT JWTConfig `mapstructure:"jwt" yaml:"jwt"`
}

// JWTConfig configures admin token generation and validation.
type JWTConfig struct {
	// Secret is the HMAC signing key, at least 32 characters. Without one
	// the admin routes are not mounted.
	Secret string `mapstructure:"secret" yaml:"secret"`

	// Default: 15m
	AccessTokenDuration time.Duration `mapstructure:"access_token_duration" yaml:"access_token_duration"`

	// Default: 168h
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration" yaml:"refresh_token_duration"`
}

// IsEnabled returns whether the API server is enabled.
func (c *APIConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// ApplyDefaults fills in zero values.
func (c *APIConfig) ApplyDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.RetryAfter == 0 {
		c.RetryAfter = 5 * time.Second
	}
	if c.JWT.AccessTokenDuration == 0 {
		c.JWT.AccessTokenDuration = 15 * time.Minute
	}
	if c.JWT.RefreshTokenDuration == 0 {
		c.JWT.RefreshTokenDuration = 7 * 24 * time.Hour
	}
}

// GetJWTSecret returns the JWT secret, preferring the environment variable.
func (c *APIConfig) GetJWTSecret() string {
	envSecret := os.Getenv(EnvAPISecret)
	if envSecret != "" {
		if c.JWT.Secret != "" && c.JWT.Secret != envSecret {
			logger.Warn("JWT secret from environment variable overrides config file value",
				"env_var", EnvAPISecret)
		}
		return envSecret
	}
	return c.JWT.Secret
}
