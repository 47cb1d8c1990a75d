package broker

import (
	"fmt"
	"time"
)

// SessionReaperTaskName is the scheduler task that disconnects idle sessions.
const SessionReaperTaskName = "session-reaper"

// Config bounds the session registry.
type Config struct {
	// MaxSessions caps concurrent sessions across all principals. Zero means
	// unlimited.
	MaxSessions int `mapstructure:"max_sessions" yaml:"max_sessions" validate:"gte=0"`

	// IdleTimeout disconnects sessions without activity for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"gte=0"`

	// ReapInterval is how often idle sessions are looked for.
	ReapInterval time.Duration `mapstructure:"reap_interval" yaml:"reap_interval" validate:"gte=0"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gte=0"`
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.ReapInterval == 0 {
		c.ReapInterval = time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

// Validate rejects negative limits.
func (c *Config) Validate() error {
	if c.MaxSessions < 0 {
		return fmt.Errorf("broker: max_sessions must not be negative, got %d", c.MaxSessions)
	}
	if c.IdleTimeout < 0 || c.ReapInterval < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("broker: timeouts must not be negative")
	}
	return nil
}
