package pool

import (
	"fmt"
	"time"
)

// Config bounds each principal's pool. Every principal gets the same limits.
type Config struct {
	// MinSize resources are kept open even when idle.
	MinSize int `mapstructure:"min_size" yaml:"min_size" validate:"gte=0"`

	// MaxSize caps in-use plus idle resources.
	MaxSize int `mapstructure:"max_size" yaml:"max_size" validate:"gte=1"`

	// CheckoutTimeout is how long Acquire waits for a resource when the pool
	// is full.
	CheckoutTimeout time.Duration `mapstructure:"checkout_timeout" yaml:"checkout_timeout" validate:"gte=0"`

	// IdleTimeout closes resources idle for longer, down to MinSize.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"gte=0"`

	// ReapInterval is the idle reaper period.
	ReapInterval time.Duration `mapstructure:"reap_interval" yaml:"reap_interval" validate:"gte=0"`

	// Statistics enables checkout timing for new pools.
	Statistics bool `mapstructure:"statistics" yaml:"statistics"`

	// HistorySize is how many checkout durations are kept per pool.
	HistorySize int `mapstructure:"history_size" yaml:"history_size" validate:"gte=0"`
}

// DefaultConfig returns the defaults applied by ApplyDefaults.
func DefaultConfig() Config {
	c := Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.MaxSize == 0 {
		c.MaxSize = 10
	}
	if c.CheckoutTimeout == 0 {
		c.CheckoutTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.ReapInterval == 0 {
		c.ReapInterval = time.Minute
	}
	if c.HistorySize == 0 {
		c.HistorySize = 64
	}
}

// Validate checks invariants the struct tags cannot express.
func (c *Config) Validate() error {
	if c.MaxSize < 1 {
		return fmt.Errorf("pool: max_size must be at least 1, got %d", c.MaxSize)
	}
	if c.MinSize < 0 || c.MinSize > c.MaxSize {
		return fmt.Errorf("pool: min_size must be between 0 and max_size (%d), got %d", c.MaxSize, c.MinSize)
	}
	if c.CheckoutTimeout < 0 || c.IdleTimeout < 0 || c.ReapInterval < 0 {
		return fmt.Errorf("pool: timeouts must not be negative")
	}
	if c.HistorySize < 0 {
		return fmt.Errorf("pool: history_size must not be negative")
	}
	return nil
}
