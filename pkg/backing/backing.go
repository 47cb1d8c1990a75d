// Package backing defines the physical resources the broker hands out to
// sessions and the factories that create them.
package backing

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// Resource is one physical connection owned by a principal's pool.
type Resource interface {
	// Ping performs a cheap round trip to check the resource is usable.
	Ping(ctx context.Context) error
	Close() error
}

// Factory creates resources for a principal and probes their validity.
type Factory interface {
	Create(ctx context.Context, principal string) (Resource, error)
	Validate(ctx context.Context, r Resource) error
}

// PlaceholderPrincipal is replaced by the principal name in DSN templates.
const PlaceholderPrincipal = "{principal}"

var (
	ErrInvalidPrincipal = errors.New("backing: principal not usable in a DSN")
	ErrUnknownType      = errors.New("backing: unknown factory type")
	ErrResourceClosed   = errors.New("backing: resource closed")
)

var principalPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@-]{0,127}$`)

// ValidPrincipal reports whether name is safe to substitute into a DSN.
func ValidPrincipal(name string) bool {
	return principalPattern.MatchString(name) && !strings.Contains(name, "..")
}

// ExpandDSN substitutes the principal into template. Principals are
// restricted to a safe character set so they cannot escape a file path or
// inject connection parameters.
func ExpandDSN(template, principal string) (string, error) {
	if !strings.Contains(template, PlaceholderPrincipal) {
		return template, nil
	}
	if !ValidPrincipal(principal) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPrincipal, principal)
	}
	return strings.ReplaceAll(template, PlaceholderPrincipal, principal), nil
}

// Config selects and configures a factory.
type Config struct {
	// Type names a registered constructor: memory, sqlite, postgres or pgx.
	Type string `mapstructure:"type" yaml:"type" validate:"required"`

	// DSN is a connection string template; {principal} is substituted.
	DSN string `mapstructure:"dsn" yaml:"dsn"`

	// PingTimeout bounds validity probes.
	PingTimeout time.Duration `mapstructure:"ping_timeout" yaml:"ping_timeout"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = "memory"
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 2 * time.Second
	}
}

// Constructor builds a factory from configuration.
type Constructor func(cfg Config) (Factory, error)

// Registry maps factory type names to constructors. Types are resolved once
// at startup.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds a constructor, replacing any previous one of that name.
func (r *Registry) Register(name string, c Constructor) {
	r.mu.Lock()
	r.ctors[name] = c
	r.mu.Unlock()
}

// Types lists registered names.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Build constructs the factory named by cfg.Type.
func (r *Registry) Build(cfg Config) (Factory, error) {
	cfg.ApplyDefaults()

	r.mu.RLock()
	c, ok := r.ctors[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownType, cfg.Type, strings.Join(r.Types(), ", "))
	}
	return c(cfg)
}
