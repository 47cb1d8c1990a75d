// Package credentials issues short-lived, single-use tokens that let a client
// hand its authenticated identity to another process.
//
// A token is redeemable exactly once and only before its TTL elapses. Absent,
// expired and already-redeemed tokens are indistinguishable to the caller.
package credentials

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittobroker/internal/logger"
	"github.com/marmos91/dittobroker/pkg/scheduler"
)

// SweeperTaskName is the scheduler task that drops expired tokens.
const SweeperTaskName = "credentials-sweeper"

// Config controls token lifetime.
type Config struct {
	// TTL is how long an issued token stays redeemable.
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl" validate:"gte=0"`

	// SweepInterval is how often expired tokens are purged.
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval" validate:"gte=0"`

	// Store is "memory" or "badger".
	Store string `mapstructure:"store" yaml:"store" validate:"omitempty,oneof=memory badger"`

	// Path is the badger directory. Empty keeps badger in memory.
	Path string `mapstructure:"path" yaml:"path"`
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.TTL == 0 {
		c.TTL = time.Minute
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.Store == "" {
		c.Store = "memory"
	}
}

// OpenStore builds the TokenStore named by cfg.Store.
func OpenStore(cfg Config) (TokenStore, error) {
	switch cfg.Store {
	case "", "memory":
		return NewMemoryStore(), nil
	case "badger":
		return OpenBadgerStore(cfg.Path)
	default:
		return nil, fmt.Errorf("credentials: unknown store %q", cfg.Store)
	}
}

// Stats counts exchange activity since start.
type Stats struct {
	Issued   uint64 `json:"issued"`
	Redeemed uint64 `json:"redeemed"`
	Rejected uint64 `json:"rejected"`
	Swept    uint64 `json:"swept"`
	Pending  int    `json:"pending"`
}

// Exchange issues and redeems tokens.
type Exchange struct {
	ttl     time.Duration
	store   TokenStore
	sweeper *scheduler.Task
	now     func() time.Time

	issued   atomic.Uint64
	redeemed atomic.Uint64
	rejected atomic.Uint64
	swept    atomic.Uint64
}

// NewExchange returns a stopped exchange. The exchange owns store and
// closes it on Stop.
func NewExchange(cfg Config, store TokenStore) (*Exchange, error) {
	cfg.ApplyDefaults()
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("%w: credentials ttl %s", scheduler.ErrInvalidConfiguration, cfg.TTL)
	}

	e := &Exchange{ttl: cfg.TTL, store: store, now: time.Now}
	sweeper, err := scheduler.NewTask(SweeperTaskName, cfg.SweepInterval, e.sweep)
	if err != nil {
		return nil, err
	}
	e.sweeper = sweeper
	return e, nil
}

// TTL returns the configured token lifetime.
func (e *Exchange) TTL() time.Duration { return e.ttl }

// Sweeper returns the expiry task.
func (e *Exchange) Sweeper() *scheduler.Task { return e.sweeper }

// Start runs the expiry sweep.
func (e *Exchange) Start() { e.sweeper.Start() }

// Stop halts the sweep and closes the store.
func (e *Exchange) Stop() error {
	e.sweeper.Stop()
	return e.store.Close()
}

// Issue registers token for principal. Reusing a pending token fails.
func (e *Exchange) Issue(ctx context.Context, token, principal string) error {
	if token == "" || principal == "" {
		return ErrInvalidToken
	}

	now := e.now()
	t := Token{Value: token, Principal: principal, CreatedAt: now, ExpiresAt: now.Add(e.ttl)}
	if err := e.store.Put(ctx, t); err != nil {
		return err
	}
	e.issued.Add(1)
	logger.DebugCtx(ctx, "Credential token issued", logger.Principal(principal), "expires_at", t.ExpiresAt)
	return nil
}

// IssueNew generates a random token for principal.
func (e *Exchange) IssueNew(ctx context.Context, principal string) (string, time.Time, error) {
	token, err := NewToken()
	if err != nil {
		return "", time.Time{}, err
	}
	if err := e.Issue(ctx, token, principal); err != nil {
		return "", time.Time{}, err
	}
	return token, e.now().Add(e.ttl), nil
}

// Redeem consumes token and returns its principal. It returns false for
// unknown, expired or already redeemed tokens.
func (e *Exchange) Redeem(ctx context.Context, token string) (string, bool) {
	if token == "" {
		e.rejected.Add(1)
		return "", false
	}

	t, ok, err := e.store.Take(ctx, token)
	if err != nil {
		logger.WarnCtx(ctx, "Credential token lookup failed", logger.Err(err))
		e.rejected.Add(1)
		return "", false
	}
	if !ok || t.Expired(e.now()) {
		e.rejected.Add(1)
		return "", false
	}

	e.redeemed.Add(1)
	return t.Principal, true
}

// Stats returns activity counters.
func (e *Exchange) Stats(ctx context.Context) Stats {
	pending, _ := e.store.Len(ctx)
	return Stats{
		Issued:   e.issued.Load(),
		Redeemed: e.redeemed.Load(),
		Rejected: e.rejected.Load(),
		Swept:    e.swept.Load(),
		Pending:  pending,
	}
}

func (e *Exchange) sweep(ctx context.Context) error {
	n, err := e.store.DeleteExpired(ctx, e.now())
	if err != nil {
		return fmt.Errorf("sweep expired tokens: %w", err)
	}
	if n > 0 {
		e.swept.Add(uint64(n))
		logger.Debug("Swept expired credential tokens", logger.Count(n))
	}
	return nil
}

// NewToken returns 32 random bytes, base64url encoded.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("credentials: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
