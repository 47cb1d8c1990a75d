package pool

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/marmos91/dittobroker/internal/logger"
	"github.com/marmos91/dittobroker/pkg/backing"
	"github.com/marmos91/dittobroker/pkg/scheduler"
)

// Manager owns one Pool per principal, created on first use.
type Manager struct {
	cfg     Config
	factory backing.Factory
	opts    []Option
	tasks   *scheduler.Group

	mu     sync.Mutex
	pools  map[string]*Pool
	closed bool
}

// NewManager validates cfg once; every pool shares it. When tasks is not
// nil each pool's reaper is registered there so it can be retuned.
func NewManager(cfg Config, factory backing.Factory, tasks *scheduler.Group, opts ...Option) (*Manager, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		cfg:     cfg,
		factory: factory,
		opts:    opts,
		tasks:   tasks,
		pools:   make(map[string]*Pool),
	}, nil
}

// Config returns the effective pool configuration.
func (m *Manager) Config() Config { return m.cfg }

func (m *Manager) poolFor(principal string) (*Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrPoolClosed
	}
	if p, ok := m.pools[principal]; ok {
		return p, nil
	}

	p, err := New(principal, m.cfg, m.factory, m.opts...)
	if err != nil {
		return nil, err
	}
	if m.tasks != nil {
		if err := m.tasks.Add(p.Reaper()); err != nil {
			return nil, err
		}
	}
	p.Start()
	m.pools[principal] = p

	logger.Info("Pool created", logger.Principal(principal),
		logger.KeyMaxSize, m.cfg.MaxSize, "min_size", m.cfg.MinSize)
	return p, nil
}

// Acquire checks out a resource from principal's pool.
func (m *Manager) Acquire(ctx context.Context, principal string) (*Lease, error) {
	p, err := m.poolFor(principal)
	if err != nil {
		return nil, err
	}
	return p.Acquire(ctx)
}

// Release returns a lease to the pool it came from.
func (m *Manager) Release(l *Lease) {
	if l != nil {
		l.Release()
	}
}

// Discard closes a leased resource.
func (m *Manager) Discard(l *Lease) {
	if l != nil {
		l.Discard()
	}
}

// Pool returns principal's pool if it exists.
func (m *Manager) Pool(principal string) (*Pool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[principal]
	return p, ok
}

func (m *Manager) snapshot() []*Pool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Pool, 0, len(m.pools))
	for _, p := range m.pools {
		out = append(out, p)
	}
	return out
}

// Statistics returns a snapshot of every pool, sorted by principal.
func (m *Manager) Statistics() []Stats {
	pools := m.snapshot()
	out := make([]Stats, 0, len(pools))
	for _, p := range pools {
		out = append(out, p.Statistics())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Principal < out[j].Principal })
	return out
}

// SetStatisticsEnabled toggles timing on principal's pool.
func (m *Manager) SetStatisticsEnabled(principal string, enabled bool) error {
	p, ok := m.Pool(principal)
	if !ok {
		return fmt.Errorf("%w: %q", ErrPoolNotFound, principal)
	}
	p.SetStatisticsEnabled(enabled)
	return nil
}

// ClosePool closes and forgets principal's pool.
func (m *Manager) ClosePool(principal string) {
	m.mu.Lock()
	p, ok := m.pools[principal]
	delete(m.pools, principal)
	m.mu.Unlock()

	if !ok {
		return
	}
	if m.tasks != nil {
		m.tasks.Remove(p.Reaper().Name())
	}
	p.Close()
}

// CloseAll closes every pool and rejects further acquires.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.closed = true
	pools := m.pools
	m.pools = make(map[string]*Pool)
	m.mu.Unlock()

	for _, p := range pools {
		if m.tasks != nil {
			m.tasks.Remove(p.Reaper().Name())
		}
		p.Close()
	}
}
