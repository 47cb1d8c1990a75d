// Package pool keeps a bounded set of backing resources per principal.
//
// Resources are created lazily up to MaxSize. When the pool is full, Acquire
// waits up to CheckoutTimeout for a release before failing with
// ErrPoolExhausted. Released resources are probed for validity; invalid ones
// are closed and replaced on a later Acquire. A reaper task closes resources
// that sat idle longer than IdleTimeout, never dropping below MinSize.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittobroker/internal/logger"
	"github.com/marmos91/dittobroker/pkg/backing"
	"github.com/marmos91/dittobroker/pkg/scheduler"
)

var (
	ErrPoolExhausted = errors.New("pool: no resource available within checkout timeout")
	ErrPoolClosed    = errors.New("pool: closed")
	ErrPoolNotFound  = errors.New("pool: no pool for principal")
)

// Observer receives checkout outcomes. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveCheckout(principal string, wait time.Duration, err error)
}

type entry struct {
	res      backing.Resource
	lastUsed time.Time
}

// Lease is a checked-out resource. Return it with Release or Discard
// exactly once; later calls are ignored.
type Lease struct {
	pool       *Pool
	entry      *entry
	acquiredAt time.Time
	done       atomic.Bool
}

// Resource returns the leased resource.
func (l *Lease) Resource() backing.Resource { return l.entry.res }

// Principal returns the owner of the pool the lease came from.
func (l *Lease) Principal() string { return l.pool.principal }

// AcquiredAt is when the lease was handed out.
func (l *Lease) AcquiredAt() time.Time { return l.acquiredAt }

// Release returns the resource to its pool.
func (l *Lease) Release() { l.pool.Release(l) }

// Discard closes the resource instead of returning it.
func (l *Lease) Discard() { l.pool.Discard(l) }

// Pool holds the resources of one principal.
type Pool struct {
	principal string
	cfg       Config
	factory   backing.Factory
	observer  Observer
	now       func() time.Time

	mu      sync.Mutex
	idle    []*entry // most recently used last
	inUse   int
	pending int // creations in flight, counted against MaxSize
	closed  bool
	avail   chan struct{}
	waiting int

	waitCount uint64
	created   uint64
	destroyed uint64

	statsEnabled bool
	history      []time.Duration
	histNext     int
	histFull     bool

	reaper *scheduler.Task
}

// New returns a pool for principal. Call Start to run the idle reaper.
func New(principal string, cfg Config, factory backing.Factory, opts ...Option) (*Pool, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		principal:    principal,
		cfg:          cfg,
		factory:      factory,
		now:          time.Now,
		avail:        make(chan struct{}),
		statsEnabled: cfg.Statistics,
	}
	for _, opt := range opts {
		opt(p)
	}

	reaper, err := scheduler.NewTask(ReaperTaskName(principal), cfg.ReapInterval, p.reap)
	if err != nil {
		return nil, err
	}
	p.reaper = reaper
	return p, nil
}

// Option customizes a Pool.
type Option func(*Pool)

// WithObserver reports checkouts to o.
func WithObserver(o Observer) Option {
	return func(p *Pool) { p.observer = o }
}

// WithNowFunc overrides the clock used for idle accounting.
func WithNowFunc(now func() time.Time) Option {
	return func(p *Pool) {
		if now != nil {
			p.now = now
		}
	}
}

// ReaperTaskName is the scheduler task name of a principal's reaper.
func ReaperTaskName(principal string) string {
	return "pool-reaper:" + principal
}

// Principal returns the pool owner.
func (p *Pool) Principal() string { return p.principal }

// Reaper returns the idle reaper task.
func (p *Pool) Reaper() *scheduler.Task { return p.reaper }

// Start launches the idle reaper.
func (p *Pool) Start() { p.reaper.Start() }

// signal wakes every waiter. Caller holds mu.
func (p *Pool) signal() {
	close(p.avail)
	p.avail = make(chan struct{})
}

// Acquire checks out a resource, creating one if the pool has room. When the
// pool is full it waits for a release until CheckoutTimeout elapses.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	start := time.Now()
	lease, err := p.acquire(ctx)
	wait := time.Since(start)

	if err == nil {
		p.recordCheckout(wait)
	}
	if p.observer != nil {
		p.observer.ObserveCheckout(p.principal, wait, err)
	}
	return lease, err
}

func (p *Pool) acquire(ctx context.Context) (*Lease, error) {
	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.CheckoutTimeout)
	defer cancel()

	counted := false
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		if n := len(p.idle); n > 0 {
			e := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.inUse++
			p.mu.Unlock()
			return p.newLease(e), nil
		}

		if p.inUse+p.pending < p.cfg.MaxSize {
			p.pending++
			p.mu.Unlock()
			return p.create(ctx)
		}

		if !counted {
			counted = true
			p.waitCount++
		}
		ch := p.avail
		p.waiting++
		p.mu.Unlock()

		select {
		case <-ch:
			p.mu.Lock()
			p.waiting--
			p.mu.Unlock()
		case <-waitCtx.Done():
			p.mu.Lock()
			p.waiting--
			p.mu.Unlock()
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w (principal %q, max %d)", ErrPoolExhausted, p.principal, p.cfg.MaxSize)
		}
	}
}

// create runs the factory for a slot reserved in pending.
func (p *Pool) create(ctx context.Context) (*Lease, error) {
	res, err := p.factory.Create(ctx, p.principal)

	p.mu.Lock()
	p.pending--
	if err != nil {
		p.signal()
		p.mu.Unlock()
		return nil, fmt.Errorf("pool: create resource for %q: %w", p.principal, err)
	}
	if p.closed {
		p.mu.Unlock()
		_ = res.Close()
		return nil, ErrPoolClosed
	}
	p.inUse++
	p.created++
	p.mu.Unlock()

	return p.newLease(&entry{res: res}), nil
}

func (p *Pool) newLease(e *entry) *Lease {
	return &Lease{pool: p, entry: e, acquiredAt: p.now()}
}

// Release probes the resource and returns it to the idle set, or closes it
// if the probe fails or the pool is closed.
func (p *Pool) Release(l *Lease) {
	if l == nil || l.pool != p || !l.done.CompareAndSwap(false, true) {
		return
	}

	if err := p.factory.Validate(context.Background(), l.entry.res); err != nil {
		logger.Debug("Discarding invalid resource", logger.Principal(p.principal), logger.Err(err))
		p.destroy(l.entry)
		return
	}

	p.mu.Lock()
	p.inUse--
	if p.closed {
		p.destroyed++
		p.mu.Unlock()
		_ = l.entry.res.Close()
		return
	}
	l.entry.lastUsed = p.now()
	p.idle = append(p.idle, l.entry)
	p.signal()
	p.mu.Unlock()
}

// Discard closes the resource without returning it. Its slot frees up for a
// fresh resource.
func (p *Pool) Discard(l *Lease) {
	if l == nil || l.pool != p || !l.done.CompareAndSwap(false, true) {
		return
	}
	p.destroy(l.entry)
}

func (p *Pool) destroy(e *entry) {
	_ = e.res.Close()

	p.mu.Lock()
	p.inUse--
	p.destroyed++
	p.signal()
	p.mu.Unlock()
}

// Close stops the reaper and closes idle resources. Leased resources are
// closed as they come back.
func (p *Pool) Close() {
	p.reaper.Stop()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.destroyed += uint64(len(idle))
	p.signal()
	p.mu.Unlock()

	for _, e := range idle {
		_ = e.res.Close()
	}
	logger.Debug("Pool closed", logger.Principal(p.principal), logger.Count(len(idle)))
}

// Closed reports whether Close ran.
func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool) reap(context.Context) error {
	if n := p.reapIdle(p.now()); n > 0 {
		logger.Debug("Reaped idle resources", logger.Principal(p.principal), logger.Count(n))
	}
	return nil
}

// reapIdle closes resources idle since before now-IdleTimeout while the pool
// holds more than MinSize. Oldest go first.
func (p *Pool) reapIdle(now time.Time) int {
	cutoff := now.Add(-p.cfg.IdleTimeout)

	p.mu.Lock()
	var victims []*entry
	keep := p.idle[:0]
	total := len(p.idle) + p.inUse + p.pending
	for _, e := range p.idle {
		if total > p.cfg.MinSize && e.lastUsed.Before(cutoff) {
			victims = append(victims, e)
			total--
			continue
		}
		keep = append(keep, e)
	}
	for i := len(keep); i < len(p.idle); i++ {
		p.idle[i] = nil
	}
	p.idle = keep
	p.destroyed += uint64(len(victims))
	if len(victims) > 0 {
		p.signal()
	}
	p.mu.Unlock()

	for _, e := range victims {
		_ = e.res.Close()
	}
	return len(victims)
}
