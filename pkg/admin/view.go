// Package admin is the administrative surface over a running broker:
// sessions, pools, scheduled tasks and the credentials exchange.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittobroker/internal/logger"
	"github.com/marmos91/dittobroker/pkg/broker"
	"github.com/marmos91/dittobroker/pkg/credentials"
	"github.com/marmos91/dittobroker/pkg/pool"
	"github.com/marmos91/dittobroker/pkg/scheduler"
)

// IntervalStore persists task intervals changed through the view.
type IntervalStore interface {
	Intervals(ctx context.Context) (map[string]time.Duration, error)
	SetInterval(ctx context.Context, task string, d time.Duration) error
}

// View exposes read and control operations. Session listings carry
// metadata only, never credentials or resource handles.
type View struct {
	server    *broker.Server
	exchange  *credentials.Exchange
	intervals IntervalStore
}

// Option configures a View.
type Option func(*View)

// WithExchange adds credentials exchange statistics.
func WithExchange(ex *credentials.Exchange) Option {
	return func(v *View) { v.exchange = ex }
}

// WithIntervalStore persists interval changes to s.
func WithIntervalStore(s IntervalStore) Option {
	return func(v *View) { v.intervals = s }
}

// NewView returns a view over server.
func NewView(server *broker.Server, opts ...Option) *View {
	v := &View{server: server}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// SessionCount returns the number of live sessions.
func (v *View) SessionCount() int { return v.server.SessionCount() }

// Sessions lists live sessions, oldest first.
func (v *View) Sessions() []broker.SessionInfo { return v.server.Sessions() }

// Session returns one session's metadata.
func (v *View) Session(id uuid.UUID) (broker.SessionInfo, error) {
	s, ok := v.server.Session(id)
	if !ok {
		return broker.SessionInfo{}, fmt.Errorf("%w: %s", broker.ErrSessionNotFound, id)
	}
	return s.Info(), nil
}

// Disconnect force-closes a session and reports whether it was open.
// Disconnecting an unknown session is not an error.
func (v *View) Disconnect(id uuid.UUID) bool {
	if !v.server.Evict(id, broker.ReasonAdmin) {
		logger.Debug("Admin disconnect of unknown session", logger.SessionID(id.String()))
		return false
	}
	logger.Info("Session disconnected by administrator", logger.SessionID(id.String()))
	return true
}

// PoolStatistics returns a snapshot of every principal's pool.
func (v *View) PoolStatistics() []pool.Stats { return v.server.Pools().Statistics() }

// SetPoolStatistics toggles checkout timing for principal's pool.
func (v *View) SetPoolStatistics(principal string, enabled bool) error {
	return v.server.Pools().SetStatisticsEnabled(principal, enabled)
}

// Schedulers lists every scheduled task.
func (v *View) Schedulers() []scheduler.Stats {
	if g := v.server.Tasks(); g != nil {
		return g.Stats()
	}
	return []scheduler.Stats{v.server.Reaper().Stats()}
}

// SetInterval retunes a task and, with an interval store, persists the new
// value so it is restored on the next start.
func (v *View) SetInterval(ctx context.Context, task string, d time.Duration) error {
	g := v.server.Tasks()
	if g == nil {
		if task != broker.SessionReaperTaskName {
			return fmt.Errorf("%w: %q", scheduler.ErrTaskNotFound, task)
		}
		return v.server.Reaper().SetInterval(d)
	}

	if err := g.SetInterval(task, d); err != nil {
		return err
	}
	if v.intervals != nil {
		if err := v.intervals.SetInterval(ctx, task, d); err != nil {
			return fmt.Errorf("persist interval: %w", err)
		}
		_ = g.Preset(task, d)
	}
	return nil
}

// RestoreIntervals presets every persisted interval in the server's task
// group. Tasks created later, such as per-principal pool reapers, pick up
// their preset when they register.
func (v *View) RestoreIntervals(ctx context.Context) error {
	g := v.server.Tasks()
	if v.intervals == nil || g == nil {
		return nil
	}
	saved, err := v.intervals.Intervals(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for task, d := range saved {
		if err := g.Preset(task, d); err != nil {
			errs = append(errs, err)
			continue
		}
		logger.Debug("Restored task interval", logger.Task(task), logger.Interval(d))
	}
	return errors.Join(errs...)
}

// Tokens returns credentials exchange statistics, or false without one.
func (v *View) Tokens(ctx context.Context) (credentials.Stats, bool) {
	if v.exchange == nil {
		return credentials.Stats{}, false
	}
	return v.exchange.Stats(ctx), true
}

// Summary is a one-shot overview for status output.
type Summary struct {
	Sessions   int                `json:"sessions"`
	Pools      int                `json:"pools"`
	Validators []string           `json:"validators"`
	Tasks      int                `json:"tasks"`
	Tokens     *credentials.Stats `json:"tokens,omitempty"`
}

// Summary returns counts across the broker.
func (v *View) Summary(ctx context.Context) Summary {
	s := Summary{
		Sessions:   v.SessionCount(),
		Pools:      len(v.PoolStatistics()),
		Validators: v.server.Validators(),
		Tasks:      len(v.Schedulers()),
	}
	if st, ok := v.Tokens(ctx); ok {
		s.Tokens = &st
	}
	return s
}

// Shutdown stops the broker.
func (v *View) Shutdown(ctx context.Context) error {
	logger.Info("Shutdown requested by administrator")
	return v.server.Shutdown(ctx)
}
