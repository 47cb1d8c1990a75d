// Package scheduler runs named units of work on a fixed, adjustable interval.
//
// A Task owns a single goroutine while running. The next tick is armed only
// after the previous invocation returns, so invocations of one task never
// overlap. Errors and panics raised by the unit of work are reported to the
// task's error handler and never stop the schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittobroker/internal/logger"
)

var (
	// ErrInvalidConfiguration is returned for a non-positive interval.
	ErrInvalidConfiguration = errors.New("scheduler: interval must be positive")

	ErrTaskNotFound = errors.New("scheduler: task not found")
)

// Func is a unit of work. The context is cancelled when the task stops.
type Func func(ctx context.Context) error

// ErrorHandler receives failures of a task's unit of work.
type ErrorHandler func(task string, err error)

// IntervalListener is notified after an interval change, before the next tick.
type IntervalListener func(old, new time.Duration)

// Option configures a Task.
type Option func(*Task)

// WithInitialDelay delays the first tick after the first Start.
func WithInitialDelay(d time.Duration) Option {
	return func(t *Task) { t.initialDelay = d }
}

// WithErrorHandler replaces the default handler, which logs a warning.
func WithErrorHandler(h ErrorHandler) Option {
	return func(t *Task) {
		if h != nil {
			t.onError = h
		}
	}
}

// Stats is a point-in-time view of a task.
type Stats struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Running   bool          `json:"running"`
	Runs      uint64        `json:"runs"`
	Failures  uint64        `json:"failures"`
	LastRun   time.Time     `json:"last_run,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

// Task is a repeating unit of work.
type Task struct {
	name         string
	fn           Func
	initialDelay time.Duration
	onError      ErrorHandler

	// lifecycle serializes Start, Stop and SetInterval, including the wait
	// for the loop goroutine to exit. mu guards the fields below and is never
	// held while waiting, so fn may read the task's state.
	lifecycle sync.Mutex

	mu        sync.Mutex
	interval  time.Duration
	listeners []IntervalListener
	cancel    context.CancelFunc
	done      chan struct{}
	// delayed is set once the first tick fires. Until then a relaunch
	// arms whatever remains of the initial delay.
	delayed    bool
	delayUntil time.Time
	lastRun    time.Time
	lastErr    error

	running  atomic.Bool
	runs     atomic.Uint64
	failures atomic.Uint64
}

// NewTask creates a stopped task.
func NewTask(name string, interval time.Duration, fn Func, opts ...Option) (*Task, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: task %q got %s", ErrInvalidConfiguration, name, interval)
	}
	if fn == nil {
		return nil, fmt.Errorf("scheduler: task %q has no work function", name)
	}

	t := &Task{
		name:     name,
		fn:       fn,
		interval: interval,
		onError:  logError,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func logError(task string, err error) {
	logger.Warn("Scheduled task failed", logger.Task(task), logger.Err(err))
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Running reports whether the task is started. It stays true while an
// interval change restarts the loop.
func (t *Task) Running() bool { return t.running.Load() }

// Interval returns the current interval.
func (t *Task) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// AddIntervalListener registers l. Listeners are called synchronously, in
// registration order, once per actual interval change.
func (t *Task) AddIntervalListener(l IntervalListener) {
	if l == nil {
		return
	}
	t.mu.Lock()
	t.listeners = append(t.listeners, l)
	t.mu.Unlock()
}

// Start begins ticking. Calling Start on a running task does nothing.
func (t *Task) Start() {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if t.running.Load() {
		return
	}
	t.launch()
	t.running.Store(true)
	logger.Debug("Scheduled task started", logger.Task(t.name), logger.Interval(t.Interval()))
}

// Stop cancels the task and waits for an in-progress invocation to return.
// No invocation begins after Stop returns. Stop must not be called from the
// task's own unit of work.
func (t *Task) Stop() {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if !t.running.Load() {
		return
	}
	t.halt()
	t.running.Store(false)
	logger.Debug("Scheduled task stopped", logger.Task(t.name))
}

// SetInterval changes the interval. A running task is stopped and restarted
// with the new interval; a stopped task stays stopped.
func (t *Task) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: task %q got %s", ErrInvalidConfiguration, t.name, d)
	}

	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	t.mu.Lock()
	old := t.interval
	t.mu.Unlock()
	if old == d {
		return nil
	}

	wasRunning := t.running.Load()
	if wasRunning {
		t.halt()
	}

	t.mu.Lock()
	t.interval = d
	listeners := append([]IntervalListener(nil), t.listeners...)
	t.mu.Unlock()

	for _, l := range listeners {
		l(old, d)
	}

	if wasRunning {
		t.launch()
	}

	logger.Info("Scheduled task interval changed",
		logger.Task(t.name), "old", old, "new", d, "running", wasRunning)
	return nil
}

// Stats returns counters for the admin surface.
func (t *Task) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{
		Name:     t.name,
		Interval: t.interval,
		Running:  t.running.Load(),
		Runs:     t.runs.Load(),
		Failures: t.failures.Load(),
		LastRun:  t.lastRun,
	}
	if t.lastErr != nil {
		s.LastError = t.lastErr.Error()
	}
	return s
}

// launch starts the loop goroutine. Caller holds lifecycle.
func (t *Task) launch() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	t.mu.Lock()
	first := t.interval
	if !t.delayed && t.initialDelay > 0 {
		if t.delayUntil.IsZero() {
			t.delayUntil = time.Now().Add(t.initialDelay)
		}
		if rem := time.Until(t.delayUntil); rem > 0 {
			first = rem
		}
	}
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	go t.loop(ctx, done, first)
}

// halt cancels the loop and waits for it. Caller holds lifecycle.
func (t *Task) halt() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (t *Task) loop(ctx context.Context, done chan struct{}, first time.Duration) {
	defer close(done)

	timer := time.NewTimer(first)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		t.invoke(ctx)

		if ctx.Err() != nil {
			return
		}
		timer.Reset(t.Interval())
	}
}

func (t *Task) invoke(ctx context.Context) {
	err := t.safeCall(ctx)

	t.runs.Add(1)
	t.mu.Lock()
	t.delayed = true
	t.lastRun = time.Now()
	t.lastErr = err
	t.mu.Unlock()

	if err != nil {
		t.failures.Add(1)
		t.onError(t.name, err)
	}
}

func (t *Task) safeCall(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in task %q: %v", t.name, r)
		}
	}()
	return t.fn(ctx)
}
