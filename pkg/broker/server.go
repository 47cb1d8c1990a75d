// Package broker is the session registry. It accepts connection requests,
// runs them through validators, binds each accepted client to a resource
// leased from its principal's pool and reclaims the resource on disconnect
// or when the session goes idle.
package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittobroker/internal/logger"
	"github.com/marmos91/dittobroker/internal/telemetry"
	"github.com/marmos91/dittobroker/pkg/pool"
	"github.com/marmos91/dittobroker/pkg/scheduler"
)

// Disconnect reasons reported to observers and logs.
const (
	ReasonClient   = "client"
	ReasonIdle     = "idle"
	ReasonAdmin    = "admin"
	ReasonShutdown = "shutdown"
)

// Observer receives session lifecycle events. Implementations must be safe
// for concurrent use and must not block.
type Observer interface {
	SessionOpened(principal string)
	SessionClosed(principal, reason string, lifetime time.Duration)
	ConnectRejected(kind Kind)
}

type state int

const (
	stateNew state = iota
	stateRunning
	stateStopping
	stateStopped
)

// Server is the session registry.
type Server struct {
	cfg        Config
	pools      *pool.Manager
	validators []Validator
	services   []AuxiliaryService
	tasks      *scheduler.Group
	observer   Observer
	now        func() time.Time

	reaper *scheduler.Task

	// stopCtx is cancelled when Shutdown begins; in-flight connects
	// observe it while validating and waiting for a resource.
	stopCtx    context.Context
	stopCancel context.CancelFunc

	mu       sync.Mutex
	state    state
	sessions map[uuid.UUID]*Session
	reserved int // connects holding a slot while acquiring a resource
	started  []AuxiliaryService
	inflight sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithValidators sets the validators run, in order, on every Connect.
func WithValidators(v ...Validator) Option {
	return func(s *Server) { s.validators = append(s.validators, v...) }
}

// WithServices sets the auxiliary services started with the server.
func WithServices(svcs ...AuxiliaryService) Option {
	return func(s *Server) { s.services = append(s.services, svcs...) }
}

// WithTasks registers the server's scheduled tasks in g.
func WithTasks(g *scheduler.Group) Option {
	return func(s *Server) { s.tasks = g }
}

// WithObserver reports lifecycle events to o.
func WithObserver(o Observer) Option {
	return func(s *Server) { s.observer = o }
}

// WithNowFunc overrides the clock.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a stopped server.
func New(cfg Config, pools *pool.Manager, opts ...Option) (*Server, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pools == nil {
		return nil, errors.New("broker: pool manager is required")
	}

	s := &Server{
		cfg:      cfg,
		pools:    pools,
		now:      time.Now,
		sessions: make(map[uuid.UUID]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.stopCtx, s.stopCancel = context.WithCancel(context.Background())

	reaper, err := scheduler.NewTask(SessionReaperTaskName, cfg.ReapInterval, s.reap)
	if err != nil {
		return nil, err
	}
	s.reaper = reaper
	if s.tasks != nil {
		if err := s.tasks.Add(reaper); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Server) Config() Config { return s.cfg }

// Pools returns the pool manager.
func (s *Server) Pools() *pool.Manager { return s.pools }

// Tasks returns the scheduler group, which may be nil.
func (s *Server) Tasks() *scheduler.Group { return s.tasks }

// Reaper returns the idle session reaper task.
func (s *Server) Reaper() *scheduler.Task { return s.reaper }

// Validators returns the configured validator names.
func (s *Server) Validators() []string {
	out := make([]string, len(s.validators))
	for i, v := range s.validators {
		out[i] = v.Name()
	}
	return out
}

// Start begins accepting connections, starts the reaper and then the
// auxiliary services in order. A service that fails to start is logged and
// skipped.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != stateNew {
		s.mu.Unlock()
		return fmt.Errorf("broker: server already started")
	}
	s.state = stateRunning
	s.mu.Unlock()

	s.reaper.Start()

	for _, svc := range s.services {
		if err := svc.Start(ctx, s); err != nil {
			logger.Error("Auxiliary service failed to start", logger.Service(svc.Name()), logger.Err(err))
			continue
		}
		s.mu.Lock()
		s.started = append(s.started, svc)
		s.mu.Unlock()
		logger.Info("Auxiliary service started", logger.Service(svc.Name()))
	}

	logger.Info("Broker started",
		"max_sessions", s.cfg.MaxSessions,
		"idle_timeout", s.cfg.IdleTimeout,
		"validators", s.Validators())
	return nil
}

// Running reports whether the server accepts connections.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}

// enter registers an in-flight connect, or fails if the server is not
// accepting connections.
func (s *Server) enter() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateNew:
		return newError(KindUnavailable, "connect", ErrServerNotStarted)
	case stateStopping, stateStopped:
		return newError(KindUnavailable, "connect", ErrServerStopping)
	}
	s.inflight.Add(1)
	return nil
}

// Connect validates req and returns a handle to its session. Connecting
// again with an existing session id returns the same session. The request's
// credential is wiped before Connect returns.
func (s *Server) Connect(ctx context.Context, req *ConnectionRequest) (*Handle, error) {
	if req == nil {
		return nil, newError(KindValidation, "connect", ErrInvalidRequest)
	}
	defer req.Credential.Wipe()

	ctx, span := telemetry.StartSessionSpan(ctx, telemetry.SpanConnect, req.SessionID.String(), req.Principal)
	defer span.End()

	lc := logger.NewLogContext(req.RemoteAddr).
		WithSession(req.SessionID.String(), req.Principal).
		WithOperation("connect").
		WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	ctx = logger.WithContext(ctx, lc)

	h, err := s.connect(ctx, req)
	if err != nil {
		telemetry.RecordError(ctx, err)
		if s.observer != nil {
			s.observer.ConnectRejected(KindOf(err))
		}
		logger.InfoCtx(ctx, "Connection rejected", "kind", KindOf(err).String(), logger.Err(err))
		return nil, err
	}
	return h, nil
}

func (s *Server) connect(ctx context.Context, req *ConnectionRequest) (*Handle, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	defer s.inflight.Done()

	if req.Principal == "" || req.SessionID == uuid.Nil {
		return nil, newError(KindValidation, "connect", ErrInvalidRequest)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.stopCtx, cancel)
	defer stop()

	req.AuthMethod = ""
	for _, v := range s.validators {
		if err := v.Validate(ctx, req); err != nil {
			if s.stopCtx.Err() != nil {
				return nil, newError(KindUnavailable, "connect", ErrServerStopping)
			}
			return nil, &Error{Kind: KindValidation, Op: "connect", Validator: v.Name(), Err: err}
		}
	}
	req.Credential.Wipe()
	req.Credential = nil

	s.mu.Lock()
	if existing, ok := s.sessions[req.SessionID]; ok {
		s.mu.Unlock()
		return s.reuse(ctx, existing, req)
	}
	if s.cfg.MaxSessions > 0 && len(s.sessions)+s.reserved >= s.cfg.MaxSessions {
		s.mu.Unlock()
		return nil, newError(KindCapacity, "connect", ErrConnectionNotAvailable)
	}
	s.reserved++
	s.mu.Unlock()

	lease, err := s.pools.Acquire(ctx, req.Principal)

	s.mu.Lock()
	s.reserved--
	if err != nil {
		s.mu.Unlock()
		if s.stopCtx.Err() != nil {
			return nil, newError(KindUnavailable, "connect", ErrServerStopping)
		}
		return nil, newError(KindOf(err), "connect", err)
	}
	if existing, ok := s.sessions[req.SessionID]; ok {
		s.mu.Unlock()
		lease.Release()
		return s.reuse(ctx, existing, req)
	}
	if s.state != stateRunning {
		s.mu.Unlock()
		lease.Release()
		return nil, newError(KindUnavailable, "connect", ErrServerStopping)
	}
	sess := newSession(req, lease, s.now())
	s.sessions[sess.ID] = sess
	count := len(s.sessions)
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.SessionOpened(sess.Principal())
	}
	logger.InfoCtx(ctx, "Session opened",
		logger.KeyClientType, req.ClientType,
		logger.KeyClientVersion, req.ClientVersion,
		"auth_method", req.AuthMethod,
		"sessions", count)
	return &Handle{server: s, session: sess}, nil
}

func (s *Server) reuse(ctx context.Context, existing *Session, req *ConnectionRequest) (*Handle, error) {
	if existing.Principal() != req.Principal {
		return nil, newError(KindValidation, "connect", ErrSessionOwner)
	}
	existing.touch(s.now())
	logger.DebugCtx(ctx, "Session reused")
	return &Handle{server: s, session: existing}, nil
}

// Disconnect ends the session. Unknown ids are ignored.
func (s *Server) Disconnect(id uuid.UUID) {
	s.Evict(id, ReasonClient)
}

// Evict ends the session and reports whether it existed.
func (s *Server) Evict(id uuid.UUID, reason string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.finish(sess, reason)
	return true
}

func (s *Server) finish(sess *Session, reason string) {
	ctx, span := telemetry.StartSessionSpan(context.Background(), telemetry.SpanDisconnect,
		sess.ID.String(), sess.Principal())
	defer span.End()

	discarded := sess.close()
	lifetime := s.now().Sub(sess.CreatedAt)

	if s.observer != nil {
		s.observer.SessionClosed(sess.Principal(), reason, lifetime)
	}
	logger.InfoCtx(ctx, "Session closed",
		logger.SessionID(sess.ID.String()),
		logger.Principal(sess.Principal()),
		logger.Reason(reason),
		"discarded", discarded,
		"lifetime", lifetime)
}

// Session returns the live session with id.
func (s *Server) Session(id uuid.UUID) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Handle returns a handle to the live session with id.
func (s *Server) Handle(id uuid.UUID) (*Handle, bool) {
	sess, ok := s.Session(id)
	if !ok {
		return nil, false
	}
	return &Handle{server: s, session: sess}, true
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sessions returns metadata for every live session, oldest first.
func (s *Server) Sessions() []SessionInfo {
	s.mu.Lock()
	list := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, sess)
	}
	s.mu.Unlock()

	out := make([]SessionInfo, len(list))
	for i, sess := range list {
		out[i] = sess.Info()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Server) reap(context.Context) error {
	if n := s.reapIdle(s.now()); n > 0 {
		logger.Info("Reaped idle sessions", logger.Count(n))
	}
	return nil
}

// reapIdle disconnects sessions idle since before now-IdleTimeout. Sessions
// running work are skipped.
func (s *Server) reapIdle(now time.Time) int {
	cutoff := now.Add(-s.cfg.IdleTimeout)

	s.mu.Lock()
	var idle []*Session
	for id, sess := range s.sessions {
		if sess.Busy() || !sess.LastAccess().Before(cutoff) {
			continue
		}
		delete(s.sessions, id)
		idle = append(idle, sess)
	}
	s.mu.Unlock()

	for _, sess := range idle {
		s.finish(sess, ReasonIdle)
	}
	return len(idle)
}

// Shutdown stops accepting connections, cancels in-flight connects (they
// fail with ErrServerStopping) and waits for them, disconnects every
// session, stops auxiliary services in reverse start order, closes
// validators that hold resources and closes all pools. It returns ctx's
// error if waiting for in-flight connects timed out; cleanup still runs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case stateStopping, stateStopped:
		s.mu.Unlock()
		return nil
	}
	s.state = stateStopping
	s.mu.Unlock()
	s.stopCancel()

	logger.Info("Broker shutting down")

	var errs []error

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for in-flight connects: %w", ctx.Err()))
	}

	s.reaper.Stop()

	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[uuid.UUID]*Session)
	started := s.started
	s.started = nil
	s.mu.Unlock()

	for _, sess := range sessions {
		s.finish(sess, ReasonShutdown)
	}

	for i := len(started) - 1; i >= 0; i-- {
		svc := started[i]
		if err := svc.Stop(ctx); err != nil {
			logger.Warn("Auxiliary service failed to stop", logger.Service(svc.Name()), logger.Err(err))
			errs = append(errs, fmt.Errorf("stop %s: %w", svc.Name(), err))
			continue
		}
		logger.Info("Auxiliary service stopped", logger.Service(svc.Name()))
	}

	for _, v := range s.validators {
		if c, ok := v.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Warn("Validator failed to close", logger.Validator(v.Name()), logger.Err(err))
			}
		}
	}

	s.pools.CloseAll()

	s.mu.Lock()
	s.state = stateStopped
	s.mu.Unlock()

	logger.Info("Broker stopped", "sessions_closed", len(sessions))
	return errors.Join(errs...)
}
