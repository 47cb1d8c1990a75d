package broker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittobroker/pkg/backing"
	"github.com/marmos91/dittobroker/pkg/pool"
)

// Session binds a client to a leased resource.
type Session struct {
	ID        uuid.UUID
	Request   ConnectionRequest
	CreatedAt time.Time

	lease      *pool.Lease
	lastAccess atomic.Int64 // unix nanos
	busy       atomic.Int32
	closed     atomic.Bool

	// sem serializes units of work on this session.
	sem chan struct{}

	// ctx is cancelled on disconnect so running work stops.
	ctx    context.Context
	cancel context.CancelFunc
}

func newSession(req *ConnectionRequest, lease *pool.Lease, now time.Time) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:        req.SessionID,
		Request:   req.sanitized(),
		CreatedAt: now,
		lease:     lease,
		sem:       make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.touch(now)
	return s
}

func (s *Session) touch(now time.Time) { s.lastAccess.Store(now.UnixNano()) }

// LastAccess is when the client last connected or ran work.
func (s *Session) LastAccess() time.Time { return time.Unix(0, s.lastAccess.Load()) }

// Principal returns the authenticated principal.
func (s *Session) Principal() string { return s.Request.Principal }

// Busy reports whether a unit of work is running.
func (s *Session) Busy() bool { return s.busy.Load() > 0 }

// Closed reports whether the session was disconnected.
func (s *Session) Closed() bool { return s.closed.Load() }

// close marks the session closed and returns its resource. A resource still
// in use by running work is discarded rather than returned, so it is never
// handed to another session while in use.
func (s *Session) close() (discarded bool) {
	if !s.closed.CompareAndSwap(false, true) {
		return false
	}
	s.cancel()
	if s.busy.Load() > 0 {
		s.lease.Discard()
		return true
	}
	s.lease.Release()
	return false
}

// SessionInfo is the metadata exposed to administrators. It carries no
// credentials and no resource handles.
type SessionInfo struct {
	ID              uuid.UUID         `json:"id"`
	Principal       string            `json:"principal"`
	ClientType      string            `json:"client_type,omitempty"`
	ClientVersion   string            `json:"client_version,omitempty"`
	ProtocolVersion string            `json:"protocol_version,omitempty"`
	RemoteAddr      string            `json:"remote_addr,omitempty"`
	AuthMethod      string            `json:"auth_method,omitempty"`
	Params          map[string]string `json:"params,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	LastAccess      time.Time         `json:"last_access"`
	Busy            bool              `json:"busy"`
}

// Info returns a metadata snapshot.
func (s *Session) Info() SessionInfo {
	r := s.Request
	return SessionInfo{
		ID:              s.ID,
		Principal:       r.Principal,
		ClientType:      r.ClientType,
		ClientVersion:   r.ClientVersion,
		ProtocolVersion: r.ProtocolVersion,
		RemoteAddr:      r.RemoteAddr,
		AuthMethod:      r.AuthMethod,
		Params:          r.Params,
		CreatedAt:       s.CreatedAt,
		LastAccess:      s.LastAccess(),
		Busy:            s.Busy(),
	}
}

// WorkFunc is a unit of work run against the session's resource.
type WorkFunc func(ctx context.Context, r backing.Resource) error

// Handle is the client's reference to its session.
type Handle struct {
	server  *Server
	session *Session
}

// SessionID returns the session identifier.
func (h *Handle) SessionID() uuid.UUID { return h.session.ID }

// Session returns the underlying session.
func (h *Handle) Session() *Session { return h.session }

// Do runs fn against the session's resource. Work on one session is
// serialized; callers queue until the previous unit finishes or ctx is done.
// The context passed to fn is cancelled if the session is disconnected.
func (h *Handle) Do(ctx context.Context, fn WorkFunc) error {
	s := h.session
	if s.Closed() {
		return newError(KindNotFound, "work", ErrSessionClosed)
	}
	s.touch(h.server.now())

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return newError(KindNotFound, "work", ErrSessionClosed)
	}
	defer func() { <-s.sem }()

	s.busy.Add(1)
	defer s.busy.Add(-1)
	if s.Closed() {
		return newError(KindNotFound, "work", ErrSessionClosed)
	}

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	err := fn(workCtx, s.lease.Resource())
	s.touch(h.server.now())
	return err
}

// Close disconnects the session.
func (h *Handle) Close() {
	h.server.Disconnect(h.session.ID)
}
