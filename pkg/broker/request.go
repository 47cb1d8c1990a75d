package broker

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/marmos91/dittobroker/pkg/secret"
)

// ConnectionRequest is what a client presents to Connect.
type ConnectionRequest struct {
	Principal       string
	SessionID       uuid.UUID
	ClientType      string
	ClientVersion   string
	ProtocolVersion string
	RemoteAddr      string
	Params          map[string]string

	// Credential is owned by the broker once Connect is called and is
	// wiped after validation, whatever the outcome.
	Credential *secret.Password

	// AuthMethod is set by validators that authenticate the principal.
	// Anything the client put here is cleared before validation.
	AuthMethod string
}

// Param returns a named parameter.
func (r *ConnectionRequest) Param(name string) string {
	if r.Params == nil {
		return ""
	}
	return r.Params[name]
}

// Authenticated reports whether a validator vouched for the principal.
func (r *ConnectionRequest) Authenticated() bool {
	return r.AuthMethod != ""
}

// sanitized returns a copy safe to keep on a Session.
func (r *ConnectionRequest) sanitized() ConnectionRequest {
	c := *r
	c.Credential = nil
	c.Params = maps.Clone(r.Params)
	return c
}

// Validator inspects a request before a session is created. Returning an
// error rejects the connection.
type Validator interface {
	Name() string
	Validate(ctx context.Context, req *ConnectionRequest) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc struct {
	ValidatorName string
	Fn            func(ctx context.Context, req *ConnectionRequest) error
}

func (v ValidatorFunc) Name() string { return v.ValidatorName }

func (v ValidatorFunc) Validate(ctx context.Context, req *ConnectionRequest) error {
	return v.Fn(ctx, req)
}

// AuxiliaryService runs alongside the broker. Start must not block; Stop
// must release everything Start acquired.
type AuxiliaryService interface {
	Name() string
	Start(ctx context.Context, s *Server) error
	Stop(ctx context.Context) error
}

// Registry maps names to constructors. Configuration lists names; the
// registry turns them into instances once, at startup.
type Registry[T any] struct {
	kind  string
	mu    sync.RWMutex
	ctors map[string]func() (T, error)
}

// NewRegistry returns an empty registry. kind is used in error messages.
func NewRegistry[T any](kind string) *Registry[T] {
	return &Registry[T]{kind: kind, ctors: make(map[string]func() (T, error))}
}

// Register adds a named constructor.
func (r *Registry[T]) Register(name string, ctor func() (T, error)) {
	r.mu.Lock()
	r.ctors[name] = ctor
	r.mu.Unlock()
}

// Names lists registered names in sorted order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Resolve builds one instance per name, preserving order.
func (r *Registry[T]) Resolve(names []string) ([]T, error) {
	out := make([]T, 0, len(names))
	for _, n := range names {
		r.mu.RLock()
		ctor, ok := r.ctors[n]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("unknown %s %q (known: %s)", r.kind, n, strings.Join(r.Names(), ", "))
		}
		v, err := ctor()
		if err != nil {
			return nil, fmt.Errorf("build %s %q: %w", r.kind, n, err)
		}
		out = append(out, v)
	}
	return out, nil
}
