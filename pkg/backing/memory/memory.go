// Package memory provides an in-process backing factory. It holds no real
// connections and is used for tests, demos and dry runs.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/marmos91/dittobroker/pkg/backing"
)

// ErrInvalidated is returned by Ping on a resource marked invalid.
var ErrInvalidated = errors.New("memory: resource invalidated")

// Resource is a fake connection.
type Resource struct {
	ID        uint64
	Principal string

	valid  atomic.Bool
	closed atomic.Bool
	pings  atomic.Int64
}

func (r *Resource) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.pings.Add(1)
	if r.closed.Load() {
		return backing.ErrResourceClosed
	}
	if !r.valid.Load() {
		return ErrInvalidated
	}
	return nil
}

func (r *Resource) Close() error {
	r.closed.Store(true)
	return nil
}

// Invalidate makes subsequent pings fail.
func (r *Resource) Invalidate() { r.valid.Store(false) }

// Closed reports whether Close was called.
func (r *Resource) Closed() bool { return r.closed.Load() }

// Pings returns how many times Ping ran.
func (r *Resource) Pings() int64 { return r.pings.Load() }

// Factory creates Resources and remembers them for inspection.
type Factory struct {
	mu        sync.Mutex
	nextID    uint64
	created   []*Resource
	createErr error
}

// New returns an empty factory.
func New() *Factory {
	return &Factory{}
}

// Constructor registers the factory under a backing.Registry.
func Constructor(backing.Config) (backing.Factory, error) {
	return New(), nil
}

// FailCreate makes Create return err until called again with nil.
func (f *Factory) FailCreate(err error) {
	f.mu.Lock()
	f.createErr = err
	f.mu.Unlock()
}

func (f *Factory) Create(ctx context.Context, principal string) (backing.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return nil, fmt.Errorf("memory: create for %q: %w", principal, f.createErr)
	}
	f.nextID++
	r := &Resource{ID: f.nextID, Principal: principal}
	r.valid.Store(true)
	f.created = append(f.created, r)
	return r, nil
}

func (f *Factory) Validate(ctx context.Context, r backing.Resource) error {
	return r.Ping(ctx)
}

// Created returns every resource created so far.
func (f *Factory) Created() []*Resource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Resource(nil), f.created...)
}

// Open counts created resources that are not closed.
func (f *Factory) Open() int {
	n := 0
	for _, r := range f.Created() {
		if !r.Closed() {
			n++
		}
	}
	return n
}
