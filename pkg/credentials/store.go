package credentials

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrTokenExists  = errors.New("credentials: token already issued")
	ErrInvalidToken = errors.New("credentials: token and principal must not be empty")
)

// Token binds a single-use value to a principal until ExpiresAt.
type Token struct {
	Value     string    `cbor:"1,keyasint"`
	Principal string    `cbor:"2,keyasint"`
	CreatedAt time.Time `cbor:"3,keyasint"`
	ExpiresAt time.Time `cbor:"4,keyasint"`
}

// Expired reports whether the token is past its TTL at now.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TokenStore persists issued tokens. Take must be atomic: of two concurrent
// Takes for the same value, at most one returns ok.
type TokenStore interface {
	Put(ctx context.Context, t Token) error
	Take(ctx context.Context, value string) (Token, bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// MemoryStore keeps tokens in a map. Tokens do not survive a restart.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]Token
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]Token)}
}

func (s *MemoryStore) Put(ctx context.Context, t Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[t.Value]; ok {
		return ErrTokenExists
	}
	s.tokens[t.Value] = t
	return nil
}

func (s *MemoryStore) Take(ctx context.Context, value string) (Token, bool, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[value]
	if ok {
		delete(s.tokens, value)
	}
	return t, ok, nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for v, t := range s.tokens {
		if t.Expired(now) {
			delete(s.tokens, v)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Len(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens), nil
}

func (s *MemoryStore) Close() error { return nil }
