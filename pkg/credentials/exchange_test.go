package credentials

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]func() TokenStore {
	return map[string]func() TokenStore{
		"memory": func() TokenStore { return NewMemoryStore() },
		"badger": func() TokenStore {
			s, err := OpenBadgerStore("")
			require.NoError(t, err)
			return s
		},
	}
}

func newExchange(t *testing.T, cfg Config, store TokenStore) *Exchange {
	t.Helper()
	e, err := NewExchange(cfg, store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Stop() })
	return e
}

func TestRedeemIsSingleUse(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e := newExchange(t, Config{TTL: time.Minute}, open())

			require.NoError(t, e.Issue(ctx, "tok-1", "alice"))

			principal, ok := e.Redeem(ctx, "tok-1")
			require.True(t, ok)
			assert.Equal(t, "alice", principal)

			_, ok = e.Redeem(ctx, "tok-1")
			assert.False(t, ok, "second redeem must fail")

			_, ok = e.Redeem(ctx, "never-issued")
			assert.False(t, ok)

			s := e.Stats(ctx)
			assert.EqualValues(t, 1, s.Issued)
			assert.EqualValues(t, 1, s.Redeemed)
			assert.EqualValues(t, 2, s.Rejected)
			assert.Zero(t, s.Pending)
		})
	}
}

func TestTokenExpires(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e := newExchange(t, Config{TTL: 900 * time.Millisecond, SweepInterval: 50 * time.Millisecond}, open())
			e.Start()

			require.NoError(t, e.Issue(ctx, "short", "bob"))
			time.Sleep(1300 * time.Millisecond)

			_, ok := e.Redeem(ctx, "short")
			assert.False(t, ok)
			assert.NotZero(t, e.Stats(ctx).Swept, "sweeper removed the token")
		})
	}
}

func TestExpiryCheckedWithoutSweep(t *testing.T) {
	ctx := context.Background()
	e := newExchange(t, Config{TTL: time.Minute}, NewMemoryStore())

	now := time.Now()
	e.now = func() time.Time { return now }
	require.NoError(t, e.Issue(ctx, "t", "carol"))

	now = now.Add(time.Minute)
	_, ok := e.Redeem(ctx, "t")
	assert.False(t, ok, "a token is dead exactly at its TTL")
}

func TestIssueValidation(t *testing.T) {
	ctx := context.Background()
	e := newExchange(t, Config{}, NewMemoryStore())

	assert.ErrorIs(t, e.Issue(ctx, "", "alice"), ErrInvalidToken)
	assert.ErrorIs(t, e.Issue(ctx, "x", ""), ErrInvalidToken)

	require.NoError(t, e.Issue(ctx, "dup", "alice"))
	assert.ErrorIs(t, e.Issue(ctx, "dup", "bob"), ErrTokenExists)
}

func TestNewExchangeRejectsNegativeConfig(t *testing.T) {
	_, err := NewExchange(Config{TTL: -time.Second}, NewMemoryStore())
	assert.Error(t, err)

	_, err = NewExchange(Config{SweepInterval: -time.Second}, NewMemoryStore())
	assert.Error(t, err)
}

func TestConcurrentRedeem(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e := newExchange(t, Config{TTL: time.Minute}, open())
			require.NoError(t, e.Issue(ctx, "race", "dave"))

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, ok := e.Redeem(ctx, "race"); ok {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.EqualValues(t, 1, wins.Load())
		})
	}
}

func TestIssueNew(t *testing.T) {
	ctx := context.Background()
	e := newExchange(t, Config{TTL: time.Minute}, NewMemoryStore())

	tok, expires, err := e.IssueNew(ctx, "erin")
	require.NoError(t, err)
	assert.Len(t, tok, 43)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expires, time.Second)

	p, ok := e.Redeem(ctx, tok)
	assert.True(t, ok)
	assert.Equal(t, "erin", p)
}

func TestBadgerStorePersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, Token{Value: "keep", Principal: "frank", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, s.Close())

	s, err = OpenBadgerStore(dir)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tok, ok, err := s.Take(ctx, "keep")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "frank", tok.Principal)
}
