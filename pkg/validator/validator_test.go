package validator

import (
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittobroker/pkg/broker"
	"github.com/marmos91/dittobroker/pkg/controlplane/models"
	"github.com/marmos91/dittobroker/pkg/controlplane/store"
	"github.com/marmos91/dittobroker/pkg/credentials"
	"github.com/marmos91/dittobroker/pkg/secret"
)

func newRequest(principal string) *broker.ConnectionRequest {
	return &broker.ConnectionRequest{
		Principal:  principal,
		SessionID:  uuid.New(),
		RemoteAddr: "10.1.2.3:5555",
		Params:     map[string]string{},
	}
}

func newStore(t *testing.T) *store.GORMStore {
	t.Helper()
	s, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "directory.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	hash, err := models.HashPasswordWithCost("correct-horse", 4)
	require.NoError(t, err)
	_, err = s.CreateUser(context.Background(), &models.User{Username: "alice", PasswordHash: hash, Enabled: true})
	require.NoError(t, err)
	return s
}

func TestPassword_Validate(t *testing.T) {
	users := newStore(t)
	v := NewPassword(users)
	ctx := context.Background()

	t.Run("accepts correct password", func(t *testing.T) {
		req := newRequest("alice")
		req.Credential = secret.FromString("correct-horse")
		require.NoError(t, v.Validate(ctx, req))
		assert.Equal(t, AuthPassword, req.AuthMethod)

		u, err := users.GetUser(ctx, "alice")
		require.NoError(t, err)
		assert.NotNil(t, u.LastLogin)
	})

	t.Run("rejects wrong password", func(t *testing.T) {
		req := newRequest("alice")
		req.Credential = secret.FromString("wrong-horse")
		assert.ErrorIs(t, v.Validate(ctx, req), ErrBadCredentials)
		assert.False(t, req.Authenticated())
	})

	t.Run("rejects unknown principal", func(t *testing.T) {
		req := newRequest("mallory")
		req.Credential = secret.FromString("correct-horse")
		assert.ErrorIs(t, v.Validate(ctx, req), ErrBadCredentials)
	})

	t.Run("rejects missing credential", func(t *testing.T) {
		assert.ErrorIs(t, v.Validate(ctx, newRequest("alice")), ErrMissingCredential)
	})

	t.Run("skips already authenticated", func(t *testing.T) {
		req := newRequest("alice")
		req.AuthMethod = AuthHandoff
		assert.NoError(t, v.Validate(ctx, req))
		assert.Equal(t, AuthHandoff, req.AuthMethod)
	})

	t.Run("rejects disabled principal", func(t *testing.T) {
		u, err := users.GetUser(ctx, "alice")
		require.NoError(t, err)
		u.Enabled = false
		require.NoError(t, users.UpdateUser(ctx, u))

		req := newRequest("alice")
		req.Credential = secret.FromString("correct-horse")
		assert.ErrorIs(t, v.Validate(ctx, req), ErrPrincipalDisabled)
	})
}

func newExchange(t *testing.T) *credentials.Exchange {
	t.Helper()
	ex, err := credentials.NewExchange(credentials.Config{TTL: time.Minute}, credentials.NewMemoryStore())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ex.Stop() })
	return ex
}

func TestHandoff_Validate(t *testing.T) {
	ex := newExchange(t)
	v := NewHandoff(ex)
	ctx := context.Background()

	t.Run("no token passes through", func(t *testing.T) {
		req := newRequest("alice")
		require.NoError(t, v.Validate(ctx, req))
		assert.False(t, req.Authenticated())
	})

	t.Run("valid token authenticates once", func(t *testing.T) {
		token, _, err := ex.IssueNew(ctx, "alice")
		require.NoError(t, err)

		req := newRequest("alice")
		req.Params[HandoffParam] = token
		require.NoError(t, v.Validate(ctx, req))
		assert.Equal(t, AuthHandoff, req.AuthMethod)
		assert.Empty(t, req.Param(HandoffParam))

		again := newRequest("alice")
		again.Params[HandoffParam] = token
		assert.ErrorIs(t, v.Validate(ctx, again), ErrInvalidHandoff)
	})

	t.Run("token for another principal", func(t *testing.T) {
		token, _, err := ex.IssueNew(ctx, "bob")
		require.NoError(t, err)

		req := newRequest("alice")
		req.Params[HandoffParam] = token
		assert.ErrorIs(t, v.Validate(ctx, req), ErrHandoffPrincipal)
		assert.False(t, req.Authenticated())
	})

	t.Run("unknown token", func(t *testing.T) {
		req := newRequest("alice")
		req.Params[HandoffParam] = "nope"
		assert.ErrorIs(t, v.Validate(ctx, req), ErrInvalidHandoff)
	})
}

func TestHandoffThenPassword(t *testing.T) {
	users := newStore(t)
	ex := newExchange(t)
	ctx := context.Background()

	chain := []broker.Validator{NewHandoff(ex), NewPassword(users)}
	run := func(req *broker.ConnectionRequest) error {
		for _, v := range chain {
			if err := v.Validate(ctx, req); err != nil {
				return err
			}
		}
		return nil
	}

	token, _, err := ex.IssueNew(ctx, "alice")
	require.NoError(t, err)

	withToken := newRequest("alice")
	withToken.Params[HandoffParam] = token
	require.NoError(t, run(withToken))
	assert.Equal(t, AuthHandoff, withToken.AuthMethod)

	assert.ErrorIs(t, run(newRequest("alice")), ErrMissingCredential)
}

func TestClientVersion(t *testing.T) {
	v, err := NewClientVersion("1.4", "v2")
	require.NoError(t, err)

	tests := []struct {
		client, protocol string
		ok               bool
	}{
		{"1.4.0", "2", true},
		{"v1.10", "2.0.1", true},
		{"1.4.0-rc1", "2", true},
		{"1.3.9", "2", false},
		{"1.4", "1.9", false},
		{"", "2", false},
		{"garbage", "2", false},
	}
	for _, tt := range tests {
		t.Run(tt.client+"/"+tt.protocol, func(t *testing.T) {
			req := newRequest("alice")
			req.ClientVersion = tt.client
			req.ProtocolVersion = tt.protocol
			err := v.Validate(context.Background(), req)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrClientTooOld)
			}
		})
	}

	_, err = NewClientVersion("one.two", "")
	assert.Error(t, err)

	disabled, err := NewClientVersion("", "")
	require.NoError(t, err)
	assert.NoError(t, disabled.Validate(context.Background(), newRequest("alice")))
}

func TestAllowlist_Static(t *testing.T) {
	a, err := NewAllowlist([]string{"10.0.0.0/8", "192.168.1.7", "2001:db8::/32"}, "")
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	for addr, ok := range map[string]bool{
		"10.1.2.3:5555":       true,
		"10.1.2.3":            true,
		"192.168.1.7:1":       true,
		"192.168.1.8:1":       false,
		"[2001:db8::1]:443":   true,
		"[::ffff:10.0.0.1]:1": true,
		"8.8.8.8:53":          false,
		"not-an-ip":           false,
	} {
		req := newRequest("alice")
		req.RemoteAddr = addr
		err := a.Validate(ctx, req)
		if ok {
			assert.NoError(t, err, addr)
		} else {
			assert.ErrorIs(t, err, ErrAddressNotAllowed, addr)
		}
	}

	_, err = NewAllowlist([]string{"10.0.0.0/99"}, "")
	assert.Error(t, err)
	_, err = NewAllowlist(nil, "")
	assert.Error(t, err)
}

// writeAtomic replaces path by rename so the watcher never sees a partial file.
func writeAtomic(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

func TestAllowlist_FileReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "allow.txt")
	require.NoError(t, os.WriteFile(path, []byte("# office\n10.0.0.0/8\n"), 0o644))

	a, err := NewAllowlist(nil, path)
	require.NoError(t, err)
	require.NoError(t, a.Watch())
	defer a.Close()

	office := netip.MustParseAddr("10.9.9.9")
	home := netip.MustParseAddr("172.16.0.5")
	assert.True(t, a.Allows(office))
	assert.False(t, a.Allows(home))

	writeAtomic(t, path, "172.16.0.0/12\n")
	require.Eventually(t, func() bool { return a.Allows(home) && !a.Allows(office) },
		2*time.Second, 20*time.Millisecond)

	// A broken file keeps the previous list.
	writeAtomic(t, path, "not a cidr\n")
	time.Sleep(100 * time.Millisecond)
	assert.True(t, a.Allows(home))

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestRegistry(t *testing.T) {
	users := newStore(t)
	ex := newExchange(t)

	cfg := Config{
		Enabled:       []string{NameHandoff, NamePassword, NameClientVersion, NameAllowlist},
		Allowlist:     AllowlistConfig{CIDRs: []string{"0.0.0.0/0"}},
		ClientVersion: ClientVersionConfig{MinClient: "1.0"},
	}
	vs, err := Build(cfg, Deps{Users: users, Tokens: ex})
	require.NoError(t, err)
	require.Len(t, vs, 4)
	for i, name := range cfg.Enabled {
		assert.Equal(t, name, vs[i].Name())
	}

	_, err = Build(Config{Enabled: []string{NamePassword}}, Deps{})
	assert.Error(t, err)

	_, err = Build(Config{Enabled: []string{"kerberos"}}, Deps{})
	assert.ErrorContains(t, err, "unknown validator")

	names := NewRegistry(cfg, Deps{}).Names()
	assert.Equal(t, []string{NameAllowlist, NameClientVersion, NameHandoff, NamePassword}, names)
}
