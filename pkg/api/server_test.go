package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittobroker/pkg/api/handlers"
	"github.com/marmos91/dittobroker/pkg/backing/memory"
	"github.com/marmos91/dittobroker/pkg/broker"
	"github.com/marmos91/dittobroker/pkg/controlplane/models"
	"github.com/marmos91/dittobroker/pkg/controlplane/store"
	"github.com/marmos91/dittobroker/pkg/credentials"
	"github.com/marmos91/dittobroker/pkg/pool"
	"github.com/marmos91/dittobroker/pkg/scheduler"
	"github.com/marmos91/dittobroker/pkg/validator"
)

const testSecret = "test-secret-key-for-testing-only-32chars"

type env struct {
	http     *httptest.Server
	broker   *broker.Server
	factory  *memory.Factory
	dir      *store.GORMStore
	exchange *credentials.Exchange
	shutdown chan struct{}
}

func addUser(t *testing.T, dir *store.GORMStore, name, password string, role models.UserRole) {
	t.Helper()
	hash, err := models.HashPasswordWithCost(password, 4)
	require.NoError(t, err)
	_, err = dir.CreateUser(context.Background(), &models.User{
		Username: name, PasswordHash: hash, Enabled: true, Role: string(role),
	})
	require.NoError(t, err)
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithValidators(t, validator.Config{Enabled: []string{validator.NameHandoff, validator.NamePassword}})
}

func newEnvWithValidators(t *testing.T, vcfg validator.Config) *env {
	t.Helper()

	dir, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "directory.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dir.Close() })
	addUser(t, dir, "alice", "alice-password", models.RoleUser)
	addUser(t, dir, "root", "root-password", models.RoleAdmin)

	ex, err := credentials.NewExchange(credentials.Config{TTL: time.Minute}, credentials.NewMemoryStore())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ex.Stop() })

	validators, err := validator.Build(vcfg, validator.Deps{Users: dir, Tokens: ex})
	require.NoError(t, err)

	factory := memory.New()
	tasks := scheduler.NewGroup()
	mgr, err := pool.NewManager(pool.Config{
		MaxSize:         1,
		CheckoutTimeout: 50 * time.Millisecond,
		ReapInterval:    time.Hour,
	}, factory, tasks)
	require.NoError(t, err)

	srv, err := broker.New(broker.Config{ReapInterval: time.Hour}, mgr,
		broker.WithTasks(tasks), broker.WithValidators(validators...))
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		tasks.StopAll()
	})

	e := &env{broker: srv, factory: factory, dir: dir, exchange: ex, shutdown: make(chan struct{}, 1)}

	api, err := NewServer(APIConfig{JWT: JWTConfig{Secret: testSecret}}, Deps{
		Directory:  dir,
		Exchange:   ex,
		OnShutdown: func() { e.shutdown <- struct{}{} },
	})
	require.NoError(t, err)

	e.http = httptest.NewServer(api.Handler(srv))
	t.Cleanup(e.http.Close)
	return e
}

func (e *env) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.http.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (e *env) connect(t *testing.T, body handlers.ConnectRequest) handlers.SessionResponse {
	t.Helper()
	resp, data := e.do(t, http.MethodPost, "/api/v1/sessions", "", body)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var out handlers.SessionResponse
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func (e *env) login(t *testing.T, user, password string) string {
	t.Helper()
	resp, data := e.do(t, http.MethodPost, "/api/v1/auth/login", "", handlers.LoginRequest{Username: user, Password: password})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var out handlers.LoginResponse
	require.NoError(t, json.Unmarshal(data, &out))
	return out.AccessToken
}

func problem(t *testing.T, data []byte) handlers.Problem {
	t.Helper()
	var p handlers.Problem
	require.NoError(t, json.Unmarshal(data, &p))
	return p
}

func TestGateway_ConnectPingDisconnect(t *testing.T) {
	e := newEnv(t)

	sess := e.connect(t, handlers.ConnectRequest{Principal: "alice", Password: "alice-password", ClientType: "psql"})
	assert.Equal(t, "alice", sess.Principal)
	assert.Equal(t, validator.AuthPassword, sess.AuthMethod)

	resp, _ := e.do(t, http.MethodPost, "/api/v1/sessions/"+sess.SessionID.String()+"/ping", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Len(t, e.factory.Created(), 1)
	assert.GreaterOrEqual(t, e.factory.Created()[0].Pings(), int64(1))

	resp, _ = e.do(t, http.MethodDelete, "/api/v1/sessions/"+sess.SessionID.String(), "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, e.broker.SessionCount())

	// Disconnect is unconditional.
	resp, _ = e.do(t, http.MethodDelete, "/api/v1/sessions/"+sess.SessionID.String(), "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/api/v1/sessions/"+sess.SessionID.String()+"/ping", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = e.do(t, http.MethodDelete, "/api/v1/sessions/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGateway_ConnectErrors(t *testing.T) {
	e := newEnv(t)

	t.Run("wrong password", func(t *testing.T) {
		resp, data := e.do(t, http.MethodPost, "/api/v1/sessions", "", handlers.ConnectRequest{Principal: "alice", Password: "nope"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, handlers.ContentTypeProblemJSON, resp.Header.Get("Content-Type"))
		p := problem(t, data)
		assert.Equal(t, validator.NamePassword, p.Validator)
		assert.Equal(t, broker.KindValidation.String(), p.Kind)
	})

	t.Run("missing principal", func(t *testing.T) {
		resp, _ := e.do(t, http.MethodPost, "/api/v1/sessions", "", handlers.ConnectRequest{Password: "x"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown field", func(t *testing.T) {
		resp, _ := e.do(t, http.MethodPost, "/api/v1/sessions", "", map[string]string{"principal": "alice", "bogus": "1"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("pool exhausted", func(t *testing.T) {
		e.connect(t, handlers.ConnectRequest{Principal: "alice", Password: "alice-password"})
		resp, data := e.do(t, http.MethodPost, "/api/v1/sessions", "", handlers.ConnectRequest{Principal: "alice", Password: "alice-password"})
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "5", resp.Header.Get("Retry-After"))
		assert.Equal(t, broker.KindCapacity.String(), problem(t, data).Kind)
	})
}

func TestGateway_ReconnectSameSession(t *testing.T) {
	e := newEnv(t)
	id := uuid.New()
	first := e.connect(t, handlers.ConnectRequest{Principal: "alice", Password: "alice-password", SessionID: id.String()})
	second := e.connect(t, handlers.ConnectRequest{Principal: "alice", Password: "alice-password", SessionID: id.String()})
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, 1, e.broker.SessionCount())
}

func TestGateway_Handoff(t *testing.T) {
	e := newEnv(t)
	sess := e.connect(t, handlers.ConnectRequest{Principal: "alice", Password: "alice-password"})

	resp, data := e.do(t, http.MethodPost, "/api/v1/sessions/"+sess.SessionID.String()+"/handoff", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ho handlers.HandoffResponse
	require.NoError(t, json.Unmarshal(data, &ho))
	assert.Equal(t, "alice", ho.Principal)
	assert.NotEmpty(t, ho.Token)

	// Free the single pooled resource for the handed-off connection.
	e.do(t, http.MethodDelete, "/api/v1/sessions/"+sess.SessionID.String(), "", nil)

	next := e.connect(t, handlers.ConnectRequest{
		Principal: "alice",
		Params:    map[string]string{validator.HandoffParam: ho.Token},
	})
	assert.Equal(t, validator.AuthHandoff, next.AuthMethod)
	e.do(t, http.MethodDelete, "/api/v1/sessions/"+next.SessionID.String(), "", nil)

	// Tokens are single use.
	resp, _ = e.do(t, http.MethodPost, "/api/v1/sessions", "", handlers.ConnectRequest{
		Principal: "alice",
		Params:    map[string]string{validator.HandoffParam: ho.Token},
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/api/v1/sessions/"+uuid.NewString()+"/handoff", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuth_Login(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.do(t, http.MethodPost, "/api/v1/auth/login", "", handlers.LoginRequest{Username: "root", Password: "bad"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/api/v1/auth/login", "", handlers.LoginRequest{Username: "root"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data := e.do(t, http.MethodPost, "/api/v1/auth/login", "", handlers.LoginRequest{Username: "root", Password: "root-password"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out handlers.LoginResponse
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, string(models.RoleAdmin), out.Role)

	resp, data = e.do(t, http.MethodPost, "/api/v1/auth/refresh", "", handlers.RefreshRequest{RefreshToken: out.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	resp, _ = e.do(t, http.MethodPost, "/api/v1/auth/refresh", "", handlers.RefreshRequest{RefreshToken: out.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.do(t, http.MethodGet, "/api/v1/admin/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	userToken := e.login(t, "alice", "alice-password")
	resp, _ = e.do(t, http.MethodGet, "/api/v1/admin/sessions", userToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAdmin_Sessions(t *testing.T) {
	e := newEnv(t)
	token := e.login(t, "root", "root-password")
	sess := e.connect(t, handlers.ConnectRequest{Principal: "alice", Password: "alice-password", ClientType: "psql"})

	resp, data := e.do(t, http.MethodGet, "/api/v1/admin/sessions", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []broker.SessionInfo
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "psql", list[0].ClientType)

	path := "/api/v1/admin/sessions/" + sess.SessionID.String()
	resp, _ = e.do(t, http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out handlers.DisconnectResponse
	resp, data = e.do(t, http.MethodDelete, path, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, out.Disconnected)
	assert.Equal(t, sess.SessionID, out.SessionID)
	assert.Equal(t, 0, e.broker.SessionCount())

	out = handlers.DisconnectResponse{}
	resp, data = e.do(t, http.MethodDelete, path, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(data, &out))
	assert.False(t, out.Disconnected)
}

func TestAdmin_PoolsAndSchedulers(t *testing.T) {
	e := newEnv(t)
	token := e.login(t, "root", "root-password")
	e.connect(t, handlers.ConnectRequest{Principal: "alice", Password: "alice-password"})

	resp, data := e.do(t, http.MethodGet, "/api/v1/admin/pools", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pools []pool.Stats
	require.NoError(t, json.Unmarshal(data, &pools))
	require.Len(t, pools, 1)
	assert.Equal(t, 1, pools[0].InUse)

	resp, _ = e.do(t, http.MethodPut, "/api/v1/admin/pools/alice/statistics", token, handlers.SetStatisticsRequest{Enabled: true})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = e.do(t, http.MethodPut, "/api/v1/admin/pools/nobody/statistics", token, handlers.SetStatisticsRequest{Enabled: true})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	path := "/api/v1/admin/schedulers/" + broker.SessionReaperTaskName
	resp, _ = e.do(t, http.MethodPut, path, token, handlers.SetIntervalRequest{Interval: "90s"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 90*time.Second, e.broker.Reaper().Interval())

	saved, err := e.dir.Intervals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, saved[broker.SessionReaperTaskName])

	resp, _ = e.do(t, http.MethodPut, path, token, handlers.SetIntervalRequest{Interval: "soon"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = e.do(t, http.MethodPut, path, token, handlers.SetIntervalRequest{Interval: "-1s"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = e.do(t, http.MethodPut, "/api/v1/admin/schedulers/nope", token, handlers.SetIntervalRequest{Interval: "1s"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, data = e.do(t, http.MethodGet, "/api/v1/admin/schedulers", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tasks []scheduler.Stats
	require.NoError(t, json.Unmarshal(data, &tasks))
	assert.Len(t, tasks, 2)
}

func TestAdmin_Shutdown(t *testing.T) {
	e := newEnv(t)
	token := e.login(t, "root", "root-password")

	resp, _ := e.do(t, http.MethodPost, "/api/v1/admin/shutdown", token, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	select {
	case <-e.shutdown:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown callback not invoked")
	}
}

func TestHealth(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = e.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, e.broker.Shutdown(context.Background()))
	resp, _ = e.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_NoSecretDisablesAdmin(t *testing.T) {
	t.Setenv(EnvAPISecret, "")
	s, err := NewServer(APIConfig{Address: "127.0.0.1:0"}, Deps{})
	require.NoError(t, err)
	assert.Nil(t, s.JWTService())

	_, err = NewServer(APIConfig{JWT: JWTConfig{Secret: "short"}}, Deps{})
	assert.Error(t, err)

	e := newEnv(t)
	require.NoError(t, s.Start(context.Background(), e.broker))
	defer func() { _ = s.Stop(context.Background()) }()

	resp, err := http.Post("http://"+s.Addr()+"/api/v1/auth/login", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}

func TestGateway_AllowlistIgnoresForwardedHeaders(t *testing.T) {
	e := newEnvWithValidators(t, validator.Config{
		Enabled:   []string{validator.NameAllowlist, validator.NamePassword},
		Allowlist: validator.AllowlistConfig{CIDRs: []string{"10.0.0.0/8"}},
	})

	body, err := json.Marshal(handlers.ConnectRequest{Principal: "alice", Password: "alice-password"})
	require.NoError(t, err)

	for _, header := range []string{"X-Forwarded-For", "X-Real-IP", "True-Client-IP"} {
		t.Run(header, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, e.http.URL+"/api/v1/sessions", bytes.NewReader(body))
			require.NoError(t, err)
			req.Header.Set(header, "10.1.2.3")

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			data, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, string(data))
			assert.Contains(t, string(data), validator.NameAllowlist)
		})
	}
	assert.Equal(t, 0, e.broker.SessionCount())
}

func TestGateway_AllowlistAdmitsSocketPeer(t *testing.T) {
	e := newEnvWithValidators(t, validator.Config{
		Enabled:   []string{validator.NameAllowlist, validator.NamePassword},
		Allowlist: validator.AllowlistConfig{CIDRs: []string{"127.0.0.0/8", "::1/128"}},
	})

	sess := e.connect(t, handlers.ConnectRequest{Principal: "alice", Password: "alice-password"})
	assert.Equal(t, "alice", sess.Principal)

	info, ok := e.broker.Session(sess.SessionID)
	require.True(t, ok)
	assert.Contains(t, info.Request.RemoteAddr, "127.0.0.1")
}
