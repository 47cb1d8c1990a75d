package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/marmos91/dittobroker/internal/logger"
	"github.com/marmos91/dittobroker/pkg/admin"
	"github.com/marmos91/dittobroker/pkg/api/auth"
	"github.com/marmos91/dittobroker/pkg/broker"
	"github.com/marmos91/dittobroker/pkg/controlplane/store"
	"github.com/marmos91/dittobroker/pkg/credentials"
)

// ServiceName identifies the API among auxiliary services.
const ServiceName = "api"

// Deps are the collaborators the API serves besides the broker itself.
type Deps struct {
	// Directory backs admin login, readiness and persisted intervals.
	// Without it the admin routes are not mounted.
	Directory store.Store

	// Exchange issues handoff tokens. Optional.
	Exchange *credentials.Exchange

	// OnShutdown is called by POST /admin/shutdown. Defaults to shutting
	// the broker down directly.
	OnShutdown func()
}

// Server serves the gateway and admin API. It is an auxiliary service;
// the router is built in Start, once the broker is known.
type Server struct {
	config     APIConfig
	deps       Deps
	jwtService *auth.JWTService

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer validates the configuration. A missing JWT secret disables the
// admin API; a short one is an error.
func NewServer(config APIConfig, deps Deps) (*Server, error) {
	config.ApplyDefaults()

	s := &Server{config: config, deps: deps}
	if secret := config.GetJWTSecret(); secret != "" {
		svc, err := auth.NewJWTService(auth.JWTConfig{
			Secret:               secret,
			AccessTokenDuration:  config.JWT.AccessTokenDuration,
			RefreshTokenDuration: config.JWT.RefreshTokenDuration,
		})
		if err != nil {
			return nil, err
		}
		s.jwtService = svc
	} else {
		logger.Warn("No API JWT secret configured, admin API disabled", "env_var", EnvAPISecret)
	}
	return s, nil
}

func (s *Server) Name() string { return ServiceName }

// JWTService returns nil when the admin API is disabled.
func (s *Server) JWTService() *auth.JWTService { return s.jwtService }

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}

// Handler builds the router for srv.
func (s *Server) Handler(srv *broker.Server) http.Handler {
	opts := []admin.Option{}
	if s.deps.Exchange != nil {
		opts = append(opts, admin.WithExchange(s.deps.Exchange))
	}
	if s.deps.Directory != nil {
		opts = append(opts, admin.WithIntervalStore(s.deps.Directory))
	}
	view := admin.NewView(srv, opts...)

	deps := s.deps
	if deps.OnShutdown == nil {
		deps.OnShutdown = func() {
			ctx, cancel := context.WithTimeout(context.Background(), srv.Config().ShutdownTimeout)
			defer cancel()
			if err := view.Shutdown(ctx); err != nil {
				logger.Error("Shutdown failed", logger.Err(err))
			}
		}
	}
	return NewRouter(s.config, srv, view, s.jwtService, deps)
}

// Start listens and serves in the background.
func (s *Server) Start(_ context.Context, srv *broker.Server) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("API listen %s: %w", s.config.Address, err)
	}

	hs := &http.Server{
		Handler:      s.Handler(srv),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.mu.Lock()
	s.server = hs
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API server failed", logger.Err(err))
		}
	}()

	logger.Info("API server listening", "address", ln.Addr().String(), "admin", s.jwtService != nil)
	return nil
}

// Stop gracefully shuts down the HTTP server. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	hs := s.server
	s.server = nil
	s.mu.Unlock()

	if hs == nil {
		return nil
	}
	if err := hs.Shutdown(ctx); err != nil {
		return fmt.Errorf("API server shutdown error: %w", err)
	}
	logger.Info("API server stopped gracefully")
	return nil
}
