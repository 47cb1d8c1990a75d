package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/dittobroker/internal/logger"
	"github.com/marmos91/dittobroker/pkg/broker"
	"github.com/marmos91/dittobroker/pkg/credentials"
)

// ServiceName identifies the metrics endpoint among auxiliary services.
const ServiceName = "metrics"

// Server exposes the registry on /metrics. It is an auxiliary service:
// Start registers collectors for the broker it is attached to.
type Server struct {
	addr     string
	exchange *credentials.Exchange

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	colls    []prometheus.Collector
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithTokenExchange also exports credentials exchange counters.
func WithTokenExchange(ex *credentials.Exchange) ServerOption {
	return func(s *Server) { s.exchange = ex }
}

// NewServer returns a metrics endpoint listening on addr (e.g. ":9090").
func NewServer(addr string, opts ...ServerOption) *Server {
	s := &Server{addr: addr}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Name() string { return ServiceName }

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) Start(_ context.Context, srv *broker.Server) error {
	reg := GetRegistry()
	if reg == nil {
		return errors.New("metrics registry not initialized")
	}

	colls := []prometheus.Collector{
		NewPoolCollector(srv.Pools()),
		NewTaskCollector(srv.Tasks()),
	}
	if s.exchange != nil {
		colls = append(colls, NewTokenCollector(s.exchange))
	}
	for i, c := range colls {
		if err := reg.Register(c); err != nil {
			for _, prev := range colls[:i] {
				reg.Unregister(prev)
			}
			return fmt.Errorf("register collector: %w", err)
		}
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		for _, c := range colls {
			reg.Unregister(c)
		}
		return fmt.Errorf("metrics listen %s: %w", s.addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	hs := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.server = hs
	s.listener = ln
	s.colls = colls
	s.mu.Unlock()

	go func() {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", logger.Err(err))
		}
	}()

	logger.Info("Metrics server listening", "address", ln.Addr().String())
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	hs, colls := s.server, s.colls
	s.server, s.colls = nil, nil
	s.mu.Unlock()

	if hs == nil {
		return nil
	}
	if reg := GetRegistry(); reg != nil {
		for _, c := range colls {
			reg.Unregister(c)
		}
	}
	if err := hs.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	logger.Info("Metrics server stopped")
	return nil
}
