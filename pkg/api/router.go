package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dittobroker/internal/logger"
	"github.com/marmos91/dittobroker/pkg/admin"
	"github.com/marmos91/dittobroker/pkg/api/auth"
	"github.com/marmos91/dittobroker/pkg/api/handlers"
	apiMiddleware "github.com/marmos91/dittobroker/pkg/api/middleware"
	"github.com/marmos91/dittobroker/pkg/broker"
)

// NewRouter creates the chi router.
//
// Routes:
//   - GET /health, GET /health/ready
//   - POST /api/v1/sessions - connect
//   - DELETE /api/v1/sessions/{id} - disconnect
//   - POST /api/v1/sessions/{id}/ping - run a unit of work
//   - POST /api/v1/sessions/{id}/handoff - issue a handoff token
//   - POST /api/v1/auth/login, POST /api/v1/auth/refresh
//   - /api/v1/admin/* - admin view (admin role)
//
// Auth and admin routes are mounted only when jwtService and deps.Directory
// are both set.
func NewRouter(cfg APIConfig, srv *broker.Server, view *admin.View, jwtService *auth.JWTService, deps Deps) http.Handler {
	cfg.ApplyDefaults()
	r := chi.NewRouter()

	// No RealIP: r.RemoteAddr must stay the socket peer, since it feeds
	// the allowlist validator.
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	healthHandler := handlers.NewHealthHandler(srv, deps.Directory)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	sessionHandler := handlers.NewSessionHandler(srv, deps.Exchange, cfg.RetryAfter)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Connect)
			r.Delete("/{id}", sessionHandler.Disconnect)
			r.Post("/{id}/ping", sessionHandler.Ping)
			r.Post("/{id}/handoff", sessionHandler.Handoff)
		})

		if jwtService == nil || deps.Directory == nil {
			return
		}

		authHandler := handlers.NewAuthHandler(deps.Directory, jwtService)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
		})

		adminHandler := handlers.NewAdminHandler(view, deps.OnShutdown)
		r.Route("/admin", func(r chi.Router) {
			r.Use(apiMiddleware.JWTAuth(jwtService))
			r.Use(apiMiddleware.RequireAdmin())

			r.Get("/", adminHandler.Summary)
			r.Get("/sessions", adminHandler.ListSessions)
			r.Get("/sessions/{id}", adminHandler.GetSession)
			r.Delete("/sessions/{id}", adminHandler.DisconnectSession)
			r.Get("/pools", adminHandler.ListPools)
			r.Put("/pools/{principal}/statistics", adminHandler.SetPoolStatistics)
			r.Get("/schedulers", adminHandler.ListSchedulers)
			r.Put("/schedulers/{name}", adminHandler.SetInterval)
			r.Post("/shutdown", adminHandler.Shutdown)
		})
	})

	return r
}

func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger logs each request with the internal logger. Health probes
// are logged at DEBUG.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			logger.ClientIP(r.RemoteAddr),
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.DurationMs(logger.Since(start)),
		}
		if isHealthPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
