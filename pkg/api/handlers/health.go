package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/marmos91/dittobroker/pkg/broker"
)

// Response is the envelope for health endpoints.
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func healthyResponse(data any) Response {
	return Response{Status: "healthy", Timestamp: time.Now().UTC(), Data: data}
}

func unhealthyResponse(errMsg string) Response {
	return Response{Status: "unhealthy", Timestamp: time.Now().UTC(), Error: errMsg}
}

// Checker is anything with a health probe, such as the principal store.
type Checker interface {
	Healthcheck(ctx context.Context) error
}

// HealthHandler handles the unauthenticated health probes.
type HealthHandler struct {
	server    *broker.Server
	directory Checker
}

// NewHealthHandler creates a health handler. directory may be nil.
func NewHealthHandler(server *broker.Server, directory Checker) *HealthHandler {
	return &HealthHandler{server: server, directory: directory}
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "dbroker",
	}))
}

// Readiness handles GET /health/ready. The broker is ready while it
// accepts connections and its principal directory answers.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.server == nil || !h.server.Running() {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("broker not accepting connections"))
		return
	}

	if h.directory != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		start := time.Now()
		if err := h.directory.Healthcheck(ctx); err != nil {
			WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("directory: "+err.Error()))
			return
		}
		WriteJSON(w, http.StatusOK, healthyResponse(map[string]any{
			"sessions":          h.server.SessionCount(),
			"directory_latency": time.Since(start).String(),
		}))
		return
	}

	WriteJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"sessions": h.server.SessionCount(),
	}))
}
