package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marmos91/dittobroker/internal/logger"
	"github.com/marmos91/dittobroker/pkg/admin"
	"github.com/marmos91/dittobroker/pkg/pool"
	"github.com/marmos91/dittobroker/pkg/scheduler"
)

// AdminHandler exposes admin.View over HTTP.
type AdminHandler struct {
	view     *admin.View
	shutdown func()
}

// NewAdminHandler creates an AdminHandler. shutdown is invoked
// asynchronously by POST /admin/shutdown, after the response is written.
func NewAdminHandler(view *admin.View, shutdown func()) *AdminHandler {
	return &AdminHandler{view: view, shutdown: shutdown}
}

// SetStatisticsRequest is the request body for PUT /admin/pools/{principal}/statistics.
type SetStatisticsRequest struct {
	Enabled bool `json:"enabled"`
}

// DisconnectResponse is the response body for DELETE /admin/sessions/{id}.
// Disconnected is false when the session was not open.
type DisconnectResponse struct {
	SessionID    uuid.UUID `json:"session_id"`
	Disconnected bool      `json:"disconnected"`
}

// SetIntervalRequest is the request body for PUT /admin/schedulers/{name}.
// Interval uses Go duration syntax ("30s", "5m").
type SetIntervalRequest struct {
	Interval string `json:"interval"`
}

// Summary handles GET /admin.
func (h *AdminHandler) Summary(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, h.view.Summary(r.Context()))
}

// ListSessions handles GET /admin/sessions.
func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, h.view.Sessions())
}

// GetSession handles GET /admin/sessions/{id}.
func (h *AdminHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	info, err := h.view.Session(id)
	if err != nil {
		WriteBrokerError(w, err, 0)
		return
	}
	WriteJSONOK(w, info)
}

// DisconnectSession handles DELETE /admin/sessions/{id}.
func (h *AdminHandler) DisconnectSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	WriteJSONOK(w, DisconnectResponse{SessionID: id, Disconnected: h.view.Disconnect(id)})
}

// ListPools handles GET /admin/pools.
func (h *AdminHandler) ListPools(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, h.view.PoolStatistics())
}

// SetPoolStatistics handles PUT /admin/pools/{principal}/statistics.
func (h *AdminHandler) SetPoolStatistics(w http.ResponseWriter, r *http.Request) {
	var req SetStatisticsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	principal := chi.URLParam(r, "principal")
	if err := h.view.SetPoolStatistics(principal, req.Enabled); err != nil {
		if errors.Is(err, pool.ErrPoolNotFound) {
			NotFound(w, "Pool not found")
			return
		}
		InternalServerError(w, "Failed to update pool")
		return
	}
	WriteNoContent(w)
}

// ListSchedulers handles GET /admin/schedulers.
func (h *AdminHandler) ListSchedulers(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, h.view.Schedulers())
}

// SetInterval handles PUT /admin/schedulers/{name}.
func (h *AdminHandler) SetInterval(w http.ResponseWriter, r *http.Request) {
	var req SetIntervalRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	d, err := time.ParseDuration(req.Interval)
	if err != nil {
		BadRequest(w, "Invalid interval")
		return
	}

	name := chi.URLParam(r, "name")
	if err := h.view.SetInterval(r.Context(), name, d); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrTaskNotFound):
			NotFound(w, "Task not found")
		case errors.Is(err, scheduler.ErrInvalidConfiguration):
			BadRequest(w, err.Error())
		default:
			logger.ErrorCtx(r.Context(), "Failed to set task interval", logger.Task(name), logger.Err(err))
			InternalServerError(w, "Failed to set interval")
		}
		return
	}
	WriteNoContent(w)
}

// Shutdown handles POST /admin/shutdown. The broker stops after the
// response is sent, since stopping closes this API too.
func (h *AdminHandler) Shutdown(w http.ResponseWriter, r *http.Request) {
	if h.shutdown == nil {
		ServiceUnavailable(w, "Shutdown is not available")
		return
	}
	w.WriteHeader(http.StatusAccepted)
	go h.shutdown()
}
