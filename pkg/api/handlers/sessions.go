package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittobroker/internal/logger"
	"github.com/marmos91/dittobroker/pkg/backing"
	"github.com/marmos91/dittobroker/pkg/broker"
	"github.com/marmos91/dittobroker/pkg/credentials"
	"github.com/marmos91/dittobroker/pkg/secret"
)

// SessionHandler is the client-facing gateway onto broker.Server.
type SessionHandler struct {
	server     *broker.Server
	exchange   *credentials.Exchange
	retryAfter time.Duration
}

// NewSessionHandler creates a SessionHandler. exchange may be nil, in
// which case handoff tokens cannot be issued.
func NewSessionHandler(server *broker.Server, exchange *credentials.Exchange, retryAfter time.Duration) *SessionHandler {
	return &SessionHandler{server: server, exchange: exchange, retryAfter: retryAfter}
}

// ConnectRequest is the request body for POST /api/v1/sessions.
type ConnectRequest struct {
	Principal       string            `json:"principal"`
	SessionID       string            `json:"session_id,omitempty"`
	Password        string            `json:"password,omitempty"`
	ClientType      string            `json:"client_type,omitempty"`
	ClientVersion   string            `json:"client_version,omitempty"`
	ProtocolVersion string            `json:"protocol_version,omitempty"`
	Params          map[string]string `json:"params,omitempty"`
}

// SessionResponse describes an open session.
type SessionResponse struct {
	SessionID  uuid.UUID `json:"session_id"`
	Principal  string    `json:"principal"`
	AuthMethod string    `json:"auth_method,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// HandoffResponse is the response body for POST /api/v1/sessions/{id}/handoff.
type HandoffResponse struct {
	Token     string    `json:"token"`
	Principal string    `json:"principal"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Connect handles POST /api/v1/sessions. A missing session_id gets a fresh one.
func (h *SessionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var body ConnectRequest
	if !decodeJSONBody(w, r, &body) {
		return
	}

	id := uuid.New()
	if body.SessionID != "" {
		parsed, err := uuid.Parse(body.SessionID)
		if err != nil {
			BadRequest(w, "Invalid session id")
			return
		}
		id = parsed
	}

	req := &broker.ConnectionRequest{
		Principal:       body.Principal,
		SessionID:       id,
		ClientType:      body.ClientType,
		ClientVersion:   body.ClientVersion,
		ProtocolVersion: body.ProtocolVersion,
		RemoteAddr:      r.RemoteAddr,
		Params:          body.Params,
	}
	if body.Password != "" {
		req.Credential = secret.FromString(body.Password)
	}

	handle, err := h.server.Connect(r.Context(), req)
	if err != nil {
		WriteBrokerError(w, err, h.retryAfter)
		return
	}

	sess := handle.Session()
	WriteJSONOK(w, SessionResponse{
		SessionID:  sess.ID,
		Principal:  sess.Principal(),
		AuthMethod: sess.Request.AuthMethod,
		CreatedAt:  sess.CreatedAt,
	})
}

// Disconnect handles DELETE /api/v1/sessions/{id}. Unknown sessions are
// not an error.
func (h *SessionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	h.server.Disconnect(id)
	WriteNoContent(w)
}

// Ping handles POST /api/v1/sessions/{id}/ping: one unit of work that
// checks the session's resource.
func (h *SessionHandler) Ping(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	handle, ok := h.server.Handle(id)
	if !ok {
		NotFound(w, "Session not found")
		return
	}

	err := handle.Do(r.Context(), func(ctx context.Context, res backing.Resource) error {
		return res.Ping(ctx)
	})
	if err != nil {
		if broker.IsKind(err, broker.KindInternal) {
			logger.WarnCtx(r.Context(), "Session ping failed", logger.SessionID(id.String()), logger.Err(err))
		}
		WriteBrokerError(w, err, h.retryAfter)
		return
	}
	WriteNoContent(w)
}

// Handoff handles POST /api/v1/sessions/{id}/handoff. The token lets a
// second connection for the same principal skip the password check once.
func (h *SessionHandler) Handoff(w http.ResponseWriter, r *http.Request) {
	if h.exchange == nil {
		NotFound(w, "Handoff tokens are not enabled")
		return
	}
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	sess, ok := h.server.Session(id)
	if !ok {
		NotFound(w, "Session not found")
		return
	}

	token, expires, err := h.exchange.IssueNew(r.Context(), sess.Principal())
	if err != nil {
		logger.ErrorCtx(r.Context(), "Failed to issue handoff token", logger.Principal(sess.Principal()), logger.Err(err))
		InternalServerError(w, "Failed to issue handoff token")
		return
	}

	WriteJSONOK(w, HandoffResponse{Token: token, Principal: sess.Principal(), ExpiresAt: expires})
}
