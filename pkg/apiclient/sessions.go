package apiclient

import (
	"context"

	"github.com/google/uuid"

	"github.com/marmos91/dittobroker/pkg/api/handlers"
)

type (
	ConnectRequest  = handlers.ConnectRequest
	SessionResponse = handlers.SessionResponse
	HandoffResponse = handlers.HandoffResponse
)

// Connect opens a session, or reattaches to an existing one when
// req.SessionID names it. The session ID in the response is the
// capability for every other gateway call.
func (c *Client) Connect(ctx context.Context, req ConnectRequest) (*SessionResponse, error) {
	return createResource[SessionResponse](ctx, c, "/api/v1/sessions", req)
}

// Ping runs a validity probe through the session's resource.
func (c *Client) Ping(ctx context.Context, id uuid.UUID) error {
	return c.post(ctx, resourcePath("/api/v1/sessions/%s/ping", id.String()), nil, nil)
}

// Disconnect ends a session. Unknown sessions are not an error.
func (c *Client) Disconnect(ctx context.Context, id uuid.UUID) error {
	return c.delete(ctx, resourcePath("/api/v1/sessions/%s", id.String()))
}

// Handoff issues a single-use token that lets another client connect as
// the session's principal without a password.
func (c *Client) Handoff(ctx context.Context, id uuid.UUID) (*HandoffResponse, error) {
	return createResource[HandoffResponse](ctx, c, resourcePath("/api/v1/sessions/%s/handoff", id.String()), nil)
}
