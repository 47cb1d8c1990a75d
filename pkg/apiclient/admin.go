package apiclient

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittobroker/pkg/admin"
	"github.com/marmos91/dittobroker/pkg/api/handlers"
	"github.com/marmos91/dittobroker/pkg/broker"
	"github.com/marmos91/dittobroker/pkg/pool"
	"github.com/marmos91/dittobroker/pkg/scheduler"
)

type (
	Summary     = admin.Summary
	SessionInfo = broker.SessionInfo
	PoolStats   = pool.Stats
	TaskStats   = scheduler.Stats
)

// Summary returns session, pool, task and token counts.
func (c *Client) Summary(ctx context.Context) (*Summary, error) {
	return getResource[Summary](ctx, c, "/api/v1/admin")
}

// ListSessions lists live sessions.
func (c *Client) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	return listResources[SessionInfo](ctx, c, "/api/v1/admin/sessions")
}

// GetSession returns one session.
func (c *Client) GetSession(ctx context.Context, id uuid.UUID) (*SessionInfo, error) {
	return getResource[SessionInfo](ctx, c, resourcePath("/api/v1/admin/sessions/%s", id.String()))
}

// DisconnectSession force-disconnects a session and reports whether it was
// open. An unknown session is not an error.
func (c *Client) DisconnectSession(ctx context.Context, id uuid.UUID) (bool, error) {
	var resp handlers.DisconnectResponse
	if err := c.do(ctx, http.MethodDelete, resourcePath("/api/v1/admin/sessions/%s", id.String()), nil, &resp); err != nil {
		return false, err
	}
	return resp.Disconnected, nil
}

// ListPools returns statistics for every principal's pool.
func (c *Client) ListPools(ctx context.Context) ([]PoolStats, error) {
	return listResources[PoolStats](ctx, c, "/api/v1/admin/pools")
}

// SetPoolStatistics toggles checkout statistics for a principal's pool.
func (c *Client) SetPoolStatistics(ctx context.Context, principal string, enabled bool) error {
	return c.put(ctx, resourcePath("/api/v1/admin/pools/%s/statistics", principal),
		handlers.SetStatisticsRequest{Enabled: enabled}, nil)
}

// ListSchedulers lists maintenance tasks.
func (c *Client) ListSchedulers(ctx context.Context) ([]TaskStats, error) {
	return listResources[TaskStats](ctx, c, "/api/v1/admin/schedulers")
}

// SetInterval changes a task's period. The server persists it.
func (c *Client) SetInterval(ctx context.Context, task string, interval time.Duration) error {
	return c.put(ctx, resourcePath("/api/v1/admin/schedulers/%s", task),
		handlers.SetIntervalRequest{Interval: interval.String()}, nil)
}

// Shutdown asks the broker to stop. It returns once the request is
// accepted, before shutdown completes.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.post(ctx, "/api/v1/admin/shutdown", nil, nil)
}

// Health returns the readiness probe. A not-ready broker is an *APIError
// with status 503.
func (c *Client) Health(ctx context.Context) (*handlers.Response, error) {
	return getResource[handlers.Response](ctx, c, "/health/ready")
}
