// Package pgxconn hands out native PostgreSQL connections. Each resource is
// a single pgx.Conn; pooling is the broker's job, not pgx's.
package pgxconn

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marmos91/dittobroker/internal/logger"
	"github.com/marmos91/dittobroker/pkg/backing"
)

// Resource wraps a pgx connection.
type Resource struct {
	conn *pgx.Conn
}

// Conn exposes the connection for units of work.
func (r *Resource) Conn() *pgx.Conn { return r.conn }

func (r *Resource) Ping(ctx context.Context) error {
	if r.conn.IsClosed() {
		return backing.ErrResourceClosed
	}
	return r.conn.Ping(ctx)
}

func (r *Resource) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.conn.Close(ctx)
}

// Factory connects with a DSN template, optionally setting application_name
// to the principal so sessions show up in pg_stat_activity.
type Factory struct {
	dsn         string
	pingTimeout time.Duration
}

// New validates cfg and returns a factory.
func New(cfg backing.Config) (*Factory, error) {
	cfg.ApplyDefaults()
	if cfg.DSN == "" {
		return nil, fmt.Errorf("pgxconn: dsn is required")
	}
	if _, err := pgx.ParseConfig(stripPlaceholder(cfg.DSN)); err != nil {
		return nil, fmt.Errorf("pgxconn: invalid dsn: %w", err)
	}
	return &Factory{dsn: cfg.DSN, pingTimeout: cfg.PingTimeout}, nil
}

// Constructor plugs into backing.Registry.
func Constructor(cfg backing.Config) (backing.Factory, error) {
	return New(cfg)
}

// stripPlaceholder lets a template be parsed before any principal is known.
func stripPlaceholder(dsn string) string {
	out, _ := backing.ExpandDSN(dsn, "probe")
	return out
}

func (f *Factory) Create(ctx context.Context, principal string) (backing.Resource, error) {
	dsn, err := backing.ExpandDSN(f.dsn, principal)
	if err != nil {
		return nil, err
	}

	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxconn: parse dsn: %w", err)
	}
	if _, ok := cfg.RuntimeParams["application_name"]; !ok {
		cfg.RuntimeParams["application_name"] = "dbroker:" + principal
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxconn: connect for %q: %w", principal, err)
	}

	logger.Debug("Opened backing connection", logger.Principal(principal), "dialect", "pgx")
	return &Resource{conn: conn}, nil
}

func (f *Factory) Validate(ctx context.Context, r backing.Resource) error {
	ctx, cancel := context.WithTimeout(ctx, f.pingTimeout)
	defer cancel()
	return r.Ping(ctx)
}
