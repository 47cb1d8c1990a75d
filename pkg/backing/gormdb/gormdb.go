// Package gormdb hands out GORM database handles, one physical connection
// per resource, over SQLite or PostgreSQL.
package gormdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/dittobroker/internal/logger"
	"github.com/marmos91/dittobroker/pkg/backing"
)

// Dialect is the database flavor a factory opens.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Resource is a GORM handle pinned to one physical connection.
type Resource struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// DB exposes the handle for units of work.
func (r *Resource) DB() *gorm.DB { return r.db }

func (r *Resource) Ping(ctx context.Context) error {
	return r.sqlDB.PingContext(ctx)
}

func (r *Resource) Close() error {
	return r.sqlDB.Close()
}

// Factory opens GORM handles from a DSN template.
type Factory struct {
	dialect     Dialect
	dsn         string
	pingTimeout time.Duration
}

// New returns a factory for the given dialect.
func New(dialect Dialect, cfg backing.Config) (*Factory, error) {
	cfg.ApplyDefaults()
	if cfg.DSN == "" {
		return nil, fmt.Errorf("gormdb: %s dsn is required", dialect)
	}
	switch dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return nil, fmt.Errorf("gormdb: unsupported dialect %q", dialect)
	}
	return &Factory{dialect: dialect, dsn: cfg.DSN, pingTimeout: cfg.PingTimeout}, nil
}

// SQLiteConstructor and PostgresConstructor plug into backing.Registry.
func SQLiteConstructor(cfg backing.Config) (backing.Factory, error) {
	return New(DialectSQLite, cfg)
}

func PostgresConstructor(cfg backing.Config) (backing.Factory, error) {
	return New(DialectPostgres, cfg)
}

func (f *Factory) dialector(dsn string) (gorm.Dialector, error) {
	if f.dialect == DialectPostgres {
		return postgres.Open(dsn), nil
	}

	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path != ":memory:" && path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)"
	}
	return sqlite.Open(dsn), nil
}

func (f *Factory) Create(ctx context.Context, principal string) (backing.Resource, error) {
	dsn, err := backing.ExpandDSN(f.dsn, principal)
	if err != nil {
		return nil, err
	}

	dialector, err := f.dialector(dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("gormdb: failed to open %s for %q: %w", f.dialect, principal, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gormdb: failed to get underlying database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	r := &Resource{db: db, sqlDB: sqlDB}
	if err := f.Validate(ctx, r); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("gormdb: initial ping for %q: %w", principal, err)
	}

	logger.Debug("Opened backing connection", logger.Principal(principal), "dialect", string(f.dialect))
	return r, nil
}

func (f *Factory) Validate(ctx context.Context, r backing.Resource) error {
	ctx, cancel := context.WithTimeout(ctx, f.pingTimeout)
	defer cancel()
	return r.Ping(ctx)
}
