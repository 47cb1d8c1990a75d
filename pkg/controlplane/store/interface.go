// Package store persists the broker's principal directory and runtime
// settings. SQLite is the default; PostgreSQL is supported for deployments
// that run several brokers against one directory.
package store

import (
	"context"
	"time"

	"github.com/marmos91/dittobroker/pkg/controlplane/models"
	"github.com/marmos91/dittobroker/pkg/secret"
)

// Store is safe for concurrent use.
type Store interface {
	// GetUser returns models.ErrUserNotFound if the user doesn't exist.
	GetUser(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)

	// CreateUser generates an ID if empty and returns it.
	// Returns models.ErrDuplicateUser if the username is taken.
	CreateUser(ctx context.Context, user *models.User) (string, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, username string) error
	UpdatePassword(ctx context.Context, username, passwordHash string) error
	UpdateLastLogin(ctx context.Context, username string, timestamp time.Time) error

	// ValidateCredentials returns models.ErrInvalidCredentials for an unknown
	// user or a wrong password and models.ErrUserDisabled for a disabled one.
	ValidateCredentials(ctx context.Context, username string, password *secret.Password) (*models.User, error)

	// EnsureAdminUser creates the admin account if missing and returns the
	// generated password, or "" if the admin already existed.
	EnsureAdminUser(ctx context.Context) (string, error)

	// GetSetting returns "" if the key is unset.
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
	ListSettings(ctx context.Context) ([]*models.Setting, error)

	// Intervals returns every persisted scheduler interval keyed by task.
	Intervals(ctx context.Context) (map[string]time.Duration, error)
	SetInterval(ctx context.Context, task string, d time.Duration) error

	Healthcheck(ctx context.Context) error
	Close() error
}
