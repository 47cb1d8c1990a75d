// Package validator holds the connection validators the broker can be
// configured with. Each one is registered by name and resolved once at
// startup.
package validator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/dittobroker/internal/logger"
	"github.com/marmos91/dittobroker/pkg/broker"
	"github.com/marmos91/dittobroker/pkg/controlplane/models"
	"github.com/marmos91/dittobroker/pkg/secret"
)

// Names under which the validators are registered.
const (
	NamePassword      = "password"
	NameAllowlist     = "allowlist"
	NameClientVersion = "client-version"
	NameHandoff       = "handoff"
)

// Auth methods recorded on accepted requests.
const (
	AuthPassword = "password"
	AuthHandoff  = "handoff"
)

var (
	ErrMissingCredential = errors.New("credential required")
	ErrBadCredentials    = errors.New("invalid principal or credential")
	ErrPrincipalDisabled = errors.New("principal is disabled")
)

// CredentialChecker is the subset of the principal store the password
// validator needs.
type CredentialChecker interface {
	ValidateCredentials(ctx context.Context, username string, password *secret.Password) (*models.User, error)
	UpdateLastLogin(ctx context.Context, username string, timestamp time.Time) error
}

// Password checks the request credential against the principal store.
// Requests already authenticated by an earlier validator pass untouched.
type Password struct {
	users CredentialChecker
}

// NewPassword returns a password validator backed by users.
func NewPassword(users CredentialChecker) *Password {
	return &Password{users: users}
}

func (p *Password) Name() string { return NamePassword }

func (p *Password) Validate(ctx context.Context, req *broker.ConnectionRequest) error {
	if req.Authenticated() {
		return nil
	}
	if req.Credential.Len() == 0 {
		return ErrMissingCredential
	}

	_, err := p.users.ValidateCredentials(ctx, req.Principal, req.Credential)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrUserDisabled):
		return ErrPrincipalDisabled
	case errors.Is(err, models.ErrInvalidCredentials):
		return ErrBadCredentials
	default:
		return fmt.Errorf("check credentials: %w", err)
	}

	req.AuthMethod = AuthPassword
	if err := p.users.UpdateLastLogin(ctx, req.Principal, time.Now()); err != nil {
		logger.WarnCtx(ctx, "Failed to record last login", logger.Err(err))
	}
	return nil
}
