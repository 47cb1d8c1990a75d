// Package auth issues and validates the JWTs that guard the admin API.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/marmos91/dittobroker/pkg/controlplane/models"
)

// TokenUse keeps access and refresh tokens from standing in for each other.
type TokenUse string

const (
	UseAccess  TokenUse = "access"
	UseRefresh TokenUse = "refresh"
)

// Claims name the operator behind an admin request. Subject repeats the
// principal and ID is unique per token.
type Claims struct {
	jwt.RegisteredClaims

	Principal string          `json:"principal"`
	Role      models.UserRole `json:"role"`
	Use       TokenUse        `json:"use"`
}

func newClaims(issuer string, user *models.User, use TokenUse, issuedAt, expiresAt time.Time) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Principal: user.Username,
		Role:      user.GetRole(),
		Use:       use,
	}
}

// Is reports whether the token was issued for use.
func (c *Claims) Is(use TokenUse) bool { return c.Use == use }

func (c *Claims) IsAdmin() bool { return c.Role == models.RoleAdmin }
