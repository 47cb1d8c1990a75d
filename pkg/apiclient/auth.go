package apiclient

import (
	"context"
	"time"

	"github.com/marmos91/dittobroker/pkg/api/handlers"
)

// LoginRequest represents a login request.
type LoginRequest = handlers.LoginRequest

// TokenResponse is the body of login and refresh responses.
type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
	Username     string    `json:"username,omitempty"`
	Role         string    `json:"role,omitempty"`
}

// ExpiresInDuration returns ExpiresIn as a time.Duration.
func (t *TokenResponse) ExpiresInDuration() time.Duration {
	return time.Duration(t.ExpiresIn) * time.Second
}

// Login authenticates an administrator and returns tokens.
func (c *Client) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	return createResource[TokenResponse](ctx, c, "/api/v1/auth/login", LoginRequest{
		Username: username,
		Password: password,
	})
}

// RefreshToken exchanges a refresh token for a new pair.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return createResource[TokenResponse](ctx, c, "/api/v1/auth/refresh", handlers.RefreshRequest{
		RefreshToken: refreshToken,
	})
}
