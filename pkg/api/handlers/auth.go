package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/marmos91/dittobroker/internal/logger"
	"github.com/marmos91/dittobroker/pkg/api/auth"
	"github.com/marmos91/dittobroker/pkg/controlplane/models"
	"github.com/marmos91/dittobroker/pkg/secret"
)

// UserStore is the slice of the principal store the auth endpoints use.
type UserStore interface {
	GetUser(ctx context.Context, username string) (*models.User, error)
	ValidateCredentials(ctx context.Context, username string, password *secret.Password) (*models.User, error)
	UpdateLastLogin(ctx context.Context, username string, timestamp time.Time) error
}

// AuthHandler handles admin login and token refresh.
type AuthHandler struct {
	store      UserStore
	jwtService *auth.JWTService
}

func NewAuthHandler(s UserStore, jwtService *auth.JWTService) *AuthHandler {
	return &AuthHandler{store: s, jwtService: jwtService}
}

// LoginRequest is the request body for POST /api/v1/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest is the request body for POST /api/v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LoginResponse is returned by login and refresh.
type LoginResponse struct {
	auth.TokenPair
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		BadRequest(w, "Username and password are required")
		return
	}

	password := secret.FromString(req.Password)
	defer password.Wipe()

	user, err := h.store.ValidateCredentials(r.Context(), req.Username, password)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredentials), errors.Is(err, models.ErrUserNotFound):
			Unauthorized(w, "Invalid username or password")
		case errors.Is(err, models.ErrUserDisabled):
			Forbidden(w, "User account is disabled")
		default:
			logger.ErrorCtx(r.Context(), "Login failed", logger.Principal(req.Username), logger.Err(err))
			InternalServerError(w, "Authentication failed")
		}
		return
	}

	h.issue(w, r, user)

	if err := h.store.UpdateLastLogin(r.Context(), user.Username, time.Now()); err != nil {
		logger.WarnCtx(r.Context(), "Failed to update last login time", logger.Principal(user.Username), logger.Err(err))
	}
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		BadRequest(w, "Refresh token is required")
		return
	}

	claims, err := h.jwtService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			Unauthorized(w, "Refresh token has expired")
			return
		}
		Unauthorized(w, "Invalid refresh token")
		return
	}

	user, err := h.store.GetUser(r.Context(), claims.Principal)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			Unauthorized(w, "User not found")
			return
		}
		InternalServerError(w, "Failed to fetch user")
		return
	}
	if user.CheckEnabled() != nil {
		Forbidden(w, "User account is disabled")
		return
	}

	h.issue(w, r, user)
}

func (h *AuthHandler) issue(w http.ResponseWriter, r *http.Request, user *models.User) {
	pair, err := h.jwtService.GenerateTokenPair(user)
	if err != nil {
		logger.ErrorCtx(r.Context(), "Failed to generate token", logger.Err(err))
		InternalServerError(w, "Failed to generate token")
		return
	}
	WriteJSONOK(w, LoginResponse{TokenPair: *pair, Username: user.Username, Role: user.Role})
}
