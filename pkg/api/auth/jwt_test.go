package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/marmos91/dittobroker/pkg/controlplane/models"
)

const testSecret = "test-secret-key-must-be-32-chars!"

func newService(t *testing.T) *JWTService {
	t.Helper()
	s, err := NewJWTService(JWTConfig{Secret: testSecret, Issuer: "test"})
	if err != nil {
		t.Fatalf("NewJWTService: %v", err)
	}
	return s
}

func TestNewJWTService_ShortSecret(t *testing.T) {
	if _, err := NewJWTService(JWTConfig{Secret: "short"}); !errors.Is(err, ErrInvalidSecretLength) {
		t.Fatalf("expected ErrInvalidSecretLength, got %v", err)
	}
}

func TestGenerateTokenPair_RoundTrip(t *testing.T) {
	s := newService(t)
	user := &models.User{ID: "u-1", Username: "admin", Role: string(models.RoleAdmin)}

	pair, err := s.GenerateTokenPair(user)
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}
	if pair.TokenType != "Bearer" {
		t.Errorf("expected Bearer, got %s", pair.TokenType)
	}
	if pair.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Errorf("unexpected ExpiresIn %d", pair.ExpiresIn)
	}

	claims, err := s.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.Principal != "admin" || claims.Subject != "admin" || !claims.IsAdmin() {
		t.Errorf("unexpected claims %+v", claims)
	}

	refresh, err := s.ValidateRefreshToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("ValidateRefreshToken: %v", err)
	}
	if refresh.ID == "" || refresh.ID == claims.ID {
		t.Errorf("token IDs not unique: access %q refresh %q", claims.ID, refresh.ID)
	}

	if _, err := s.ValidateAccessToken(pair.RefreshToken); !errors.Is(err, ErrInvalidTokenType) {
		t.Errorf("refresh token accepted as access token: %v", err)
	}
	if _, err := s.ValidateRefreshToken(pair.RefreshToken); err != nil {
		t.Errorf("ValidateRefreshToken: %v", err)
	}
}

func TestValidateToken_Rejects(t *testing.T) {
	s := newService(t)
	user := &models.User{ID: "u-1", Username: "bob", Role: string(models.RoleUser)}
	pair, err := s.GenerateTokenPair(user)
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}

	t.Run("garbage", func(t *testing.T) {
		if _, err := s.ValidateToken("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("other secret", func(t *testing.T) {
		other, _ := NewJWTService(JWTConfig{Secret: "another-secret-key-that-is-32-chars", Issuer: "test"})
		if _, err := other.ValidateToken(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("other issuer", func(t *testing.T) {
		other, _ := NewJWTService(JWTConfig{Secret: testSecret, Issuer: "elsewhere"})
		if _, err := other.ValidateToken(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		s.now = func() time.Time { return time.Now().Add(time.Hour) }
		defer func() { s.now = time.Now }()
		if _, err := s.ValidateAccessToken(pair.AccessToken); !errors.Is(err, ErrExpiredToken) {
			t.Errorf("expected ErrExpiredToken, got %v", err)
		}
	})

	if (&Claims{Role: "user"}).IsAdmin() {
		t.Error("user role reported as admin")
	}
}
