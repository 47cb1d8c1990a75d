package models

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"time"

	"github.com/google/uuid"
)

const (
	// AdminUsername is the reserved username for the system administrator.
	AdminUsername = "admin"

	// EnvAdminInitialPassword sets the initial admin password. If unset a
	// random one is generated and printed once.
	EnvAdminInitialPassword = "DBROKER_ADMIN_INITIAL_PASSWORD"

	DefaultAdminDisplayName = "Administrator"
)

// DefaultAdminUser returns the bootstrap administrator.
func DefaultAdminUser(passwordHash string) *User {
	return &User{
		ID:           uuid.New().String(),
		Username:     AdminUsername,
		PasswordHash: passwordHash,
		Enabled:      true,
		Role:         string(RoleAdmin),
		DisplayName:  DefaultAdminDisplayName,
		CreatedAt:    time.Now(),
	}
}

// GetOrGenerateAdminPassword returns the password from the environment or a
// fresh random one.
func GetOrGenerateAdminPassword() (string, error) {
	if pw := os.Getenv(EnvAdminInitialPassword); pw != "" {
		return pw, nil
	}
	return GenerateRandomPassword()
}

// GenerateRandomPassword returns 24 characters of URL-safe base64.
func GenerateRandomPassword() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
