package models

import (
	"fmt"
	"time"

	"github.com/marmos91/dittobroker/pkg/backing"
)

// UserRole is what a principal may do beyond connecting.
type UserRole string

const (
	// RoleUser may open sessions only.
	RoleUser UserRole = "user"
	// RoleAdmin may also use the admin API.
	RoleAdmin UserRole = "admin"
)

func (r UserRole) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is a principal in the broker's directory. The username is the
// principal named in connection requests and substituted into backing
// DSNs, so it is held to the same character set.
type User struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Username     string     `gorm:"uniqueIndex;not null;size:128" json:"principal"`
	PasswordHash string     `gorm:"not null" json:"-"`
	Enabled      bool       `gorm:"default:true" json:"enabled"`
	Role         string     `gorm:"default:user;size:16" json:"role"`
	DisplayName  string     `gorm:"size:255" json:"display_name,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// Label is what the CLI shows for the principal.
func (u *User) Label() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

func (u *User) Validate() error {
	if u.Username == "" {
		return fmt.Errorf("principal name is required")
	}
	if !backing.ValidPrincipal(u.Username) {
		return fmt.Errorf("invalid principal name %q: use letters, digits and . _ @ -", u.Username)
	}
	if u.Role != "" && !UserRole(u.Role).IsValid() {
		return fmt.Errorf("invalid role %q", u.Role)
	}
	return nil
}

// CheckEnabled returns ErrUserDisabled for a disabled principal.
func (u *User) CheckEnabled() error {
	if !u.Enabled {
		return ErrUserDisabled
	}
	return nil
}

func (u *User) IsAdmin() bool {
	return u.Role == string(RoleAdmin)
}

func (u *User) GetRole() UserRole {
	return UserRole(u.Role)
}
