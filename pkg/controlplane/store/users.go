package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/marmos91/dittobroker/pkg/controlplane/models"
	"github.com/marmos91/dittobroker/pkg/secret"
)

func (s *GORMStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	return getByField[models.User](s.db, ctx, "username", username, models.ErrUserNotFound)
}

func (s *GORMStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	return listAll[models.User](s.db, ctx, "username")
}

func (s *GORMStore) CreateUser(ctx context.Context, user *models.User) (string, error) {
	if err := user.Validate(); err != nil {
		return "", err
	}
	if user.Role == "" {
		user.Role = string(models.RoleUser)
	}
	user.CreatedAt = time.Now()
	return createWithID(s.db, ctx, user, func(u *models.User, id string) { u.ID = id }, user.ID, models.ErrDuplicateUser)
}

func (s *GORMStore) UpdateUser(ctx context.Context, user *models.User) error {
	var existing models.User
	if err := s.db.WithContext(ctx).Where("id = ?", user.ID).First(&existing).Error; err != nil {
		return convertNotFoundError(err, models.ErrUserNotFound)
	}
	return s.db.WithContext(ctx).
		Model(&existing).
		Select("Username", "Enabled", "Role", "DisplayName").
		Updates(user).Error
}

func (s *GORMStore) DeleteUser(ctx context.Context, username string) error {
	if username == models.AdminUsername {
		return fmt.Errorf("cannot delete the %s user", models.AdminUsername)
	}
	return deleteByField[models.User](s.db, ctx, "username", username, models.ErrUserNotFound)
}

func (s *GORMStore) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("username = ?", username).
		Update("password_hash", passwordHash)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (s *GORMStore) UpdateLastLogin(ctx context.Context, username string, timestamp time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("username = ?", username).
		Update("last_login", timestamp)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (s *GORMStore) ValidateCredentials(ctx context.Context, username string, password *secret.Password) (*models.User, error) {
	user, err := s.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := user.CheckEnabled(); err != nil {
		return nil, err
	}

	if err := password.VerifyBcrypt(user.PasswordHash); err != nil {
		return nil, models.ErrInvalidCredentials
	}
	return user, nil
}

func (s *GORMStore) EnsureAdminUser(ctx context.Context) (string, error) {
	_, err := s.GetUser(ctx, models.AdminUsername)
	if err == nil {
		return "", nil
	}
	if !errors.Is(err, models.ErrUserNotFound) {
		return "", err
	}

	fromEnv := os.Getenv(models.EnvAdminInitialPassword) != ""
	password, err := models.GetOrGenerateAdminPassword()
	if err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	hash, err := models.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	if _, err := s.CreateUser(ctx, models.DefaultAdminUser(hash)); err != nil {
		return "", fmt.Errorf("failed to create admin user: %w", err)
	}
	if fromEnv {
		return "", nil
	}
	return password, nil
}
