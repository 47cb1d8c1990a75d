package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/dittobroker/pkg/controlplane/models"
	"github.com/marmos91/dittobroker/pkg/secret"
)

func createTestStore(t *testing.T) *GORMStore {
	t.Helper()
	store, err := New(&Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: filepath.Join(t.TempDir(), "directory.db")},
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNew(t *testing.T) {
	t.Run("invalid config returns error", func(t *testing.T) {
		if _, err := New(&Config{Type: "invalid"}); err == nil {
			t.Error("expected error for invalid config")
		}
	})

	t.Run("healthcheck", func(t *testing.T) {
		store := createTestStore(t)
		if err := store.Healthcheck(context.Background()); err != nil {
			t.Errorf("Healthcheck() error = %v", err)
		}
	})

	t.Run("healthcheck after close", func(t *testing.T) {
		store := createTestStore(t)
		if err := store.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if err := store.Healthcheck(context.Background()); err == nil {
			t.Error("expected Healthcheck to fail on a closed directory")
		}
	})
}

func TestUserOperations(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	t.Run("create user", func(t *testing.T) {
		id, err := store.CreateUser(ctx, &models.User{Username: "alice", PasswordHash: "hash", Enabled: true})
		if err != nil {
			t.Fatalf("failed to create user: %v", err)
		}
		if id == "" {
			t.Error("expected non-empty user ID")
		}
	})

	t.Run("duplicate user fails", func(t *testing.T) {
		_, err := store.CreateUser(ctx, &models.User{Username: "alice", PasswordHash: "hash"})
		if !errors.Is(err, models.ErrDuplicateUser) {
			t.Errorf("expected ErrDuplicateUser, got %v", err)
		}
	})

	t.Run("invalid user fails", func(t *testing.T) {
		if _, err := store.CreateUser(ctx, &models.User{}); err == nil {
			t.Error("expected error for empty username")
		}
	})

	t.Run("get user", func(t *testing.T) {
		user, err := store.GetUser(ctx, "alice")
		if err != nil {
			t.Fatalf("GetUser() error = %v", err)
		}
		if user.Role != string(models.RoleUser) {
			t.Errorf("Role = %q, expected default user role", user.Role)
		}
	})

	t.Run("get user not found", func(t *testing.T) {
		_, err := store.GetUser(ctx, "nobody")
		if !errors.Is(err, models.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})

	t.Run("update user", func(t *testing.T) {
		user, _ := store.GetUser(ctx, "alice")
		user.DisplayName = "Alice"
		user.Role = string(models.RoleAdmin)
		if err := store.UpdateUser(ctx, user); err != nil {
			t.Fatalf("UpdateUser() error = %v", err)
		}
		got, _ := store.GetUser(ctx, "alice")
		if got.DisplayName != "Alice" || !got.IsAdmin() {
			t.Errorf("update not applied: %+v", got)
		}
	})

	t.Run("update password", func(t *testing.T) {
		if err := store.UpdatePassword(ctx, "alice", "new-hash"); err != nil {
			t.Fatalf("UpdatePassword() error = %v", err)
		}
		got, _ := store.GetUser(ctx, "alice")
		if got.PasswordHash != "new-hash" {
			t.Errorf("PasswordHash = %q", got.PasswordHash)
		}
		if err := store.UpdatePassword(ctx, "nobody", "x"); !errors.Is(err, models.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})

	t.Run("update last login", func(t *testing.T) {
		now := time.Now().Truncate(time.Second)
		if err := store.UpdateLastLogin(ctx, "alice", now); err != nil {
			t.Fatalf("UpdateLastLogin() error = %v", err)
		}
		got, _ := store.GetUser(ctx, "alice")
		if got.LastLogin == nil || !got.LastLogin.Equal(now) {
			t.Errorf("LastLogin = %v, want %v", got.LastLogin, now)
		}
	})

	t.Run("list users", func(t *testing.T) {
		if _, err := store.CreateUser(ctx, &models.User{Username: "bob", PasswordHash: "h"}); err != nil {
			t.Fatal(err)
		}
		users, err := store.ListUsers(ctx)
		if err != nil {
			t.Fatalf("ListUsers() error = %v", err)
		}
		if len(users) != 2 || users[0].Username != "alice" || users[1].Username != "bob" {
			t.Errorf("unexpected users: %v", users)
		}
	})

	t.Run("delete user", func(t *testing.T) {
		if err := store.DeleteUser(ctx, "bob"); err != nil {
			t.Fatalf("DeleteUser() error = %v", err)
		}
		if err := store.DeleteUser(ctx, "bob"); !errors.Is(err, models.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})
}

func TestValidateCredentials(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	hash, err := models.HashPasswordWithCost("s3cret-pass", 4)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.CreateUser(ctx, &models.User{Username: "alice", PasswordHash: hash, Enabled: true}); err != nil {
		t.Fatal(err)
	}

	t.Run("valid credentials", func(t *testing.T) {
		user, err := store.ValidateCredentials(ctx, "alice", secret.FromString("s3cret-pass"))
		if err != nil {
			t.Fatalf("ValidateCredentials() error = %v", err)
		}
		if user.Username != "alice" {
			t.Errorf("Username = %q", user.Username)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := store.ValidateCredentials(ctx, "alice", secret.FromString("nope-nope"))
		if !errors.Is(err, models.ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := store.ValidateCredentials(ctx, "nobody", secret.FromString("s3cret-pass"))
		if !errors.Is(err, models.ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("disabled user", func(t *testing.T) {
		user, _ := store.GetUser(ctx, "alice")
		user.Enabled = false
		if err := store.UpdateUser(ctx, user); err != nil {
			t.Fatal(err)
		}
		_, err := store.ValidateCredentials(ctx, "alice", secret.FromString("s3cret-pass"))
		if !errors.Is(err, models.ErrUserDisabled) {
			t.Errorf("expected ErrUserDisabled, got %v", err)
		}
	})
}

func TestEnsureAdminUser(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	t.Setenv(models.EnvAdminInitialPassword, "")

	password, err := store.EnsureAdminUser(ctx)
	if err != nil {
		t.Fatalf("EnsureAdminUser() error = %v", err)
	}
	if password == "" {
		t.Fatal("expected generated password")
	}

	admin, err := store.GetUser(ctx, models.AdminUsername)
	if err != nil {
		t.Fatal(err)
	}
	if !admin.IsAdmin() || !models.VerifyPassword(password, admin.PasswordHash) {
		t.Error("admin not created with the returned password")
	}

	again, err := store.EnsureAdminUser(ctx)
	if err != nil || again != "" {
		t.Errorf("second EnsureAdminUser() = %q, %v", again, err)
	}

	if err := store.DeleteUser(ctx, models.AdminUsername); err == nil {
		t.Error("expected admin deletion to fail")
	}
}

func TestSettings(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	v, err := store.GetSetting(ctx, "missing")
	if err != nil || v != "" {
		t.Errorf("GetSetting(missing) = %q, %v", v, err)
	}

	if err := store.SetSetting(ctx, "motd", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetSetting(ctx, "motd", "bye"); err != nil {
		t.Fatal(err)
	}
	if v, _ := store.GetSetting(ctx, "motd"); v != "bye" {
		t.Errorf("GetSetting() = %q, want bye", v)
	}

	if err := store.DeleteSetting(ctx, "motd"); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteSetting(ctx, "motd"); !errors.Is(err, models.ErrSettingNotFound) {
		t.Errorf("expected ErrSettingNotFound, got %v", err)
	}
}

func TestIntervals(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	if err := store.SetInterval(ctx, "session-reaper", 90*time.Second); err != nil {
		t.Fatal(err)
	}
	if err := store.SetInterval(ctx, "pool-reaper:alice", 5*time.Second); err != nil {
		t.Fatal(err)
	}
	if err := store.SetInterval(ctx, "bad", 0); err == nil {
		t.Error("expected error for zero interval")
	}
	if err := store.SetSetting(ctx, "unrelated", "x"); err != nil {
		t.Fatal(err)
	}

	got, err := store.Intervals(ctx)
	if err != nil {
		t.Fatalf("Intervals() error = %v", err)
	}
	if len(got) != 2 || got["session-reaper"] != 90*time.Second || got["pool-reaper:alice"] != 5*time.Second {
		t.Errorf("Intervals() = %v", got)
	}

	settings, _ := store.ListSettings(ctx)
	if len(settings) != 3 {
		t.Errorf("ListSettings() returned %d settings, want 3", len(settings))
	}
}
