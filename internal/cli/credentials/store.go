// Package credentials stores admin API logins for the dbroker CLI, one
// named context per broker.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	// DefaultConfigDir sits next to the broker's own config.yaml.
	DefaultConfigDir = "dbroker"
	ConfigFileName   = "contexts.json"

	FilePermissions = 0600
	DirPermissions  = 0700

	// expirySkew treats tokens this close to expiry as expired.
	expirySkew = 60 * time.Second
)

var (
	ErrNoCurrentContext = errors.New("no current context set")
	ErrContextNotFound  = errors.New("context not found")
	ErrNotLoggedIn      = errors.New("not logged in - run 'dbroker admin login' first")
)

// Context is a saved login to one broker's admin API.
type Context struct {
	ServerURL    string    `json:"server_url"`
	Username     string    `json:"username,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// IsExpired reports whether the access token is expired or about to be.
func (c *Context) IsExpired() bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return time.Now().Add(expirySkew).After(c.ExpiresAt)
}

func (c *Context) HasRefreshToken() bool {
	return c.RefreshToken != ""
}

type file struct {
	CurrentContext string              `json:"current_context"`
	Contexts       map[string]*Context `json:"contexts"`
}

// Store reads and writes the contexts file. It is not safe for
// concurrent use; each CLI invocation opens its own.
type Store struct {
	path string
	data *file
}

// NewStore opens the contexts file under XDG_CONFIG_HOME (or ~/.config).
func NewStore() (*Store, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	}
	return OpenStore(filepath.Join(configHome, DefaultConfigDir, ConfigFileName))
}

// OpenStore opens the contexts file at path. A missing file is an empty store.
func OpenStore(path string) (*Store, error) {
	s := &Store{path: path, data: &file{Contexts: make(map[string]*Context)}}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, s.data); err != nil {
		return nil, fmt.Errorf("corrupt contexts file %s: %w", path, err)
	}
	if s.data.Contexts == nil {
		s.data.Contexts = make(map[string]*Context)
	}
	return s, nil
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), DirPermissions); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, FilePermissions)
}

// GetCurrentContext returns the current context.
func (s *Store) GetCurrentContext() (*Context, error) {
	if s.data.CurrentContext == "" {
		return nil, ErrNoCurrentContext
	}
	ctx, ok := s.data.Contexts[s.data.CurrentContext]
	if !ok {
		return nil, ErrContextNotFound
	}
	return ctx, nil
}

// GetContext returns the named context.
func (s *Store) GetContext(name string) (*Context, error) {
	ctx, ok := s.data.Contexts[name]
	if !ok {
		return nil, ErrContextNotFound
	}
	return ctx, nil
}

func (s *Store) GetCurrentContextName() string {
	return s.data.CurrentContext
}

// ListContexts returns context names in sorted order.
func (s *Store) ListContexts() []string {
	names := make([]string, 0, len(s.data.Contexts))
	for name := range s.data.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetContext creates or replaces a context and makes it current.
func (s *Store) SetContext(name string, ctx *Context) error {
	s.data.Contexts[name] = ctx
	s.data.CurrentContext = name
	return s.save()
}

// UseContext switches to a different context.
func (s *Store) UseContext(name string) error {
	if _, ok := s.data.Contexts[name]; !ok {
		return ErrContextNotFound
	}
	s.data.CurrentContext = name
	return s.save()
}

// DeleteContext removes a context. Deleting the current one leaves no
// context selected.
func (s *Store) DeleteContext(name string) error {
	if _, ok := s.data.Contexts[name]; !ok {
		return ErrContextNotFound
	}
	delete(s.data.Contexts, name)
	if s.data.CurrentContext == name {
		s.data.CurrentContext = ""
	}
	return s.save()
}

// UpdateTokens stores refreshed tokens on the current context.
func (s *Store) UpdateTokens(accessToken, refreshToken string, expiresAt time.Time) error {
	ctx, err := s.GetCurrentContext()
	if err != nil {
		return err
	}
	ctx.AccessToken = accessToken
	ctx.RefreshToken = refreshToken
	ctx.ExpiresAt = expiresAt
	return s.save()
}

// ClearCurrentContext drops the current context's tokens but keeps its
// server URL.
func (s *Store) ClearCurrentContext() error {
	ctx, err := s.GetCurrentContext()
	if err != nil {
		return err
	}
	ctx.AccessToken = ""
	ctx.RefreshToken = ""
	ctx.ExpiresAt = time.Time{}
	return s.save()
}

// ConfigPath returns the path to the contexts file.
func (s *Store) ConfigPath() string {
	return s.path
}
