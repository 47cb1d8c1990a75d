package cmdutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/dittobroker/internal/cli/credentials"
	"github.com/marmos91/dittobroker/internal/cli/output"
	"github.com/marmos91/dittobroker/pkg/apiclient"
)

func withFlags(t *testing.T, f GlobalFlags) {
	t.Helper()
	saved := *Flags
	*Flags = f
	t.Cleanup(func() { *Flags = saved })
}

func TestNormalizeServerURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://localhost:8080", "http://localhost:8080", false},
		{"localhost:8080", "http://localhost:8080", false},
		{"https://broker.example", "https://broker.example", false},
		{"http://", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeServerURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeServerURL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeServerURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContextName(t *testing.T) {
	if got := ContextName("http://broker.example:8080"); got != "broker.example:8080" {
		t.Errorf("ContextName = %q", got)
	}
	if got := ContextName("::"); got != "default" {
		t.Errorf("ContextName(bad) = %q", got)
	}
}

func TestPrintOutput(t *testing.T) {
	table := output.NewTableData("PRINCIPAL")
	table.AddRow("alice")

	withFlags(t, GlobalFlags{Output: "table"})
	var buf bytes.Buffer
	if err := PrintOutput(&buf, nil, true, "No sessions.", table); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "No sessions.\n" {
		t.Errorf("empty table = %q", buf.String())
	}

	buf.Reset()
	if err := PrintOutput(&buf, nil, false, "No sessions.", table); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "alice") {
		t.Errorf("table = %q", buf.String())
	}

	withFlags(t, GlobalFlags{Output: "json"})
	buf.Reset()
	if err := PrintOutput(&buf, []string{"alice"}, false, "", table); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"alice"`) {
		t.Errorf("json = %q", buf.String())
	}

	withFlags(t, GlobalFlags{Output: "xml"})
	if err := PrintOutput(&buf, nil, false, "", table); err == nil {
		t.Error("expected invalid format error")
	}
}

func TestGetAuthenticatedClient_ExplicitFlags(t *testing.T) {
	withFlags(t, GlobalFlags{ServerURL: "localhost:8080", Token: "tok"})
	c, err := GetAuthenticatedClient(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c.BaseURL() != "http://localhost:8080" {
		t.Errorf("BaseURL = %q", c.BaseURL())
	}
}

func TestGetAuthenticatedClient_NotLoggedIn(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	withFlags(t, GlobalFlags{})
	_, err := GetAuthenticatedClient(context.Background())
	if !IsNotLoggedIn(err) {
		t.Fatalf("err = %v, want not logged in", err)
	}
}

func TestGetAuthenticatedClient_RefreshesExpiredToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/auth/refresh" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(apiclient.TokenResponse{
			AccessToken:  "fresh",
			RefreshToken: "fresh-refresh",
			ExpiresAt:    time.Now().Add(time.Hour),
		})
	}))
	defer server.Close()

	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	withFlags(t, GlobalFlags{})

	creds, err := credentials.NewStore()
	if err != nil {
		t.Fatal(err)
	}
	if err := creds.SetContext("test", &credentials.Context{
		ServerURL:    server.URL,
		AccessToken:  "stale",
		RefreshToken: "old-refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := GetAuthenticatedClient(context.Background()); err != nil {
		t.Fatal(err)
	}

	reopened, err := credentials.OpenStore(filepath.Join(home, credentials.DefaultConfigDir, credentials.ConfigFileName))
	if err != nil {
		t.Fatal(err)
	}
	cur, err := reopened.GetCurrentContext()
	if err != nil {
		t.Fatal(err)
	}
	if cur.AccessToken != "fresh" || cur.RefreshToken != "fresh-refresh" {
		t.Errorf("tokens not saved: %+v", cur)
	}
}
