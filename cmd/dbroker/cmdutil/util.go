// Package cmdutil holds helpers shared by dbroker subcommands.
package cmdutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/marmos91/dittobroker/internal/cli/credentials"
	"github.com/marmos91/dittobroker/internal/cli/output"
	"github.com/marmos91/dittobroker/internal/cli/prompt"
	"github.com/marmos91/dittobroker/pkg/apiclient"
	"github.com/marmos91/dittobroker/pkg/config"
	"github.com/marmos91/dittobroker/pkg/controlplane/store"
)

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the persistent flags of the root command.
type GlobalFlags struct {
	ConfigFile string
	ServerURL  string
	Token      string
	Output     string
	NoColor    bool
}

// LoadConfig loads the broker configuration named by --config.
func LoadConfig() (*config.Config, error) {
	return config.MustLoad(Flags.ConfigFile)
}

// OpenDirectory opens the principal directory configured for the broker.
// The caller closes it.
func OpenDirectory() (*store.GORMStore, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	dir, err := store.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open principal directory: %w", err)
	}
	return dir, nil
}

// NormalizeServerURL defaults the scheme to http.
func NormalizeServerURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q: missing host", raw)
	}
	return u.String(), nil
}

// ContextName derives a saved-context name from a server URL.
func ContextName(serverURL string) string {
	if u, err := url.Parse(serverURL); err == nil && u.Host != "" {
		return u.Host
	}
	return "default"
}

// GetAuthenticatedClient returns an admin API client. --server and --token
// win over the saved context; an expired access token is refreshed and
// the new pair saved.
func GetAuthenticatedClient(ctx context.Context) (*apiclient.Client, error) {
	if Flags.ServerURL != "" && Flags.Token != "" {
		serverURL, err := NormalizeServerURL(Flags.ServerURL)
		if err != nil {
			return nil, err
		}
		return apiclient.New(serverURL).WithToken(Flags.Token), nil
	}

	creds, err := credentials.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential store: %w", err)
	}
	saved, err := creds.GetCurrentContext()
	if err != nil {
		return nil, credentials.ErrNotLoggedIn
	}

	serverURL := saved.ServerURL
	if Flags.ServerURL != "" {
		if serverURL, err = NormalizeServerURL(Flags.ServerURL); err != nil {
			return nil, err
		}
	}

	token := saved.AccessToken
	switch {
	case Flags.Token != "":
		token = Flags.Token
	case saved.IsExpired() && saved.HasRefreshToken():
		tokens, err := apiclient.New(serverURL).RefreshToken(ctx, saved.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("session expired, run 'dbroker admin login' to re-authenticate: %w", err)
		}
		if err := creds.UpdateTokens(tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to save refreshed tokens: %w", err)
		}
		token = tokens.AccessToken
	}

	if token == "" {
		return nil, credentials.ErrNotLoggedIn
	}
	return apiclient.New(serverURL).WithToken(token), nil
}

// OutputFormat returns the parsed --output value.
func OutputFormat() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// PrintOutput prints data as JSON or YAML, or for table output prints
// emptyMsg when isEmpty and the table otherwise.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, table output.TableRenderer) error {
	format, err := OutputFormat()
	if err != nil {
		return err
	}
	if format == output.FormatTable {
		if isEmpty {
			_, _ = fmt.Fprintln(w, emptyMsg)
			return nil
		}
		return output.PrintTable(w, table)
	}
	return output.NewPrinter(w, format, false).Print(data)
}

// PrintDetail prints one resource as key/value lines or as JSON/YAML.
func PrintDetail(w io.Writer, data any, pairs []output.KeyValue) error {
	format, err := OutputFormat()
	if err != nil {
		return err
	}
	if format == output.FormatTable {
		return output.PrintKeyValues(w, pairs)
	}
	return output.NewPrinter(w, format, false).Print(data)
}

// PrintSuccess prints a colored message in table mode only, so JSON and
// YAML output stays machine readable.
func PrintSuccess(msg string) {
	format, err := OutputFormat()
	if err != nil || format != output.FormatTable {
		return
	}
	output.NewPrinter(os.Stdout, format, !Flags.NoColor).Success(msg)
}

// RunWithConfirmation asks before running fn unless force is set.
func RunWithConfirmation(question string, force bool, fn func() error) error {
	confirmed, err := prompt.ConfirmWithForce(question, force)
	if err != nil {
		return HandleAbort(err)
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}
	return fn()
}

// HandleAbort turns a prompt abort into a clean exit.
func HandleAbort(err error) error {
	if prompt.IsAborted(err) {
		fmt.Println("\nAborted.")
		return nil
	}
	return err
}

// IsNotLoggedIn reports whether err asks the user to log in first.
func IsNotLoggedIn(err error) bool {
	return errors.Is(err, credentials.ErrNotLoggedIn)
}
