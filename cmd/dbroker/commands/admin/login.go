package admin

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobroker/cmd/dbroker/cmdutil"
	"github.com/marmos91/dittobroker/internal/cli/credentials"
	"github.com/marmos91/dittobroker/internal/cli/prompt"
	"github.com/marmos91/dittobroker/pkg/apiclient"
	"github.com/marmos91/dittobroker/pkg/controlplane/models"
)

var (
	loginUsername string
	loginPassword string
	loginContext  string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with a broker's admin API",
	Long: `Authenticate with a broker and save the tokens.

On first login, specify the server URL with --server. Later logins reuse
the current context's server.

Examples:
  dbroker admin login --server http://localhost:8080
  dbroker admin login --server broker.internal:8080 -u ops --context prod`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", models.AdminUsername, "admin username")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "password (prompted if omitted)")
	loginCmd.Flags().StringVar(&loginContext, "context", "", "name for the saved context (default: server host)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	creds, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	serverURL := cmdutil.Flags.ServerURL
	if serverURL == "" {
		current, err := creds.GetCurrentContext()
		if err != nil || current.ServerURL == "" {
			return fmt.Errorf("no server URL specified and no saved context found\n\n" +
				"Specify server URL:\n" +
				"  dbroker admin login --server http://localhost:8080")
		}
		serverURL = current.ServerURL
	}
	if serverURL, err = cmdutil.NormalizeServerURL(serverURL); err != nil {
		return err
	}

	password := loginPassword
	if password == "" {
		if password, err = prompt.Password("Password"); err != nil {
			return cmdutil.HandleAbort(err)
		}
	}

	fmt.Printf("Logging in to %s as %s...\n", serverURL, loginUsername)
	tokens, err := apiclient.New(serverURL).Login(cmd.Context(), loginUsername, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	name := loginContext
	if name == "" {
		name = cmdutil.ContextName(serverURL)
	}
	err = creds.SetContext(name, &credentials.Context{
		ServerURL:    serverURL,
		Username:     loginUsername,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Printf("Logged in successfully as %s\n", loginUsername)
	fmt.Printf("Context: %s\n", name)
	fmt.Printf("Credentials saved to: %s\n", creds.ConfigPath())
	return nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the current context's tokens",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := credentials.NewStore()
		if err != nil {
			return fmt.Errorf("failed to initialize credential store: %w", err)
		}
		if err := creds.ClearCurrentContext(); err != nil {
			return err
		}
		cmdutil.PrintSuccess(fmt.Sprintf("Logged out of %s", creds.GetCurrentContextName()))
		return nil
	},
}
