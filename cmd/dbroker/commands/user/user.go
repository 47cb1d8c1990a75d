// Package user manages principals in the broker's directory. The commands
// open the directory database directly, so they run on the broker host.
package user

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobroker/cmd/dbroker/cmdutil"
	"github.com/marmos91/dittobroker/internal/cli/output"
	"github.com/marmos91/dittobroker/internal/cli/prompt"
	"github.com/marmos91/dittobroker/pkg/controlplane/models"
)

// Cmd is the user subcommand.
var Cmd = &cobra.Command{
	Use:   "user",
	Short: "Manage principals",
	Long: `Manage the principals that may open sessions.

Subcommands:
  add       Register a principal
  list      List principals
  delete    Remove a principal
  passwd    Change a principal's password
  enable    Allow a principal to connect
  disable   Reject a principal's connects`,
}

func init() {
	Cmd.AddCommand(addCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(deleteCmd)
	Cmd.AddCommand(passwdCmd)
	Cmd.AddCommand(enableCmd)
	Cmd.AddCommand(disableCmd)
}

// readPassword returns flagValue if set, otherwise prompts for a new one.
func readPassword(flagValue string) (string, error) {
	if flagValue != "" {
		if err := models.ValidatePassword(flagValue); err != nil {
			return "", err
		}
		return flagValue, nil
	}
	return prompt.NewPassword()
}

func userTable(users []*models.User) *output.TableData {
	table := output.NewTableData("USERNAME", "ROLE", "ENABLED", "DISPLAY NAME", "LAST LOGIN")
	for _, u := range users {
		lastLogin := "-"
		if u.LastLogin != nil {
			lastLogin = u.LastLogin.Local().Format("2006-01-02 15:04")
		}
		table.AddRow(u.Username, u.Role, output.YesNo(u.Enabled), output.EmptyOr(u.DisplayName, "-"), lastLogin)
	}
	return table
}

func setEnabled(cmd *cobra.Command, username string, enabled bool) error {
	dir, err := cmdutil.OpenDirectory()
	if err != nil {
		return err
	}
	defer func() { _ = dir.Close() }()

	u, err := dir.GetUser(cmd.Context(), username)
	if err != nil {
		return err
	}
	if !enabled && u.Username == models.AdminUsername {
		return fmt.Errorf("the %q account cannot be disabled", models.AdminUsername)
	}
	u.Enabled = enabled
	if err := dir.UpdateUser(cmd.Context(), u); err != nil {
		return err
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	cmdutil.PrintSuccess(fmt.Sprintf("Principal %q %s", username, state))
	return nil
}

var enableCmd = &cobra.Command{
	Use:   "enable <username>",
	Short: "Allow a principal to connect",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, args[0], true)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable <username>",
	Short: "Reject a principal's connects",
	Long: `Disable a principal. Password validation rejects disabled principals;
open sessions are not disconnected.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, args[0], false)
	},
}
