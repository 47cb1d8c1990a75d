package admin

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobroker/cmd/dbroker/cmdutil"
	"github.com/marmos91/dittobroker/internal/cli/credentials"
	"github.com/marmos91/dittobroker/internal/cli/output"
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Manage saved broker logins",
}

func init() {
	contextCmd.AddCommand(contextListCmd)
	contextCmd.AddCommand(contextUseCmd)
	contextCmd.AddCommand(contextDeleteCmd)
}

type contextRow struct {
	Name      string `json:"name"`
	Current   bool   `json:"current"`
	ServerURL string `json:"server_url"`
	Username  string `json:"username,omitempty"`
	LoggedIn  bool   `json:"logged_in"`
}

var contextListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List saved contexts",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := credentials.NewStore()
		if err != nil {
			return err
		}
		current := creds.GetCurrentContextName()

		var rows []contextRow
		table := output.NewTableData("", "NAME", "SERVER", "USER", "LOGGED IN")
		for _, name := range creds.ListContexts() {
			c, err := creds.GetContext(name)
			if err != nil {
				return err
			}
			row := contextRow{
				Name:      name,
				Current:   name == current,
				ServerURL: c.ServerURL,
				Username:  c.Username,
				LoggedIn:  c.AccessToken != "",
			}
			rows = append(rows, row)

			marker := ""
			if row.Current {
				marker = "*"
			}
			table.AddRow(marker, name, c.ServerURL, output.EmptyOr(c.Username, "-"), output.YesNo(row.LoggedIn))
		}
		return cmdutil.PrintOutput(cmd.OutOrStdout(), rows, len(rows) == 0, "No saved contexts.", table)
	},
}

var contextUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Switch the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := credentials.NewStore()
		if err != nil {
			return err
		}
		if err := creds.UseContext(args[0]); err != nil {
			return fmt.Errorf("%w: %s", err, args[0])
		}
		cmdutil.PrintSuccess(fmt.Sprintf("Switched to context %q", args[0]))
		return nil
	},
}

var contextDeleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Aliases: []string{"rm"},
	Short:   "Delete a saved context",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := credentials.NewStore()
		if err != nil {
			return err
		}
		if err := creds.DeleteContext(args[0]); err != nil {
			return fmt.Errorf("%w: %s", err, args[0])
		}
		cmdutil.PrintSuccess(fmt.Sprintf("Context %q deleted", args[0]))
		return nil
	},
}
