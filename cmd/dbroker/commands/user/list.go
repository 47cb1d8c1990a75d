package user

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittobroker/cmd/dbroker/cmdutil"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List principals",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := cmdutil.OpenDirectory()
		if err != nil {
			return err
		}
		defer func() { _ = dir.Close() }()

		users, err := dir.ListUsers(cmd.Context())
		if err != nil {
			return err
		}
		return cmdutil.PrintOutput(cmd.OutOrStdout(), users, len(users) == 0, "No principals found.", userTable(users))
	},
}
