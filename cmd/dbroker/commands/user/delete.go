package user

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobroker/cmd/dbroker/cmdutil"
	"github.com/marmos91/dittobroker/pkg/controlplane/models"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:     "delete <username>",
	Aliases: []string{"rm"},
	Short:   "Remove a principal",
	Long: `Remove a principal from the directory. Open sessions are not
disconnected; use 'dbroker admin disconnect' for that.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "skip confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	username := args[0]
	if username == models.AdminUsername {
		return fmt.Errorf("the %q account cannot be deleted", models.AdminUsername)
	}

	dir, err := cmdutil.OpenDirectory()
	if err != nil {
		return err
	}
	defer func() { _ = dir.Close() }()

	return cmdutil.RunWithConfirmation(fmt.Sprintf("Delete principal %q?", username), deleteForce, func() error {
		if err := dir.DeleteUser(cmd.Context(), username); err != nil {
			return err
		}
		cmdutil.PrintSuccess(fmt.Sprintf("Principal %q deleted", username))
		return nil
	})
}
