package user

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobroker/cmd/dbroker/cmdutil"
	"github.com/marmos91/dittobroker/pkg/controlplane/models"
)

var passwdPassword string

var passwdCmd = &cobra.Command{
	Use:     "passwd <username>",
	Aliases: []string{"password"},
	Short:   "Change a principal's password",
	Args:    cobra.ExactArgs(1),
	RunE:    runPasswd,
}

func init() {
	passwdCmd.Flags().StringVar(&passwdPassword, "password", "", "new password (prompted if omitted)")
}

func runPasswd(cmd *cobra.Command, args []string) error {
	username := args[0]

	dir, err := cmdutil.OpenDirectory()
	if err != nil {
		return err
	}
	defer func() { _ = dir.Close() }()

	if _, err := dir.GetUser(cmd.Context(), username); err != nil {
		return err
	}

	password, err := readPassword(passwdPassword)
	if err != nil {
		return cmdutil.HandleAbort(err)
	}
	hash, err := models.HashPassword(password)
	if err != nil {
		return err
	}
	if err := dir.UpdatePassword(cmd.Context(), username, hash); err != nil {
		return err
	}

	cmdutil.PrintSuccess(fmt.Sprintf("Password changed for %q", username))
	return nil
}
