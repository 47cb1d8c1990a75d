package user

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobroker/cmd/dbroker/cmdutil"
	"github.com/marmos91/dittobroker/internal/cli/prompt"
	"github.com/marmos91/dittobroker/pkg/controlplane/models"
)

var (
	addRole        string
	addDisplayName string
	addPassword    string
	addDisabled    bool
)

var addCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Register a principal",
	Long: `Register a principal in the directory. You are prompted for the
password unless --password is given.

Examples:
  dbroker user add alice
  dbroker user add ops --role admin --display-name "Operations"`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addRole, "role", "", "user or admin (prompted if omitted)")
	addCmd.Flags().StringVar(&addDisplayName, "display-name", "", "display name")
	addCmd.Flags().StringVar(&addPassword, "password", "", "password (prompted if omitted)")
	addCmd.Flags().BoolVar(&addDisabled, "disabled", false, "create the principal disabled")
}

func runAdd(cmd *cobra.Command, args []string) error {
	username := args[0]

	role := addRole
	if role == "" {
		var err error
		role, err = prompt.Select("Role", []string{string(models.RoleUser), string(models.RoleAdmin)})
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
	}
	if !models.UserRole(role).IsValid() {
		return fmt.Errorf("invalid role %q (valid: user, admin)", role)
	}

	password, err := readPassword(addPassword)
	if err != nil {
		return cmdutil.HandleAbort(err)
	}
	hash, err := models.HashPassword(password)
	if err != nil {
		return err
	}

	dir, err := cmdutil.OpenDirectory()
	if err != nil {
		return err
	}
	defer func() { _ = dir.Close() }()

	u := &models.User{
		Username:     username,
		PasswordHash: hash,
		Enabled:      true,
		Role:         role,
		DisplayName:  addDisplayName,
	}
	id, err := dir.CreateUser(cmd.Context(), u)
	if errors.Is(err, models.ErrDuplicateUser) {
		return fmt.Errorf("principal %q already exists", username)
	}
	if err != nil {
		return err
	}
	// Enabled carries a column default, so false is only written on update.
	if addDisabled {
		u.ID = id
		u.Enabled = false
		if err := dir.UpdateUser(cmd.Context(), u); err != nil {
			return err
		}
	}

	cmdutil.PrintSuccess(fmt.Sprintf("Principal %q added with role %s", username, role))
	return nil
}
