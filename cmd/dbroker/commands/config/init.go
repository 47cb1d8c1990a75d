package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobroker/cmd/dbroker/cmdutil"
	"github.com/marmos91/dittobroker/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a configuration file with defaults and a freshly generated API
JWT secret. The file is created with 0600 permissions.

Examples:
  # Write to $XDG_CONFIG_HOME/dbroker/config.yaml
  dbroker config init

  # Write elsewhere, replacing an existing file
  dbroker config init --config /etc/dbroker/config.yaml --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := cmdutil.Flags.ConfigFile
	if path == "" {
		var err error
		if path, err = config.InitConfig(initForce); err != nil {
			return err
		}
	} else if err := config.InitConfigToPath(path, initForce); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration written to %s\n", path)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  dbroker user add <principal>   # register a principal")
	_, _ = fmt.Fprintln(out, "  dbroker start                  # run the broker")
	return nil
}
