// Package commands implements the dbroker command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittobroker/cmd/dbroker/cmdutil"
	"github.com/marmos91/dittobroker/cmd/dbroker/commands/admin"
	"github.com/marmos91/dittobroker/cmd/dbroker/commands/config"
	"github.com/marmos91/dittobroker/cmd/dbroker/commands/user"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "dbroker",
	Short: "dbroker - authenticated connection broker",
	Long: `dbroker hands out per-principal backing connections to authenticated
sessions. Clients connect through the HTTP gateway, pass a chain of
validators, and are bound to a resource from their principal's pool until
they disconnect or go idle.

Use "dbroker [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for tests.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cmdutil.Flags.ConfigFile, "config", "", "config file (default: $XDG_CONFIG_HOME/dbroker/config.yaml)")
	flags.StringVar(&cmdutil.Flags.ServerURL, "server", "", "admin API URL (overrides the saved context)")
	flags.StringVar(&cmdutil.Flags.Token, "token", "", "admin access token (overrides the saved context)")
	flags.StringVarP(&cmdutil.Flags.Output, "output", "o", "table", "output format: table, json, yaml")
	flags.BoolVar(&cmdutil.Flags.NoColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(user.Cmd)
	rootCmd.AddCommand(admin.Cmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
