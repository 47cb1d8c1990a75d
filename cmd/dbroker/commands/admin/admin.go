// Package admin implements the remote administration commands. They talk
// to a running broker's admin API with a token saved by 'admin login'.
package admin

import (
	"github.com/spf13/cobra"
)

// Cmd is the admin subcommand.
var Cmd = &cobra.Command{
	Use:   "admin",
	Short: "Administer a running broker",
	Long: `Inspect and control a running broker over its admin API.

Log in once with 'dbroker admin login --server <url>'; the token is saved
per server and refreshed automatically.`,
}

func init() {
	Cmd.AddCommand(loginCmd)
	Cmd.AddCommand(logoutCmd)
	Cmd.AddCommand(contextCmd)
	Cmd.AddCommand(statusCmd)
	Cmd.AddCommand(sessionsCmd)
	Cmd.AddCommand(sessionCmd)
	Cmd.AddCommand(disconnectCmd)
	Cmd.AddCommand(poolsCmd)
	Cmd.AddCommand(statsCmd)
	Cmd.AddCommand(schedulersCmd)
	Cmd.AddCommand(setIntervalCmd)
	Cmd.AddCommand(shutdownCmd)
}
