package admin

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittobroker/cmd/dbroker/cmdutil"
)

var shutdownForce bool

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Stop the broker",
	Long: `Ask the broker to shut down gracefully. Every session is disconnected
and every pool closed. The request returns before shutdown completes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetAuthenticatedClient(cmd.Context())
		if err != nil {
			return err
		}
		return cmdutil.RunWithConfirmation("Shut down the broker at "+client.BaseURL()+"?", shutdownForce, func() error {
			if err := client.Shutdown(cmd.Context()); err != nil {
				return err
			}
			cmdutil.PrintSuccess("Shutdown requested")
			return nil
		})
	},
}

func init() {
	shutdownCmd.Flags().BoolVarP(&shutdownForce, "force", "f", false, "skip confirmation")
}
