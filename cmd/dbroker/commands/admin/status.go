package admin

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobroker/cmd/dbroker/cmdutil"
	"github.com/marmos91/dittobroker/internal/cli/output"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"summary"},
	Short:   "Show broker health and counts",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetAuthenticatedClient(cmd.Context())
		if err != nil {
			return err
		}

		health, err := client.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		summary, err := client.Summary(cmd.Context())
		if err != nil {
			return err
		}

		pairs := []output.KeyValue{
			{Key: "Server", Value: client.BaseURL()},
			{Key: "Health", Value: health.Status},
			{Key: "Sessions", Value: strconv.Itoa(summary.Sessions)},
			{Key: "Pools", Value: strconv.Itoa(summary.Pools)},
			{Key: "Tasks", Value: strconv.Itoa(summary.Tasks)},
			{Key: "Validators", Value: output.EmptyOr(strings.Join(summary.Validators, ", "), "-")},
		}
		if t := summary.Tokens; t != nil {
			pairs = append(pairs,
				output.KeyValue{Key: "Tokens pending", Value: strconv.Itoa(t.Pending)},
				output.KeyValue{Key: "Tokens issued", Value: strconv.FormatUint(t.Issued, 10)},
				output.KeyValue{Key: "Tokens redeemed", Value: strconv.FormatUint(t.Redeemed, 10)},
			)
		}
		return cmdutil.PrintDetail(cmd.OutOrStdout(), summary, pairs)
	},
}
