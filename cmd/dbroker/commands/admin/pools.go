package admin

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobroker/cmd/dbroker/cmdutil"
	"github.com/marmos91/dittobroker/internal/cli/output"
	"github.com/marmos91/dittobroker/pkg/apiclient"
)

var poolsCmd = &cobra.Command{
	Use:   "pools",
	Short: "List per-principal resource pools",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetAuthenticatedClient(cmd.Context())
		if err != nil {
			return err
		}
		pools, err := client.ListPools(cmd.Context())
		if err != nil {
			return err
		}
		return cmdutil.PrintOutput(cmd.OutOrStdout(), pools, len(pools) == 0, "No pools.", poolTable(pools))
	},
}

func poolTable(pools []apiclient.PoolStats) *output.TableData {
	table := output.NewTableData("PRINCIPAL", "SIZE", "IN USE", "IDLE", "WAITING", "WAITS", "CREATED", "CLOSED", "AVG CHECKOUT")
	for _, p := range pools {
		avg := "-"
		if p.StatisticsEnabled {
			avg = output.Duration(p.AvgCheckout)
		}
		table.AddRow(
			p.Principal,
			fmt.Sprintf("%d-%d", p.MinSize, p.MaxSize),
			strconv.Itoa(p.InUse),
			strconv.Itoa(p.Idle),
			strconv.Itoa(p.Waiting),
			strconv.FormatUint(p.WaitCount, 10),
			strconv.FormatUint(p.Created, 10),
			strconv.FormatUint(p.Closed, 10),
			avg,
		)
	}
	return table
}

var statsCmd = &cobra.Command{
	Use:       "stats <principal> on|off",
	Short:     "Toggle checkout time statistics for a pool",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch args[1] {
		case "on":
			enabled = true
		case "off":
		default:
			return fmt.Errorf("expected on or off, got %q", args[1])
		}

		client, err := cmdutil.GetAuthenticatedClient(cmd.Context())
		if err != nil {
			return err
		}
		if err := client.SetPoolStatistics(cmd.Context(), args[0], enabled); err != nil {
			return err
		}
		cmdutil.PrintSuccess(fmt.Sprintf("Statistics %s for pool %q", args[1], args[0]))
		return nil
	},
}
