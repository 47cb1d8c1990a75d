package admin

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobroker/cmd/dbroker/cmdutil"
	"github.com/marmos91/dittobroker/internal/cli/output"
	"github.com/marmos91/dittobroker/pkg/apiclient"
)

var schedulersCmd = &cobra.Command{
	Use:     "schedulers",
	Aliases: []string{"tasks"},
	Short:   "List background tasks",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetAuthenticatedClient(cmd.Context())
		if err != nil {
			return err
		}
		tasks, err := client.ListSchedulers(cmd.Context())
		if err != nil {
			return err
		}
		return cmdutil.PrintOutput(cmd.OutOrStdout(), tasks, len(tasks) == 0, "No tasks.", taskTable(tasks, time.Now()))
	},
}

func taskTable(tasks []apiclient.TaskStats, now time.Time) *output.TableData {
	table := output.NewTableData("NAME", "INTERVAL", "RUNNING", "RUNS", "FAILURES", "LAST RUN", "LAST ERROR")
	for _, t := range tasks {
		table.AddRow(
			t.Name,
			t.Interval.String(),
			output.YesNo(t.Running),
			strconv.FormatUint(t.Runs, 10),
			strconv.FormatUint(t.Failures, 10),
			output.Age(t.LastRun, now),
			output.EmptyOr(t.LastError, "-"),
		)
	}
	return table
}

var setIntervalCmd = &cobra.Command{
	Use:   "set-interval <task> <duration>",
	Short: "Change how often a background task runs",
	Long: `Change a task's interval. The change takes effect immediately and is
persisted, so it survives a restart.

Examples:
  dbroker admin set-interval session-reaper 30s`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", args[1], err)
		}
		if d <= 0 {
			return fmt.Errorf("interval must be positive, got %s", d)
		}

		client, err := cmdutil.GetAuthenticatedClient(cmd.Context())
		if err != nil {
			return err
		}
		if err := client.SetInterval(cmd.Context(), args[0], d); err != nil {
			return err
		}
		cmdutil.PrintSuccess(fmt.Sprintf("Task %q now runs every %s", args[0], d))
		return nil
	},
}
