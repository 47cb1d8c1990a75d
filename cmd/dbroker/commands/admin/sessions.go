package admin

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/marmos91/dittobroker/cmd/dbroker/cmdutil"
	"github.com/marmos91/dittobroker/internal/cli/output"
	"github.com/marmos91/dittobroker/pkg/apiclient"
)

var sessionsPrincipal string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List open sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetAuthenticatedClient(cmd.Context())
		if err != nil {
			return err
		}
		sessions, err := client.ListSessions(cmd.Context())
		if err != nil {
			return err
		}
		if sessionsPrincipal != "" {
			sessions = filterSessions(sessions, sessionsPrincipal)
		}
		sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.Before(sessions[j].CreatedAt) })

		return cmdutil.PrintOutput(cmd.OutOrStdout(), sessions, len(sessions) == 0, "No open sessions.",
			sessionTable(sessions, time.Now()))
	},
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsPrincipal, "principal", "", "only show this principal's sessions")
}

func filterSessions(sessions []apiclient.SessionInfo, principal string) []apiclient.SessionInfo {
	out := sessions[:0]
	for _, s := range sessions {
		if s.Principal == principal {
			out = append(out, s)
		}
	}
	return out
}

func sessionTable(sessions []apiclient.SessionInfo, now time.Time) *output.TableData {
	table := output.NewTableData("ID", "PRINCIPAL", "CLIENT", "AUTH", "REMOTE", "AGE", "IDLE", "BUSY")
	for _, s := range sessions {
		client := s.ClientType
		if s.ClientVersion != "" {
			client += "/" + s.ClientVersion
		}
		table.AddRow(
			s.ID.String(),
			s.Principal,
			output.EmptyOr(client, "-"),
			output.EmptyOr(s.AuthMethod, "-"),
			output.EmptyOr(s.RemoteAddr, "-"),
			output.Age(s.CreatedAt, now),
			output.Age(s.LastAccess, now),
			output.YesNo(s.Busy),
		)
	}
	return table
}

func sessionDetail(s *apiclient.SessionInfo, now time.Time) []output.KeyValue {
	pairs := []output.KeyValue{
		{Key: "ID", Value: s.ID.String()},
		{Key: "Principal", Value: s.Principal},
		{Key: "Client type", Value: output.EmptyOr(s.ClientType, "-")},
		{Key: "Client version", Value: output.EmptyOr(s.ClientVersion, "-")},
		{Key: "Protocol version", Value: output.EmptyOr(s.ProtocolVersion, "-")},
		{Key: "Remote address", Value: output.EmptyOr(s.RemoteAddr, "-")},
		{Key: "Auth method", Value: output.EmptyOr(s.AuthMethod, "-")},
		{Key: "Created", Value: s.CreatedAt.Local().Format(time.RFC3339) + " (" + output.Age(s.CreatedAt, now) + " ago)"},
		{Key: "Last access", Value: output.Age(s.LastAccess, now) + " ago"},
		{Key: "Busy", Value: output.YesNo(s.Busy)},
	}
	if len(s.Params) > 0 {
		keys := make([]string, 0, len(s.Params))
		for k := range s.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		kv := make([]string, 0, len(keys))
		for _, k := range keys {
			kv = append(kv, k+"="+s.Params[k])
		}
		pairs = append(pairs, output.KeyValue{Key: "Params", Value: strings.Join(kv, ", ")})
	}
	return pairs
}

var sessionCmd = &cobra.Command{
	Use:   "session <id>",
	Short: "Show one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid session ID %q: %w", args[0], err)
		}
		client, err := cmdutil.GetAuthenticatedClient(cmd.Context())
		if err != nil {
			return err
		}
		s, err := client.GetSession(cmd.Context(), id)
		if err != nil {
			return err
		}
		return cmdutil.PrintDetail(cmd.OutOrStdout(), s, sessionDetail(s, time.Now()))
	},
}

var disconnectForce bool

var disconnectCmd = &cobra.Command{
	Use:   "disconnect <id>",
	Short: "Force a session closed",
	Long: `Close a session and return its resource to the pool. Work running on
the session is cancelled and its resource discarded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid session ID %q: %w", args[0], err)
		}
		client, err := cmdutil.GetAuthenticatedClient(cmd.Context())
		if err != nil {
			return err
		}
		return cmdutil.RunWithConfirmation(fmt.Sprintf("Disconnect session %s?", id), disconnectForce, func() error {
			disconnected, err := client.DisconnectSession(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !disconnected {
				cmdutil.PrintSuccess(fmt.Sprintf("Session %s was not open", id))
				return nil
			}
			cmdutil.PrintSuccess(fmt.Sprintf("Session %s disconnected", id))
			return nil
		})
	},
}

func init() {
	disconnectCmd.Flags().BoolVarP(&disconnectForce, "force", "f", false, "skip confirmation")
}
