package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittobroker/cmd/dbroker/cmdutil"
	"github.com/marmos91/dittobroker/internal/cli/output"
)

const redacted = "<redacted>"

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Display the configuration after defaults and environment overrides.
Secrets are redacted. Table output is shown as YAML.

Examples:
  dbroker config show
  dbroker config show -o json`,
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.API.JWT.Secret != "" {
		cfg.API.JWT.Secret = redacted
	}
	if cfg.Database.Postgres.Password != "" {
		cfg.Database.Postgres.Password = redacted
	}

	format, err := cmdutil.OutputFormat()
	if err != nil {
		return err
	}
	if format == output.FormatJSON {
		return output.PrintJSON(cmd.OutOrStdout(), cfg)
	}
	return output.PrintYAML(cmd.OutOrStdout(), cfg)
}
