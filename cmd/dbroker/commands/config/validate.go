package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobroker/cmd/dbroker/cmdutil"
	"github.com/marmos91/dittobroker/pkg/config"
	"github.com/marmos91/dittobroker/pkg/validator"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the dbroker configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  dbroker config validate
  dbroker config validate --config /etc/dbroker/config.yaml`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}

	path := cmdutil.Flags.ConfigFile
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	var warnings []string
	if !cfg.API.IsEnabled() {
		warnings = append(warnings, "API disabled - clients cannot connect over HTTP")
	} else if cfg.API.GetJWTSecret() == "" {
		warnings = append(warnings, "no JWT secret configured - admin API disabled")
	}
	if cfg.Backing.Type == "memory" {
		warnings = append(warnings, "memory backing factory in use - resources are in-process fakes")
	}
	if !contains(cfg.Validators.Enabled, validator.NamePassword) && !contains(cfg.Validators.Enabled, validator.NameHandoff) {
		warnings = append(warnings, "no authenticating validator enabled - every connect will be rejected")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", path)
	_, _ = fmt.Fprintln(out, "Validation: OK")
	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(out, "  Database type:   %s\n", cfg.Database.Type)
	_, _ = fmt.Fprintf(out, "  Backing type:    %s\n", cfg.Backing.Type)
	_, _ = fmt.Fprintf(out, "  Pool size:       %d-%d\n", cfg.Pool.MinSize, cfg.Pool.MaxSize)
	_, _ = fmt.Fprintf(out, "  Validators:      %v\n", cfg.Validators.Enabled)
	_, _ = fmt.Fprintf(out, "  API address:     %s\n", cfg.API.Address)
	_, _ = fmt.Fprintf(out, "  Log level:       %s\n", cfg.Logging.Level)
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
