package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	validation "github.com/go-playground/validator/v10"

	"github.com/marmos91/dittobroker/internal/telemetry"
	"github.com/marmos91/dittobroker/pkg/validator"
)

var structValidator = newStructValidator()

// newStructValidator reports fields by their YAML key so errors point at
// the config file, e.g. "pool.max_size".
func newStructValidator() *validation.Validate {
	v := validation.New(validation.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks struct tags first, then the cross-field rules each
// section owns.
func Validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		var verrs validation.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := cfg.Broker.Validate(); err != nil {
		return fmt.Errorf("broker: %w", err)
	}
	if err := cfg.Pool.Validate(); err != nil {
		return err
	}
	if cfg.Telemetry.Profiling.Enabled {
		if _, err := telemetry.ParseProfileTypes(cfg.Telemetry.Profiling.ProfileTypes); err != nil {
			return fmt.Errorf("telemetry.profiling: %w", err)
		}
	}
	if err := validateValidators(&cfg.Validators); err != nil {
		return err
	}
	if secret := cfg.API.JWT.Secret; secret != "" && len(secret) < 32 {
		return fmt.Errorf("api.jwt.secret: must be at least 32 characters")
	}
	if cfg.API.IsEnabled() && cfg.API.RequestTimeout <= cfg.Pool.CheckoutTimeout {
		return fmt.Errorf("api.request_timeout (%s) must exceed pool.checkout_timeout (%s)",
			cfg.API.RequestTimeout, cfg.Pool.CheckoutTimeout)
	}
	return nil
}

// validateValidators rejects unknown or repeated names. It does not build
// the chain: that needs the directory and the exchange.
func validateValidators(cfg *validator.Config) error {
	known := validator.NewRegistry(*cfg, validator.Deps{}).Names()
	seen := make(map[string]bool, len(cfg.Enabled))
	for _, name := range cfg.Enabled {
		if !slices.Contains(known, name) {
			return fmt.Errorf("validators.enabled: unknown validator %q (known: %s)", name, strings.Join(known, ", "))
		}
		if seen[name] {
			return fmt.Errorf("validators.enabled: %q listed twice", name)
		}
		seen[name] = true
	}
	if seen[validator.NameAllowlist] && len(cfg.Allowlist.CIDRs) == 0 && cfg.Allowlist.File == "" {
		return fmt.Errorf("validators.allowlist: cidrs or file required when the allowlist is enabled")
	}
	return nil
}

func formatValidationErrors(verrs validation.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		// Drop the root type name.
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		msg := fmt.Sprintf("%s: failed on '%s'", field, fe.Tag())
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return errors.New(strings.Join(msgs, "; "))
}
