package validator

import (
	"fmt"

	"github.com/marmos91/dittobroker/pkg/broker"
)

// Config selects and configures validators. Enabled is applied in order;
// put handoff before password so handoff tokens can stand in for passwords.
type Config struct {
	Enabled       []string            `mapstructure:"enabled" yaml:"enabled"`
	Allowlist     AllowlistConfig     `mapstructure:"allowlist" yaml:"allowlist"`
	ClientVersion ClientVersionConfig `mapstructure:"client_version" yaml:"client_version"`
}

type AllowlistConfig struct {
	CIDRs []string `mapstructure:"cidrs" yaml:"cidrs"`
	File  string   `mapstructure:"file" yaml:"file"`
}

type ClientVersionConfig struct {
	MinClient   string `mapstructure:"min_client" yaml:"min_client"`
	MinProtocol string `mapstructure:"min_protocol" yaml:"min_protocol"`
}

// Deps are the collaborators validators may need. A validator whose
// dependency is nil fails to build.
type Deps struct {
	Users  CredentialChecker
	Tokens Redeemer
}

// NewRegistry registers every built-in validator.
func NewRegistry(cfg Config, deps Deps) *broker.Registry[broker.Validator] {
	r := broker.NewRegistry[broker.Validator]("validator")

	r.Register(NamePassword, func() (broker.Validator, error) {
		if deps.Users == nil {
			return nil, fmt.Errorf("no principal store configured")
		}
		return NewPassword(deps.Users), nil
	})
	r.Register(NameHandoff, func() (broker.Validator, error) {
		if deps.Tokens == nil {
			return nil, fmt.Errorf("no credentials exchange configured")
		}
		return NewHandoff(deps.Tokens), nil
	})
	r.Register(NameClientVersion, func() (broker.Validator, error) {
		return NewClientVersion(cfg.ClientVersion.MinClient, cfg.ClientVersion.MinProtocol)
	})
	r.Register(NameAllowlist, func() (broker.Validator, error) {
		a, err := NewAllowlist(cfg.Allowlist.CIDRs, cfg.Allowlist.File)
		if err != nil {
			return nil, err
		}
		if err := a.Watch(); err != nil {
			return nil, err
		}
		return a, nil
	})

	return r
}

// Build resolves cfg.Enabled.
func Build(cfg Config, deps Deps) ([]broker.Validator, error) {
	return NewRegistry(cfg, deps).Resolve(cfg.Enabled)
}
