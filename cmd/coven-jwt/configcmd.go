// ABOUTME: config show and config validate commands
// ABOUTME: Prints the effective configuration with secrets redacted

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/2389/coven-jwt/internal/config"
)

const redacted = "REDACTED"

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(newConfigShowCmd(a), newConfigValidateCmd(a))
	return cmd
}

// redact returns a copy of cfg with credentials masked.
func redact(cfg *config.Config) config.Config {
	out := *cfg
	if out.Auth.Secret != "" {
		out.Auth.Secret = redacted
	}
	if out.Redis.Password != "" {
		out.Redis.Password = redacted
	}
	return out
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration as YAML",
		Long:  "Prints defaults merged with the config file, .env file and COVEN_JWT_* environment variables. Secrets are redacted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(redact(cfg))
			if err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that the configuration loads and can sign tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if _, err := newSigner(cfg); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			color.New(color.FgGreen).Fprintln(out, "✓ configuration is valid")
			fmt.Fprintf(out, "  algorithm: %s\n", cfg.Auth.Algorithm)
			fmt.Fprintf(out, "  cache:     %s (%s)\n", cfg.Cache.Backend, cfg.Cache.Spec)
			return nil
		},
	}
}
