// ABOUTME: serve and bootstrap commands for running the token gateway
// ABOUTME: bootstrap writes a config with a random secret and mints the first owner token

package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/2389/coven-jwt/internal/auth"
	"github.com/2389/coven-jwt/internal/gateway"
	"github.com/2389/coven-jwt/internal/store"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and gRPC authentication gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cyan := color.New(color.FgCyan)
			cyan.Fprint(out, banner)
			gray := color.New(color.FgHiBlack)
			gray.Fprintf(out, "    version: %s\n\n", version)

			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := slog.Default()

			green := color.New(color.FgGreen)
			configPath := a.resolveConfigPath()
			if configPath == "" {
				configPath = "(defaults and environment)"
			}
			green.Fprint(out, "    ▶ ")
			fmt.Fprintf(out, "Config:    %s\n", configPath)
			green.Fprint(out, "    ▶ ")
			fmt.Fprintf(out, "gRPC:      %s\n", cfg.Server.GRPCAddr)
			green.Fprint(out, "    ▶ ")
			fmt.Fprintf(out, "HTTP:      %s\n", cfg.Server.HTTPAddr)
			green.Fprint(out, "    ▶ ")
			fmt.Fprintf(out, "Cache:     %s ", cfg.Cache.Backend)
			gray.Fprintf(out, "(%s)\n\n", cfg.Cache.Spec)

			logger.Info("starting coven-jwt",
				"grpc_addr", cfg.Server.GRPCAddr,
				"http_addr", cfg.Server.HTTPAddr,
				"cache_backend", cfg.Cache.Backend,
			)

			gw, err := gateway.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("creating gateway: %w", err)
			}
			return gw.Run(cmd.Context())
		},
	}
}

func newBootstrapCmd(a *app) *cobra.Command {
	var displayName string

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create a config, the first owner principal and its token",
		Long:  "Writes a config file with a random secret when none exists, creates an owner principal and prints a token for it. Refuses to run once principals exist.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			displayName = strings.TrimSpace(displayName)
			if displayName == "" {
				return errors.New("--name is required")
			}
			if len(displayName) > 100 {
				return errors.New("display name exceeds maximum length of 100 characters")
			}
			return runBootstrap(cmd, a, displayName)
		},
	}
	cmd.Flags().StringVarP(&displayName, "name", "n", "", "Display name of the owner principal")
	return cmd
}

func runBootstrap(cmd *cobra.Command, a *app, displayName string) error {
	out := cmd.OutOrStdout()
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	configPath := a.resolveConfigPath()
	if configPath == "" {
		configPath = "coven-jwt.yaml"
		a.configPath = configPath
	}

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating secret: %w", err)
		}
		secret := base64.StdEncoding.EncodeToString(secretBytes)
		dbPath := filepath.Join(filepath.Dir(configPath), "coven-jwt.db")

		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		content := fmt.Sprintf(`# coven-jwt configuration
# Generated by coven-jwt bootstrap

server:
  http_addr: "localhost:8080"
  grpc_addr: "localhost:50051"

database:
  path: %q

auth:
  secret: %q
  secret_encoding: "base64"
  algorithm: "HS256"
  issuer: "coven-jwt"

logging:
  level: "info"
  format: "text"
`, dbPath, secret)

		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
		green.Fprintf(out, "  ✓ Created config: %s\n", configPath)
	} else {
		cyan.Fprintf(out, "  Using existing config: %s\n", configPath)
	}

	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	sgn, err := newSigner(cfg)
	if err != nil {
		return err
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	green.Fprintf(out, "  ✓ Database: %s\n", cfg.Database.Path)

	existing, err := s.ListPrincipals(cmd.Context(), store.PrincipalFilter{Limit: 1})
	if err != nil {
		return fmt.Errorf("checking principals: %w", err)
	}
	if len(existing) > 0 {
		return errors.New("bootstrap already complete: principals exist")
	}

	principalID := uuid.NewString()
	if err := s.CreatePrincipal(cmd.Context(), &store.Principal{
		ID:          principalID,
		Type:        store.PrincipalTypeUser,
		DisplayName: displayName,
		Status:      store.PrincipalStatusApproved,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("creating principal: %w", err)
	}

	// Grant owner role. If this fails, remove the principal so bootstrap can
	// be retried.
	if err := s.AddRole(cmd.Context(), principalID, store.RoleOwner); err != nil {
		_ = s.DeletePrincipal(cmd.Context(), principalID)
		return fmt.Errorf("granting owner role: %w", err)
	}
	green.Fprintf(out, "  ✓ Created owner principal: %s\n", displayName)

	issued, err := auth.NewIssuer(sgn, s, cfg.Auth.Issuer, cfg.Auth.TokenTTL).Issue(cmd.Context(), principalID, nil)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}

	fmt.Fprintln(out)
	green.Fprintln(out, "  Bootstrap complete!")
	fmt.Fprintln(out)
	cyan.Fprintln(out, "  Owner Principal")
	cyan.Fprintln(out, "  ---------------")
	fmt.Fprintf(out, "  ID:           %s\n", principalID)
	fmt.Fprintf(out, "  Display Name: %s\n", displayName)
	fmt.Fprintf(out, "  Roles:        owner\n")
	fmt.Fprintf(out, "  Token ID:     %s (expires %s)\n", issued.ID, issued.ExpiresAt.Format("Jan 02, 2006 15:04 MST"))
	fmt.Fprintf(out, "  Token:        %s\n", issued.Token)
	fmt.Fprintln(out)

	yellow.Fprintln(out, "  Ready to go:")
	fmt.Fprintf(out, "    coven-jwt --config %s serve\n", configPath)
	fmt.Fprintln(out)
	return nil
}
