// ABOUTME: principal management commands
// ABOUTME: Create, list, approve, revoke and delete principals and edit their roles

package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/2389/coven-jwt/internal/store"
)

func newPrincipalCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "principal",
		Aliases: []string{"principals"},
		Short:   "Manage the principals tokens resolve to",
	}
	cmd.AddCommand(
		newPrincipalCreateCmd(a),
		newPrincipalListCmd(a),
		newPrincipalApproveCmd(a),
		newPrincipalRevokeCmd(a),
		newPrincipalDeleteCmd(a),
		newPrincipalRoleCmd(a),
	)
	return cmd
}

func newPrincipalCreateCmd(a *app) *cobra.Command {
	var (
		principalType string
		displayName   string
		status        string
		roles         []string
	)

	cmd := &cobra.Command{
		Use:   "create [ID]",
		Short: "Create a principal (ID defaults to a new UUID)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := uuid.NewString()
			if len(args) == 1 {
				id = strings.TrimSpace(args[0])
			}
			if id == "" {
				return errors.New("principal ID must not be empty")
			}

			pt := store.PrincipalType(principalType)
			if !pt.Valid() {
				return fmt.Errorf("invalid --type %q (user or service)", principalType)
			}
			ps := store.PrincipalStatus(status)
			if !ps.Valid() {
				return fmt.Errorf("invalid --status %q (pending, approved or revoked)", status)
			}
			roleNames := make([]store.RoleName, 0, len(roles))
			for _, r := range roles {
				role, err := store.ParseRoleName(r)
				if err != nil {
					return err
				}
				roleNames = append(roleNames, role)
			}
			if displayName == "" {
				displayName = id
			}

			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			if err := s.CreatePrincipal(ctx, &store.Principal{
				ID:          id,
				Type:        pt,
				DisplayName: displayName,
				Status:      ps,
				CreatedAt:   time.Now().UTC(),
			}); err != nil {
				return fmt.Errorf("creating principal: %w", err)
			}
			for _, role := range roleNames {
				if err := s.AddRole(ctx, id, role); err != nil {
					_ = s.DeletePrincipal(ctx, id)
					return fmt.Errorf("granting role %s: %w", role, err)
				}
			}

			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ created principal %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&principalType, "type", "t", string(store.PrincipalTypeUser), "Principal type (user or service)")
	cmd.Flags().StringVarP(&displayName, "name", "n", "", "Display name (defaults to the ID)")
	cmd.Flags().StringVar(&status, "status", string(store.PrincipalStatusApproved), "Initial status (pending, approved or revoked)")
	cmd.Flags().StringSliceVarP(&roles, "role", "r", nil, "Role to grant (repeatable)")
	return cmd
}

func newPrincipalListCmd(a *app) *cobra.Command {
	var (
		status        string
		principalType string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List principals with their roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter store.PrincipalFilter
			if status != "" {
				ps := store.PrincipalStatus(status)
				if !ps.Valid() {
					return fmt.Errorf("invalid --status %q", status)
				}
				filter.Status = &ps
			}
			if principalType != "" {
				pt := store.PrincipalType(principalType)
				if !pt.Valid() {
					return fmt.Errorf("invalid --type %q", principalType)
				}
				filter.Type = &pt
			}

			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			principals, err := s.ListPrincipals(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(principals) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No principals.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "  ID\tNAME\tTYPE\tSTATUS\tROLES\tCREATED")
			fmt.Fprintln(w, "  --\t----\t----\t------\t-----\t-------")
			for _, p := range principals {
				roles, err := s.ListRoles(cmd.Context(), p.ID)
				if err != nil {
					return err
				}
				names := make([]string, len(roles))
				for i, r := range roles {
					names[i] = string(r)
				}
				roleList := strings.Join(names, ",")
				if roleList == "" {
					roleList = "-"
				}
				fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n",
					p.ID,
					truncate(p.DisplayName, 24),
					p.Type,
					p.Status,
					roleList,
					p.CreatedAt.Local().Format("Jan 02 15:04"),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only principals with this status")
	cmd.Flags().StringVar(&principalType, "type", "", "Only principals of this type")
	return cmd
}

func setStatusCmd(a *app, use, short string, status store.PrincipalStatus, revokeTokens bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.UpdatePrincipalStatus(cmd.Context(), args[0], status); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			color.New(color.FgGreen).Fprintf(out, "✓ principal %s is now %s\n", args[0], status)

			if revokeTokens {
				ids, err := s.RevokePrincipalTokens(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Revoked %d token(s).\n", len(ids))
			}
			return nil
		},
	}
}

func newPrincipalApproveCmd(a *app) *cobra.Command {
	return setStatusCmd(a, "approve", "Approve a pending principal", store.PrincipalStatusApproved, false)
}

func newPrincipalRevokeCmd(a *app) *cobra.Command {
	return setStatusCmd(a, "revoke", "Revoke a principal and all of its tokens", store.PrincipalStatusRevoked, true)
}

func newPrincipalDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a principal with its roles and token records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.DeletePrincipal(cmd.Context(), args[0]); err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ deleted principal %s\n", args[0])
			return nil
		},
	}
}

func newPrincipalRoleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Grant or remove principal roles",
	}

	edit := func(use, short string, apply func(s *store.SQLiteStore, cmd *cobra.Command, id string, role store.RoleName) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " ID ROLE",
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				role, err := store.ParseRoleName(args[1])
				if err != nil {
					return err
				}
				cfg, err := a.loadConfig(cmd)
				if err != nil {
					return err
				}
				s, err := openStore(cfg)
				if err != nil {
					return err
				}
				defer s.Close()

				if _, err := s.GetPrincipal(cmd.Context(), args[0]); err != nil {
					return err
				}
				if err := apply(s, cmd, args[0], role); err != nil {
					return err
				}
				color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ %s %s: %s\n", use, args[0], role)
				return nil
			},
		}
	}

	cmd.AddCommand(
		edit("add", "Grant a role", func(s *store.SQLiteStore, cmd *cobra.Command, id string, role store.RoleName) error {
			return s.AddRole(cmd.Context(), id, role)
		}),
		edit("remove", "Remove a role", func(s *store.SQLiteStore, cmd *cobra.Command, id string, role store.RoleName) error {
			return s.RemoveRole(cmd.Context(), id, role)
		}),
	)
	return cmd
}

// truncate shortens s to max runes, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
