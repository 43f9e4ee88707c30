// ABOUTME: sign, decode, verify and token registry commands
// ABOUTME: Offline token tooling plus issue/list/revoke/prune against the SQLite registry

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-jwt/internal/auth"
	"github.com/2389/coven-jwt/internal/store"
	"github.com/2389/coven-jwt/internal/token"
	"github.com/2389/coven-jwt/internal/validator"
)

// decodedToken is the JSON shape printed by decode and verify.
type decodedToken struct {
	Header token.Header      `json:"header"`
	Claims token.Claims      `json:"claims"`
	Times  map[string]string `json:"times,omitempty"`
}

func newDecodedToken(tok *token.Token) decodedToken {
	d := decodedToken{Header: tok.Header(), Claims: tok.Claims()}
	c := tok.Claims()
	for name, get := range map[string]func() (time.Time, bool){
		token.ClaimIssuedAt:   c.IssuedAtTime,
		token.ClaimExpiration: c.ExpirationTime,
		token.ClaimNotBefore:  c.NotBeforeTime,
	} {
		if t, ok := get(); ok {
			if d.Times == nil {
				d.Times = make(map[string]string)
			}
			d.Times[name] = t.UTC().Format(time.RFC3339)
		}
	}
	return d
}

// readTokenArg returns the token from args, or from stdin when absent or "-".
func readTokenArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return strings.TrimSpace(args[0]), nil
	}
	data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), token.MaxTokenLength+1))
	if err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return "", errors.New("no token given")
	}
	return raw, nil
}

// parseClaimFlags turns key=value pairs into claims. Values that parse as
// JSON keep their JSON type; anything else is a string.
func parseClaimFlags(pairs []string, claimsJSON string) (map[string]any, error) {
	claims := make(map[string]any)
	if claimsJSON != "" {
		if err := json.Unmarshal([]byte(claimsJSON), &claims); err != nil {
			return nil, fmt.Errorf("--claims-json must be a JSON object: %w", err)
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("claim %q must be key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil || v == nil {
			v = value
		}
		claims[key] = v
	}
	return claims, nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func newSignCmd(a *app) *cobra.Command {
	var (
		subject    string
		issuer     string
		expiresIn  time.Duration
		notBefore  time.Duration
		noExpiry   bool
		noIssuedAt bool
		claimPairs []string
		claimsJSON string
	)

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a token with the configured secret",
		Long:  "Builds claims from flags and prints the signed compact token. The token is not recorded in the registry; use 'token issue' for that.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			sgn, err := newSigner(cfg)
			if err != nil {
				return err
			}
			extra, err := parseClaimFlags(claimPairs, claimsJSON)
			if err != nil {
				return err
			}

			now := time.Now().UTC().Truncate(time.Second)
			b := token.NewClaims()
			if subject != "" {
				b = b.Subject(subject)
			}
			if issuer == "" {
				issuer = cfg.Auth.Issuer
			}
			if issuer != "" {
				b = b.Issuer(issuer)
			}
			if !noIssuedAt {
				b = b.IssuedAt(now)
			}
			if !noExpiry {
				ttl := expiresIn
				if ttl == 0 {
					ttl = cfg.Auth.TokenTTL
				}
				b = b.Expiration(now.Add(ttl))
			}
			if notBefore != 0 {
				b = b.NotBefore(now.Add(notBefore))
			}
			for k, v := range extra {
				b = b.Set(k, v)
			}
			claims, err := b.Build()
			if err != nil {
				return fmt.Errorf("building claims: %w", err)
			}

			compact, err := sgn.SignClaims(claims)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), compact)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "sub", "", "Subject claim")
	cmd.Flags().StringVar(&issuer, "iss", "", "Issuer claim (defaults to auth.issuer)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Lifetime (defaults to auth.token_ttl)")
	cmd.Flags().DurationVar(&notBefore, "not-before", 0, "Delay before the token becomes valid")
	cmd.Flags().BoolVar(&noExpiry, "no-exp", false, "Omit the exp claim")
	cmd.Flags().BoolVar(&noIssuedAt, "no-iat", false, "Omit the iat claim")
	cmd.Flags().StringArrayVar(&claimPairs, "claim", nil, "Extra claim as key=value (repeatable; JSON values keep their type)")
	cmd.Flags().StringVar(&claimsJSON, "claims-json", "", "Extra claims as a JSON object")
	return cmd
}

func newDecodeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "decode [token|-]",
		Short: "Decode a token without verifying its signature",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readTokenArg(cmd, args)
			if err != nil {
				return err
			}
			tok, err := token.Decode(raw)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), newDecodedToken(tok))
		},
	}
}

func newVerifyCmd(a *app) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "verify [token|-]",
		Short: "Verify a token's signature and time claims",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			ver, err := newVerifier(cfg)
			if err != nil {
				return err
			}
			raw, err := readTokenArg(cmd, args)
			if err != nil {
				return err
			}

			tok, err := ver.DecodeAndVerify(raw)
			if err == nil {
				err = validator.New(validator.WithClockSkew(cfg.Auth.ClockSkew)).Validate(tok.Claims())
			}
			if err != nil {
				return fmt.Errorf("token rejected (%s): %w", token.KindOf(err), err)
			}

			out := cmd.OutOrStdout()
			color.New(color.FgGreen).Fprintln(out, "✓ valid")
			if quiet {
				return nil
			}
			return printJSON(out, newDecodedToken(tok))
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only report validity")
	return cmd
}

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue, list, revoke and prune registered tokens",
	}
	cmd.AddCommand(
		newTokenIssueCmd(a),
		newTokenListCmd(a),
		newTokenRevokeCmd(a),
		newTokenPruneCmd(a),
	)
	return cmd
}

func newTokenIssueCmd(a *app) *cobra.Command {
	var claimPairs []string

	cmd := &cobra.Command{
		Use:   "issue PRINCIPAL_ID",
		Short: "Issue and record a token for an approved principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			sgn, err := newSigner(cfg)
			if err != nil {
				return err
			}
			extra, err := parseClaimFlags(claimPairs, "")
			if err != nil {
				return err
			}

			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			p, err := s.GetPrincipal(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("looking up principal: %w", err)
			}
			if p.Status != store.PrincipalStatusApproved {
				return fmt.Errorf("principal %s is %s", p.ID, p.Status)
			}

			issued, err := auth.NewIssuer(sgn, s, cfg.Auth.Issuer, cfg.Auth.TokenTTL).Issue(cmd.Context(), p.ID, extra)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, issued.Token)
			color.New(color.FgHiBlack).Fprintf(cmd.ErrOrStderr(), "token %s expires %s\n", issued.ID, issued.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&claimPairs, "claim", nil, "Extra claim as key=value (repeatable)")
	return cmd
}

func tokenState(t *store.IssuedToken, now time.Time) string {
	switch {
	case t.Revoked():
		return "revoked"
	case !t.ExpiresAt.After(now):
		return "expired"
	default:
		return "active"
	}
}

func newTokenListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list PRINCIPAL_ID",
		Short: "List a principal's tokens, newest first",
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

			tokens, err := s.ListTokens(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(tokens) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tokens.")
				return nil
			}

			now := time.Now()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "  ID\tISSUED\tEXPIRES\tSTATE")
			fmt.Fprintln(w, "  --\t------\t-------\t-----")
			for _, t := range tokens {
				fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
					t.ID,
					t.IssuedAt.Local().Format("Jan 02 15:04"),
					t.ExpiresAt.Local().Format("Jan 02 15:04"),
					tokenState(t, now),
				)
			}
			return w.Flush()
		},
	}
}

func newTokenRevokeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke TOKEN_ID",
		Short: "Revoke a registered token",
		Long:  "Marks the token revoked in the registry. Running gateways stop accepting it once their cached entry expires, or immediately after POST /api/tokens/{id}/revoke.",
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

			if err := s.RevokeToken(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("token %s not found", args[0])
				}
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ revoked token %s\n", args[0])
			return nil
		},
	}
}

func newTokenPruneCmd(a *app) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete registry records of expired tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan < 0 {
				return errors.New("--older-than must not be negative")
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

			n, err := s.DeleteExpiredTokens(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d expired token(s).\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Only prune tokens expired for at least this long")
	return cmd
}
