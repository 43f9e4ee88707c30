// ABOUTME: Entry point for the coven-jwt command line
// ABOUTME: Builds the cobra command tree and shares config, logging and store setup

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-jwt/internal/config"
	"github.com/2389/coven-jwt/internal/signer"
	"github.com/2389/coven-jwt/internal/store"
	"github.com/2389/coven-jwt/internal/token"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                            _          _
  ___ _____   _____ _ __                   (_)_      _| |_
 / __/ _ \ \ / / _ \ '_ \ _____            | \ \ /\ / / __|
| (_| (_) \ V /  __/ | | |_____|           | |\ V  V /| |_
 \___\___/ \_/ \___|_| |_|                _/ | \_/\_/  \__|
                                         |__/
`

// configEnvVar names the config file when --config is not given.
const configEnvVar = "COVEN_JWT_CONFIG"

// app holds the persistent flags shared by every command.
type app struct {
	configPath string
	envFile    string
	noColor    bool
	verbose    bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:     "coven-jwt",
		Short:   "Sign, verify and serve HMAC-signed bearer tokens",
		Long:    "coven-jwt mints and verifies compact HMAC tokens, manages the principals they resolve to, and serves a caching authentication gateway over HTTP and gRPC.",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if a.noColor {
				color.NoColor = true
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (YAML or TOML); defaults to $"+configEnvVar)
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Dotenv file loaded before the config")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "Disable colored output")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log at the configured level instead of warnings only")

	root.AddCommand(
		newServeCmd(a),
		newBootstrapCmd(a),
		newSignCmd(a),
		newDecodeCmd(a),
		newVerifyCmd(a),
		newTokenCmd(a),
		newPrincipalCmd(a),
		newConfigCmd(a),
	)
	return root
}

// resolveConfigPath returns --config, then $COVEN_JWT_CONFIG, then "".
func (a *app) resolveConfigPath() string {
	if a.configPath != "" {
		return a.configPath
	}
	return os.Getenv(configEnvVar)
}

// loadConfig loads configuration and installs the default logger.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var envFiles []string
	if a.envFile != "" {
		envFiles = append(envFiles, a.envFile)
	}

	cfg, err := config.Load(a.resolveConfigPath(), envFiles...)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logCfg := cfg.Logging
	if !a.verbose && cmd.Name() != "serve" {
		logCfg.Level = "warn"
	}
	slog.SetDefault(setupLogger(logCfg, cmd.ErrOrStderr()))
	return cfg, nil
}

// openStore opens the configured SQLite store.
func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return s, nil
}

// newSigner builds a signer from the configured secret and algorithm.
func newSigner(cfg *config.Config) (*signer.Signer, error) {
	alg, secret, err := keyMaterial(cfg)
	if err != nil {
		return nil, err
	}
	return signer.NewSigner(alg, secret)
}

// newVerifier builds a verifier from the configured secret and algorithm.
func newVerifier(cfg *config.Config) (*signer.Verifier, error) {
	alg, secret, err := keyMaterial(cfg)
	if err != nil {
		return nil, err
	}
	return signer.NewVerifier(alg, secret)
}

func keyMaterial(cfg *config.Config) (alg token.Algorithm, secret []byte, err error) {
	alg, err = cfg.Auth.SigningAlgorithm()
	if err != nil {
		return alg, nil, err
	}
	secret, err = cfg.Auth.SecretBytes()
	if errors.Is(err, config.ErrMissingSecret) {
		return alg, nil, fmt.Errorf("%w (set auth.secret or COVEN_JWT_AUTH_SECRET)", err)
	}
	return alg, secret, err
}

func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = &colorHandler{
			mu:    &sync.Mutex{},
			w:     w,
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	// Handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, buf.String())
	return err
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		mu:     h.mu,
		w:      h.w,
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		mu:     h.mu,
		w:      h.w,
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
