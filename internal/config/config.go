// ABOUTME: Configuration loading and parsing for coven-jwt
// ABOUTME: Supports YAML or TOML files with ${VAR} expansion, .env files and COVEN_JWT_* overrides

package config

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/2389/coven-jwt/internal/cache"
	"github.com/2389/coven-jwt/internal/token"
	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. COVEN_JWT_AUTH_SECRET.
const EnvPrefix = "COVEN_JWT_"

// ErrMissingSecret is returned when a command needs a signing secret and none is configured.
var ErrMissingSecret = errors.New("auth.secret is required")

// Config represents the complete coven-jwt configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server" envPrefix:"SERVER_"`
	Database DatabaseConfig `yaml:"database" toml:"database" envPrefix:"DATABASE_"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth" envPrefix:"AUTH_"`
	Cache    CacheConfig    `yaml:"cache" toml:"cache" envPrefix:"CACHE_"`
	Redis    RedisConfig    `yaml:"redis" toml:"redis" envPrefix:"REDIS_"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging" envPrefix:"LOGGING_"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr" env:"HTTP_ADDR"`
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr" env:"GRPC_ADDR"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path" env:"PATH"`
}

// AuthConfig holds token signing and verification settings
type AuthConfig struct {
	Secret         string `yaml:"secret" toml:"secret" env:"SECRET"`
	SecretEncoding string `yaml:"secret_encoding" toml:"secret_encoding" env:"SECRET_ENCODING"` // raw | base64 | hex
	Algorithm      string `yaml:"algorithm" toml:"algorithm" env:"ALGORITHM"`
	Issuer         string `yaml:"issuer" toml:"issuer" env:"ISSUER"`
	Scheme         string `yaml:"scheme" toml:"scheme" env:"SCHEME"`
	CookieName     string `yaml:"cookie_name" toml:"cookie_name" env:"COOKIE_NAME"`
	Realm          string `yaml:"realm" toml:"realm" env:"REALM"`

	ClockSkew time.Duration `yaml:"-" toml:"-"`
	TokenTTL  time.Duration `yaml:"-" toml:"-"`

	// Raw string values for YAML/TOML unmarshaling
	ClockSkewRaw string `yaml:"clock_skew" toml:"clock_skew" env:"CLOCK_SKEW"`
	TokenTTLRaw  string `yaml:"token_ttl" toml:"token_ttl" env:"TOKEN_TTL"`
}

// CacheConfig selects and sizes the principal cache
type CacheConfig struct {
	// Spec is a cache spec string such as "maximumSize=10000,expireAfterWrite=10m".
	Spec string `yaml:"spec" toml:"spec" env:"SPEC"`
	// Backend is "memory" or "redis".
	Backend string `yaml:"backend" toml:"backend" env:"BACKEND"`
	// Coalesce merges concurrent resolutions of the same token. Defaults to true.
	Coalesce *bool `yaml:"coalesce" toml:"coalesce" env:"COALESCE"`
}

// RedisConfig holds the Redis connection for the redis cache backend
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr" env:"ADDR"`
	Password string `yaml:"password" toml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" toml:"db" env:"DB"`
	Prefix   string `yaml:"prefix" toml:"prefix" env:"PREFIX"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" env:"LEVEL"`
	Format string `yaml:"format" toml:"format" env:"FORMAT"`
}

// Default returns the configuration used for anything a file or the
// environment leaves unset.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr: "localhost:8080",
			GRPCAddr: "localhost:50051",
		},
		Database: DatabaseConfig{Path: "coven-jwt.db"},
		Auth: AuthConfig{
			SecretEncoding: "raw",
			Algorithm:      "HS256",
			Issuer:         "coven-jwt",
			Scheme:         "Bearer",
			Realm:          "coven",
			ClockSkew:      2 * time.Minute,
			TokenTTL:       24 * time.Hour,
			ClockSkewRaw:   "2m",
			TokenTTLRaw:    "24h",
		},
		Cache: CacheConfig{
			Spec:    "maximumSize=10000,expireAfterWrite=10m",
			Backend: "memory",
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: cache.DefaultRedisPrefix,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration in layers: defaults, then the file at path
// (skipped when path is empty), then COVEN_JWT_* environment overrides.
// Variables from envFiles are loaded first so both the file and the overrides
// can use them. Files ending in .toml are parsed as TOML, anything
// else as YAML. Environment variables in the format ${VAR_NAME} are expanded
// in the file. Duration strings are parsed into time.Duration values.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := decode(path, expandEnvVars(string(data)), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func decode(path, data string, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(data, cfg)
		return err
	}
	return yaml.Unmarshal([]byte(data), cfg)
}

// loadEnvFiles loads variables from the given dotenv files. Missing files are
// skipped; variables already set in the environment win.
func loadEnvFiles(paths []string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("loading env files: %w", err)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
// The secret itself is optional here; commands that sign or verify call
// SecretBytes, which reports ErrMissingSecret.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Server.GRPCAddr == "" {
		return fmt.Errorf("server.grpc_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if _, err := c.Auth.SigningAlgorithm(); err != nil {
		return fmt.Errorf("auth.algorithm: %w", err)
	}
	switch c.Auth.SecretEncoding {
	case "raw", "base64", "hex":
	default:
		return fmt.Errorf("auth.secret_encoding must be raw, base64 or hex, got %q", c.Auth.SecretEncoding)
	}
	if c.Auth.Secret != "" {
		if _, err := c.Auth.SecretBytes(); err != nil {
			return err
		}
	}
	if c.Auth.ClockSkew < 0 {
		return fmt.Errorf("auth.clock_skew must not be negative")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if strings.TrimSpace(c.Auth.Scheme) == "" || strings.ContainsAny(c.Auth.Scheme, " \t") {
		return fmt.Errorf("auth.scheme must be a single word, got %q", c.Auth.Scheme)
	}

	if _, err := c.Cache.ParsedSpec(); err != nil {
		return fmt.Errorf("cache.spec: %w", err)
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when cache.backend is redis")
		}
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// SigningAlgorithm returns the configured HMAC algorithm.
func (a AuthConfig) SigningAlgorithm() (token.Algorithm, error) {
	return token.ParseAlgorithm(a.Algorithm)
}

// SecretBytes decodes the configured secret according to SecretEncoding.
func (a AuthConfig) SecretBytes() ([]byte, error) {
	if a.Secret == "" {
		return nil, ErrMissingSecret
	}
	switch a.SecretEncoding {
	case "", "raw":
		return []byte(a.Secret), nil
	case "base64":
		b, err := base64.StdEncoding.DecodeString(a.Secret)
		if err != nil {
			b, err = base64.RawURLEncoding.DecodeString(a.Secret)
		}
		if err != nil {
			return nil, fmt.Errorf("auth.secret is not valid base64: %w", err)
		}
		return b, nil
	case "hex":
		b, err := hex.DecodeString(a.Secret)
		if err != nil {
			return nil, fmt.Errorf("auth.secret is not valid hex: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown secret encoding %q", a.SecretEncoding)
	}
}

// ParsedSpec parses the cache spec string.
func (c CacheConfig) ParsedSpec() (cache.Spec, error) {
	return cache.ParseSpec(c.Spec)
}

// CoalesceEnabled reports whether concurrent resolutions are merged.
func (c CacheConfig) CoalesceEnabled() bool {
	return c.Coalesce == nil || *c.Coalesce
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.ClockSkewRaw != "" {
		cfg.Auth.ClockSkew, err = time.ParseDuration(cfg.Auth.ClockSkewRaw)
		if err != nil {
			return fmt.Errorf("parsing clock_skew %q: %w", cfg.Auth.ClockSkewRaw, err)
		}
	}

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	return nil
}
