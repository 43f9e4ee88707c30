// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML files, env var expansion, .env files, overrides and validation

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/2389/coven-jwt/internal/cache"
	"github.com/2389/coven-jwt/internal/token"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: "0.0.0.0:8080"
  grpc_addr: "0.0.0.0:50051"

database:
  path: "./test.db"

auth:
  secret: "c2VjcmV0LXNlY3JldA=="
  secret_encoding: "base64"
  algorithm: "HS512"
  issuer: "coven-test"
  cookie_name: "session"
  clock_skew: "30s"
  token_ttl: "1h"

cache:
  spec: "maximumSize=50,expireAfterAccess=1m,recordStats"
  backend: "redis"
  coalesce: false

redis:
  addr: "redis:6379"
  db: 2

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Server.GRPCAddr != "0.0.0.0:50051" {
		t.Errorf("Server.GRPCAddr = %q, want %q", cfg.Server.GRPCAddr, "0.0.0.0:50051")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Auth.Issuer != "coven-test" {
		t.Errorf("Auth.Issuer = %q, want %q", cfg.Auth.Issuer, "coven-test")
	}
	if cfg.Auth.CookieName != "session" {
		t.Errorf("Auth.CookieName = %q, want %q", cfg.Auth.CookieName, "session")
	}
	if cfg.Auth.ClockSkew != 30*time.Second {
		t.Errorf("Auth.ClockSkew = %v, want 30s", cfg.Auth.ClockSkew)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Errorf("Auth.TokenTTL = %v, want 1h", cfg.Auth.TokenTTL)
	}
	alg, err := cfg.Auth.SigningAlgorithm()
	if err != nil || alg != token.HS512 {
		t.Errorf("SigningAlgorithm() = %v, %v, want HS512", alg, err)
	}
	secret, err := cfg.Auth.SecretBytes()
	if err != nil || string(secret) != "secret-secret" {
		t.Errorf("SecretBytes() = %q, %v", secret, err)
	}
	if cfg.Cache.Backend != "redis" {
		t.Errorf("Cache.Backend = %q, want redis", cfg.Cache.Backend)
	}
	if cfg.Cache.CoalesceEnabled() {
		t.Error("expected coalescing to be disabled")
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 2 {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}

	// Unset values keep their defaults.
	if cfg.Auth.Scheme != "Bearer" {
		t.Errorf("Auth.Scheme = %q, want default Bearer", cfg.Auth.Scheme)
	}
	if cfg.Redis.Prefix != cache.DefaultRedisPrefix {
		t.Errorf("Redis.Prefix = %q, want default", cfg.Redis.Prefix)
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[database]
path = "/var/lib/coven/jwt.db"

[auth]
secret = "73656372657421"
secret_encoding = "hex"
scheme = "JWT"
token_ttl = "15m"

[cache]
spec = "maximumSize=10"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/var/lib/coven/jwt.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Auth.Scheme != "JWT" {
		t.Errorf("Auth.Scheme = %q, want JWT", cfg.Auth.Scheme)
	}
	if cfg.Auth.TokenTTL != 15*time.Minute {
		t.Errorf("Auth.TokenTTL = %v, want 15m", cfg.Auth.TokenTTL)
	}
	secret, err := cfg.Auth.SecretBytes()
	if err != nil || string(secret) != "secret!" {
		t.Errorf("SecretBytes() = %q, %v", secret, err)
	}
	spec, err := cfg.Cache.ParsedSpec()
	if err != nil {
		t.Fatalf("ParsedSpec() error = %v", err)
	}
	if spec.MaximumSize != 10 {
		t.Errorf("MaximumSize = %d, want 10", spec.MaximumSize)
	}
	if !cfg.Cache.CoalesceEnabled() {
		t.Error("coalescing should default to enabled")
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Default()
	if cfg.Server != want.Server {
		t.Errorf("Server = %+v, want %+v", cfg.Server, want.Server)
	}
	if cfg.Auth.ClockSkew != 2*time.Minute {
		t.Errorf("Auth.ClockSkew = %v, want 2m", cfg.Auth.ClockSkew)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("Auth.TokenTTL = %v, want 24h", cfg.Auth.TokenTTL)
	}
	if _, err := cfg.Auth.SecretBytes(); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("expected ErrMissingSecret, got %v", err)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_JWT_SECRET", "expanded-secret")
	t.Setenv("TEST_DB_PATH", "/tmp/expanded.db")

	configPath := writeConfig(t, "config.yaml", `
database:
  path: "${TEST_DB_PATH}"
auth:
  secret: "${TEST_JWT_SECRET}"
  issuer: "${TEST_UNSET_ISSUER}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.Secret != "expanded-secret" {
		t.Errorf("Auth.Secret = %q, want expanded-secret", cfg.Auth.Secret)
	}
	if cfg.Database.Path != "/tmp/expanded.db" {
		t.Errorf("Database.Path = %q, want /tmp/expanded.db", cfg.Database.Path)
	}
	if cfg.Auth.Issuer != "" {
		t.Errorf("unset variables expand to empty, got %q", cfg.Auth.Issuer)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("COVEN_JWT_AUTH_SECRET", "from-env")
	t.Setenv("COVEN_JWT_AUTH_CLOCK_SKEW", "5s")
	t.Setenv("COVEN_JWT_CACHE_COALESCE", "false")
	t.Setenv("COVEN_JWT_REDIS_DB", "3")
	t.Setenv("COVEN_JWT_SERVER_HTTP_ADDR", ":9090")

	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: ":8080"
auth:
  secret: "from-file"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.Secret != "from-env" {
		t.Errorf("Auth.Secret = %q, want from-env", cfg.Auth.Secret)
	}
	if cfg.Auth.ClockSkew != 5*time.Second {
		t.Errorf("Auth.ClockSkew = %v, want 5s", cfg.Auth.ClockSkew)
	}
	if cfg.Cache.CoalesceEnabled() {
		t.Error("expected COVEN_JWT_CACHE_COALESCE=false to disable coalescing")
	}
	if cfg.Redis.DB != 3 {
		t.Errorf("Redis.DB = %d, want 3", cfg.Redis.DB)
	}
	if cfg.Server.HTTPAddr != ":9090" {
		t.Errorf("Server.HTTPAddr = %q, want :9090", cfg.Server.HTTPAddr)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "COVEN_JWT_TEST_DOTENV_SECRET=dotenv-secret\nCOVEN_JWT_AUTH_ISSUER=dotenv-issuer\n"
	if err := os.WriteFile(envPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	// godotenv sets process env directly; restore it afterwards.
	t.Cleanup(func() {
		os.Unsetenv("COVEN_JWT_TEST_DOTENV_SECRET")
		os.Unsetenv("COVEN_JWT_AUTH_ISSUER")
	})

	configPath := writeConfig(t, "config.yaml", `
auth:
  secret: "${COVEN_JWT_TEST_DOTENV_SECRET}"
`)

	cfg, err := Load(configPath, envPath, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.Secret != "dotenv-secret" {
		t.Errorf("Auth.Secret = %q, want dotenv-secret", cfg.Auth.Secret)
	}
	if cfg.Auth.Issuer != "dotenv-issuer" {
		t.Errorf("Auth.Issuer = %q, want dotenv-issuer", cfg.Auth.Issuer)
	}
}

func TestLoad_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	t.Setenv("COVEN_JWT_AUTH_REALM", "from-env")

	envPath := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envPath, []byte("COVEN_JWT_AUTH_REALM=from-dotenv\n"), 0644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}

	cfg, err := Load("", envPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.Realm != "from-env" {
		t.Errorf("Auth.Realm = %q, want from-env", cfg.Auth.Realm)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"invalid clock skew", "config.yaml", "auth:\n  clock_skew: \"soon\"\n", "parsing durations"},
		{"invalid token ttl", "config.yaml", "auth:\n  token_ttl: \"10 minutes\"\n", "token_ttl"},
		{"invalid yaml", "config.yaml", "auth: [unclosed\n", "parsing config file"},
		{"invalid toml", "config.toml", "[auth\nsecret = 1\n", "parsing config file"},
		{"unsupported algorithm", "config.yaml", "auth:\n  algorithm: \"RS256\"\n", "auth.algorithm"},
		{"bad cache spec", "config.yaml", "cache:\n  spec: \"maximumSize=-1\"\n", "cache.spec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("expected read error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(c *Config) {}, ""},
		{"missing http addr", func(c *Config) { c.Server.HTTPAddr = "" }, "server.http_addr"},
		{"missing grpc addr", func(c *Config) { c.Server.GRPCAddr = "" }, "server.grpc_addr"},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"unknown encoding", func(c *Config) { c.Auth.SecretEncoding = "rot13" }, "auth.secret_encoding"},
		{"bad hex secret", func(c *Config) {
			c.Auth.SecretEncoding = "hex"
			c.Auth.Secret = "zz"
		}, "not valid hex"},
		{"negative skew", func(c *Config) { c.Auth.ClockSkew = -time.Second }, "auth.clock_skew"},
		{"zero ttl", func(c *Config) { c.Auth.TokenTTL = 0 }, "auth.token_ttl"},
		{"scheme with space", func(c *Config) { c.Auth.Scheme = "Bearer token" }, "auth.scheme"},
		{"empty scheme", func(c *Config) { c.Auth.Scheme = "" }, "auth.scheme"},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "memcached" }, "cache.backend"},
		{"redis without addr", func(c *Config) {
			c.Cache.Backend = "redis"
			c.Redis.Addr = ""
		}, "redis.addr"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"uppercase level accepted", func(c *Config) { c.Logging.Level = "DEBUG" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestSecretBytes(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		encoding string
		want     string
		wantErr  bool
	}{
		{"raw", "SECRET", "raw", "SECRET", false},
		{"empty encoding is raw", "SECRET", "", "SECRET", false},
		{"base64 std", "U0VDUkVU", "base64", "SECRET", false},
		{"base64 url unpadded", "_-8", "base64", "\xff\xef", false},
		{"hex", "534543524554", "hex", "SECRET", false},
		{"bad base64", "!!!", "base64", "", true},
		{"bad hex", "abc", "hex", "", true},
		{"unknown encoding", "x", "morse", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AuthConfig{Secret: tt.secret, SecretEncoding: tt.encoding}.SecretBytes()
			if tt.wantErr {
				if err == nil {
					t.Errorf("SecretBytes() expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("SecretBytes() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("SecretBytes() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCoalesceEnabled(t *testing.T) {
	on, off := true, false
	if !(CacheConfig{}).CoalesceEnabled() {
		t.Error("nil Coalesce should mean enabled")
	}
	if !(CacheConfig{Coalesce: &on}).CoalesceEnabled() {
		t.Error("expected enabled")
	}
	if (CacheConfig{Coalesce: &off}).CoalesceEnabled() {
		t.Error("expected disabled")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_EXPAND_A", "alpha")

	got := expandEnvVars("a=${TEST_EXPAND_A} b=${TEST_EXPAND_MISSING} c=$TEST_EXPAND_A")
	want := "a=alpha b= c=$TEST_EXPAND_A"
	if got != want {
		t.Errorf("expandEnvVars() = %q, want %q", got, want)
	}
}
