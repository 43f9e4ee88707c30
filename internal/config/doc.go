// Package config handles configuration loading for coven-jwt.
//
// # Overview
//
// Configuration is built in layers: built-in defaults, then an optional
// YAML or TOML file, then COVEN_JWT_* environment overrides. The result is
// validated before it is returned.
//
// # Configuration File
//
// The file path comes from the --config flag or the COVEN_JWT_CONFIG
// environment variable. Files ending in .toml are decoded as TOML; anything
// else is decoded as YAML. Without a file, defaults and the environment are
// used on their own.
//
// # Environment Variables
//
// Variables listed in .env files passed to Load are exported first. Values
// already present in the environment win over the file.
//
// Configuration values can reference environment variables:
//
//	auth:
//	  secret: "${COVEN_SIGNING_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to an empty string.
//
// Every field can also be overridden directly with COVEN_JWT_<SECTION>_<KEY>:
//
//	COVEN_JWT_AUTH_SECRET=...
//	COVEN_JWT_CACHE_BACKEND=redis
//	COVEN_JWT_LOGGING_LEVEL=debug
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "localhost:8080"
//	  grpc_addr: "localhost:50051"
//
// Database (principals, roles and the token registry):
//
//	database:
//	  path: "coven-jwt.db"
//
// Token settings:
//
//	auth:
//	  secret: "${COVEN_SIGNING_SECRET}"
//	  secret_encoding: "raw"   # raw, base64, hex
//	  algorithm: "HS256"       # HS256, HS384, HS512
//	  issuer: "coven-jwt"
//	  scheme: "Bearer"
//	  cookie_name: ""          # optional cookie fallback
//	  realm: "coven"
//	  clock_skew: "2m"
//	  token_ttl: "24h"
//
// Principal cache:
//
//	cache:
//	  spec: "maximumSize=10000,expireAfterWrite=10m"
//	  backend: "memory"        # memory, redis
//	  coalesce: true
//
//	redis:
//	  addr: "localhost:6379"
//	  password: ""
//	  db: 0
//	  prefix: "coven-jwt:auth:"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates addresses, the database path, the algorithm and secret
// encoding, durations, the cache spec and backend, and logging values. The
// secret itself is only required by commands that sign or verify; they call
// AuthConfig.SecretBytes, which returns ErrMissingSecret when it is unset.
//
// # Usage
//
//	cfg, err := config.Load(path, ".env")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
