// ABOUTME: Store interface shared by the in-process and Redis cache backends
// ABOUTME: Keys are raw token strings; values are resolved principals

package cache

import (
	"context"
	"strings"
)

// Store holds cached values. Implementations must be safe for concurrent use.
type Store[V any] interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (V, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value V) error
	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// DeleteMatching removes every entry for which match returns true and
	// reports how many were removed. match receives Redact(key), never the
	// full key.
	DeleteMatching(ctx context.Context, match func(redacted string) bool) (int, error)
	// Clear removes every key.
	Clear(ctx context.Context) error
	// Len returns the number of live entries.
	Len(ctx context.Context) (int, error)
	// Evictions returns how many entries were dropped for size or expiry.
	Evictions() int64
	// Close releases background resources.
	Close() error
}

// Redact drops everything from the last '.' of key. For a compact token that
// is the signature, leaving "header.claims", which identifies the token but
// cannot be presented as a credential. Keys without a '.' are unchanged.
func Redact(key string) string {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		return key[:i]
	}
	return key
}
