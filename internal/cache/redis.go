// ABOUTME: Redis-backed store sharing cached principals between processes
// ABOUTME: Keys are HMAC digests of the token; values carry the redacted token and expire via Redis TTLs

package cache

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces cache keys when no prefix is configured.
const DefaultRedisPrefix = "coven-jwt:auth:"

// ErrRedisUnavailable wraps transport failures talking to Redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

const scanBatch = 500

// keyDerivationLabel separates the key-naming HMAC key from the secret it is
// derived from.
const keyDerivationLabel = "coven-jwt cache key"

// RedisStore is a Store on Redis. MaximumSize is not enforced; configure a
// maxmemory eviction policy on the server instead. A spec with MaximumSize 0
// still disables caching.
//
// Raw tokens never reach Redis. Each entry is stored under prefix +
// hex(HMAC-SHA256(k, token)) and its value holds Redact(token) next to the
// cached value, so DeleteMatching can inspect claims without the signature.
// k is derived from the secret given to WithKeySecret; without one, anyone
// holding a token can compute its key, but keys still reveal nothing.
type RedisStore[V any] struct {
	redis   redis.UniversalClient
	prefix  string
	spec    Spec
	hashKey []byte
}

// RedisOption configures a RedisStore.
type RedisOption func(*redisOptions)

type redisOptions struct {
	secret []byte
}

// WithKeySecret keys the digest that names entries.
func WithKeySecret(secret []byte) RedisOption {
	return func(o *redisOptions) {
		o.secret = secret
	}
}

// redisEntry is the JSON stored under each key.
type redisEntry[V any] struct {
	Token string `json:"token"`
	Value V      `json:"value"`
}

// NewRedisStore returns a store writing entries under prefix.
func NewRedisStore[V any](client redis.UniversalClient, prefix string, spec Spec, opts ...RedisOption) *RedisStore[V] {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	var o redisOptions
	for _, opt := range opts {
		opt(&o)
	}
	mac := hmac.New(sha256.New, o.secret)
	mac.Write([]byte(keyDerivationLabel))
	return &RedisStore[V]{redis: client, prefix: prefix, spec: spec, hashKey: mac.Sum(nil)}
}

func (s *RedisStore[V]) key(k string) string {
	mac := hmac.New(sha256.New, s.hashKey)
	mac.Write([]byte(k))
	return s.prefix + hex.EncodeToString(mac.Sum(nil))
}

func (s *RedisStore[V]) pattern() string {
	return escapeGlob(s.prefix) + "*"
}

// Get fetches and decodes a value. With expireAfterAccess the TTL is renewed.
func (s *RedisStore[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V

	var cmd *redis.StringCmd
	if s.spec.ExpireAfterAccess > 0 {
		cmd = s.redis.GetEx(ctx, s.key(key), s.spec.TTL())
	} else {
		cmd = s.redis.Get(ctx, s.key(key))
	}
	data, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var entry redisEntry[V]
	if err := json.Unmarshal(data, &entry); err != nil {
		return zero, false, fmt.Errorf("decoding cached value: %w", err)
	}
	return entry.Value, true, nil
}

// Set encodes value as JSON and stores it with the spec's TTL.
func (s *RedisStore[V]) Set(ctx context.Context, key string, value V) error {
	if !s.spec.Enabled() {
		return nil
	}
	data, err := json.Marshal(redisEntry[V]{Token: Redact(key), Value: value})
	if err != nil {
		return fmt.Errorf("encoding cached value: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(key), data, s.spec.TTL()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Delete removes keys.
func (s *RedisStore[V]) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.redis.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteMatching scans the prefix and removes every entry whose stored
// redacted token is accepted by match. Entries that cannot be decoded are
// left alone. Keys written during the scan may be missed.
func (s *RedisStore[V]) DeleteMatching(ctx context.Context, match func(redacted string) bool) (int, error) {
	removed := 0
	err := s.scan(ctx, func(keys []string) error {
		values, err := s.redis.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		var doomed []string
		for i, v := range values {
			data, ok := v.(string)
			if !ok {
				continue // expired since the scan
			}
			var entry struct {
				Token string `json:"token"`
			}
			if json.Unmarshal([]byte(data), &entry) != nil {
				continue
			}
			if match(entry.Token) {
				doomed = append(doomed, keys[i])
			}
		}
		if len(doomed) == 0 {
			return nil
		}
		n, err := s.redis.Del(ctx, doomed...).Result()
		removed += int(n)
		return err
	})
	return removed, err
}

// Clear removes every key under the prefix.
func (s *RedisStore[V]) Clear(ctx context.Context) error {
	return s.scan(ctx, func(keys []string) error {
		return s.redis.Del(ctx, keys...).Err()
	})
}

// Len counts keys under the prefix. It is O(n) in the keyspace.
func (s *RedisStore[V]) Len(ctx context.Context) (int, error) {
	total := 0
	err := s.scan(ctx, func(keys []string) error {
		total += len(keys)
		return nil
	})
	return total, err
}

// Evictions is always 0; Redis does not report per-prefix expirations.
func (s *RedisStore[V]) Evictions() int64 { return 0 }

// Close is a no-op; the client belongs to the caller.
func (s *RedisStore[V]) Close() error { return nil }

func (s *RedisStore[V]) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, s.pattern(), scanBatch).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
