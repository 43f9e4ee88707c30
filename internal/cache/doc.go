// Package cache provides the key/value stores behind the caching resolver.
//
// # Stores
//
// Store is a small context-aware map keyed by raw token strings:
//
//   - MemoryStore keeps entries in process with a size bound, write and access
//     expiry, least-recently-used eviction and a background sweeper.
//   - RedisStore keeps JSON-encoded entries in Redis under a key prefix so
//     several processes can share one cache.
//
// # Spec Strings
//
// Cache behavior is configured with a comma-separated spec string:
//
//	spec, err := cache.ParseSpec("maximumSize=500,expireAfterWrite=10m")
//	store := cache.NewMemoryStore[Principal](spec)
//	defer store.Close()
//
// Recognized keys are maximumSize, expireAfterWrite, expireAfterAccess,
// initialCapacity and recordStats. Durations accept Go syntax ("90s", "1h30m")
// plus a day suffix ("7d"). recordStats is accepted and ignored; statistics
// are always recorded.
package cache
