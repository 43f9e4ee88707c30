// ABOUTME: Thread-safe in-process store with size bound, write/access expiry and LRU eviction
// ABOUTME: A background goroutine sweeps expired entries until Close is called

package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCleanupInterval is how often the sweeper looks for expired entries.
const DefaultCleanupInterval = time.Minute

// memoryEntry stores a value with its timestamps and list element.
type memoryEntry[V any] struct {
	key      string
	value    V
	written  time.Time
	accessed time.Time
	element  *list.Element
}

type memoryConfig struct {
	now             func() time.Time
	cleanupInterval time.Duration
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*memoryConfig)

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *memoryConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCleanupInterval sets how often expired entries are swept. Zero or less
// disables the sweeper; expired entries are then dropped lazily.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(c *memoryConfig) {
		c.cleanupInterval = d
	}
}

// MemoryStore is a bounded in-process Store. Uses a doubly-linked list in
// recency order (least recently used at front) for O(1) eviction.
type MemoryStore[V any] struct {
	mu        sync.Mutex
	entries   map[string]*memoryEntry[V]
	order     *list.List
	spec      Spec
	now       func() time.Time
	evictions atomic.Int64
	done      chan struct{}
	closed    bool
}

// NewMemoryStore creates a store bounded by spec. When spec sets an expiry a
// background goroutine periodically removes expired entries; call Close to
// stop it.
func NewMemoryStore[V any](spec Spec, opts ...MemoryOption) *MemoryStore[V] {
	cfg := memoryConfig{now: time.Now, cleanupInterval: DefaultCleanupInterval}
	for _, opt := range opts {
		opt(&cfg)
	}

	capacity := spec.InitialCapacity
	if spec.MaximumSize > 0 && int64(capacity) > spec.MaximumSize {
		capacity = int(spec.MaximumSize)
	}
	s := &MemoryStore[V]{
		entries: make(map[string]*memoryEntry[V], capacity),
		order:   list.New(),
		spec:    spec,
		now:     cfg.now,
		done:    make(chan struct{}),
	}
	if spec.TTL() > 0 && cfg.cleanupInterval > 0 {
		go s.cleanup(cfg.cleanupInterval)
	}
	return s
}

// Spec returns the bounds this store was created with.
func (s *MemoryStore[V]) Spec() Spec { return s.spec }

// Get returns the value if present and not expired, and marks it used.
func (s *MemoryStore[V]) Get(_ context.Context, key string) (V, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	entry, ok := s.entries[key]
	if !ok {
		return zero, false, nil
	}
	now := s.now()
	if s.expiredLocked(entry, now) {
		s.removeLocked(entry)
		s.evictions.Add(1)
		return zero, false, nil
	}
	entry.accessed = now
	s.order.MoveToBack(entry.element)
	return entry.value, true, nil
}

// Set stores value, evicting the least recently used entry when full.
func (s *MemoryStore[V]) Set(_ context.Context, key string, value V) error {
	if !s.spec.Enabled() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if entry, exists := s.entries[key]; exists {
		entry.value = value
		entry.written = now
		entry.accessed = now
		s.order.MoveToBack(entry.element)
		return nil
	}

	if s.spec.MaximumSize > 0 {
		for int64(len(s.entries)) >= s.spec.MaximumSize {
			s.evictOldestLocked()
		}
	}

	entry := &memoryEntry[V]{key: key, value: value, written: now, accessed: now}
	entry.element = s.order.PushBack(entry)
	s.entries[key] = entry
	return nil
}

// Delete removes keys.
func (s *MemoryStore[V]) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		if entry, ok := s.entries[key]; ok {
			s.removeLocked(entry)
		}
	}
	return nil
}

// DeleteMatching removes every entry whose redacted key is accepted by match.
func (s *MemoryStore[V]) DeleteMatching(_ context.Context, match func(redacted string) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if match(Redact(key)) {
			s.removeLocked(entry)
			removed++
		}
	}
	return removed, nil
}

// Clear removes every entry.
func (s *MemoryStore[V]) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.entries)
	s.order.Init()
	return nil
}

// Len returns the number of unexpired entries.
func (s *MemoryStore[V]) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked(s.now())
	return len(s.entries), nil
}

// Evictions returns how many entries were dropped for size or expiry.
func (s *MemoryStore[V]) Evictions() int64 {
	return s.evictions.Load()
}

// Close stops the background sweeper. It is safe to call multiple times.
func (s *MemoryStore[V]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.done)
		s.closed = true
	}
	return nil
}

func (s *MemoryStore[V]) expiredLocked(entry *memoryEntry[V], now time.Time) bool {
	if s.spec.ExpireAfterWrite > 0 && now.Sub(entry.written) >= s.spec.ExpireAfterWrite {
		return true
	}
	if s.spec.ExpireAfterAccess > 0 && now.Sub(entry.accessed) >= s.spec.ExpireAfterAccess {
		return true
	}
	return false
}

// evictOldestLocked removes the least recently used entry. Must be called with mu held.
func (s *MemoryStore[V]) evictOldestLocked() {
	front := s.order.Front()
	if front == nil {
		return
	}
	entry, _ := front.Value.(*memoryEntry[V])
	s.removeLocked(entry)
	s.evictions.Add(1)
}

func (s *MemoryStore[V]) removeLocked(entry *memoryEntry[V]) {
	s.order.Remove(entry.element)
	delete(s.entries, entry.key)
}

func (s *MemoryStore[V]) purgeExpiredLocked(now time.Time) {
	if s.spec.TTL() == 0 {
		return
	}
	for _, entry := range s.entries {
		if s.expiredLocked(entry, now) {
			s.removeLocked(entry)
			s.evictions.Add(1)
		}
	}
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (s *MemoryStore[V]) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			s.purgeExpiredLocked(s.now())
			s.mu.Unlock()
		case <-s.done:
			return
		}
	}
}
