// ABOUTME: Tests for the in-process store: expiry, size limits, LRU order and cleanup
// ABOUTME: Uses an injected clock so expiry tests do not sleep

package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStore_GetSet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore[string](DefaultSpec())
	defer store.Close()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "k", "v1"))
	v, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	require.NoError(t, store.Set(ctx, "k", "v2"))
	v, _, _ = store.Get(ctx, "k")
	assert.Equal(t, "v2", v)

	n, _ := store.Len(ctx)
	assert.Equal(t, 1, n)
}

func TestMemoryStore_ExpireAfterWrite(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore[int](Spec{MaximumSize: Unbounded, ExpireAfterWrite: time.Minute},
		WithClock(clock.Now), WithCleanupInterval(0))
	defer store.Close()

	require.NoError(t, store.Set(ctx, "k", 1))
	clock.Advance(59 * time.Second)
	_, ok, _ := store.Get(ctx, "k")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok, _ = store.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, int64(1), store.Evictions())
}

func TestMemoryStore_ExpireAfterAccess(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore[int](Spec{MaximumSize: Unbounded, ExpireAfterAccess: time.Minute},
		WithClock(clock.Now), WithCleanupInterval(0))
	defer store.Close()

	require.NoError(t, store.Set(ctx, "k", 1))
	for range 3 {
		clock.Advance(45 * time.Second)
		_, ok, _ := store.Get(ctx, "k")
		require.True(t, ok, "access should renew the entry")
	}

	clock.Advance(time.Minute)
	_, ok, _ := store.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryStore_MaximumSize_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore[int](Spec{MaximumSize: 3})
	defer store.Close()

	require.NoError(t, store.Set(ctx, "a", 1))
	require.NoError(t, store.Set(ctx, "b", 2))
	require.NoError(t, store.Set(ctx, "c", 3))

	// Touch "a" so "b" becomes the least recently used.
	_, ok, _ := store.Get(ctx, "a")
	require.True(t, ok)

	require.NoError(t, store.Set(ctx, "d", 4))

	_, ok, _ = store.Get(ctx, "b")
	assert.False(t, ok)
	for _, k := range []string{"a", "c", "d"} {
		_, ok, _ := store.Get(ctx, k)
		assert.True(t, ok, k)
	}
	n, _ := store.Len(ctx)
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(1), store.Evictions())
}

func TestMemoryStore_ZeroSizeStoresNothing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore[int](Spec{MaximumSize: 0})
	defer store.Close()

	require.NoError(t, store.Set(ctx, "k", 1))
	_, ok, _ := store.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore[int](DefaultSpec())
	defer store.Close()

	for i := range 6 {
		require.NoError(t, store.Set(ctx, fmt.Sprintf("user-%d", i), i))
	}

	require.NoError(t, store.Delete(ctx, "user-0", "user-1", "never-set"))
	n, _ := store.Len(ctx)
	assert.Equal(t, 4, n)

	removed, err := store.DeleteMatching(ctx, func(k string) bool { return strings.HasSuffix(k, "4") || k == "user-5" })
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	require.NoError(t, store.Clear(ctx))
	n, _ = store.Len(ctx)
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(0), store.Evictions(), "explicit removal is not eviction")
}

func TestMemoryStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore[int](Spec{MaximumSize: Unbounded, ExpireAfterWrite: 10 * time.Millisecond},
		WithCleanupInterval(5*time.Millisecond))
	defer store.Close()

	require.NoError(t, store.Set(ctx, "k", 1))

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.entries) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryStore_CloseTwice(t *testing.T) {
	store := NewMemoryStore[int](Spec{MaximumSize: 1, ExpireAfterWrite: time.Minute})
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestMemoryStore_Concurrency(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore[int](Spec{MaximumSize: 50, ExpireAfterWrite: time.Minute})
	defer store.Close()

	var wg sync.WaitGroup
	for g := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				key := fmt.Sprintf("k-%d-%d", g, i%20)
				_ = store.Set(ctx, key, i)
				_, _, _ = store.Get(ctx, key)
				if i%50 == 0 {
					_ = store.Delete(ctx, key)
				}
			}
		}()
	}
	wg.Wait()

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, 50)
}

func TestMemoryStore_DeleteMatchingSeesRedactedKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore[int](DefaultSpec())
	defer store.Close()

	require.NoError(t, store.Set(ctx, "h.c1.sig1", 1))
	require.NoError(t, store.Set(ctx, "h.c2.sig2", 2))

	var seen []string
	removed, err := store.DeleteMatching(ctx, func(redacted string) bool {
		seen = append(seen, redacted)
		return redacted == "h.c1"
	})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.ElementsMatch(t, []string{"h.c1", "h.c2"}, seen)
}

func TestRedact(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"aaa.bbb.ccc", "aaa.bbb"},
		{"aaa.bbb.", "aaa.bbb"},
		{"plain-key", "plain-key"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Redact(tt.in), "Redact(%q)", tt.in)
	}
}
