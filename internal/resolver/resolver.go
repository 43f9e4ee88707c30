// ABOUTME: Caching decorator around a raw-token to principal resolution function
// ABOUTME: Caches only present principals, coalesces concurrent misses and tracks statistics

package resolver

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/2389/coven-jwt/internal/cache"
)

// ResolveFunc maps a raw compact token to a principal. It returns ok=false
// when the token is well-formed but names no principal.
type ResolveFunc[P any] func(ctx context.Context, raw string) (principal P, ok bool, err error)

type options struct {
	logger   *slog.Logger
	coalesce bool
}

// Option configures a CachingResolver.
type Option func(*options)

// WithLogger sets the logger. Raw tokens are never logged.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithoutCoalescing lets concurrent misses for one token each call downstream.
func WithoutCoalescing() Option {
	return func(o *options) {
		o.coalesce = false
	}
}

// CachingResolver is safe for concurrent use. See the package documentation
// for coalescing and invalidation guarantees.
type CachingResolver[P any] struct {
	downstream ResolveFunc[P]
	store      cache.Store[P]
	logger     *slog.Logger
	coalesce   bool
	group      singleflight.Group

	// mu orders inserts against invalidations; generation counts invalidations.
	mu         sync.RWMutex
	generation uint64

	stats counters
}

type loaded[P any] struct {
	principal P
	ok        bool
}

// New wraps downstream with store. A nil store means an unbounded in-process
// store without expiry.
func New[P any](downstream ResolveFunc[P], store cache.Store[P], opts ...Option) *CachingResolver[P] {
	o := options{
		logger:   slog.Default().With("component", "resolver"),
		coalesce: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if store == nil {
		store = cache.NewMemoryStore[P](cache.DefaultSpec())
	}
	return &CachingResolver[P]{
		downstream: downstream,
		store:      store,
		logger:     o.logger,
		coalesce:   o.coalesce,
	}
}

// Authenticate returns the cached principal for raw, or resolves it downstream
// on a miss. Downstream errors are returned unchanged and never cached.
func (r *CachingResolver[P]) Authenticate(ctx context.Context, raw string) (P, bool, error) {
	start := time.Now()
	defer func() { r.stats.reqNanos.Add(int64(time.Since(start))) }()

	if p, ok := r.lookup(ctx, raw); ok {
		r.stats.hits.Add(1)
		return p, true, nil
	}
	r.stats.misses.Add(1)

	r.mu.RLock()
	gen := r.generation
	r.mu.RUnlock()

	if !r.coalesce {
		return r.load(ctx, raw, gen)
	}

	// The shared load must not die with whichever caller started it; each
	// caller still stops waiting when its own context ends.
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(flightKey(gen, raw), func() (any, error) {
		p, ok, err := r.load(flightCtx, raw, gen)
		return loaded[P]{principal: p, ok: ok}, err
	})

	var zero P
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		v := res.Val.(loaded[P])
		return v.principal, v.ok, nil
	}
}

func (r *CachingResolver[P]) lookup(ctx context.Context, raw string) (P, bool) {
	p, ok, err := r.store.Get(ctx, raw)
	if err != nil {
		r.logger.Warn("cache lookup failed, resolving downstream", "error", err)
		var zero P
		return zero, false
	}
	return p, ok
}

func (r *CachingResolver[P]) load(ctx context.Context, raw string, gen uint64) (P, bool, error) {
	var zero P

	start := time.Now()
	p, ok, err := r.downstream(ctx, raw)
	r.stats.loadNanos.Add(int64(time.Since(start)))

	switch {
	case err != nil:
		r.stats.loadError.Add(1)
		r.logger.Debug("downstream resolve failed", "error", err)
		return zero, false, err
	case !ok:
		r.stats.loadAbsent.Add(1)
		return zero, false, nil
	}

	r.stats.loadSuccess.Add(1)
	r.insert(ctx, raw, p, gen)
	return p, true, nil
}

// insert stores p unless an invalidation happened since the load began.
func (r *CachingResolver[P]) insert(ctx context.Context, raw string, p P, gen uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.generation != gen {
		r.logger.Debug("discarding load that raced an invalidation")
		return
	}
	if err := r.store.Set(ctx, raw, p); err != nil {
		r.logger.Warn("caching principal failed", "error", err)
	}
}

// invalidate runs fn under the write lock after bumping the generation.
func (r *CachingResolver[P]) invalidate(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generation++
	return fn()
}

// Invalidate removes the entry for raw.
func (r *CachingResolver[P]) Invalidate(ctx context.Context, raw string) error {
	return r.invalidate(func() error { return r.store.Delete(ctx, raw) })
}

// InvalidateAll removes the entries for raws.
func (r *CachingResolver[P]) InvalidateAll(ctx context.Context, raws []string) error {
	return r.invalidate(func() error { return r.store.Delete(ctx, raws...) })
}

// InvalidateAllMatching removes every cached token accepted by match and
// reports how many were removed. match receives cache.Redact of each token,
// never the signature.
func (r *CachingResolver[P]) InvalidateAllMatching(ctx context.Context, match func(redacted string) bool) (int, error) {
	var n int
	err := r.invalidate(func() error {
		var err error
		n, err = r.store.DeleteMatching(ctx, match)
		return err
	})
	return n, err
}

// InvalidateAllEntries empties the cache.
func (r *CachingResolver[P]) InvalidateAllEntries(ctx context.Context) error {
	return r.invalidate(func() error { return r.store.Clear(ctx) })
}

// Size returns the number of cached principals.
func (r *CachingResolver[P]) Size(ctx context.Context) (int, error) {
	return r.store.Len(ctx)
}

// Stats returns a snapshot of the counters.
func (r *CachingResolver[P]) Stats() Stats {
	s := r.stats.snapshot()
	s.EvictionCount = r.store.Evictions()
	return s
}

// Close releases the store.
func (r *CachingResolver[P]) Close() error {
	return r.store.Close()
}

func flightKey(gen uint64, raw string) string {
	return strconv.FormatUint(gen, 10) + ":" + raw
}
