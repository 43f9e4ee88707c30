// Package resolver caches the mapping from a raw compact token to the
// principal an application resolves it to.
//
// CachingResolver wraps a downstream ResolveFunc. Present principals are
// stored under the exact raw token string; absent results and errors are
// never cached, so the next call for that token asks downstream again.
//
//	r := resolver.New(lookup, cache.NewMemoryStore[User](spec))
//	user, ok, err := r.Authenticate(ctx, raw)
//
// # Coalescing
//
// By default concurrent misses for the same raw token share one downstream
// call (golang.org/x/sync/singleflight): every caller receives the result of
// that single call. The shared call sees the values of the first caller's
// context but not its cancellation, so one caller going away does not fail
// the others; a caller whose own context ends stops waiting and gets
// ctx.Err(). WithoutCoalescing disables this, in which case concurrent misses
// may each call downstream before the first result is cached.
//
// # Invalidation
//
// Invalidate, InvalidateAll, InvalidateAllMatching and InvalidateAllEntries
// remove entries. A load that was already running when an invalidation
// happened does not insert its result, so an invalidated principal is never
// resurrected by a slow downstream call. The InvalidateAllMatching predicate
// sees each token in the redacted "header.claims" form of cache.Redact.
//
// # Statistics
//
// Stats returns hit, miss and load counters plus total load time, following
// the usual cache-statistics vocabulary (hit rate, average load penalty).
package resolver
