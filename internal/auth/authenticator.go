// ABOUTME: Bearer token authentication pipeline: decode, verify, validate, resolve
// ABOUTME: Only the final principal resolution is cached, keyed by the raw token

package auth

import (
	"context"
	"log/slog"

	"github.com/2389/coven-jwt/internal/cache"
	"github.com/2389/coven-jwt/internal/resolver"
	"github.com/2389/coven-jwt/internal/signer"
	"github.com/2389/coven-jwt/internal/token"
	"github.com/2389/coven-jwt/internal/validator"
)

// TokenResolver turns a verified, in-date token into a principal. Returning
// ok=false means the token names no usable principal.
type TokenResolver[P any] func(ctx context.Context, tok *token.Token) (principal P, ok bool, err error)

// TokenAuthenticator is what the HTTP middleware and gRPC interceptors need.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, raw string) (*AuthContext, bool, error)
}

// Authenticator checks a raw bearer token and resolves it to a principal.
// Signature and temporal checks run on every call; the resolution result is
// cached, so an expired token is rejected even while its principal is cached.
type Authenticator[P any] struct {
	verifier  *signer.Verifier
	validator *validator.ExpiryValidator
	cache     *resolver.CachingResolver[P]
	logger    *slog.Logger
}

var _ TokenAuthenticator = (*Authenticator[*AuthContext])(nil)

// verifiedTokenKey carries the decoded token into the cached resolve so the
// downstream does not decode it a second time.
type verifiedTokenKey struct{}

// NewAuthenticator builds the pipeline. A nil validator uses the default clock
// skew; a nil store caches in process without bound.
func NewAuthenticator[P any](verifier *signer.Verifier, v *validator.ExpiryValidator, resolve TokenResolver[P], store cache.Store[P], opts ...resolver.Option) *Authenticator[P] {
	if v == nil {
		v = validator.New()
	}
	a := &Authenticator[P]{
		verifier:  verifier,
		validator: v,
		logger:    slog.Default().With("component", "auth"),
	}
	a.cache = resolver.New(func(ctx context.Context, raw string) (P, bool, error) {
		tok, ok := ctx.Value(verifiedTokenKey{}).(*token.Token)
		if !ok || tok.Compact() != raw {
			var err error
			if tok, err = token.Decode(raw); err != nil {
				var zero P
				return zero, false, err
			}
		}
		return resolve(ctx, tok)
	}, store, opts...)
	return a
}

// Authenticate verifies raw and resolves its principal. A bad token returns
// one of the token package's errors; a resolution failure returns an
// *AuthenticationError; a valid token naming no principal returns ok=false.
func (a *Authenticator[P]) Authenticate(ctx context.Context, raw string) (P, bool, error) {
	var zero P

	tok, err := a.verifier.DecodeAndVerify(raw)
	if err != nil {
		a.logger.Debug("token rejected", "reason", failureReason(err), "kind", token.KindOf(err))
		return zero, false, err
	}
	if err := a.validator.Validate(tok.Claims()); err != nil {
		a.logger.Debug("token rejected", "reason", failureReason(err))
		return zero, false, err
	}

	p, ok, err := a.cache.Authenticate(context.WithValue(ctx, verifiedTokenKey{}, tok), raw)
	if err != nil {
		return zero, false, &AuthenticationError{Op: "resolve", Err: err}
	}
	return p, ok, nil
}

// Resolver exposes the cache for invalidation and statistics.
func (a *Authenticator[P]) Resolver() *resolver.CachingResolver[P] { return a.cache }

// Close releases the cache store.
func (a *Authenticator[P]) Close() error { return a.cache.Close() }

// ClaimMatcher returns a predicate for InvalidateAllMatching that selects
// cached tokens whose string claim key equals value. The predicate receives
// the redacted "header.claims" form produced by cache.Redact. Entries that
// no longer decode are matched so they get dropped.
func ClaimMatcher(key, value string) func(redacted string) bool {
	return func(redacted string) bool {
		_, claims, err := token.DecodePayload(redacted)
		if err != nil {
			return true
		}
		got, ok := stringClaim(claims, key)
		return ok && got == value
	}
}

func stringClaim(c token.Claims, key string) (string, bool) {
	switch key {
	case token.ClaimIssuer:
		return c.Issuer()
	case token.ClaimSubject:
		return c.Subject()
	default:
		return c.GetString(key)
	}
}

// SubjectMatcher selects cached tokens issued to sub.
func SubjectMatcher(sub string) func(redacted string) bool {
	return ClaimMatcher(token.ClaimSubject, sub)
}

// TokenIDMatcher selects the cached token with the given jti.
func TokenIDMatcher(jti string) func(redacted string) bool {
	return ClaimMatcher(ClaimTokenID, jti)
}
