// Package auth authenticates bearer tokens for HTTP and gRPC servers.
//
// # Pipeline
//
// Authenticator runs four steps on every request:
//
//	signer.Verifier.DecodeAndVerify  // structure and HMAC signature
//	validator.ExpiryValidator        // iat, exp and nbf against the clock
//	resolver.CachingResolver         // raw token -> principal, cached
//	TokenResolver                    // the application's lookup on a miss
//
// Only the last step is cached. A token that expires while its principal is
// cached is still rejected by the validator.
//
// # Principals
//
// PrincipalResolver is the TokenResolver backed by internal/store. The sub
// claim names a principal, which must exist and be approved. When the token
// carries a jti that the store recorded at issue time, the record must not be
// revoked. Roles come from the store and end up in AuthContext.Roles.
//
// # Outcomes
//
//   - Missing, malformed, tampered or expired token: 401 / codes.Unauthenticated
//   - Valid token naming no usable principal: 401 / codes.Unauthenticated
//   - Store failure while resolving: 500 / codes.Internal
//   - Authenticated but lacking a role: 403 / codes.PermissionDenied
//
// # Token Extraction
//
// HTTP requests carry the token as "Authorization: Bearer <token>". The scheme
// is matched case-insensitively and is configurable. When the header has no
// token, the middleware falls back to a named cookie if one is configured.
// gRPC requests carry the same value in the "authorization" metadata key.
//
// # Revocation
//
// Revoking a token in the store does not evict it from the cache. Callers
// invalidate explicitly:
//
//	authn.Resolver().InvalidateAllMatching(ctx, auth.TokenIDMatcher(jti))
//	authn.Resolver().InvalidateAllMatching(ctx, auth.SubjectMatcher(principalID))
package auth
