// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating auth info via context

package auth

import (
	"context"
	"slices"
)

// AuthContext holds the authenticated identity resolved from a bearer token.
// It is the principal type cached by the authenticator, so it must survive a
// JSON round trip for the Redis cache backend.
type AuthContext struct {
	PrincipalID   string   `json:"principal_id"`
	PrincipalType string   `json:"principal_type"` // "user" | "service"
	DisplayName   string   `json:"display_name,omitempty"`
	Roles         []string `json:"roles"`
	TokenID       string   `json:"token_id,omitempty"` // jti of the presented token
}

// HasRole reports whether the principal holds role.
func (a *AuthContext) HasRole(role string) bool {
	return slices.Contains(a.Roles, role)
}

// IsAdmin returns true if the principal has admin or owner role.
func (a *AuthContext) IsAdmin() bool {
	return a.HasRole("admin") || a.HasRole("owner")
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return auth
}

// MustFromContext retrieves the AuthContext from the context, panicking if not present.
func MustFromContext(ctx context.Context) *AuthContext {
	auth := FromContext(ctx)
	if auth == nil {
		panic("auth: AuthContext not found in context")
	}
	return auth
}
