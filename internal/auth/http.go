// ABOUTME: HTTP middleware for bearer token authentication on API endpoints
// ABOUTME: Reads the token from the Authorization header or a cookie and adds the principal to context

package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// DefaultScheme is the Authorization scheme expected in front of the token.
const DefaultScheme = "Bearer"

// HTTPConfig controls token extraction and the 401 challenge.
type HTTPConfig struct {
	// Scheme is matched case-insensitively against the Authorization header.
	// Empty means DefaultScheme.
	Scheme string
	// CookieName is consulted when the header carries no token. Empty
	// disables the cookie fallback.
	CookieName string
	// Realm is advertised in the WWW-Authenticate challenge.
	Realm string
	// Logger records authentication failures. Nil uses the default logger.
	Logger *slog.Logger
}

func (c HTTPConfig) scheme() string {
	if c.Scheme == "" {
		return DefaultScheme
	}
	return c.Scheme
}

func (c HTTPConfig) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default().With("component", "auth")
	}
	return c.Logger
}

// challenge is the WWW-Authenticate value sent with every 401.
func (c HTTPConfig) challenge() string {
	if c.Realm == "" {
		return c.scheme()
	}
	return fmt.Sprintf("%s realm=%q", c.scheme(), c.Realm)
}

// extractSchemeToken returns the token following scheme in an Authorization
// header value. The scheme ends at the first space.
func extractSchemeToken(header, scheme string) (string, bool) {
	method, rest, found := strings.Cut(header, " ")
	if !found || method == "" || !strings.EqualFold(method, scheme) || rest == "" {
		return "", false
	}
	return rest, true
}

// extractToken looks in the Authorization header first and falls back to the
// configured cookie.
func extractToken(r *http.Request, cfg HTTPConfig) (string, bool) {
	if tok, ok := extractSchemeToken(r.Header.Get("Authorization"), cfg.scheme()); ok {
		return tok, true
	}
	if cfg.CookieName == "" {
		return "", false
	}
	c, err := r.Cookie(cfg.CookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// authenticateRequest runs the authenticator on the request's token. The
// returned error is nil only when a principal was found.
func authenticateRequest(r *http.Request, authn TokenAuthenticator, cfg HTTPConfig) (*AuthContext, error) {
	raw, ok := extractToken(r, cfg)
	if !ok {
		return nil, ErrMissingCredentials
	}
	authCtx, ok, err := authn.Authenticate(r.Context(), raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownPrincipal
	}
	return authCtx, nil
}

func writeAuthError(w http.ResponseWriter, cfg HTTPConfig, err error) {
	status := HTTPStatus(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", cfg.challenge())
		http.Error(w, `{"error":"`+failureReason(err)+`"}`, status)
		return
	}
	http.Error(w, `{"error":"authentication failed"}`, status)
}

// HTTPAuthMiddleware creates an HTTP middleware that authenticates the bearer
// token and adds AuthContext to the request context using the same
// WithAuth/FromContext pattern as the gRPC interceptors.
//
// Bad or missing credentials answer 401 with a WWW-Authenticate challenge; a
// failure while resolving the principal answers 500.
func HTTPAuthMiddleware(authn TokenAuthenticator, cfg HTTPConfig) func(http.Handler) http.Handler {
	logger := cfg.logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, err := authenticateRequest(r, authn, cfg)
			if err != nil {
				if IsCredentialError(err) {
					logger.Warn("auth failure", "reason", failureReason(err), "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				} else {
					logger.Error("authentication error", "error", err, "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				}
				writeAuthError(w, cfg, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

// RequireRoleHTTP creates an HTTP middleware that requires at least one of
// roles. Must be used after HTTPAuthMiddleware.
func RequireRoleHTTP(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := FromContext(r.Context())
			if authCtx == nil {
				http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
				return
			}

			for _, role := range roles {
				if authCtx.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, `{"error":"`+strings.Join(roles, " or ")+` role required"}`, http.StatusForbidden)
		})
	}
}

// RequireAdminHTTP creates an HTTP middleware that requires admin or owner role.
// Must be used after HTTPAuthMiddleware.
func RequireAdminHTTP() func(http.Handler) http.Handler {
	return RequireRoleHTTP("admin", "owner")
}

// OptionalAuthMiddleware attempts authentication but lets unauthenticated
// requests through. Resolution failures still answer 500 so that an outage is
// not mistaken for an anonymous caller.
func OptionalAuthMiddleware(authn TokenAuthenticator, cfg HTTPConfig) func(http.Handler) http.Handler {
	logger := cfg.logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, err := authenticateRequest(r, authn, cfg)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
			case IsCredentialError(err):
				next.ServeHTTP(w, r) // Continue as anonymous
			default:
				logger.Error("authentication error", "error", err, "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				writeAuthError(w, cfg, err)
			}
		})
	}
}
