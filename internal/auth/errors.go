// ABOUTME: Authentication outcome errors and their HTTP and gRPC mappings
// ABOUTME: Separates bad credentials (401) from failures while resolving them (500)

package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/2389/coven-jwt/internal/token"
	"google.golang.org/grpc/codes"
)

var (
	// ErrMissingCredentials is returned when a request carries no token.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrUnknownPrincipal is returned when a valid token resolves to no principal.
	ErrUnknownPrincipal = errors.New("credentials rejected")
)

// AuthenticationError reports that resolving a principal failed, as opposed to
// the credentials being bad. Callers should answer with a server error.
type AuthenticationError struct {
	Op  string
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed during %s: %v", e.Op, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// IsCredentialError reports whether err means the caller's credentials were
// absent, invalid or rejected.
func IsCredentialError(err error) bool {
	if err == nil {
		return false
	}
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return false
	}
	if errors.Is(err, ErrMissingCredentials) || errors.Is(err, ErrUnknownPrincipal) {
		return true
	}
	return token.KindOf(err) != token.KindUnknown
}

// HTTPStatus maps an authentication outcome to a response status.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsCredentialError(err):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode maps an authentication outcome to a status code.
func GRPCCode(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case IsCredentialError(err):
		return codes.Unauthenticated
	default:
		return codes.Internal
	}
}

// failureReason is the short label written to logs and response bodies. It
// never includes token material.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return "missing credentials"
	case errors.Is(err, ErrUnknownPrincipal):
		return "credentials rejected"
	case errors.Is(err, token.ErrExpired):
		return "token expired"
	case errors.Is(err, token.ErrInvalidSignature):
		return "invalid signature"
	case token.KindOf(err) != token.KindUnknown:
		return "invalid token"
	default:
		return "authentication failed"
	}
}
