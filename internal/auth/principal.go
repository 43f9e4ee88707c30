// ABOUTME: Store-backed token resolution: the token's subject names a principal
// ABOUTME: Unknown, unapproved or revoked identities resolve to no principal

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/coven-jwt/internal/store"
	"github.com/2389/coven-jwt/internal/token"
)

// PrincipalResolver resolves tokens against the principal store.
type PrincipalResolver struct {
	principals store.PrincipalStore
	roles      store.RoleStore
	tokens     store.TokenStore
	logger     *slog.Logger
	now        func() time.Time
}

// NewPrincipalResolver creates a resolver over s. A nil logger uses the default.
func NewPrincipalResolver(s store.Store, logger *slog.Logger) *PrincipalResolver {
	if logger == nil {
		logger = slog.Default().With("component", "auth")
	}
	return &PrincipalResolver{
		principals: s,
		roles:      s,
		tokens:     s,
		logger:     logger,
		now:        time.Now,
	}
}

// Resolve implements TokenResolver[*AuthContext]. Store failures are returned
// as errors; every other reason to refuse the token is ok=false.
func (r *PrincipalResolver) Resolve(ctx context.Context, tok *token.Token) (*AuthContext, bool, error) {
	claims := tok.Claims()

	sub, ok := claims.Subject()
	if !ok || sub == "" {
		r.logger.Debug("token has no subject")
		return nil, false, nil
	}

	p, err := r.principals.GetPrincipal(ctx, sub)
	if errors.Is(err, store.ErrPrincipalNotFound) {
		r.logger.Debug("token subject is not a principal", "principal_id", sub)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("looking up principal: %w", err)
	}
	if p.Status != store.PrincipalStatusApproved {
		r.logger.Debug("principal not approved", "principal_id", sub, "status", p.Status)
		return nil, false, nil
	}

	jti, _ := claims.GetString(ClaimTokenID)
	if jti != "" {
		live, err := r.tokenLive(ctx, jti, sub)
		if err != nil {
			return nil, false, err
		}
		if !live {
			return nil, false, nil
		}
	}

	roleNames, err := r.roles.ListRoles(ctx, sub)
	if err != nil {
		return nil, false, fmt.Errorf("looking up roles: %w", err)
	}

	if err := r.principals.UpdatePrincipalLastSeen(ctx, sub, r.now()); err != nil {
		r.logger.Warn("failed to record last seen", "principal_id", sub, "error", err)
	}

	return buildAuthContext(p, roleNames, jti), true, nil
}

// tokenLive checks the issued-token registry. Tokens minted elsewhere with
// the shared secret are not registered and stay valid.
func (r *PrincipalResolver) tokenLive(ctx context.Context, jti, sub string) (bool, error) {
	rec, err := r.tokens.GetToken(ctx, jti)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up token: %w", err)
	}
	if rec.PrincipalID != sub {
		r.logger.Warn("token id belongs to another principal", "token_id", jti, "principal_id", sub)
		return false, nil
	}
	if rec.Revoked() {
		r.logger.Debug("token revoked", "token_id", jti)
		return false, nil
	}
	return true, nil
}

// buildAuthContext creates an AuthContext from a principal and role list.
func buildAuthContext(p *store.Principal, roleNames []store.RoleName, jti string) *AuthContext {
	roleStrings := make([]string, len(roleNames))
	for i, rn := range roleNames {
		roleStrings[i] = string(rn)
	}
	return &AuthContext{
		PrincipalID:   p.ID,
		PrincipalType: string(p.Type),
		DisplayName:   p.DisplayName,
		Roles:         roleStrings,
		TokenID:       jti,
	}
}
