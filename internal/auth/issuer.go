// ABOUTME: Mints signed bearer tokens for principals and records them for revocation
// ABOUTME: Each token carries iss, sub, iat, exp and a random jti

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2389/coven-jwt/internal/signer"
	"github.com/2389/coven-jwt/internal/store"
	"github.com/2389/coven-jwt/internal/token"
	"github.com/google/uuid"
)

// ClaimTokenID is the token identifier claim used for revocation.
const ClaimTokenID = "jti"

// DefaultTokenTTL is the lifetime of issued tokens when none is configured.
const DefaultTokenTTL = 24 * time.Hour

// Issuer mints tokens.
type Issuer struct {
	signer *signer.Signer
	tokens store.TokenStore
	name   string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer. tokens may be nil, in which case minted tokens
// are not recorded and cannot be revoked individually. A zero ttl uses
// DefaultTokenTTL.
func NewIssuer(s *signer.Signer, tokens store.TokenStore, name string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{
		signer: s,
		tokens: tokens,
		name:   name,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issued is a freshly minted token.
type Issued struct {
	Token     string
	ID        string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issue mints a token for principalID with optional extra claims.
func (i *Issuer) Issue(ctx context.Context, principalID string, extra map[string]any) (*Issued, error) {
	if principalID == "" {
		return nil, errors.New("principal ID is required")
	}
	if _, ok := extra[ClaimTokenID]; ok {
		return nil, fmt.Errorf("claim %q is assigned by the issuer", ClaimTokenID)
	}

	now := i.now().UTC().Truncate(time.Second)
	exp := now.Add(i.ttl)
	jti := uuid.NewString()

	b := token.NewClaims().
		Subject(principalID).
		IssuedAt(now).
		Expiration(exp).
		Set(ClaimTokenID, jti)
	if i.name != "" {
		b = b.Issuer(i.name)
	}
	for k, v := range extra {
		b = b.Set(k, v)
	}
	claims, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("building claims: %w", err)
	}

	compact, err := i.signer.SignClaims(claims)
	if err != nil {
		return nil, fmt.Errorf("minting token: %w", err)
	}

	if i.tokens != nil {
		if err := i.tokens.RecordToken(ctx, &store.IssuedToken{
			ID:          jti,
			PrincipalID: principalID,
			IssuedAt:    now,
			ExpiresAt:   exp,
		}); err != nil {
			return nil, fmt.Errorf("recording token: %w", err)
		}
	}

	return &Issued{
		Token:     compact,
		ID:        jti,
		Subject:   principalID,
		IssuedAt:  now,
		ExpiresAt: exp,
	}, nil
}
