// ABOUTME: Data types, sentinel errors and interfaces for principal persistence
// ABOUTME: Principals, roles and issued-token records backing token resolution

package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity does not exist
	ErrNotFound = errors.New("not found")
	// ErrPrincipalNotFound is returned when no principal has the requested ID
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrDuplicatePrincipal is returned when creating a principal whose ID exists
	ErrDuplicatePrincipal = errors.New("principal already exists")
	// ErrInvalidRole is returned for role names outside ValidRoleNames
	ErrInvalidRole = errors.New("invalid role")
)

// PrincipalType distinguishes human users from service accounts
type PrincipalType string

const (
	PrincipalTypeUser    PrincipalType = "user"
	PrincipalTypeService PrincipalType = "service"
)

// Valid reports whether t is a known principal type.
func (t PrincipalType) Valid() bool {
	return t == PrincipalTypeUser || t == PrincipalTypeService
}

// PrincipalStatus gates whether a principal may authenticate
type PrincipalStatus string

const (
	PrincipalStatusPending  PrincipalStatus = "pending"
	PrincipalStatusApproved PrincipalStatus = "approved"
	PrincipalStatusRevoked  PrincipalStatus = "revoked"
)

// Valid reports whether s is a known status.
func (s PrincipalStatus) Valid() bool {
	switch s {
	case PrincipalStatusPending, PrincipalStatusApproved, PrincipalStatusRevoked:
		return true
	}
	return false
}

// Principal is an identity that tokens are issued to
type Principal struct {
	ID          string
	Type        PrincipalType
	DisplayName string
	Status      PrincipalStatus
	CreatedAt   time.Time
	LastSeen    *time.Time
	Metadata    map[string]any
}

// PrincipalFilter narrows ListPrincipals. Nil fields match everything.
type PrincipalFilter struct {
	Type   *PrincipalType
	Status *PrincipalStatus
	Limit  int
	Offset int
}

// IssuedToken records a minted token so it can be listed and revoked
type IssuedToken struct {
	ID          string // the token's jti claim
	PrincipalID string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	RevokedAt   *time.Time
}

// Revoked reports whether the token was revoked.
func (t *IssuedToken) Revoked() bool { return t.RevokedAt != nil }

// PrincipalStore manages principals
type PrincipalStore interface {
	CreatePrincipal(ctx context.Context, p *Principal) error
	GetPrincipal(ctx context.Context, id string) (*Principal, error)
	ListPrincipals(ctx context.Context, filter PrincipalFilter) ([]*Principal, error)
	UpdatePrincipalStatus(ctx context.Context, id string, status PrincipalStatus) error
	UpdatePrincipalLastSeen(ctx context.Context, id string, at time.Time) error
	DeletePrincipal(ctx context.Context, id string) error
}

// RoleStore manages role grants on principals
type RoleStore interface {
	AddRole(ctx context.Context, principalID string, role RoleName) error
	RemoveRole(ctx context.Context, principalID string, role RoleName) error
	HasRole(ctx context.Context, principalID string, role RoleName) (bool, error)
	ListRoles(ctx context.Context, principalID string) ([]RoleName, error)
}

// TokenStore is the registry of issued tokens
type TokenStore interface {
	RecordToken(ctx context.Context, t *IssuedToken) error
	GetToken(ctx context.Context, id string) (*IssuedToken, error)
	ListTokens(ctx context.Context, principalID string) ([]*IssuedToken, error)
	RevokeToken(ctx context.Context, id string) error
	RevokePrincipalTokens(ctx context.Context, principalID string) ([]string, error)
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error)
}

// Store is everything the token resolver and the CLI need
type Store interface {
	PrincipalStore
	RoleStore
	TokenStore
	Close() error
}
