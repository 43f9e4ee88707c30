// ABOUTME: Role grants on principals, checked by the HTTP and gRPC authorizers
// ABOUTME: Grants are idempotent and removed with their principal

package store

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// RoleName represents a role that can be granted
type RoleName string

const (
	RoleOwner  RoleName = "owner"
	RoleAdmin  RoleName = "admin"
	RoleMember RoleName = "member"
	RoleReader RoleName = "reader"
)

// ValidRoleNames lists all valid role names
var ValidRoleNames = []RoleName{
	RoleOwner,
	RoleAdmin,
	RoleMember,
	RoleReader,
}

// ParseRoleName validates a role name.
func ParseRoleName(name string) (RoleName, error) {
	r := RoleName(name)
	if !slices.Contains(ValidRoleNames, r) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, name)
	}
	return r, nil
}

// AddRole grants role to a principal. Granting an existing role succeeds
// silently; an unknown principal is ErrPrincipalNotFound.
func (s *SQLiteStore) AddRole(ctx context.Context, principalID string, role RoleName) error {
	if _, err := ParseRoleName(string(role)); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO roles (principal_id, role, created_at) VALUES (?, ?, ?)`,
		principalID, role, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrPrincipalNotFound
		}
		return fmt.Errorf("adding role: %w", err)
	}

	s.logger.Debug("added role", "principal_id", principalID, "role", role)
	return nil
}

// RemoveRole revokes role from a principal. Removing a role that was never
// granted succeeds silently.
func (s *SQLiteStore) RemoveRole(ctx context.Context, principalID string, role RoleName) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE principal_id = ? AND role = ?`, principalID, role)
	if err != nil {
		return fmt.Errorf("removing role: %w", err)
	}

	s.logger.Debug("removed role", "principal_id", principalID, "role", role)
	return nil
}

// HasRole reports whether a principal holds role. Unknown principals hold nothing.
func (s *SQLiteStore) HasRole(ctx context.Context, principalID string, role RoleName) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM roles WHERE principal_id = ? AND role = ?`, principalID, role,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking role: %w", err)
	}
	return count > 0, nil
}

// ListRoles returns a principal's roles sorted by name, never nil.
func (s *SQLiteStore) ListRoles(ctx context.Context, principalID string) ([]RoleName, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role FROM roles WHERE principal_id = ? ORDER BY role`, principalID)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	roles := []RoleName{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		roles = append(roles, RoleName(role))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roles: %w", err)
	}
	return roles, nil
}
