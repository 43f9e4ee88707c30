// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject lookup failures

package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu         sync.RWMutex
	principals map[string]*Principal        // keyed by principal ID
	roles      map[string]map[RoleName]bool // keyed by principal ID
	tokens     map[string]*IssuedToken      // keyed by token ID

	// Err, when set, is returned by every read. Tests use it to simulate an
	// unavailable database.
	Err error
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		principals: make(map[string]*Principal),
		roles:      make(map[string]map[RoleName]bool),
		tokens:     make(map[string]*IssuedToken),
	}
}

// CreatePrincipal stores a copy of p.
func (m *MockStore) CreatePrincipal(ctx context.Context, p *Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == "" {
		return errors.New("principal ID is required")
	}
	if _, exists := m.principals[p.ID]; exists {
		return ErrDuplicatePrincipal
	}
	cp := *p
	m.principals[p.ID] = &cp
	return nil
}

// GetPrincipal returns a copy of the principal.
func (m *MockStore) GetPrincipal(ctx context.Context, id string) (*Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.principals[id]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	cp := *p
	return &cp, nil
}

// ListPrincipals returns principals ordered by creation time.
func (m *MockStore) ListPrincipals(ctx context.Context, filter PrincipalFilter) ([]*Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	result := []*Principal{}
	for _, p := range m.principals {
		if filter.Type != nil && p.Type != *filter.Type {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if filter.Limit > 0 {
		start := min(filter.Offset, len(result))
		end := min(start+filter.Limit, len(result))
		result = result[start:end]
	}
	return result, nil
}

// UpdatePrincipalStatus changes a principal's status.
func (m *MockStore) UpdatePrincipalStatus(ctx context.Context, id string, status PrincipalStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !status.Valid() {
		return fmt.Errorf("invalid principal status %q", status)
	}
	p, ok := m.principals[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.Status = status
	return nil
}

// UpdatePrincipalLastSeen records the last authentication time.
func (m *MockStore) UpdatePrincipalLastSeen(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.principals[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	at = at.UTC()
	p.LastSeen = &at
	return nil
}

// DeletePrincipal removes a principal and everything attached to it.
func (m *MockStore) DeletePrincipal(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.principals[id]; !ok {
		return ErrPrincipalNotFound
	}
	delete(m.principals, id)
	delete(m.roles, id)
	for tid, t := range m.tokens {
		if t.PrincipalID == id {
			delete(m.tokens, tid)
		}
	}
	return nil
}

// AddRole grants a role.
func (m *MockStore) AddRole(ctx context.Context, principalID string, role RoleName) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := ParseRoleName(string(role)); err != nil {
		return err
	}
	if _, ok := m.principals[principalID]; !ok {
		return ErrPrincipalNotFound
	}
	if m.roles[principalID] == nil {
		m.roles[principalID] = make(map[RoleName]bool)
	}
	m.roles[principalID][role] = true
	return nil
}

// RemoveRole revokes a role.
func (m *MockStore) RemoveRole(ctx context.Context, principalID string, role RoleName) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.roles[principalID], role)
	return nil
}

// HasRole reports whether the principal holds role.
func (m *MockStore) HasRole(ctx context.Context, principalID string, role RoleName) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return false, m.Err
	}
	return m.roles[principalID][role], nil
}

// ListRoles returns the principal's roles sorted by name.
func (m *MockStore) ListRoles(ctx context.Context, principalID string) ([]RoleName, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	roles := []RoleName{}
	for r := range m.roles[principalID] {
		roles = append(roles, r)
	}
	slices.Sort(roles)
	return roles, nil
}

// RecordToken stores a copy of t.
func (m *MockStore) RecordToken(ctx context.Context, t *IssuedToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.principals[t.PrincipalID]; !ok {
		return ErrPrincipalNotFound
	}
	cp := *t
	m.tokens[t.ID] = &cp
	return nil
}

// GetToken returns a copy of the token record.
func (m *MockStore) GetToken(ctx context.Context, id string) (*IssuedToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	t, ok := m.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// ListTokens returns a principal's tokens, newest first.
func (m *MockStore) ListTokens(ctx context.Context, principalID string) ([]*IssuedToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []*IssuedToken{}
	for _, t := range m.tokens {
		if t.PrincipalID == principalID {
			cp := *t
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].IssuedAt.Equal(result[j].IssuedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].IssuedAt.After(result[j].IssuedAt)
	})
	return result, nil
}

// RevokeToken marks a token revoked.
func (m *MockStore) RevokeToken(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[id]
	if !ok {
		return ErrNotFound
	}
	if t.RevokedAt == nil {
		now := time.Now().UTC()
		t.RevokedAt = &now
	}
	return nil
}

// RevokePrincipalTokens revokes every live token of a principal.
func (m *MockStore) RevokePrincipalTokens(ctx context.Context, principalID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	ids := []string{}
	for id, t := range m.tokens {
		if t.PrincipalID == principalID && t.RevokedAt == nil {
			t.RevokedAt = &now
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// DeleteExpiredTokens removes records that expired before the cutoff.
func (m *MockStore) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, t := range m.tokens {
		if t.ExpiresAt.Before(before) {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
