// ABOUTME: Tests for role grants on principals
// ABOUTME: Covers idempotent grants, validation and unknown principals

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoleName(t *testing.T) {
	for _, r := range ValidRoleNames {
		got, err := ParseRoleName(string(r))
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}

	_, err := ParseRoleName("superuser")
	assert.ErrorIs(t, err, ErrInvalidRole)
	assert.Contains(t, err.Error(), "superuser")
}

func TestRoleStore_AddHasList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestPrincipal(t, store, "alice")

	require.NoError(t, store.AddRole(ctx, "alice", RoleMember))
	require.NoError(t, store.AddRole(ctx, "alice", RoleAdmin))
	// Granting twice is not an error.
	require.NoError(t, store.AddRole(ctx, "alice", RoleAdmin))

	ok, err := store.HasRole(ctx, "alice", RoleAdmin)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.HasRole(ctx, "alice", RoleOwner)
	require.NoError(t, err)
	assert.False(t, ok)

	roles, err := store.ListRoles(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []RoleName{RoleAdmin, RoleMember}, roles)
}

func TestRoleStore_Remove(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestPrincipal(t, store, "alice")
	require.NoError(t, store.AddRole(ctx, "alice", RoleReader))

	require.NoError(t, store.RemoveRole(ctx, "alice", RoleReader))
	require.NoError(t, store.RemoveRole(ctx, "alice", RoleReader))

	ok, err := store.HasRole(ctx, "alice", RoleReader)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRoleStore_InvalidRole(t *testing.T) {
	store := setupTestStore(t)

	createTestPrincipal(t, store, "alice")

	err := store.AddRole(context.Background(), "alice", "root")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestRoleStore_UnknownPrincipal(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.AddRole(ctx, "ghost", RoleMember)
	assert.ErrorIs(t, err, ErrPrincipalNotFound)

	ok, err := store.HasRole(ctx, "ghost", RoleMember)
	require.NoError(t, err)
	assert.False(t, ok)

	roles, err := store.ListRoles(ctx, "ghost")
	require.NoError(t, err)
	assert.NotNil(t, roles)
	assert.Empty(t, roles)
}
