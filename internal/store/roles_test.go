package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestOperator(t *testing.T, s Store, name string) *Operator {
	t.Helper()
	op := &Operator{DisplayName: name}
	require.NoError(t, s.CreateOperator(context.Background(), op))
	return op
}

func TestCreateOperator_Defaults(t *testing.T) {
	s := setupTestStore(t)
	op := createTestOperator(t, s, "Alice")

	assert.NotEmpty(t, op.ID)
	assert.Equal(t, OperatorActive, op.Status)

	got, err := s.GetOperator(context.Background(), op.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.DisplayName)
	assert.Equal(t, OperatorActive, got.Status)
}

func TestGetOperator_NotFound(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.GetOperator(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCountAndListOperators(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	n, err := s.CountOperators(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	createTestOperator(t, s, "one")
	createTestOperator(t, s, "two")

	n, err = s.CountOperators(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ops, err := s.ListOperators(ctx)
	require.NoError(t, err)
	assert.Len(t, ops, 2)
}

func TestAddRole_Idempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	op := createTestOperator(t, s, "Alice")

	require.NoError(t, s.AddRole(ctx, op.ID, RoleAdmin))
	require.NoError(t, s.AddRole(ctx, op.ID, RoleAdmin))

	roles, err := s.ListRoles(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, []RoleName{RoleAdmin}, roles)
}

func TestHasRole(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	op := createTestOperator(t, s, "Alice")
	require.NoError(t, s.AddRole(ctx, op.ID, RoleOwner))

	has, err := s.HasRole(ctx, op.ID, RoleOwner)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = s.HasRole(ctx, op.ID, RoleModerator)
	require.NoError(t, err)
	assert.False(t, has)

	has, err = s.HasRole(ctx, "ghost", RoleOwner)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRemoveRole(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	op := createTestOperator(t, s, "Alice")
	require.NoError(t, s.AddRole(ctx, op.ID, RoleModerator))
	require.NoError(t, s.AddRole(ctx, op.ID, RoleAdmin))

	require.NoError(t, s.RemoveRole(ctx, op.ID, RoleModerator))
	require.NoError(t, s.RemoveRole(ctx, op.ID, RoleModerator))

	roles, err := s.ListRoles(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, []RoleName{RoleAdmin}, roles)
}

func TestListRoles_EmptyIsNotNil(t *testing.T) {
	s := setupTestStore(t)
	roles, err := s.ListRoles(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, roles)
	assert.Empty(t, roles)
}

func TestAddRole_InvalidRoleRejected(t *testing.T) {
	s := setupTestStore(t)
	op := createTestOperator(t, s, "Alice")

	err := s.AddRole(context.Background(), op.ID, RoleName("superuser"))
	assert.Error(t, err)
}

func TestIsValidRole(t *testing.T) {
	assert.True(t, IsValidRole(RoleOwner))
	assert.True(t, IsValidRole(RoleModerator))
	assert.False(t, IsValidRole("member"))
}
