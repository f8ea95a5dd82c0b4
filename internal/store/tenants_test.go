package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTenant_AndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tenant := &Tenant{
		Name:           "Acme",
		APIKeyHash:     "abc123",
		PushRoutingKey: "universe-1",
		PushSecret:     "shh",
		Flags:          FeatureFlags{Kicks: true, Shutdowns: true},
	}
	require.NoError(t, s.CreateTenant(ctx, tenant))
	require.NotEmpty(t, tenant.ID)

	got, err := s.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
	assert.Equal(t, "abc123", got.APIKeyHash)
	assert.Equal(t, "universe-1", got.PushRoutingKey)
	assert.Equal(t, "shh", got.PushSecret)
	assert.Equal(t, FeatureFlags{Kicks: true, Shutdowns: true}, got.Flags)
	assert.True(t, got.PushConfigured())
	assert.False(t, got.CreatedAt.IsZero())
}

func TestCreateTenant_DuplicateAPIKeyHash(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateTenant(ctx, &Tenant{Name: "a", APIKeyHash: "same"}))
	err := s.CreateTenant(ctx, &Tenant{Name: "b", APIKeyHash: "same"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestGetTenant_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetTenant(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetTenantByAPIKeyHash(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	tenant := createTestTenant(t, s, "keyed")

	got, err := s.GetTenantByAPIKeyHash(ctx, "hash-keyed")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, got.ID)

	_, err = s.GetTenantByAPIKeyHash(ctx, "hash-other")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetTenantByAPIKeyHash(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListTenants_OrderedByName(t *testing.T) {
	s := setupTestStore(t)
	createTestTenant(t, s, "zulu")
	createTestTenant(t, s, "alpha")

	tenants, err := s.ListTenants(context.Background())
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, "alpha", tenants[0].Name)
	assert.Equal(t, "zulu", tenants[1].Name)
}

func TestListTenants_EmptyIsNotNil(t *testing.T) {
	s := setupTestStore(t)

	tenants, err := s.ListTenants(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, tenants)
	assert.Empty(t, tenants)
}

func TestUpdateTenantAPIKey_InvalidatesOldHash(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	tenant := createTestTenant(t, s, "rotating")

	require.NoError(t, s.UpdateTenantAPIKey(ctx, tenant.ID, "new-hash"))

	_, err := s.GetTenantByAPIKeyHash(ctx, "hash-rotating")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.GetTenantByAPIKeyHash(ctx, "new-hash")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, got.ID)
}

func TestUpdateTenantAPIKey_CollisionIsDuplicate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a := createTestTenant(t, s, "a")
	createTestTenant(t, s, "b")

	err := s.UpdateTenantAPIKey(ctx, a.ID, "hash-b")
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestUpdateTenantPush_SetAndClear(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	tenant := createTestTenant(t, s, "push")

	require.NoError(t, s.UpdateTenantPush(ctx, tenant.ID, "123", "secret"))
	got, err := s.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.True(t, got.PushConfigured())

	require.NoError(t, s.UpdateTenantPush(ctx, tenant.ID, "", ""))
	got, err = s.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.False(t, got.PushConfigured())
	assert.Empty(t, got.PushRoutingKey)
}

func TestUpdateTenantFlags(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	tenant := createTestTenant(t, s, "flags")

	flags := FeatureFlags{Bans: true, Shutdowns: true}
	require.NoError(t, s.UpdateTenantFlags(ctx, tenant.ID, flags))

	got, err := s.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, flags, got.Flags)
}

func TestUpdateTenant_NotFound(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.UpdateTenantFlags(ctx, "missing", FeatureFlags{}), ErrNotFound)
	assert.ErrorIs(t, s.UpdateTenantPush(ctx, "missing", "a", "b"), ErrNotFound)
	assert.ErrorIs(t, s.UpdateTenantAPIKey(ctx, "missing", "x"), ErrNotFound)
}

func TestFeatureFlags_Map(t *testing.T) {
	m := DefaultFeatureFlags().Map()
	assert.Equal(t, map[string]bool{
		"kicks":         true,
		"bans":          true,
		"announcements": true,
		"shutdowns":     false,
	}, m)
}
