package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedIdentities(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertIdentityMapping(ctx, &IdentityMapping{
		LocalID: "local-1", ChatID: "111", ChatUsername: "BobTheBuilder", GameID: "9001", GameUsername: "BobBuilds",
	}))
	require.NoError(t, s.UpsertIdentityMapping(ctx, &IdentityMapping{
		LocalID: "local-2", ChatID: "222", ChatUsername: "alice", GameID: "9002", GameUsername: "AliceInGame",
	}))
}

func TestGetIdentityByChatID(t *testing.T) {
	s := setupTestStore(t)
	seedIdentities(t, s)
	ctx := context.Background()

	m, err := s.GetIdentityByChatID(ctx, "111")
	require.NoError(t, err)
	assert.Equal(t, "local-1", m.LocalID)
	assert.Equal(t, "9001", m.GameID)

	m, err = s.GetIdentityByChatID(ctx, "bobthebuilder")
	require.NoError(t, err)
	assert.Equal(t, "local-1", m.LocalID)

	_, err = s.GetIdentityByChatID(ctx, "333")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetIdentityByChatID_ExactIDBeatsUsername(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertIdentityMapping(ctx, &IdentityMapping{LocalID: "a", ChatID: "x1", ChatUsername: "555"}))
	require.NoError(t, s.UpsertIdentityMapping(ctx, &IdentityMapping{LocalID: "b", ChatID: "555"}))

	m, err := s.GetIdentityByChatID(ctx, "555")
	require.NoError(t, err)
	assert.Equal(t, "b", m.LocalID)
}

func TestGetIdentityByGameID(t *testing.T) {
	s := setupTestStore(t)
	seedIdentities(t, s)
	ctx := context.Background()

	m, err := s.GetIdentityByGameID(ctx, "9002")
	require.NoError(t, err)
	assert.Equal(t, "local-2", m.LocalID)
	assert.Equal(t, "alice", m.ChatUsername)

	m, err = s.GetIdentityByGameID(ctx, "ALICEINGAME")
	require.NoError(t, err)
	assert.Equal(t, "local-2", m.LocalID)
}

func TestGetIdentityByLocalID_ExactOnly(t *testing.T) {
	s := setupTestStore(t)
	seedIdentities(t, s)
	ctx := context.Background()

	m, err := s.GetIdentityByLocalID(ctx, "local-2")
	require.NoError(t, err)
	assert.Equal(t, "222", m.ChatID)

	_, err = s.GetIdentityByLocalID(ctx, "LOCAL-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertIdentityMapping_ReplacesAndKeepsCreatedAt(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertIdentityMapping(ctx, &IdentityMapping{LocalID: "l", ChatID: "1"}))
	first, err := s.GetIdentityByLocalID(ctx, "l")
	require.NoError(t, err)

	require.NoError(t, s.UpsertIdentityMapping(ctx, &IdentityMapping{LocalID: "l", ChatID: "2", GameID: "g"}))
	second, err := s.GetIdentityByLocalID(ctx, "l")
	require.NoError(t, err)
	assert.Equal(t, "2", second.ChatID)
	assert.Equal(t, "g", second.GameID)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

	_, err = s.GetIdentityByChatID(ctx, "1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertIdentityMapping_ChatIDTakenByOtherLocal(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertIdentityMapping(ctx, &IdentityMapping{LocalID: "a", ChatID: "1"}))

	err := s.UpsertIdentityMapping(ctx, &IdentityMapping{LocalID: "b", ChatID: "1"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestUpsertIdentityMapping_RequiresLocalID(t *testing.T) {
	s := setupTestStore(t)
	assert.Error(t, s.UpsertIdentityMapping(context.Background(), &IdentityMapping{ChatID: "1"}))
}
