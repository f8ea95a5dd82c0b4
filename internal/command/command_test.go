package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_KickWithExplicitModerator(t *testing.T) {
	cmd, err := Parse("kick", map[string]any{"username": "Bob"}, "Alice")
	require.NoError(t, err)

	kick, ok := cmd.(Kick)
	require.True(t, ok)
	assert.Equal(t, KindKick, kick.Kind())
	assert.Equal(t, "Bob", kick.Username)
	assert.Equal(t, "Alice", kick.Moderator())

	args := cmd.Args()
	assert.Equal(t, "Bob", args["username"])
	assert.Equal(t, "Alice", args["moderator"])
	assert.NotContains(t, args, "reason")
}

func TestParse_NormalizesName(t *testing.T) {
	cmd, err := Parse("  Announce ", map[string]any{"message": "hi"}, "")
	require.NoError(t, err)
	assert.Equal(t, KindAnnounce, cmd.Kind())
}

func TestParse_MissingName(t *testing.T) {
	_, err := Parse("   ", map[string]any{"username": "Bob"}, "Alice")
	assert.ErrorIs(t, err, ErrMissingName)
}

func TestParse_ModeratorResolution(t *testing.T) {
	cases := []struct {
		name      string
		args      map[string]any
		moderator string
		want      string
	}{
		{"explicit wins over args", map[string]any{"username": "b", "moderator": "FromArgs"}, "Explicit", "Explicit"},
		{"args used when explicit empty", map[string]any{"username": "b", "moderator": "FromArgs"}, "", "FromArgs"},
		{"default when absent", map[string]any{"username": "b"}, "", DefaultModerator},
		{"default when blank", map[string]any{"username": "b", "moderator": "  "}, " ", DefaultModerator},
		{"non-string args moderator ignored", map[string]any{"username": "b", "moderator": 7}, "", DefaultModerator},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := Parse("KICK", tc.args, tc.moderator)
			require.NoError(t, err)
			assert.Equal(t, tc.want, cmd.Moderator())
			assert.Equal(t, tc.want, cmd.Args()["moderator"])
		})
	}
}

func TestParse_ScalarArgsBecomeStrings(t *testing.T) {
	cmd, err := Parse("kick", map[string]any{"username": 12345.0, "reason": 3}, "mod")
	require.NoError(t, err)

	kick, ok := cmd.(Kick)
	require.True(t, ok)
	assert.Equal(t, "12345", kick.Username)
	assert.Equal(t, "3", kick.Reason)

	cmd, err = Parse("announce", map[string]any{"message": true}, "mod")
	require.NoError(t, err)
	assert.Equal(t, "true", cmd.(Announce).Message)
}

func TestParse_KnownKindWithoutTypedFieldIsUnknown(t *testing.T) {
	cases := []struct {
		name string
		args map[string]any
	}{
		{"KICK", map[string]any{}},
		{"BAN", map[string]any{"reason": "x"}},
		{"UNBAN", map[string]any{"username": ""}},
		{"ANNOUNCE", map[string]any{}},
		{"KICK", map[string]any{"userId": "12345"}},
		{"KICK", map[string]any{"username": map[string]any{"id": 1.0}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := Parse(tc.name, tc.args, "mod")
			require.NoError(t, err)

			unk, ok := cmd.(Unknown)
			require.True(t, ok)
			assert.Equal(t, Kind(tc.name), unk.Kind())

			args := cmd.Args()
			for k, v := range tc.args {
				assert.Equal(t, v, args[k])
			}
			assert.Equal(t, "mod", args["moderator"])
		})
	}
}

func TestParse_NonScalarOptionalKeptAsExtra(t *testing.T) {
	reason := []any{"spam", "abuse"}
	cmd, err := Parse("ban", map[string]any{"username": "Bob", "reason": reason}, "mod")
	require.NoError(t, err)

	ban := cmd.(Ban)
	assert.Equal(t, "", ban.Reason)
	assert.Equal(t, reason, cmd.Args()["reason"])
}

func TestParse_ShutdownNeedsNoArgs(t *testing.T) {
	cmd, err := Parse("shutdown", nil, "")
	require.NoError(t, err)
	assert.Equal(t, KindShutdown, cmd.Kind())
	assert.Equal(t, map[string]any{"moderator": DefaultModerator}, cmd.Args())
}

func TestParse_ExtraArgsPreserved(t *testing.T) {
	cmd, err := Parse("ban", map[string]any{"username": "Bob", "reason": "cheating", "duration_hours": 24.0}, "Alice")
	require.NoError(t, err)

	ban := cmd.(Ban)
	assert.Equal(t, "cheating", ban.Reason)
	assert.Equal(t, 24.0, ban.Extra["duration_hours"])

	args := cmd.Args()
	assert.Equal(t, 24.0, args["duration_hours"])
	assert.Equal(t, "cheating", args["reason"])
}

func TestParse_UnknownCarriesRawArgs(t *testing.T) {
	raw := map[string]any{"level": 3.0, "target": "zone-9"}
	cmd, err := Parse("teleport", raw, "Alice")
	require.NoError(t, err)

	unk, ok := cmd.(Unknown)
	require.True(t, ok)
	assert.Equal(t, Kind("TELEPORT"), unk.Kind())
	assert.Equal(t, "zone-9", unk.Raw["target"])

	args := cmd.Args()
	assert.Equal(t, 3.0, args["level"])
	assert.Equal(t, "Alice", args["moderator"])
}

func TestParse_DoesNotMutateInput(t *testing.T) {
	args := map[string]any{"username": "Bob", "moderator": "X"}
	_, err := Parse("kick", args, "Alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"username": "Bob", "moderator": "X"}, args)
}

func TestKindFlagAndAllowed(t *testing.T) {
	flags := map[string]bool{"kicks": true, "bans": false, "announcements": true, "shutdowns": false}

	assert.True(t, Allowed(KindKick, flags))
	assert.False(t, Allowed(KindBan, flags))
	assert.False(t, Allowed(KindUnban, flags))
	assert.True(t, Allowed(KindAnnounce, flags))
	assert.False(t, Allowed(KindShutdown, flags))
	assert.True(t, Allowed(Kind("TELEPORT"), flags))
	assert.Equal(t, "", Kind("TELEPORT").Flag())
}
