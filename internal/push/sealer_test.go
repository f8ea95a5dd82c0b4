package push

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealer_SealOpen(t *testing.T) {
	key := make([]byte, 32)
	key[0] = 7
	s, err := NewSealer(key)
	require.NoError(t, err)

	sealed, err := s.Seal("hunter2")
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.NotContains(t, sealed, "hunter2")

	again, err := s.Seal("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", opened)
}

func TestSealer_WrongKeyFails(t *testing.T) {
	a, err := NewSealer(make([]byte, 32))
	require.NoError(t, err)
	other := make([]byte, 32)
	other[31] = 1
	b, err := NewSealer(other)
	require.NoError(t, err)

	sealed, err := a.Seal("secret")
	require.NoError(t, err)

	_, err = b.Open(sealed)
	assert.Error(t, err)
}

func TestSealer_PlaintextPassesThrough(t *testing.T) {
	s, err := NewSealer(make([]byte, 32))
	require.NoError(t, err)

	v, err := s.Open("legacy-plain")
	require.NoError(t, err)
	assert.Equal(t, "legacy-plain", v)

	var nilSealer *Sealer
	v, err = nilSealer.Seal("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", v)

	v, err = nilSealer.Open("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", v)
}

func TestSealer_RejectsBadInput(t *testing.T) {
	_, err := NewSealer([]byte("short"))
	assert.Error(t, err)

	s, err := NewSealer(make([]byte, 32))
	require.NoError(t, err)

	_, err = s.Open(sealedPrefix + "!!!")
	assert.Error(t, err)

	_, err = s.Open(sealedPrefix + "AAAA")
	assert.Error(t, err)
}
