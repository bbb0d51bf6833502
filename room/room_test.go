package room

import (
	"testing"

	"github.com/attunefm/attune/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	r, err := New(Params{Name: "late night", Password: "hunter2"})
	require.NoError(t, err)

	assert.Len(t, r.Code, 6)
	assert.Equal(t, ModeCollaborative, r.Mode)
	assert.Equal(t, protocol.DefaultMaxPeers, r.MaxPeers)
	assert.NotEmpty(t, r.HostPeerID)
	assert.NotEmpty(t, r.SigningSecret())
	assert.Equal(t, 1, r.Roster.Size())

	t.Run("password", func(t *testing.T) {
		assert.True(t, r.HasPassword())
		assert.True(t, r.ValidatePassword("hunter2"))
		assert.False(t, r.ValidatePassword("hunter3"))
	})

	t.Run("max peers bounds", func(t *testing.T) {
		_, err := New(Params{MaxPeers: 1})
		assert.Error(t, err)
		_, err = New(Params{MaxPeers: 33})
		assert.Error(t, err)
	})
}

func TestSnapshot(t *testing.T) {
	r, err := New(Params{Name: "late night"})
	require.NoError(t, err)

	state := r.Snapshot()
	assert.Equal(t, r.Code, state.Code)
	assert.Len(t, state.Participants, 1)
	assert.True(t, state.Participants[0].IsHost)
	assert.Empty(t, state.Queue)
}
