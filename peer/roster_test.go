package peer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoster(t *testing.T) {
	t.Run("add assigns id", func(t *testing.T) {
		roster := NewRoster()
		p, err := roster.Add("", "alice", "192.0.2.4:9", RoleListener)
		require.NoError(t, err)
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, 1, roster.Size())
	})

	t.Run("nickname collision rejected", func(t *testing.T) {
		roster := NewRoster()
		_, err := roster.Add("", "alice", "", RoleListener)
		require.NoError(t, err)

		_, err = roster.Add("", "ALICE", "", RoleListener)
		assert.ErrorIs(t, err, ErrNicknameInUse)
	})

	t.Run("rejoin keeps ownership", func(t *testing.T) {
		roster := NewRoster()
		p, err := roster.Add("", "alice", "", RoleListener)
		require.NoError(t, err)
		require.NoError(t, roster.GrantItem(p.ID, "item-1"))

		_, err = roster.Add(p.ID, "alice", "198.51.100.7:9", RoleListener)
		require.NoError(t, err)
		assert.True(t, roster.OwnsItem(p.ID, "item-1"))
	})

	t.Run("prune evicts silent peers", func(t *testing.T) {
		roster := NewRoster()
		_, err := roster.Add("", "host", "", RoleHost)
		require.NoError(t, err)
		stale, err := roster.Add("", "alice", "", RoleListener)
		require.NoError(t, err)
		fresh, err := roster.Add("", "bob", "", RoleListener)
		require.NoError(t, err)

		stale.LastSeen = time.Now().Add(-10 * time.Second)

		evicted := roster.PruneStale(5 * time.Second)
		require.Len(t, evicted, 1)
		assert.Equal(t, stale.ID, evicted[0].ID)

		_, ok := roster.Get(fresh.ID)
		assert.True(t, ok)
		assert.Equal(t, 2, roster.Size())
	})

	t.Run("rtt smoothing weights history", func(t *testing.T) {
		roster := NewRoster()
		p, err := roster.Add("", "alice", "", RoleListener)
		require.NoError(t, err)

		require.NoError(t, roster.ObserveRTT(p.ID, 100*time.Millisecond))
		assert.Equal(t, 100*time.Millisecond, p.RTT)

		require.NoError(t, roster.ObserveRTT(p.ID, 200*time.Millisecond))
		assert.Equal(t, 125*time.Millisecond, p.RTT)
	})
}

func TestRejoinToken(t *testing.T) {
	secret := []byte("test-signing-secret")
	p := &Peer{ID: "peer-1", Nickname: "alice"}

	token, err := p.RejoinToken("room-1", secret)
	require.NoError(t, err)

	id, nick, err := ParseRejoinToken(token, "room-1", secret)
	require.NoError(t, err)
	assert.Equal(t, "peer-1", id)
	assert.Equal(t, "alice", nick)

	_, _, err = ParseRejoinToken(token, "room-2", secret)
	assert.Error(t, err)

	_, _, err = ParseRejoinToken(token, "room-1", []byte("other-secret"))
	assert.Error(t, err)
}
