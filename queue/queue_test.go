package queue

import (
	"fmt"
	"testing"

	"github.com/attunefm/attune/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hostID = "host-peer"

func testItem(id string, owner string) Item {
	return Item{
		ID:      id,
		OwnerID: owner,
		Track:   protocol.TrackInfo{ID: id, Title: "Track " + id},
	}
}

func TestEnqueue(t *testing.T) {
	t.Run("fifo order", func(t *testing.T) {
		q := NewSharedQueue(hostID)
		require.NoError(t, q.Enqueue(testItem("a", "alice")))
		require.NoError(t, q.Enqueue(testItem("b", "bob")))

		head := q.PeekHead()
		require.NotNil(t, head)
		assert.Equal(t, "a", head.ID)
	})

	t.Run("duplicate id rejected", func(t *testing.T) {
		q := NewSharedQueue(hostID)
		require.NoError(t, q.Enqueue(testItem("a", "alice")))
		assert.ErrorIs(t, q.Enqueue(testItem("a", "bob")), ErrDuplicateItem)
		assert.Equal(t, 1, q.Size())
	})

	t.Run("cap enforced", func(t *testing.T) {
		q := NewSharedQueue(hostID)
		for i := 0; i < protocol.MaxQueueItems; i++ {
			require.NoError(t, q.Enqueue(testItem(fmt.Sprintf("item-%d", i), "alice")))
		}
		assert.ErrorIs(t, q.Enqueue(testItem("overflow", "alice")), ErrQueueFull)
	})

	t.Run("defaults to pending", func(t *testing.T) {
		q := NewSharedQueue(hostID)
		require.NoError(t, q.Enqueue(testItem("a", "alice")))
		assert.Equal(t, StatePending, q.PeekHead().State)
	})
}

func TestAdvance(t *testing.T) {
	t.Run("n advances drain n items", func(t *testing.T) {
		q := NewSharedQueue(hostID)
		for i := 0; i < 5; i++ {
			require.NoError(t, q.Enqueue(testItem(fmt.Sprintf("item-%d", i), "alice")))
		}

		for i := 0; i < 5; i++ {
			next, err := q.Advance(hostID)
			require.NoError(t, err)
			if i < 4 {
				require.NotNil(t, next)
				assert.Equal(t, fmt.Sprintf("item-%d", i+1), next.ID)
			} else {
				assert.Nil(t, next)
			}
		}
		assert.True(t, q.IsEmpty())
	})

	t.Run("host always authorized", func(t *testing.T) {
		q := NewSharedQueue(hostID)
		require.NoError(t, q.Enqueue(testItem("a", "alice")))
		_, err := q.Advance(hostID)
		assert.NoError(t, err)
	})

	t.Run("non-player peer rejected", func(t *testing.T) {
		q := NewSharedQueue(hostID)
		require.NoError(t, q.Enqueue(testItem("a", "alice")))

		_, err := q.Advance("bob")
		assert.ErrorIs(t, err, ErrNotAuthorized)
		assert.Equal(t, 1, q.Size())
	})

	t.Run("last player may advance", func(t *testing.T) {
		q := NewSharedQueue(hostID)
		require.NoError(t, q.Enqueue(testItem("a", "alice")))
		require.NoError(t, q.Enqueue(testItem("b", "bob")))

		q.MarkStarted("alice")
		next, err := q.Advance("alice")
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, "b", next.ID)

		// bob never played anything, so bob still can't advance
		_, err = q.Advance("bob")
		assert.ErrorIs(t, err, ErrNotAuthorized)
	})
}

func TestStateAndRemoval(t *testing.T) {
	t.Run("set state preserves order", func(t *testing.T) {
		q := NewSharedQueue(hostID)
		require.NoError(t, q.Enqueue(testItem("a", "alice")))
		require.NoError(t, q.Enqueue(testItem("b", "bob")))

		assert.True(t, q.SetState("b", StateReady))
		assert.False(t, q.SetState("missing", StateReady))

		items := q.Snapshot()
		require.Len(t, items, 2)
		assert.Equal(t, "a", items[0].ID)
		assert.Equal(t, StateReady, items[1].State)
	})

	t.Run("remove", func(t *testing.T) {
		q := NewSharedQueue(hostID)
		require.NoError(t, q.Enqueue(testItem("a", "alice")))
		assert.True(t, q.Remove("a"))
		assert.False(t, q.Remove("a"))
		assert.True(t, q.IsEmpty())
	})
}

func TestWireRoundTrip(t *testing.T) {
	q := NewSharedQueue(hostID)
	require.NoError(t, q.Enqueue(testItem("a", "alice")))
	require.NoError(t, q.Enqueue(testItem("b", "bob")))

	mirror := NewSharedQueue(hostID)
	mirror.ReplaceAll(FromWire(q.ToWire()))

	assert.Equal(t, q.Snapshot(), mirror.Snapshot())
}
