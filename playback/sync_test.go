package playback

import (
	"testing"
	"time"

	"github.com/attunefm/attune/history"
	"github.com/attunefm/attune/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlayer records every ApplyRemoteState call.
type fakePlayer struct {
	trackID  string
	position time.Duration
	paused   bool
	applies  []time.Duration
}

func (f *fakePlayer) ApplyRemoteState(trackID string, position time.Duration, paused bool) {
	f.trackID = trackID
	f.position = position
	f.paused = paused
	f.applies = append(f.applies, position)
}

func (f *fakePlayer) CurrentState() (string, time.Duration, bool) {
	return f.trackID, f.position, f.paused
}

func (f *fakePlayer) OnTrackFinished(func(trackID string)) {}

func syncFrame(seq uint64, trackID string, position time.Duration, paused bool) protocol.SyncState {
	return protocol.SyncState{
		Seq:        seq,
		Track:      &protocol.TrackInfo{ID: trackID, Title: "Track " + trackID},
		Position:   position,
		Paused:     paused,
		CapturedAt: time.Now(),
	}
}

func TestReconcilerDeadzone(t *testing.T) {
	t.Run("small drift suppressed", func(t *testing.T) {
		player := &fakePlayer{trackID: "x", position: 10 * time.Second}
		r := NewReconciler(player, nil)

		r.Apply(syncFrame(1, "x", 10*time.Second, false), 0)

		assert.Empty(t, player.applies, "no seek inside the deadzone")
		assert.Equal(t, PhaseConverged, r.Phase())
	})

	t.Run("large drift seeks to compensated target", func(t *testing.T) {
		player := &fakePlayer{trackID: "x", position: 10 * time.Second}
		r := NewReconciler(player, nil)

		r.Apply(syncFrame(1, "x", 15*time.Second, false), 200*time.Millisecond)

		require.Len(t, player.applies, 1)
		// target = 15s + elapsed(~0) + rtt/2
		assert.InDelta(t, float64(15*time.Second+100*time.Millisecond), float64(player.applies[0]),
			float64(50*time.Millisecond))
		assert.Equal(t, PhaseConverging, r.Phase())
	})
}

func TestReconcilerDiscreteEvents(t *testing.T) {
	t.Run("pause applies despite tiny delta", func(t *testing.T) {
		player := &fakePlayer{trackID: "x", position: 10 * time.Second}
		r := NewReconciler(player, nil)

		r.Apply(syncFrame(1, "x", 10*time.Second, true), 0)

		require.Len(t, player.applies, 1)
		assert.True(t, player.paused)
		// paused clocks are frozen, so the target is the raw position
		assert.Equal(t, 10*time.Second, player.applies[0])
	})

	t.Run("track change applies immediately", func(t *testing.T) {
		player := &fakePlayer{trackID: "x", position: 10 * time.Second}
		r := NewReconciler(player, nil)

		r.Apply(syncFrame(1, "y", 0, false), 0)

		require.Len(t, player.applies, 1)
		assert.Equal(t, "y", player.trackID)
		assert.Equal(t, PhaseConverging, r.Phase())
	})

	t.Run("empty track stops playback", func(t *testing.T) {
		player := &fakePlayer{trackID: "x", position: 10 * time.Second}
		r := NewReconciler(player, nil)
		r.Apply(syncFrame(1, "x", 10*time.Second, false), 0)

		r.Apply(protocol.SyncState{Seq: 2, CapturedAt: time.Now()}, 0)
		assert.Equal(t, PhaseIdle, r.Phase())
		assert.True(t, player.paused)
	})
}

func TestReconcilerOrdering(t *testing.T) {
	player := &fakePlayer{trackID: "x", position: 10 * time.Second}
	r := NewReconciler(player, nil)

	r.Apply(syncFrame(5, "y", 0, false), 0)
	applied := len(player.applies)

	// an older frame arriving late must not rewind anything
	r.Apply(syncFrame(4, "x", 90*time.Second, false), 0)
	assert.Equal(t, applied, len(player.applies))
	assert.Equal(t, "y", player.trackID)
}

func TestReconcilerAttribution(t *testing.T) {
	recorded := []history.Event{}
	recorder := history.RecorderFunc(func(event history.Event) {
		recorded = append(recorded, event)
	})

	player := &fakePlayer{}
	r := NewReconciler(player, recorder)
	r.Listener = "alice"

	frame := syncFrame(1, "x", 0, false)
	frame.Track.Artist = "Some Band"
	frame.Track.ProviderID = "prov:123"
	r.Apply(frame, 0)

	require.Len(t, recorded, 1)
	assert.Equal(t, "Track x", recorded[0].Title)
	assert.Equal(t, "Some Band", recorded[0].Artist)
	assert.Equal(t, "prov:123", recorded[0].ProviderID)
	assert.Equal(t, "alice", recorded[0].Listener)
}

func TestVirtualPlayer(t *testing.T) {
	t.Run("advances while playing", func(t *testing.T) {
		v := NewVirtualPlayer()
		v.ApplyRemoteState("x", 0, false)

		time.Sleep(30 * time.Millisecond)
		_, position, _ := v.CurrentState()
		assert.Greater(t, position, time.Duration(0))
	})

	t.Run("frozen while paused", func(t *testing.T) {
		v := NewVirtualPlayer()
		v.ApplyRemoteState("x", 5*time.Second, true)

		time.Sleep(30 * time.Millisecond)
		_, position, _ := v.CurrentState()
		assert.Equal(t, 5*time.Second, position)
	})

	t.Run("fires finish callback", func(t *testing.T) {
		v := NewVirtualPlayer()
		var finished string
		v.OnTrackFinished(func(trackID string) { finished = trackID })

		v.ApplyRemoteState("x", 0, false)
		v.SetTrackLength(10 * time.Millisecond)

		time.Sleep(30 * time.Millisecond)
		v.Tick()
		assert.Equal(t, "x", finished)
	})
}
