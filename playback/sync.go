package playback

import (
	"log"
	"time"

	"github.com/attunefm/attune/history"
	"github.com/attunefm/attune/protocol"
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseConverging Phase = "converging"
	PhaseConverged  Phase = "converged"
)

// Reconciler applies host-sent sync frames to the local player. Continuous
// position drift is corrected only outside the deadzone; discrete events
// (pause, resume, track change) apply immediately.
type Reconciler struct {
	player   Player
	recorder history.Recorder
	deadzone time.Duration

	phase          Phase
	lastSeq        uint64
	currentTrackID string

	// ExtraDelay is added to the ping compensation, e.g. a user-tuned
	// manual offset for laggy audio hardware.
	ExtraDelay time.Duration

	// Listener names the local peer in attribution events.
	Listener string
}

func NewReconciler(player Player, recorder history.Recorder) *Reconciler {
	return &Reconciler{
		player:   player,
		recorder: recorder,
		deadzone: protocol.DriftDeadzone,
		phase:    PhaseIdle,
	}
}

func (r *Reconciler) Phase() Phase {
	return r.phase
}

// Apply reconciles one received sync frame. rtt is the current measured
// round trip to the sender; half of it approximates the frame's time in
// flight.
func (r *Reconciler) Apply(state protocol.SyncState, rtt time.Duration) {
	if state.Seq != 0 && state.Seq <= r.lastSeq {
		// stale or duplicate frame; the latest one already won
		return
	}
	r.lastSeq = state.Seq

	if state.Track == nil || state.Track.ID == "" {
		r.applyStop()
		return
	}

	target := r.targetPosition(state, rtt)

	trackID, localPosition, localPaused := r.player.CurrentState()
	trackChanged := trackID != state.Track.ID
	pauseChanged := localPaused != state.Paused

	switch {
	case trackChanged:
		r.player.ApplyRemoteState(state.Track.ID, target, state.Paused)
		r.phase = PhaseConverging
	case pauseChanged:
		r.player.ApplyRemoteState(state.Track.ID, target, state.Paused)
		r.phase = PhaseConverging
	default:
		delta := localPosition - target
		if delta < 0 {
			delta = -delta
		}
		if delta < r.deadzone {
			r.phase = PhaseConverged
			break
		}
		log.Printf("sync: drift %s on %q, seeking", delta, state.Track.Title)
		r.player.ApplyRemoteState(state.Track.ID, target, state.Paused)
		r.phase = PhaseConverging
	}

	r.attribute(state)
	r.currentTrackID = state.Track.ID
}

// targetPosition estimates where the sender is "now": the reported
// position, plus the time the frame has existed, plus half the round trip,
// plus any manual offset. A paused clock is frozen, so no compensation.
func (r *Reconciler) targetPosition(state protocol.SyncState, rtt time.Duration) time.Duration {
	if state.Paused {
		return state.Position
	}
	target := state.Position + rtt/2 + r.ExtraDelay
	if elapsed := time.Since(state.CapturedAt); elapsed > 0 {
		target += elapsed
	}
	if target < 0 {
		target = 0
	}
	return target
}

func (r *Reconciler) applyStop() {
	if r.currentTrackID == "" && r.phase == PhaseIdle {
		return
	}
	r.player.ApplyRemoteState("", 0, true)
	r.currentTrackID = ""
	r.phase = PhaseIdle
}

// attribute forwards the frame's metadata so listening statistics credit
// the right track even though this peer never chose it.
func (r *Reconciler) attribute(state protocol.SyncState) {
	if r.recorder == nil || state.Paused {
		return
	}
	listener := r.Listener
	if listener == "" {
		listener = "local"
	}
	r.recorder.Record(history.Event{
		Timestamp:  time.Now(),
		Title:      state.Track.Title,
		Artist:     state.Track.Artist,
		ProviderID: state.Track.ProviderID,
		Listener:   listener,
	})
}

// Capture builds the outgoing sync frame for the local player state.
func Capture(player Player, seq uint64, track *protocol.TrackInfo, rtt time.Duration) protocol.SyncState {
	_, position, paused := player.CurrentState()
	return protocol.SyncState{
		Seq:        seq,
		Track:      track,
		Position:   position,
		Paused:     paused,
		CapturedAt: time.Now(),
		SenderRTT:  rtt,
	}
}
