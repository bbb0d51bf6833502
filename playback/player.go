package playback

import (
	"sync"
	"time"
)

// Player is the capability the audio subsystem exposes to the session core.
// The core never touches decoding or output; it only steers playback and
// reads back where the local clock is.
type Player interface {
	// ApplyRemoteState switches track, seeks and sets the pause flag in one
	// call. trackID may equal the current track, in which case only the
	// position and pause flag change.
	ApplyRemoteState(trackID string, position time.Duration, paused bool)

	// CurrentState reports the local playback clock.
	CurrentState() (trackID string, position time.Duration, paused bool)

	// OnTrackFinished registers the end-of-song callback used to drive
	// queue advancement.
	OnTrackFinished(callback func(trackID string))
}

// VirtualPlayer advances a position clock from wall time without any audio
// output, so a headless host still broadcasts meaningful sync frames.
type VirtualPlayer struct {
	mu         sync.Mutex
	trackID    string
	position   time.Duration
	paused     bool
	length     time.Duration
	updatedAt  time.Time
	onFinished func(trackID string)
}

func NewVirtualPlayer() *VirtualPlayer {
	return &VirtualPlayer{updatedAt: time.Now()}
}

// SetTrackLength arms the finish callback: once the projected position
// passes the length, the track counts as finished.
func (v *VirtualPlayer) SetTrackLength(length time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.length = length
}

func (v *VirtualPlayer) ApplyRemoteState(trackID string, position time.Duration, paused bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.trackID = trackID
	v.position = position
	v.paused = paused
	v.updatedAt = time.Now()
}

func (v *VirtualPlayer) CurrentState() (string, time.Duration, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.trackID, v.project(), v.paused
}

func (v *VirtualPlayer) OnTrackFinished(callback func(trackID string)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onFinished = callback
}

// Tick folds elapsed wall time into the stored position and fires the
// finish callback when the virtual track runs out.
func (v *VirtualPlayer) Tick() {
	v.mu.Lock()
	v.position = v.project()
	v.updatedAt = time.Now()

	finished := v.length > 0 && v.trackID != "" && v.position >= v.length
	trackID := v.trackID
	callback := v.onFinished
	if finished {
		v.trackID = ""
		v.position = 0
		v.length = 0
	}
	v.mu.Unlock()

	if finished && callback != nil {
		callback(trackID)
	}
}

// project returns the position as of now; frozen while paused.
func (v *VirtualPlayer) project() time.Duration {
	if v.paused || v.trackID == "" {
		return v.position
	}
	return v.position + time.Since(v.updatedAt)
}
