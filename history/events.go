package history

import (
	"sync"
	"time"
)

// Event is one listen-attribution record: a track a peer heard through the
// room, keyed the way the statistics subsystem identifies tracks across
// local and online sources.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	Title      string    `json:"title"`
	Artist     string    `json:"artist,omitempty"`
	ProviderID string    `json:"provider_id,omitempty"`
	Listener   string    `json:"listener"`
	Origin     string    `json:"origin,omitempty"`
}

// Recorder receives attribution events as sync frames are applied. The
// statistics subsystem supplies the real implementation; the session core
// never aggregates or persists anything itself.
type Recorder interface {
	Record(event Event)
}

// RecorderFunc adapts a plain function to the Recorder interface.
type RecorderFunc func(event Event)

func (f RecorderFunc) Record(event Event) {
	f(event)
}

const ringCapacity = 64

// Ring keeps the most recent events in memory for the admin surface. It
// also collapses repeats: periodic sync frames for the same track and
// listener produce one event, not one per frame.
type Ring struct {
	mu     sync.Mutex
	events []Event
	next   int
	filled bool

	lastKey string
}

func NewRing() *Ring {
	return &Ring{
		events: make([]Event, ringCapacity),
	}
}

func (r *Ring) Record(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := event.Listener + "\x00" + event.Title + "\x00" + event.Artist + "\x00" + event.ProviderID
	if key == r.lastKey {
		return
	}
	r.lastKey = key

	r.events[r.next] = event
	r.next = (r.next + 1) % len(r.events)
	if r.next == 0 {
		r.filled = true
	}
}

// Recent returns events oldest first.
func (r *Ring) Recent() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.filled {
		recent := make([]Event, r.next)
		copy(recent, r.events[:r.next])
		return recent
	}

	recent := make([]Event, 0, len(r.events))
	recent = append(recent, r.events[r.next:]...)
	recent = append(recent, r.events[:r.next]...)
	return recent
}

func (r *Ring) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.filled {
		return len(r.events)
	}
	return r.next
}
