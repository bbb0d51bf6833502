package directory

import (
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

const (
	// AnnounceInterval is how often a host should re-announce its room.
	AnnounceInterval = 3 * time.Second

	// announceTTL drops rooms whose host stopped announcing, crashed hosts
	// included.
	announceTTL = 10 * time.Second

	// emptyRoomGrace keeps a just-emptied room listed briefly so a
	// reconnecting peer can still resolve it.
	emptyRoomGrace = 3 * time.Second
)

// Announcement is what a host reports about its room. Announcements carry
// no peer identities and no queue contents; the directory only knows
// enough to list and resolve.
type Announcement struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	PeerCount   int    `json:"peer_count"`
	MaxPeers    int    `json:"max_peers"`
	HasPassword bool   `json:"has_password"`
}

type Entry struct {
	Announcement
	Created time.Time `json:"created"`

	lastAnnounce time.Time
	emptySince   time.Time
}

// Registry is the room listing a home directory server keeps. It is an
// announcement cache, not a source of truth: the host's own room state
// always wins, and entries evaporate when announcements stop.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: map[string]*Entry{}}
}

// Announce upserts a room listing. The first announcement creates the
// entry; later ones refresh it in place.
func (r *Registry) Announce(a Announcement) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[a.Code]
	if !ok {
		entry = &Entry{Created: now}
		r.entries[a.Code] = entry
	}
	entry.Announcement = a
	entry.lastAnnounce = now

	if a.PeerCount == 0 {
		if entry.emptySince.IsZero() {
			entry.emptySince = now
		}
	} else {
		entry.emptySince = time.Time{}
	}
}

func (r *Registry) Resolve(code string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[code]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// List returns current rooms, oldest first.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := lo.Map(lo.Values(r.entries), func(entry *Entry, _ int) Entry {
		return *entry
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Created.Before(entries[j].Created)
	})
	return entries
}

func (r *Registry) Remove(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, code)
}

func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Prune drops silent and long-empty rooms and reports how many went.
func (r *Registry) Prune() int {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for code, entry := range r.entries {
		stale := now.Sub(entry.lastAnnounce) > announceTTL
		abandoned := !entry.emptySince.IsZero() && now.Sub(entry.emptySince) > emptyRoomGrace
		if stale || abandoned {
			delete(r.entries, code)
			removed++
		}
	}
	return removed
}
