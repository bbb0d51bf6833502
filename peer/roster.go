package peer

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

var (
	ErrNicknameInUse = errors.New("nickname already in roster")
	ErrUnknownPeer   = errors.New("peer not in roster")
)

// Roster is the arena of peer records for one room, keyed by peer ID. All
// host-side bookkeeping goes through it; evicting an entry is what cuts a
// peer out of future broadcasts.
type Roster struct {
	mu    sync.RWMutex
	peers map[string]*Peer
}

func NewRoster() *Roster {
	return &Roster{
		peers: make(map[string]*Peer),
	}
}

// Add registers a new peer. If peerID is empty a fresh one is assigned;
// passing a previous ID (from a rejoin token) restores that identity.
func (r *Roster) Add(peerID string, nickname string, addr string, role Role) (*Peer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.peers {
		if id != peerID && strings.EqualFold(existing.Nickname, nickname) {
			return nil, ErrNicknameInUse
		}
	}

	if peerID == "" {
		peerID = uuid.NewString()
	}

	p := &Peer{
		ID:       peerID,
		Nickname: nickname,
		Addr:     addr,
		Role:     role,
		LastSeen: time.Now(),
	}
	if existing, ok := r.peers[peerID]; ok {
		// rejoin keeps ownership from the previous connection
		p.ownedItems = existing.ownedItems
	}
	r.peers[peerID] = p
	return p, nil
}

func (r *Roster) Get(peerID string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[peerID]
	return p, ok
}

func (r *Roster) Remove(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, peerID)
}

// Touch refreshes the last-seen timestamp for any observed frame.
func (r *Roster) Touch(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[peerID]; ok {
		p.LastSeen = time.Now()
	}
}

func (r *Roster) ObserveRTT(peerID string, sample time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok {
		return ErrUnknownPeer
	}
	p.RTT = smoothRTT(p.RTT, sample)
	p.LastSeen = time.Now()
	return nil
}

func (r *Roster) GrantItem(peerID string, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok {
		return ErrUnknownPeer
	}
	p.GrantItem(itemID)
	return nil
}

func (r *Roster) OwnsItem(peerID string, itemID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[peerID]
	return ok && p.OwnsItem(itemID)
}

// PruneStale removes every peer silent for longer than the timeout and
// returns the evicted records.
func (r *Roster) PruneStale(timeout time.Duration) []*Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := []*Peer{}
	now := time.Now()
	for id, p := range r.peers {
		if p.IsHost() {
			continue
		}
		if now.Sub(p.LastSeen) > timeout {
			evicted = append(evicted, p)
			delete(r.peers, id)
		}
	}
	return evicted
}

func (r *Roster) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

func (r *Roster) List() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := lo.Values(r.peers)
	return lo.Filter(peers, func(p *Peer, _ int) bool { return p != nil })
}
