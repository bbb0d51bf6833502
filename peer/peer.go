package peer

import (
	"time"
)

type Role string

const (
	RoleHost     Role = "host"
	RoleListener Role = "listener"
)

// Peer is one roster entry. The host's roster is the source of truth for
// who may receive broadcasts; connections refer to peers by ID only.
type Peer struct {
	ID       string        `json:"id"`
	Nickname string        `json:"nickname"`
	Addr     string        `json:"addr"`
	Role     Role          `json:"role"`
	RTT      time.Duration `json:"rtt"`
	LastSeen time.Time     `json:"last_seen"`

	// ManualDelay is a user-set playback offset added on top of the
	// automatic ping compensation.
	ManualDelay time.Duration `json:"manual_delay,omitempty"`

	ownedItems map[string]bool
}

func (p *Peer) IsHost() bool {
	return p.Role == RoleHost
}

func (p *Peer) OwnsItem(itemID string) bool {
	return p.ownedItems[itemID]
}

func (p *Peer) GrantItem(itemID string) {
	if p.ownedItems == nil {
		p.ownedItems = map[string]bool{}
	}
	p.ownedItems[itemID] = true
}

func (p *Peer) OwnedItems() []string {
	items := make([]string, 0, len(p.ownedItems))
	for id := range p.ownedItems {
		items = append(items, id)
	}
	return items
}

// EffectiveDelay is what the reconciler compensates for: measured one-way
// network delay plus the user's manual offset.
func (p *Peer) EffectiveDelay() time.Duration {
	return p.RTT/2 + p.ManualDelay
}

// smoothRTT folds a new sample into the running estimate, weighting history
// three to one so a single outlier ping doesn't jolt the compensation.
func smoothRTT(prev, sample time.Duration) time.Duration {
	if prev == 0 {
		return sample
	}
	return (3*prev + sample) / 4
}
