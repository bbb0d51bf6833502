package queue

import (
	"errors"
	"sync"

	"github.com/attunefm/attune/protocol"
	"github.com/attunefm/attune/util"
	"github.com/samber/lo"
)

var (
	ErrDuplicateItem = errors.New("item already queued")
	ErrQueueFull     = errors.New("shared queue is full")
	ErrNotAuthorized = errors.New("peer may not advance the queue")
)

// TransferState tracks whether the bytes for an item are locally playable.
type TransferState string

const (
	StatePending   TransferState = "pending"
	StateAvailable TransferState = "available-locally"
	StateStreaming TransferState = "streaming"
	StateReady     TransferState = "ready"
)

type Item struct {
	ID      string             `json:"id"`
	OwnerID string             `json:"owner_id"`
	Track   protocol.TrackInfo `json:"track"`
	State   TransferState      `json:"state"`
}

// SharedQueue is the room's FIFO of playable items. Insertion order is
// consumption order; ownership gates file access but never playback order.
//
// Advance authority: the host may always advance, and so may the "last
// player" - the peer that triggered the currently playing item. That keeps
// two peers from racing to advance past the same finished track.
type SharedQueue struct {
	mu           sync.Mutex
	items        *util.DoublyLinkedList[Item]
	hostID       string
	lastPlayerID string
	maxItems     int
}

func NewSharedQueue(hostID string) *SharedQueue {
	return &SharedQueue{
		items:    &util.DoublyLinkedList[Item]{},
		hostID:   hostID,
		maxItems: protocol.MaxQueueItems,
	}
}

func (q *SharedQueue) Enqueue(item Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Size() >= q.maxItems {
		return ErrQueueFull
	}
	if q.items.AnyMatch(func(existing Item) bool { return existing.ID == item.ID }) {
		return ErrDuplicateItem
	}
	if item.State == "" {
		item.State = StatePending
	}

	q.items.PushEnd(item)
	return nil
}

func (q *SharedQueue) PeekHead() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.PeekFirst()
}

// Advance pops the finished head on behalf of requesterID and returns the
// new head, or nil when the queue is exhausted. The requester becomes the
// last player.
func (q *SharedQueue) Advance(requesterID string) (*Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.mayAdvance(requesterID) {
		return nil, ErrNotAuthorized
	}

	q.items.PopFirst()
	q.lastPlayerID = requesterID
	return q.items.PeekFirst(), nil
}

// mayAdvance holds the authority rule. Before anyone has played, only the
// host qualifies.
func (q *SharedQueue) mayAdvance(requesterID string) bool {
	if requesterID == q.hostID {
		return true
	}
	return q.lastPlayerID != "" && requesterID == q.lastPlayerID
}

// MarkStarted records which peer triggered playback of the current head,
// granting it advance rights when the track finishes.
func (q *SharedQueue) MarkStarted(playerID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastPlayerID = playerID
}

func (q *SharedQueue) SetState(itemID string, state TransferState) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	found := false
	rebuilt := &util.DoublyLinkedList[Item]{}
	for _, item := range q.items.ToSlice() {
		if item.ID == itemID {
			item.State = state
			found = true
		}
		rebuilt.PushEnd(item)
	}
	if found {
		q.items = rebuilt
	}
	return found
}

func (q *SharedQueue) Remove(itemID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.RemoveFirstMatch(func(item Item) bool { return item.ID == itemID })
}

func (q *SharedQueue) Find(itemID string) *Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items.ToSlice() {
		if item.ID == itemID {
			found := item
			return &found
		}
	}
	return nil
}

func (q *SharedQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Size() == 0
}

func (q *SharedQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Size()
}

func (q *SharedQueue) Snapshot() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.ToSlice()
}

// ReplaceAll swaps in a host-sent queue state wholesale. Peers mirror the
// host's queue this way instead of mutating their own copy.
func (q *SharedQueue) ReplaceAll(items []Item) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = &util.DoublyLinkedList[Item]{}
	for _, item := range items {
		q.items.PushEnd(item)
	}
}

func (q *SharedQueue) ToWire() []protocol.QueueItemState {
	return lo.Map(q.Snapshot(), func(item Item, _ int) protocol.QueueItemState {
		return protocol.QueueItemState{
			ID:      item.ID,
			OwnerID: item.OwnerID,
			Track:   item.Track,
			State:   string(item.State),
		}
	})
}

func FromWire(items []protocol.QueueItemState) []Item {
	return lo.Map(items, func(wire protocol.QueueItemState, _ int) Item {
		return Item{
			ID:      wire.ID,
			OwnerID: wire.OwnerID,
			Track:   wire.Track,
			State:   TransferState(wire.State),
		}
	})
}
