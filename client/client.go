package client

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/attunefm/attune/constants"
	"github.com/attunefm/attune/history"
	"github.com/attunefm/attune/invite"
	"github.com/attunefm/attune/playback"
	"github.com/attunefm/attune/protocol"
	"github.com/attunefm/attune/queue"
	"github.com/attunefm/attune/session"
	"github.com/attunefm/attune/transfer"
)

var (
	ErrIncompatibleVersion = errors.New("host runs an incompatible protocol version")
	ErrRoomFull            = errors.New(constants.ErrorRoomFull)
	ErrPasswordRequired    = errors.New("room requires a password")
	ErrInvalidPassword     = errors.New(constants.ErrorPassword)
	ErrNicknameInUse       = errors.New(constants.ErrorNicknameInUse)
	ErrRejected            = errors.New("host rejected the connection")
	ErrDisconnected        = errors.New("disconnected from host")
)

// Client is the joining side of a session: one connection to the host, a
// mirrored view of the room, and a reconciler steering local playback
// toward the host's clock. The mirror is only ever overwritten by
// host-sent state, never mutated locally.
type Client struct {
	conn       *session.Conn
	peerID     string
	nickname   string
	roomCode   string
	rejoinTok  string
	reconciler *playback.Reconciler
	player     playback.Player
	transfers  *transfer.Manager
	source     transfer.Source

	mu            sync.Mutex
	mirror        *queue.SharedQueue
	roster        []protocol.ParticipantInfo
	lastHostFrame time.Time
	connected     bool
	disconnectMsg string

	done chan struct{}
}

type JoinParams struct {
	InviteToken string
	Password    string
	Nickname    string

	// RejoinToken, when present from an earlier session, reclaims the
	// previous peer identity through a fresh handshake.
	RejoinToken string

	Player   playback.Player
	Recorder history.Recorder
	Source   transfer.Source
	CacheDir string
}

// Join decodes the invite, connects, and runs the handshake. Decoding only
// happens here, once both the token and the password are in hand.
func Join(params JoinParams) (*Client, error) {
	address, inviteParams, err := invite.Decode(params.InviteToken, params.Password)
	if err != nil {
		return nil, err
	}

	conn, err := session.Dial(address)
	if err != nil {
		return nil, err
	}

	ack, err := conn.Handshake(protocol.Hello{
		Version:     protocol.Version,
		RoomCode:    inviteParams.SessionID,
		Nickname:    params.Nickname,
		Password:    params.Password,
		RejoinToken: params.RejoinToken,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if !ack.Accepted {
		conn.Close()
		return nil, rejectError(ack.Reason)
	}

	c := &Client{
		conn:          conn,
		peerID:        ack.PeerID,
		nickname:      params.Nickname,
		roomCode:      inviteParams.SessionID,
		rejoinTok:     ack.RejoinToken,
		player:        params.Player,
		source:        params.Source,
		mirror:        queue.NewSharedQueue(""),
		lastHostFrame: time.Now(),
		connected:     true,
		done:          make(chan struct{}),
	}
	c.reconciler = playback.NewReconciler(params.Player, params.Recorder)
	c.reconciler.Listener = params.Nickname
	c.transfers = transfer.NewManager(params.Source, params.CacheDir)
	c.transfers.OnComplete(func(itemID string, path string, err error) {
		if err != nil {
			log.Printf("download for %s failed: %s", itemID, err)
			return
		}
		log.Printf("item %s cached at %s", itemID, path)
	})

	if ack.Room != nil {
		c.mirror.ReplaceAll(queue.FromWire(ack.Room.Queue))
		c.roster = ack.Room.Participants
	}

	params.Player.OnTrackFinished(func(trackID string) {
		c.onTrackFinished(trackID)
	})

	go c.recvLoop()
	return c, nil
}

func rejectError(reason string) error {
	switch reason {
	case protocol.RejectIncompatibleVersion:
		return ErrIncompatibleVersion
	case protocol.RejectRoomFull:
		return ErrRoomFull
	case protocol.RejectPasswordRequired:
		return ErrPasswordRequired
	case protocol.RejectInvalidPassword:
		return ErrInvalidPassword
	case protocol.RejectNicknameInUse:
		return ErrNicknameInUse
	default:
		return fmt.Errorf("%w: %s", ErrRejected, reason)
	}
}

func (c *Client) PeerID() string {
	return c.peerID
}

// RejoinToken is what the caller persists to reclaim this identity after a
// disconnect.
func (c *Client) RejoinToken() string {
	return c.rejoinTok
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// DisconnectReason is empty while connected.
func (c *Client) DisconnectReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectMsg
}

func (c *Client) Roster() []protocol.ParticipantInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	roster := make([]protocol.ParticipantInfo, len(c.roster))
	copy(roster, c.roster)
	return roster
}

func (c *Client) QueueSnapshot() []queue.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mirror.Snapshot()
}

// SetExtraDelay is the user-tuned manual playback offset.
func (c *Client) SetExtraDelay(delay time.Duration) {
	c.reconciler.ExtraDelay = delay
}

// Enqueue sends a local library item to the shared queue. itemID must be
// resolvable through the transfer source, because the host will come asking
// for the bytes.
func (c *Client) Enqueue(itemID string, track protocol.TrackInfo) error {
	if !c.IsConnected() {
		return ErrDisconnected
	}
	return c.conn.SendMessage(protocol.TypeQueueAdd, protocol.QueueAdd{
		Item: protocol.QueueItemState{
			ID:      itemID,
			OwnerID: c.peerID,
			Track:   track,
			State:   string(queue.StateAvailable),
		},
	})
}

// Request pulls the bytes for a queued item from the host.
func (c *Client) Request(itemID string) error {
	if !c.IsConnected() {
		return ErrDisconnected
	}
	_, err := c.transfers.Request(itemID, c.conn.Send)
	return err
}

// Leave tells the host goodbye and tears the session down.
func (c *Client) Leave() {
	if c.IsConnected() {
		_ = c.conn.SendMessage(protocol.TypeLeave, protocol.Leave{PeerID: c.peerID})
	}
	c.disconnect("left room")
}

// NextShared implements the shared-over-local priority rule: given what the
// local queue would play next, it answers what should actually play. A
// non-empty shared queue always wins; an exhausted one stops playback
// rather than falling back.
func (c *Client) NextShared() (*queue.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mirror.IsEmpty() {
		return nil, false
	}
	return c.mirror.PeekHead(), true
}

// onTrackFinished reports end-of-song to the host. The host applies the
// last-player authority rule, so an unauthorized advance is simply
// ignored there.
func (c *Client) onTrackFinished(trackID string) {
	if !c.IsConnected() {
		return
	}
	_ = c.conn.SendMessage(protocol.TypeAdvance, protocol.Advance{FinishedTrackID: trackID})
}

// SyncCycle is a no-op on the client; only hosts broadcast.
func (c *Client) SyncCycle() {}

func (c *Client) PingCycle() {
	if !c.IsConnected() {
		return
	}
	if err := c.conn.SendPing(); err != nil {
		c.disconnect("ping failed")
	}
}

// EvictionCycle mirrors the host's timeout from the other side: a silent
// host means this session is over. No automatic retry - reconnection is a
// fresh Join.
func (c *Client) EvictionCycle() {
	c.mu.Lock()
	silent := c.connected && time.Since(c.lastHostFrame) > protocol.PeerTimeout
	c.mu.Unlock()
	if silent {
		c.disconnect("host silent")
	}
}

func (c *Client) recvLoop() {
	for {
		frame, err := c.conn.Read()
		if err != nil {
			c.disconnect("connection lost")
			return
		}

		c.mu.Lock()
		c.lastHostFrame = time.Now()
		c.mu.Unlock()

		c.handleFrame(frame)

		select {
		case <-c.done:
			return
		default:
		}
	}
}

func (c *Client) handleFrame(frame protocol.Frame) {
	switch frame.Type {
	case protocol.TypePing:
		var ping protocol.Ping
		if frame.DecodePayload(&ping) == nil {
			_ = c.conn.SendMessage(protocol.TypePong, protocol.Pong{ID: ping.ID})
		}
	case protocol.TypePong:
		var pong protocol.Pong
		if frame.DecodePayload(&pong) == nil {
			c.conn.HandlePong(pong)
		}
	case protocol.TypeSync:
		var state protocol.SyncState
		if frame.DecodePayload(&state) == nil {
			c.reconciler.Apply(state, c.conn.RTT())
		}
	case protocol.TypeQueueState:
		var queueState protocol.QueueState
		if frame.DecodePayload(&queueState) == nil {
			c.mu.Lock()
			c.mirror.ReplaceAll(queue.FromWire(queueState.Items))
			c.mu.Unlock()
		}
	case protocol.TypeRoster:
		var roster protocol.RosterUpdate
		if frame.DecodePayload(&roster) == nil {
			c.mu.Lock()
			c.roster = roster.Participants
			c.mu.Unlock()
		}
	case protocol.TypeHostLeft:
		c.disconnect("host left")
	case protocol.TypeTransferRequest:
		var req protocol.TransferRequest
		if frame.DecodePayload(&req) == nil {
			// the host may only pull items this peer enqueued itself
			if err := c.transfers.Serve(req, c.ownsItem(req.ItemID), c.conn.Send); err != nil {
				log.Printf("serve %s to host: %s", req.ItemID, err)
			}
		}
	case protocol.TypeTransferAccept:
		var accept protocol.TransferAccept
		if frame.DecodePayload(&accept) == nil {
			if err := c.transfers.HandleAccept(accept); err != nil {
				log.Printf("transfer accept: %s", err)
			}
		}
	case protocol.TypeTransferReject:
		var reject protocol.TransferReject
		if frame.DecodePayload(&reject) == nil {
			_ = c.transfers.HandleReject(reject)
		}
	case protocol.TypeFileChunk:
		var chunk protocol.Chunk
		if frame.DecodePayload(&chunk) == nil {
			if err := c.transfers.HandleChunk(chunk); err != nil {
				log.Printf("transfer chunk: %s", err)
			}
		}
	case protocol.TypeTransferComplete:
		var complete protocol.TransferComplete
		if frame.DecodePayload(&complete) == nil {
			c.transfers.HandleComplete(complete)
		}
	}
}

// ownsItem checks the mirrored queue's recorded owner.
func (c *Client) ownsItem(itemID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	item := c.mirror.Find(itemID)
	return item != nil && item.OwnerID == c.peerID
}

// disconnect is terminal: playback reconciliation stops and the local
// player is left alone from here on.
func (c *Client) disconnect(reason string) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.disconnectMsg = reason
	c.mu.Unlock()

	close(c.done)
	c.transfers.AbandonAll()
	c.conn.Close()
	log.Printf("session over: %s", reason)
}
