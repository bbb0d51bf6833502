package session

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/attunefm/attune/history"
	"github.com/attunefm/attune/peer"
	"github.com/attunefm/attune/playback"
	"github.com/attunefm/attune/protocol"
	"github.com/attunefm/attune/queue"
	"github.com/attunefm/attune/room"
	"github.com/attunefm/attune/transfer"
	"github.com/attunefm/attune/util"
	"github.com/gorilla/websocket"
)

type messageKind int

const (
	msgFrame messageKind = iota
	msgAttach
	msgDetach
	msgTransferDone
	msgTrackFinished
	msgLocalEnqueue
	msgSyncTick
	msgPingTick
	msgEvictTick
	msgStats
	msgShutdown
)

type hostMessage struct {
	kind   messageKind
	peerID string
	frame  protocol.Frame
	link   *peerLink

	itemID      string
	path        string
	transferErr error
	trackID     string
	queueAdd    protocol.QueueAdd
	reply       chan int
}

type peerLink struct {
	peerID    string
	conn      *Conn
	transfers *transfer.Manager
}

// Host owns the authoritative room state. Every mutation - inbound frames,
// engine ticks, transfer completions, local track finishes - funnels
// through one inbox processed by a single loop, so connections never touch
// the room directly.
type Host struct {
	Room *room.Room

	player   playback.Player
	recorder history.Recorder
	source   transfer.Source
	cacheDir string

	advertiseAddr string

	inbox   chan hostMessage
	links   map[string]*peerLink
	starter map[string]string
	syncSeq uint64
	started time.Time
	done    chan struct{}
}

type HostParams struct {
	Room     *room.Room
	Player   playback.Player
	Recorder history.Recorder
	Source   transfer.Source
	CacheDir string

	// AdvertiseAddr is the address baked into invites: a discovered public
	// candidate when available, the bind address otherwise.
	AdvertiseAddr string
}

func NewHost(params HostParams) *Host {
	h := &Host{
		Room:          params.Room,
		player:        params.Player,
		recorder:      params.Recorder,
		source:        params.Source,
		cacheDir:      params.CacheDir,
		advertiseAddr: params.AdvertiseAddr,
		inbox:         make(chan hostMessage, 256),
		links:         make(map[string]*peerLink),
		starter:       make(map[string]string),
		started:       time.Now(),
		done:          make(chan struct{}),
	}
	h.player.OnTrackFinished(func(trackID string) {
		h.post(hostMessage{kind: msgTrackFinished, trackID: trackID})
	})
	return h
}

func (h *Host) AdvertiseAddr() string {
	return h.advertiseAddr
}

func (h *Host) Uptime() time.Duration {
	return time.Since(h.started)
}

// Run processes the inbox until Shutdown.
func (h *Host) Run() {
	for msg := range h.inbox {
		switch msg.kind {
		case msgFrame:
			h.handleFrame(msg.peerID, msg.frame)
		case msgAttach:
			h.links[msg.link.peerID] = msg.link
			h.broadcastRoster()
		case msgDetach:
			h.dropPeer(msg.peerID, "connection lost")
		case msgTransferDone:
			h.handleTransferDone(msg.itemID, msg.path, msg.transferErr)
		case msgTrackFinished:
			h.advance(h.Room.HostPeerID)
		case msgLocalEnqueue:
			h.handleQueueAdd(h.Room.HostPeerID, msg.queueAdd)
		case msgSyncTick:
			h.broadcastSync()
		case msgPingTick:
			h.pingAll()
		case msgEvictTick:
			h.evictStale()
		case msgStats:
			msg.reply <- h.activeTransferCount()
		case msgShutdown:
			h.broadcast(protocol.TypeHostLeft, protocol.HostLeft{Reason: "host shut down"})
			for _, link := range h.links {
				link.transfers.AbandonAll()
				link.conn.Close()
			}
			close(h.done)
			return
		}
	}
}

// EnqueueLocal adds an item the host user picked from their own library.
func (h *Host) EnqueueLocal(itemID string, track protocol.TrackInfo) {
	h.post(hostMessage{kind: msgLocalEnqueue, queueAdd: protocol.QueueAdd{
		Item: protocol.QueueItemState{ID: itemID, Track: track},
	}})
}

func (h *Host) Shutdown() {
	h.post(hostMessage{kind: msgShutdown})
	<-h.done
}

// SyncCycle, PingCycle and EvictionCycle are the engine hooks. Ticks are
// dropped rather than queued when the inbox is busy; the next cycle comes
// soon enough.
func (h *Host) SyncCycle() { h.postTick(msgSyncTick) }

func (h *Host) PingCycle() { h.postTick(msgPingTick) }

func (h *Host) EvictionCycle() { h.postTick(msgEvictTick) }

func (h *Host) post(msg hostMessage) {
	select {
	case h.inbox <- msg:
	case <-h.done:
	}
}

func (h *Host) postTick(kind messageKind) {
	select {
	case h.inbox <- hostMessage{kind: kind}:
	default:
	}
}

// AttachSocket runs the accepting side of the handshake on an upgraded
// connection, then hands the link to the host loop. Called from the HTTP
// handler goroutine; rejections close the socket without touching room
// state.
func (h *Host) AttachSocket(ws *websocket.Conn) {
	conn := NewConn(ws)

	hello, err := h.awaitHello(conn)
	if err != nil {
		log.Printf("handshake: %s", err)
		conn.Close()
		return
	}

	if reason := h.rejectReason(hello); reason != "" {
		_ = conn.SendMessage(protocol.TypeHelloAck, protocol.HelloAck{Accepted: false, Reason: reason})
		conn.Close()
		return
	}

	peerID, nickname := "", hello.Nickname
	if hello.RejoinToken != "" {
		tokenPeerID, tokenNick, err := peer.ParseRejoinToken(hello.RejoinToken, h.Room.ID, h.Room.SigningSecret())
		if err == nil {
			peerID, nickname = tokenPeerID, tokenNick
		}
	}

	record, err := h.Room.Roster.Add(peerID, nickname, conn.RemoteAddr(), peer.RoleListener)
	if errors.Is(err, peer.ErrNicknameInUse) {
		_ = conn.SendMessage(protocol.TypeHelloAck, protocol.HelloAck{Accepted: false, Reason: protocol.RejectNicknameInUse})
		conn.Close()
		return
	}
	if err != nil {
		log.Printf("roster add: %s", err)
		conn.Close()
		return
	}

	rejoinToken, err := record.RejoinToken(h.Room.ID, h.Room.SigningSecret())
	if err != nil {
		log.Printf("mint rejoin token: %s", err)
	}

	err = conn.SendMessage(protocol.TypeHelloAck, protocol.HelloAck{
		Accepted:    true,
		PeerID:      record.ID,
		RejoinToken: rejoinToken,
		Room:        h.Room.Snapshot(),
	})
	if err != nil {
		h.Room.Roster.Remove(record.ID)
		conn.Close()
		return
	}

	link := &peerLink{
		peerID:    record.ID,
		conn:      conn,
		transfers: transfer.NewManager(h.resolveSource(), h.cacheDir),
	}
	link.transfers.OnComplete(func(itemID string, path string, err error) {
		h.post(hostMessage{kind: msgTransferDone, itemID: itemID, path: path, transferErr: err})
	})

	util.EnqueueRequestLog(util.LogEntry{
		Timestamp: time.Now(),
		PeerID:    record.ID,
		Endpoint:  "session/join",
		Detail:    nickname,
	})
	log.Printf("peer %s (%s) joined room %s", nickname, record.ID, h.Room.Code)

	h.post(hostMessage{kind: msgAttach, link: link})
	go h.readPump(link)
}

func (h *Host) awaitHello(conn *Conn) (protocol.Hello, error) {
	for {
		frame, err := conn.Read()
		if err != nil {
			return protocol.Hello{}, err
		}
		if frame.Type != protocol.TypeHello {
			continue
		}
		var hello protocol.Hello
		if err := frame.DecodePayload(&hello); err != nil {
			return protocol.Hello{}, err
		}
		return hello, nil
	}
}

func (h *Host) rejectReason(hello protocol.Hello) string {
	if hello.Version != protocol.Version {
		return protocol.RejectIncompatibleVersion
	}
	if hello.RoomCode != h.Room.Code {
		return protocol.RejectRoomCodeMismatch
	}
	if h.Room.HasPassword() {
		if hello.Password == "" {
			return protocol.RejectPasswordRequired
		}
		if !h.Room.ValidatePassword(hello.Password) {
			return protocol.RejectInvalidPassword
		}
	}
	if h.Room.IsFull() {
		return protocol.RejectRoomFull
	}
	return ""
}

func (h *Host) readPump(link *peerLink) {
	for {
		frame, err := link.conn.Read()
		if err != nil {
			h.post(hostMessage{kind: msgDetach, peerID: link.peerID})
			return
		}
		h.post(hostMessage{kind: msgFrame, peerID: link.peerID, frame: frame})
	}
}

func (h *Host) handleFrame(peerID string, frame protocol.Frame) {
	link, ok := h.links[peerID]
	if !ok {
		return
	}
	h.Room.Roster.Touch(peerID)

	switch frame.Type {
	case protocol.TypePing:
		var ping protocol.Ping
		if frame.DecodePayload(&ping) == nil {
			_ = link.conn.SendMessage(protocol.TypePong, protocol.Pong{ID: ping.ID})
		}
	case protocol.TypePong:
		var pong protocol.Pong
		if frame.DecodePayload(&pong) == nil {
			if sample, ok := link.conn.HandlePong(pong); ok {
				_ = h.Room.Roster.ObserveRTT(peerID, sample)
			}
		}
	case protocol.TypeQueueAdd:
		var add protocol.QueueAdd
		if frame.DecodePayload(&add) == nil {
			h.handleQueueAdd(peerID, add)
		}
	case protocol.TypeAdvance:
		h.advance(peerID)
	case protocol.TypeLeave:
		h.dropPeer(peerID, "left")
	case protocol.TypeTransferRequest:
		var req protocol.TransferRequest
		if frame.DecodePayload(&req) == nil {
			// the host serves any queued item it has bytes for; peers can
			// only fetch through the host, never from each other directly
			ownerOK := h.Room.Queue.Find(req.ItemID) != nil
			if err := link.transfers.Serve(req, ownerOK, link.conn.Send); err != nil {
				log.Printf("serve %s to %s: %s", req.ItemID, peerID, err)
			}
		}
	case protocol.TypeTransferAccept:
		var accept protocol.TransferAccept
		if frame.DecodePayload(&accept) == nil {
			if err := link.transfers.HandleAccept(accept); err != nil {
				log.Printf("transfer accept: %s", err)
			}
		}
	case protocol.TypeTransferReject:
		var reject protocol.TransferReject
		if frame.DecodePayload(&reject) == nil {
			_ = link.transfers.HandleReject(reject)
		}
	case protocol.TypeFileChunk:
		var chunk protocol.Chunk
		if frame.DecodePayload(&chunk) == nil {
			if err := link.transfers.HandleChunk(chunk); err != nil {
				log.Printf("transfer chunk: %s", err)
			}
		}
	case protocol.TypeTransferComplete:
		var complete protocol.TransferComplete
		if frame.DecodePayload(&complete) == nil {
			link.transfers.HandleComplete(complete)
		}
	}
}

func (h *Host) handleQueueAdd(peerID string, add protocol.QueueAdd) {
	if h.Room.Mode == room.ModeHostOnly && peerID != h.Room.HostPeerID {
		log.Printf("queue add from %s rejected: room is host-only", peerID)
		return
	}

	item := queue.Item{
		ID:      add.Item.ID,
		OwnerID: peerID, // a peer can only declare itself as owner
		Track:   add.Item.Track,
		State:   queue.StatePending,
	}
	if h.hasBytes(item.ID) {
		item.State = queue.StateAvailable
	}

	if err := h.Room.Queue.Enqueue(item); err != nil {
		log.Printf("enqueue %s from %s: %s", item.ID, peerID, err)
		return
	}
	_ = h.Room.Roster.GrantItem(peerID, item.ID)

	_, _, idle := h.idleState()
	h.broadcastQueue()
	if idle {
		// auto-start: enqueue into an idle room begins playback at once
		h.startHead(peerID)
	}
}

// idleState reports the player's current track and whether nothing is
// playing.
func (h *Host) idleState() (trackID string, position time.Duration, idle bool) {
	trackID, position, _ = h.player.CurrentState()
	return trackID, position, trackID == ""
}

// advance pops the finished head on behalf of requesterID and starts
// whatever is next. Exhaustion stops playback entirely; there is no
// fallback to anyone's local library.
func (h *Host) advance(requesterID string) {
	next, err := h.Room.Queue.Advance(requesterID)
	if err != nil {
		log.Printf("advance from %s rejected: %s", requesterID, err)
		return
	}
	h.broadcastQueue()
	if next == nil {
		h.player.ApplyRemoteState("", 0, true)
		h.broadcastSync()
		return
	}
	h.startHead(requesterID)
}

// startHead begins playback of the queue head, fetching bytes from the
// owner first when the host doesn't have them.
func (h *Host) startHead(playerID string) {
	head := h.Room.Queue.PeekHead()
	if head == nil {
		return
	}

	if !h.hasBytes(head.ID) {
		h.starter[head.ID] = playerID
		h.Room.Queue.SetState(head.ID, queue.StateStreaming)
		h.broadcastQueue()
		h.requestFromOwner(*head)
		return
	}

	h.Room.Queue.MarkStarted(playerID)
	h.player.ApplyRemoteState(head.Track.ID, 0, false)
	h.attribute(head.Track)
	h.broadcastSync()
}

func (h *Host) requestFromOwner(item queue.Item) {
	link, ok := h.links[item.OwnerID]
	if !ok {
		log.Printf("item %s owner %s is not connected", item.ID, item.OwnerID)
		h.Room.Queue.SetState(item.ID, queue.StatePending)
		return
	}
	if _, err := link.transfers.Request(item.ID, link.conn.Send); err != nil {
		log.Printf("request %s from %s: %s", item.ID, item.OwnerID, err)
		h.Room.Queue.SetState(item.ID, queue.StatePending)
	}
}

func (h *Host) handleTransferDone(itemID string, path string, transferErr error) {
	starter := h.starter[itemID]
	delete(h.starter, itemID)

	if transferErr != nil {
		log.Printf("transfer for %s failed: %s", itemID, transferErr)
		h.Room.Queue.SetState(itemID, queue.StatePending)
		h.broadcastQueue()
		return
	}

	h.Room.Queue.SetState(itemID, queue.StateReady)
	h.broadcastQueue()

	head := h.Room.Queue.PeekHead()
	if _, _, idle := h.idleState(); idle && head != nil && head.ID == itemID {
		if starter == "" {
			starter = h.Room.HostPeerID
		}
		h.startHead(starter)
	}
}

func (h *Host) dropPeer(peerID string, reason string) {
	link, ok := h.links[peerID]
	if !ok {
		return
	}
	delete(h.links, peerID)
	if record, found := h.Room.Roster.Get(peerID); found {
		h.releaseOwnedItems(record)
	}
	h.Room.Roster.Remove(peerID)
	link.transfers.AbandonAll()
	link.conn.Close()

	util.EnqueueRequestLog(util.LogEntry{
		Timestamp: time.Now(),
		PeerID:    peerID,
		Endpoint:  "session/leave",
		Detail:    reason,
	})
	log.Printf("peer %s removed: %s", peerID, reason)
	h.broadcastRoster()
}

func (h *Host) evictStale() {
	evicted := h.Room.Roster.PruneStale(protocol.PeerTimeout)
	for _, record := range evicted {
		if link, ok := h.links[record.ID]; ok {
			delete(h.links, record.ID)
			link.transfers.AbandonAll()
			link.conn.Close()
		}
		h.releaseOwnedItems(record)
		log.Printf("peer %s (%s) timed out", record.Nickname, record.ID)
	}
	if len(evicted) > 0 {
		h.broadcastRoster()
	}
}

// releaseOwnedItems returns a departed owner's mid-fetch items to pending,
// so they can be served again if the owner rejoins with its token.
func (h *Host) releaseOwnedItems(record *peer.Peer) {
	changed := false
	for _, itemID := range record.OwnedItems() {
		item := h.Room.Queue.Find(itemID)
		if item == nil || item.State != queue.StateStreaming {
			continue
		}
		h.Room.Queue.SetState(itemID, queue.StatePending)
		changed = true
	}
	if changed {
		h.broadcastQueue()
	}
}

func (h *Host) pingAll() {
	for peerID, link := range h.links {
		if err := link.conn.SendPing(); err != nil {
			h.dropPeer(peerID, "ping failed")
		}
	}
}

// broadcastSync captures the player clock once and sends a per-peer frame
// so each receiver sees the RTT the host measured for it.
func (h *Host) broadcastSync() {
	track := h.currentTrack()

	h.syncSeq++
	base := playback.Capture(h.player, h.syncSeq, track, 0)

	for peerID, link := range h.links {
		frame := base
		frame.SenderRTT = link.conn.RTT()
		if err := link.conn.SendMessage(protocol.TypeSync, frame); err != nil {
			h.dropPeer(peerID, "sync send failed")
		}
	}
}

// currentTrack resolves metadata for whatever the player is actually
// playing. A head still waiting on bytes is not playing, so peers hear
// silence until the host itself starts it.
func (h *Host) currentTrack() *protocol.TrackInfo {
	trackID, _, idle := h.idleState()
	if idle {
		return nil
	}
	for _, item := range h.Room.Queue.Snapshot() {
		if item.Track.ID == trackID {
			trackCopy := item.Track
			return &trackCopy
		}
	}
	return &protocol.TrackInfo{ID: trackID}
}

func (h *Host) broadcastQueue() {
	h.broadcast(protocol.TypeQueueState, protocol.QueueState{Items: h.Room.Queue.ToWire()})
}

func (h *Host) broadcastRoster() {
	h.broadcast(protocol.TypeRoster, protocol.RosterUpdate{
		Participants: h.Room.Snapshot().Participants,
	})
}

func (h *Host) broadcast(frameType protocol.FrameType, payload any) {
	for peerID, link := range h.links {
		if err := link.conn.SendMessage(frameType, payload); err != nil {
			h.dropPeer(peerID, "send failed")
		}
	}
}

func (h *Host) attribute(track protocol.TrackInfo) {
	if h.recorder == nil {
		return
	}
	listener := "host"
	if record, ok := h.Room.Roster.Get(h.Room.HostPeerID); ok {
		listener = record.Nickname
	}
	h.recorder.Record(history.Event{
		Timestamp:  time.Now(),
		Title:      track.Title,
		Artist:     track.Artist,
		ProviderID: track.ProviderID,
		Listener:   listener,
	})
}

func (h *Host) hasBytes(itemID string) bool {
	_, ok := h.resolveSource().PathForItem(itemID)
	return ok
}

// resolveSource answers item lookups from the transfer cache first, then
// the local library capability.
func (h *Host) resolveSource() transfer.Source {
	return cachedSource{cacheDir: h.cacheDir, inner: h.source}
}

type cachedSource struct {
	cacheDir string
	inner    transfer.Source
}

func (s cachedSource) PathForItem(itemID string) (string, bool) {
	cached := filepath.Join(s.cacheDir, itemID)
	if _, err := os.Stat(cached); err == nil {
		return cached, true
	}
	if s.inner == nil {
		return "", false
	}
	return s.inner.PathForItem(itemID)
}

// LinkCount is read by the admin surface.
func (h *Host) LinkCount() int {
	return h.Room.Roster.Size()
}

// ActiveTransfers sums in-flight sessions across links. The count is read
// inside the host loop so admin requests never race peer churn.
func (h *Host) ActiveTransfers() int {
	reply := make(chan int, 1)
	select {
	case h.inbox <- hostMessage{kind: msgStats, reply: reply}:
	case <-h.done:
		return 0
	}
	select {
	case total := <-reply:
		return total
	case <-h.done:
		return 0
	}
}

func (h *Host) activeTransferCount() int {
	total := 0
	for _, link := range h.links {
		total += link.transfers.ActiveCount()
	}
	return total
}
