package protocol

import "time"

// Handshake reject reasons carried in HelloAck.
const (
	RejectIncompatibleVersion = "incompatible_version"
	RejectRoomFull            = "room_full"
	RejectPasswordRequired    = "password_required"
	RejectInvalidPassword     = "invalid_password"
	RejectNicknameInUse       = "nickname_in_use"
	RejectRoomCodeMismatch    = "room_code_mismatch"
)

// Hello is the first control frame a joining peer sends after transport
// connect. RejoinToken is optional; a valid one restores the peer's previous
// identifier and item ownership.
type Hello struct {
	Version     int    `json:"version"`
	RoomCode    string `json:"room_code"`
	Nickname    string `json:"nickname"`
	Password    string `json:"password,omitempty"`
	RejoinToken string `json:"rejoin_token,omitempty"`
}

type HelloAck struct {
	Accepted    bool       `json:"accepted"`
	Reason      string     `json:"reason,omitempty"`
	PeerID      string     `json:"peer_id,omitempty"`
	RejoinToken string     `json:"rejoin_token,omitempty"`
	Room        *RoomState `json:"room,omitempty"`
}

type Ping struct {
	ID     uint64    `json:"id"`
	SentAt time.Time `json:"sent_at"`
}

type Pong struct {
	ID uint64 `json:"id"`
}

// TrackInfo is the display metadata riding alongside sync frames so that
// receivers can attribute listening statistics without owning the track.
type TrackInfo struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist,omitempty"`
	Album      string `json:"album,omitempty"`
	ProviderID string `json:"provider_id,omitempty"`
}

// SyncState is the periodic playback state frame. Position is the sender's
// playback position at CapturedAt; receivers compensate for the time the
// frame spent in flight.
type SyncState struct {
	Seq        uint64        `json:"seq"`
	Track      *TrackInfo    `json:"track,omitempty"`
	Position   time.Duration `json:"position"`
	Paused     bool          `json:"paused"`
	CapturedAt time.Time     `json:"captured_at"`
	SenderRTT  time.Duration `json:"sender_rtt,omitempty"`
}

type QueueAdd struct {
	Item QueueItemState `json:"item"`
}

type QueueItemState struct {
	ID      string    `json:"id"`
	OwnerID string    `json:"owner_id"`
	Track   TrackInfo `json:"track"`
	State   string    `json:"state"`
}

type QueueState struct {
	Items []QueueItemState `json:"items"`
}

type ParticipantInfo struct {
	PeerID   string        `json:"peer_id"`
	Nickname string        `json:"nickname"`
	IsHost   bool          `json:"is_host"`
	PingMS   int64         `json:"ping_ms"`
	LastSeen time.Time     `json:"last_seen"`
	Delay    time.Duration `json:"delay,omitempty"`
}

type RosterUpdate struct {
	Participants []ParticipantInfo `json:"participants"`
}

// RoomState is the snapshot a newly accepted peer receives, and the body of
// full-state rebroadcasts after host-side mutations.
type RoomState struct {
	RoomID       string            `json:"room_id"`
	Code         string            `json:"code"`
	Name         string            `json:"name,omitempty"`
	Mode         string            `json:"mode"`
	MaxPeers     int               `json:"max_peers"`
	Participants []ParticipantInfo `json:"participants"`
	Queue        []QueueItemState  `json:"queue"`
}

type Leave struct {
	PeerID string `json:"peer_id"`
	Reason string `json:"reason,omitempty"`
}

type HostLeft struct {
	Reason string `json:"reason,omitempty"`
}

type Advance struct {
	FinishedTrackID string `json:"finished_track_id"`
}

type TransferRequest struct {
	TransferID string `json:"transfer_id"`
	ItemID     string `json:"item_id"`
}

type TransferAccept struct {
	TransferID  string `json:"transfer_id"`
	ItemID      string `json:"item_id"`
	Size        int64  `json:"size"`
	TotalChunks int    `json:"total_chunks"`
	Checksum    string `json:"checksum"`
}

type TransferReject struct {
	TransferID string `json:"transfer_id"`
	ItemID     string `json:"item_id"`
	Reason     string `json:"reason"`
}

type Chunk struct {
	TransferID string `json:"transfer_id"`
	Index      int    `json:"index"`
	Data       []byte `json:"data"`
}

type TransferComplete struct {
	TransferID string `json:"transfer_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

const (
	TransferStatusComplete = "complete"
	TransferStatusFailed   = "failed"

	TransferRejectNotOwner = "not_owner"
	TransferRejectTooLarge = "too_large"
	TransferRejectBusy     = "transfer_in_progress"
	TransferRejectUnknown  = "unknown_item"
)
