package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Version is the session protocol version exchanged during the handshake.
// Peers with a different version are rejected.
const Version = 2

const (
	PingInterval = 1500 * time.Millisecond
	PeerTimeout  = 5 * time.Second
	SyncInterval = 750 * time.Millisecond

	// DriftDeadzone is the position delta under which no corrective seek is
	// issued, so network jitter never causes audible micro-seeking.
	DriftDeadzone = 350 * time.Millisecond

	ChunkSize    = 24 * 1024
	MaxFileBytes = 1 << 30

	DefaultMaxPeers = 8
	MinMaxPeers     = 2
	MaxMaxPeers     = 32

	MaxQueueItems = 512
)

type FrameClass string

const (
	ClassControl   FrameClass = "control"
	ClassFileChunk FrameClass = "file-chunk"
)

type FrameType string

const (
	TypeHello            FrameType = "hello"
	TypeHelloAck         FrameType = "hello_ack"
	TypePing             FrameType = "ping"
	TypePong             FrameType = "pong"
	TypeSync             FrameType = "sync"
	TypeQueueAdd         FrameType = "queue_add"
	TypeQueueState       FrameType = "queue_state"
	TypeRoster           FrameType = "roster"
	TypeAdvance          FrameType = "advance"
	TypeLeave            FrameType = "leave"
	TypeHostLeft         FrameType = "host_left"
	TypeTransferRequest  FrameType = "transfer_request"
	TypeTransferAccept   FrameType = "transfer_accept"
	TypeTransferReject   FrameType = "transfer_reject"
	TypeFileChunk        FrameType = "file_chunk"
	TypeTransferComplete FrameType = "transfer_complete"
)

// Frame is the single envelope both traffic classes share on the wire.
// Control frames and file chunks interleave freely on one connection; a
// chunk payload never exceeds ChunkSize, so control traffic is delayed by
// at most one chunk.
type Frame struct {
	Class   FrameClass      `json:"class"`
	Type    FrameType       `json:"type"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewFrame(frameType FrameType, payload any) (Frame, error) {
	frame := Frame{
		Class: ClassControl,
		Type:  frameType,
	}
	if frameType == TypeFileChunk {
		frame.Class = ClassFileChunk
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, fmt.Errorf("marshal %s payload: %w", frameType, err)
		}
		frame.Payload = raw
	}
	return frame, nil
}

func (f Frame) DecodePayload(into any) error {
	if len(f.Payload) == 0 {
		return fmt.Errorf("%s frame has no payload", f.Type)
	}
	if err := json.Unmarshal(f.Payload, into); err != nil {
		return fmt.Errorf("decode %s payload: %w", f.Type, err)
	}
	return nil
}
