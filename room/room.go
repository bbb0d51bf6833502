package room

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"
	"time"

	"github.com/attunefm/attune/config"
	"github.com/attunefm/attune/peer"
	"github.com/attunefm/attune/protocol"
	"github.com/attunefm/attune/queue"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Mode string

const (
	ModeHostOnly      Mode = "host-only"
	ModeCollaborative Mode = "collaborative"
)

// Room is one hosted listen-together session: the authoritative queue, the
// peer roster, and the session parameters the invite carries. It exists for
// the lifetime of the hosting process and is mutated only from the host's
// own loop.
type Room struct {
	ID       string    `json:"id"`
	Code     string    `json:"code"`
	Name     string    `json:"name"`
	Mode     Mode      `json:"mode"`
	MaxPeers int       `json:"max_peers"`
	Created  time.Time `json:"created"`

	Queue  *queue.SharedQueue `json:"-"`
	Roster *peer.Roster       `json:"-"`

	HostPeerID string `json:"-"`

	passwordSalt  []byte
	passwordHash  []byte
	signingSecret []byte
}

type Params struct {
	Name     string
	Mode     Mode
	MaxPeers int
	Password string
}

func New(params Params) (*Room, error) {
	if params.Mode == "" {
		params.Mode = ModeCollaborative
	}
	if params.MaxPeers == 0 {
		params.MaxPeers = protocol.DefaultMaxPeers
	}
	if params.MaxPeers < protocol.MinMaxPeers || params.MaxPeers > protocol.MaxMaxPeers {
		return nil, fmt.Errorf("max peers %d outside %d-%d", params.MaxPeers, protocol.MinMaxPeers, protocol.MaxMaxPeers)
	}

	code, err := NewCode()
	if err != nil {
		return nil, fmt.Errorf("generate room code: %w", err)
	}

	r := &Room{
		ID:       uuid.NewString(),
		Code:     code,
		Name:     params.Name,
		Mode:     params.Mode,
		MaxPeers: params.MaxPeers,
		Created:  time.Now(),
		Roster:   peer.NewRoster(),
	}

	hostPeer, err := r.Roster.Add("", config.GetNickname(), "", peer.RoleHost)
	if err != nil {
		return nil, err
	}
	r.HostPeerID = hostPeer.ID
	r.Queue = queue.NewSharedQueue(hostPeer.ID)

	if params.Password != "" {
		if err := r.SetPassword(params.Password); err != nil {
			return nil, err
		}
	}

	r.signingSecret = config.GetSigningSecret()
	if len(r.signingSecret) == 0 {
		r.signingSecret = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, r.signingSecret); err != nil {
			return nil, fmt.Errorf("generate signing secret: %w", err)
		}
	}

	return r, nil
}

func (r *Room) SetPassword(password string) error {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	r.passwordSalt = salt
	r.passwordHash = hashPassword(password, salt)
	return nil
}

func (r *Room) HasPassword() bool {
	return len(r.passwordHash) > 0
}

func (r *Room) ValidatePassword(password string) bool {
	if !r.HasPassword() {
		return true
	}
	candidate := hashPassword(password, r.passwordSalt)
	return subtle.ConstantTimeCompare(candidate, r.passwordHash) == 1
}

func (r *Room) SigningSecret() []byte {
	return r.signingSecret
}

func (r *Room) IsFull() bool {
	return r.Roster.Size() >= r.MaxPeers
}

// Snapshot renders the wire-level room state sent to newly accepted peers
// and rebroadcast after host-side mutations.
func (r *Room) Snapshot() *protocol.RoomState {
	return &protocol.RoomState{
		RoomID:       r.ID,
		Code:         r.Code,
		Name:         r.Name,
		Mode:         string(r.Mode),
		MaxPeers:     r.MaxPeers,
		Participants: lo.Map(r.Roster.List(), participantInfo),
		Queue:        r.Queue.ToWire(),
	}
}

func participantInfo(p *peer.Peer, _ int) protocol.ParticipantInfo {
	return protocol.ParticipantInfo{
		PeerID:   p.ID,
		Nickname: p.Nickname,
		IsHost:   p.IsHost(),
		PingMS:   p.RTT.Milliseconds(),
		LastSeen: p.LastSeen,
		Delay:    p.EffectiveDelay(),
	}
}

func hashPassword(password string, salt []byte) []byte {
	hasher := sha256.New()
	hasher.Write(salt)
	hasher.Write([]byte(password))
	return hasher.Sum(nil)
}
