package session

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/attunefm/attune/protocol"
	"github.com/gorilla/websocket"
)

// SocketPath is where the host's listener upgrades session connections.
const SocketPath = "/session/socket"

const handshakeTimeout = 5 * time.Second

// Conn is one framed session connection. Writes are serialized so control
// frames and file chunks from different goroutines interleave cleanly;
// reads carry a deadline of the peer timeout so a dead counterpart
// surfaces as a read error.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	pingMu       sync.Mutex
	pendingPings map[uint64]time.Time
	nextPingID   uint64
	rtt          time.Duration

	seqMu   sync.Mutex
	nextSeq uint64

	closeOnce sync.Once
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{
		ws:           ws,
		pendingPings: make(map[uint64]time.Time),
	}
}

// Dial connects to a host's session socket at host:port.
func Dial(address string) (*Conn, error) {
	u := url.URL{Scheme: "ws", Host: address, Path: SocketPath}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return NewConn(ws), nil
}

func (c *Conn) Send(frame protocol.Frame) error {
	c.seqMu.Lock()
	c.nextSeq++
	frame.Seq = c.nextSeq
	c.seqMu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(frame)
}

func (c *Conn) SendMessage(frameType protocol.FrameType, payload any) error {
	frame, err := protocol.NewFrame(frameType, payload)
	if err != nil {
		return err
	}
	return c.Send(frame)
}

func (c *Conn) Read() (protocol.Frame, error) {
	if err := c.ws.SetReadDeadline(time.Now().Add(protocol.PeerTimeout)); err != nil {
		return protocol.Frame{}, err
	}
	var frame protocol.Frame
	if err := c.ws.ReadJSON(&frame); err != nil {
		return protocol.Frame{}, err
	}
	return frame, nil
}

// SendPing emits a ping frame whose pong, once returned, yields an RTT
// sample. Pings outstanding longer than the peer timeout are forgotten.
func (c *Conn) SendPing() error {
	c.pingMu.Lock()
	c.nextPingID++
	id := c.nextPingID
	now := time.Now()
	c.pendingPings[id] = now
	for pingID, sentAt := range c.pendingPings {
		if now.Sub(sentAt) > protocol.PeerTimeout {
			delete(c.pendingPings, pingID)
		}
	}
	c.pingMu.Unlock()

	return c.SendMessage(protocol.TypePing, protocol.Ping{ID: id, SentAt: now})
}

// HandlePong resolves a pending ping and returns the RTT sample.
func (c *Conn) HandlePong(pong protocol.Pong) (time.Duration, bool) {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()

	sentAt, ok := c.pendingPings[pong.ID]
	if !ok {
		return 0, false
	}
	delete(c.pendingPings, pong.ID)

	sample := time.Since(sentAt)
	if c.rtt == 0 {
		c.rtt = sample
	} else {
		c.rtt = (3*c.rtt + sample) / 4
	}
	return sample, true
}

func (c *Conn) RTT() time.Duration {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()
	return c.rtt
}

func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ws.Close()
	})
	return err
}

// Handshake runs the joining side of the hello exchange: send the hello,
// wait for the ack.
func (c *Conn) Handshake(hello protocol.Hello) (protocol.HelloAck, error) {
	if err := c.SendMessage(protocol.TypeHello, hello); err != nil {
		return protocol.HelloAck{}, fmt.Errorf("send hello: %w", err)
	}

	for {
		frame, err := c.Read()
		if err != nil {
			return protocol.HelloAck{}, fmt.Errorf("await hello ack: %w", err)
		}
		if frame.Type != protocol.TypeHelloAck {
			continue
		}
		var ack protocol.HelloAck
		if err := frame.DecodePayload(&ack); err != nil {
			return protocol.HelloAck{}, err
		}
		return ack, nil
	}
}
