package client

import (
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/attunefm/attune/history"
	"github.com/attunefm/attune/invite"
	"github.com/attunefm/attune/playback"
	"github.com/attunefm/attune/protocol"
	"github.com/attunefm/attune/queue"
	"github.com/attunefm/attune/room"
	"github.com/attunefm/attune/session"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "orchid"

type fakeLibrary struct {
	mu    sync.Mutex
	paths map[string]string
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{paths: map[string]string{}}
}

func (f *fakeLibrary) Add(itemID string, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths[itemID] = path
}

func (f *fakeLibrary) PathForItem(itemID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path, ok := f.paths[itemID]
	return path, ok
}

// startTestHost runs a full host behind an in-process socket server and
// returns it together with its address and a joinable invite token.
func startTestHost(t *testing.T) (*session.Host, string, string) {
	t.Helper()

	testRoom, err := room.New(room.Params{Name: "living room", Password: testPassword})
	require.NoError(t, err)

	host := session.NewHost(session.HostParams{
		Room:     testRoom,
		Player:   playback.NewVirtualPlayer(),
		Recorder: history.NewRing(),
		CacheDir: t.TempDir(),
	})
	go host.Run()
	t.Cleanup(host.Shutdown)

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		host.AttachSocket(ws)
	}))
	t.Cleanup(server.Close)

	address := strings.TrimPrefix(server.URL, "http://")
	token, err := invite.Encode(address, invite.Params{
		SessionID: testRoom.Code,
		MaxPeers:  testRoom.MaxPeers,
	}, testPassword)
	require.NoError(t, err)

	return host, address, token
}

func joinTestHost(t *testing.T, token string, nickname string) (*Client, *fakeLibrary, *playback.VirtualPlayer) {
	t.Helper()

	library := newFakeLibrary()
	player := playback.NewVirtualPlayer()
	c, err := Join(JoinParams{
		InviteToken: token,
		Password:    testPassword,
		Nickname:    nickname,
		Player:      player,
		Recorder:    history.NewRing(),
		Source:      library,
		CacheDir:    t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(c.Leave)
	return c, library, player
}

func writeTestTrack(t *testing.T, size int) string {
	t.Helper()
	content := make([]byte, size)
	_, err := rand.Read(content)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "track.mp3")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestJoinHandshake(t *testing.T) {
	_, _, token := startTestHost(t)

	c, _, _ := joinTestHost(t, token, "ana")
	assert.True(t, c.IsConnected())
	assert.NotEmpty(t, c.PeerID())
	assert.NotEmpty(t, c.RejoinToken())

	// the ack snapshot already carries the roster with the host in it
	require.Eventually(t, func() bool {
		return len(c.Roster()) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestJoinRejections(t *testing.T) {
	host, address, token := startTestHost(t)

	c, _, _ := joinTestHost(t, token, "ana")
	require.True(t, c.IsConnected())

	// a bad invite password fails at decode, before any connection, so the
	// handshake rejection needs a direct dial with the right invite but the
	// wrong room password
	t.Run("wrong password", func(t *testing.T) {
		conn, err := session.Dial(address)
		require.NoError(t, err)
		defer conn.Close()

		ack, err := conn.Handshake(protocol.Hello{
			Version:  protocol.Version,
			RoomCode: host.Room.Code,
			Nickname: "mallory",
			Password: "wrong",
		})
		require.NoError(t, err)
		assert.False(t, ack.Accepted)
		assert.Equal(t, protocol.RejectInvalidPassword, ack.Reason)
	})

	t.Run("stale protocol version", func(t *testing.T) {
		conn, err := session.Dial(address)
		require.NoError(t, err)
		defer conn.Close()

		ack, err := conn.Handshake(protocol.Hello{
			Version:  protocol.Version - 1,
			RoomCode: host.Room.Code,
			Nickname: "bela",
			Password: testPassword,
		})
		require.NoError(t, err)
		assert.False(t, ack.Accepted)
		assert.Equal(t, protocol.RejectIncompatibleVersion, ack.Reason)
	})

	t.Run("nickname in use", func(t *testing.T) {
		_, err := Join(JoinParams{
			InviteToken: token,
			Password:    testPassword,
			Nickname:    "ana",
			Player:      playback.NewVirtualPlayer(),
			Source:      newFakeLibrary(),
			CacheDir:    t.TempDir(),
		})
		require.ErrorIs(t, err, ErrNicknameInUse)
	})
}

func TestEnqueueStreamsAndStartsPlayback(t *testing.T) {
	host, _, token := startTestHost(t)
	c, library, player := joinTestHost(t, token, "ana")

	trackPath := writeTestTrack(t, 3*protocol.ChunkSize+511)
	library.Add("item-1", trackPath)

	track := protocol.TrackInfo{ID: "trk-1", Title: "Holograma", Artist: "Nação"}
	require.NoError(t, c.Enqueue("item-1", track))

	// the host lacks the bytes, so it pulls them from the owner before
	// starting playback and announcing it
	require.Eventually(t, func() bool {
		head := host.Room.Queue.PeekHead()
		return head != nil && head.State == queue.StateReady
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		trackID, _, paused := player.CurrentState()
		return trackID == "trk-1" && !paused
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		items := c.QueueSnapshot()
		return len(items) == 1 && items[0].OwnerID == c.PeerID()
	}, 2*time.Second, 20*time.Millisecond)

	next, ok := c.NextShared()
	require.True(t, ok)
	assert.Equal(t, "item-1", next.ID)
}

func TestLeaveShrinksRoster(t *testing.T) {
	host, _, token := startTestHost(t)
	c, _, _ := joinTestHost(t, token, "ana")

	require.Eventually(t, func() bool {
		return host.LinkCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	c.Leave()
	assert.False(t, c.IsConnected())
	require.Eventually(t, func() bool {
		return host.LinkCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHostShutdownEndsSession(t *testing.T) {
	host, _, token := startTestHost(t)
	c, _, _ := joinTestHost(t, token, "ana")

	host.Shutdown()
	require.Eventually(t, func() bool {
		return !c.IsConnected()
	}, 2*time.Second, 10*time.Millisecond)
	assert.NotEmpty(t, c.DisconnectReason())
}

func TestNextSharedPriority(t *testing.T) {
	c := &Client{mirror: queue.NewSharedQueue("")}

	_, ok := c.NextShared()
	assert.False(t, ok, "empty shared queue must not suggest a fallback")

	require.NoError(t, c.mirror.Enqueue(queue.Item{ID: "item-1"}))
	next, ok := c.NextShared()
	require.True(t, ok)
	assert.Equal(t, "item-1", next.ID)
}

func TestRejectErrorMapping(t *testing.T) {
	assert.ErrorIs(t, rejectError(protocol.RejectRoomFull), ErrRoomFull)
	assert.ErrorIs(t, rejectError(protocol.RejectIncompatibleVersion), ErrIncompatibleVersion)
	assert.ErrorIs(t, rejectError(protocol.RejectPasswordRequired), ErrPasswordRequired)
	assert.ErrorIs(t, rejectError(protocol.RejectInvalidPassword), ErrInvalidPassword)
	assert.ErrorIs(t, rejectError(protocol.RejectNicknameInUse), ErrNicknameInUse)
	assert.ErrorIs(t, rejectError("something_else"), ErrRejected)
}
