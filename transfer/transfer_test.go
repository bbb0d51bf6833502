package transfer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/attunefm/attune/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSource map[string]string

func (s mapSource) PathForItem(itemID string) (string, bool) {
	path, ok := s[itemID]
	return path, ok
}

type completion struct {
	itemID string
	path   string
	err    error
}

// wire connects a requesting manager and a serving manager with synchronous
// in-memory frame delivery, returning the requester, its send function and
// the completion channel.
func wire(t *testing.T, source Source, ownerOK bool) (*Manager, SendFrame, chan completion) {
	t.Helper()

	requester := NewManager(mapSource{}, t.TempDir())
	server := NewManager(source, t.TempDir())

	done := make(chan completion, 4)
	requester.OnComplete(func(itemID string, path string, err error) {
		done <- completion{itemID: itemID, path: path, err: err}
	})

	var toServer, toRequester SendFrame
	toRequester = func(frame protocol.Frame) error {
		switch frame.Type {
		case protocol.TypeTransferAccept:
			var accept protocol.TransferAccept
			require.NoError(t, frame.DecodePayload(&accept))
			if err := requester.HandleAccept(accept); err != nil {
				done <- completion{itemID: accept.ItemID, err: err}
			}
		case protocol.TypeTransferReject:
			var reject protocol.TransferReject
			require.NoError(t, frame.DecodePayload(&reject))
			_ = requester.HandleReject(reject)
		case protocol.TypeFileChunk:
			var chunk protocol.Chunk
			require.NoError(t, frame.DecodePayload(&chunk))
			_ = requester.HandleChunk(chunk)
		case protocol.TypeTransferComplete:
			var complete protocol.TransferComplete
			require.NoError(t, frame.DecodePayload(&complete))
			requester.HandleComplete(complete)
		}
		return nil
	}
	toServer = func(frame protocol.Frame) error {
		if frame.Type == protocol.TypeTransferRequest {
			var req protocol.TransferRequest
			require.NoError(t, frame.DecodePayload(&req))
			go func() { _ = server.Serve(req, ownerOK, toRequester) }()
		}
		return nil
	}

	return requester, toServer, done
}

func waitCompletion(t *testing.T, done chan completion) completion {
	t.Helper()
	select {
	case c := <-done:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("transfer did not finish")
		return completion{}
	}
}

func TestTransferRoundTrip(t *testing.T) {
	sourceDir := t.TempDir()
	content := make([]byte, protocol.ChunkSize*2+137)
	for i := range content {
		content[i] = byte(i % 251)
	}
	sourcePath := filepath.Join(sourceDir, "song.flac")
	require.NoError(t, os.WriteFile(sourcePath, content, 0644))

	requester, send, done := wire(t, mapSource{"item-1": sourcePath}, true)

	_, err := requester.Request("item-1", send)
	require.NoError(t, err)

	result := waitCompletion(t, done)
	require.NoError(t, result.err)
	assert.Equal(t, "item-1", result.itemID)

	received, err := os.ReadFile(result.path)
	require.NoError(t, err)
	assert.Equal(t, content, received)
	assert.Equal(t, 0, requester.ActiveCount())
}

func TestTransferNotOwner(t *testing.T) {
	sourceDir := t.TempDir()
	sourcePath := filepath.Join(sourceDir, "song.flac")
	require.NoError(t, os.WriteFile(sourcePath, []byte("bytes"), 0644))

	requester, send, done := wire(t, mapSource{"item-1": sourcePath}, false)

	_, err := requester.Request("item-1", send)
	require.NoError(t, err)

	result := waitCompletion(t, done)
	assert.ErrorIs(t, result.err, ErrNotOwner)
	assert.Empty(t, result.path)
}

func TestTransferUnknownItem(t *testing.T) {
	requester, send, done := wire(t, mapSource{}, true)

	_, err := requester.Request("missing", send)
	require.NoError(t, err)

	result := waitCompletion(t, done)
	assert.ErrorIs(t, result.err, ErrUnknownItem)
}

func TestTransferDeclaredTooLarge(t *testing.T) {
	requester := NewManager(mapSource{}, t.TempDir())

	transferID, err := requester.Request("item-1", func(protocol.Frame) error { return nil })
	require.NoError(t, err)

	err = requester.HandleAccept(protocol.TransferAccept{
		TransferID: transferID,
		ItemID:     "item-1",
		Size:       protocol.MaxFileBytes + 1,
	})
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, 0, requester.ActiveCount())
}

func TestTransferBusy(t *testing.T) {
	requester := NewManager(mapSource{}, t.TempDir())
	noop := func(protocol.Frame) error { return nil }

	_, err := requester.Request("item-1", noop)
	require.NoError(t, err)

	_, err = requester.Request("item-1", noop)
	assert.ErrorIs(t, err, ErrBusy)
}

func TestTransferInterrupted(t *testing.T) {
	requester := NewManager(mapSource{}, t.TempDir())
	done := make(chan completion, 1)
	requester.OnComplete(func(itemID string, path string, err error) {
		done <- completion{itemID: itemID, path: path, err: err}
	})
	noop := func(protocol.Frame) error { return nil }

	transferID, err := requester.Request("item-1", noop)
	require.NoError(t, err)
	require.NoError(t, requester.HandleAccept(protocol.TransferAccept{
		TransferID:  transferID,
		ItemID:      "item-1",
		Size:        100,
		TotalChunks: 1,
		Checksum:    "deadbeef",
	}))

	requester.HandleComplete(protocol.TransferComplete{
		TransferID: transferID,
		Status:     protocol.TransferStatusFailed,
		Reason:     "connection lost",
	})

	result := waitCompletion(t, done)
	assert.ErrorIs(t, result.err, ErrInterrupted)

	// the item is retryable once the failed session is gone
	_, err = requester.Request("item-1", noop)
	assert.NoError(t, err)
}
