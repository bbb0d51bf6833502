package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/attunefm/attune/protocol"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

var (
	ErrNotOwner    = errors.New("requester does not own this item")
	ErrTooLarge    = errors.New("file exceeds the transfer size cap")
	ErrBusy        = errors.New("a transfer for this item is already active")
	ErrInterrupted = errors.New("transfer interrupted before completion")
	ErrUnknownItem = errors.New("no local file for this item")
)

// Source resolves queue item IDs to local file paths on the serving side.
// The session core never inspects library data beyond this.
type Source interface {
	PathForItem(itemID string) (string, bool)
}

// SendFrame delivers one frame to the connected counterpart. Chunks share
// the connection with control traffic, so the underlying writer must
// serialize frames itself.
type SendFrame func(frame protocol.Frame) error

type outboundTransfer struct {
	id          string
	itemID      string
	sourcePath  string
	size        int64
	totalChunks int
	checksum    string
}

type inboundTransfer struct {
	id          string
	itemID      string
	size        int64
	totalChunks int
	checksum    string

	tempPath  string
	file      *os.File
	received  int
	bytesRead int64
}

// Manager multiplexes file transfers for one peer connection: it serves
// local files on request and reassembles files it asked for. One manager
// per connection keeps the at-most-one-session-per-item rule local.
type Manager struct {
	mu       sync.Mutex
	source   Source
	destDir  string
	outbound map[string]*outboundTransfer
	inbound  map[string]*inboundTransfer

	// onComplete fires when a requested file has fully arrived and
	// verified, with the final local path.
	onComplete func(itemID string, path string, err error)
}

func NewManager(source Source, destDir string) *Manager {
	return &Manager{
		source:   source,
		destDir:  destDir,
		outbound: make(map[string]*outboundTransfer),
		inbound:  make(map[string]*inboundTransfer),
	}
}

func (m *Manager) OnComplete(callback func(itemID string, path string, err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onComplete = callback
}

// Request asks the counterpart for an item's bytes. Returns the transfer
// ID; completion is reported through OnComplete.
func (m *Manager) Request(itemID string, send SendFrame) (string, error) {
	m.mu.Lock()
	for _, active := range m.inbound {
		if active.itemID == itemID {
			m.mu.Unlock()
			return "", ErrBusy
		}
	}
	transferID := uuid.NewString()
	m.inbound[transferID] = &inboundTransfer{
		id:     transferID,
		itemID: itemID,
	}
	m.mu.Unlock()

	frame, err := protocol.NewFrame(protocol.TypeTransferRequest, protocol.TransferRequest{
		TransferID: transferID,
		ItemID:     itemID,
	})
	if err != nil {
		m.dropInbound(transferID)
		return "", err
	}
	if err := send(frame); err != nil {
		m.dropInbound(transferID)
		return "", err
	}
	return transferID, nil
}

// Serve answers a transfer request. ownerOK is the caller's ownership
// verdict for the requesting peer; the size cap is enforced before a single
// byte is read.
func (m *Manager) Serve(req protocol.TransferRequest, ownerOK bool, send SendFrame) error {
	if !ownerOK {
		m.reject(req, protocol.TransferRejectNotOwner, send)
		return ErrNotOwner
	}

	path, ok := m.source.PathForItem(req.ItemID)
	if !ok {
		m.reject(req, protocol.TransferRejectUnknown, send)
		return ErrUnknownItem
	}

	info, err := os.Stat(path)
	if err != nil {
		m.reject(req, protocol.TransferRejectUnknown, send)
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > protocol.MaxFileBytes {
		m.reject(req, protocol.TransferRejectTooLarge, send)
		return ErrTooLarge
	}

	m.mu.Lock()
	for _, active := range m.outbound {
		if active.itemID == req.ItemID {
			m.mu.Unlock()
			m.reject(req, protocol.TransferRejectBusy, send)
			return ErrBusy
		}
	}
	checksum, err := fileChecksumHex(path)
	if err != nil {
		m.mu.Unlock()
		m.reject(req, protocol.TransferRejectUnknown, send)
		return err
	}
	out := &outboundTransfer{
		id:          req.TransferID,
		itemID:      req.ItemID,
		sourcePath:  path,
		size:        info.Size(),
		totalChunks: chunkCount(info.Size()),
		checksum:    checksum,
	}
	m.outbound[req.TransferID] = out
	m.mu.Unlock()

	accept, err := protocol.NewFrame(protocol.TypeTransferAccept, protocol.TransferAccept{
		TransferID:  out.id,
		ItemID:      out.itemID,
		Size:        out.size,
		TotalChunks: out.totalChunks,
		Checksum:    out.checksum,
	})
	if err != nil {
		m.dropOutbound(out.id)
		return err
	}
	if err := send(accept); err != nil {
		m.dropOutbound(out.id)
		return err
	}

	go m.pumpChunks(out, send)
	return nil
}

// pumpChunks streams the file in ChunkSize pieces. Each chunk is its own
// frame so control traffic interleaves between chunks.
func (m *Manager) pumpChunks(out *outboundTransfer, send SendFrame) {
	defer m.dropOutbound(out.id)

	file, err := os.Open(out.sourcePath)
	if err != nil {
		m.finishOutbound(out, protocol.TransferStatusFailed, err.Error(), send)
		return
	}
	defer file.Close()

	buf := make([]byte, protocol.ChunkSize)
	for index := 0; index < out.totalChunks; index++ {
		n, err := io.ReadFull(file, buf)
		if err != nil && err != io.ErrUnexpectedEOF {
			m.finishOutbound(out, protocol.TransferStatusFailed, err.Error(), send)
			return
		}

		chunk, err := protocol.NewFrame(protocol.TypeFileChunk, protocol.Chunk{
			TransferID: out.id,
			Index:      index,
			Data:       buf[:n],
		})
		if err != nil {
			m.finishOutbound(out, protocol.TransferStatusFailed, err.Error(), send)
			return
		}
		if err := send(chunk); err != nil {
			log.Printf("transfer %s: send chunk %d: %s", out.id, index, err)
			return
		}
	}

	log.Printf("transfer %s: served %s for item %s", out.id, humanize.Bytes(uint64(out.size)), out.itemID)
	m.finishOutbound(out, protocol.TransferStatusComplete, "", send)
}

func (m *Manager) finishOutbound(out *outboundTransfer, status string, reason string, send SendFrame) {
	frame, err := protocol.NewFrame(protocol.TypeTransferComplete, protocol.TransferComplete{
		TransferID: out.id,
		Status:     status,
		Reason:     reason,
	})
	if err != nil {
		return
	}
	_ = send(frame)
}

// HandleAccept prepares the receiving side: the declared size is checked
// against the cap before any chunk is accepted, and bytes accumulate in a
// .part file until verification.
func (m *Manager) HandleAccept(accept protocol.TransferAccept) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.inbound[accept.TransferID]
	if !ok {
		return ErrInterrupted
	}

	if accept.Size > protocol.MaxFileBytes {
		delete(m.inbound, accept.TransferID)
		return ErrTooLarge
	}

	if err := os.MkdirAll(m.destDir, 0755); err != nil {
		delete(m.inbound, accept.TransferID)
		return err
	}
	tempPath := filepath.Join(m.destDir, accept.TransferID+".part")
	file, err := os.Create(tempPath)
	if err != nil {
		delete(m.inbound, accept.TransferID)
		return err
	}

	in.size = accept.Size
	in.totalChunks = accept.TotalChunks
	in.checksum = accept.Checksum
	in.tempPath = tempPath
	in.file = file
	return nil
}

func (m *Manager) HandleReject(reject protocol.TransferReject) error {
	m.mu.Lock()
	in, ok := m.inbound[reject.TransferID]
	callback := m.onComplete
	if ok {
		delete(m.inbound, reject.TransferID)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}

	var err error
	switch reject.Reason {
	case protocol.TransferRejectNotOwner:
		err = ErrNotOwner
	case protocol.TransferRejectTooLarge:
		err = ErrTooLarge
	case protocol.TransferRejectBusy:
		err = ErrBusy
	default:
		err = ErrUnknownItem
	}
	if callback != nil {
		callback(in.itemID, "", err)
	}
	return err
}

func (m *Manager) HandleChunk(chunk protocol.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.inbound[chunk.TransferID]
	if !ok || in.file == nil {
		return ErrInterrupted
	}

	offset := int64(chunk.Index) * protocol.ChunkSize
	if _, err := in.file.WriteAt(chunk.Data, offset); err != nil {
		return err
	}
	in.received++
	in.bytesRead += int64(len(chunk.Data))
	return nil
}

// HandleComplete verifies length and checksum, then moves the file into
// place. Any mismatch discards the bytes so the item stays pending and the
// transfer is retried on next need.
func (m *Manager) HandleComplete(complete protocol.TransferComplete) {
	m.mu.Lock()
	in, ok := m.inbound[complete.TransferID]
	callback := m.onComplete
	if ok {
		delete(m.inbound, complete.TransferID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	err := m.sealInbound(in, complete)
	if err != nil && in.tempPath != "" {
		os.Remove(in.tempPath)
	}

	finalPath := ""
	if err == nil {
		finalPath = filepath.Join(m.destDir, in.itemID)
	}
	if callback != nil {
		callback(in.itemID, finalPath, err)
	}
}

func (m *Manager) sealInbound(in *inboundTransfer, complete protocol.TransferComplete) error {
	if in.file == nil {
		return ErrInterrupted
	}
	if err := in.file.Close(); err != nil {
		return err
	}
	if complete.Status != protocol.TransferStatusComplete {
		return fmt.Errorf("%w: %s", ErrInterrupted, complete.Reason)
	}
	if in.bytesRead != in.size {
		return fmt.Errorf("%w: got %s of %s", ErrInterrupted,
			humanize.Bytes(uint64(in.bytesRead)), humanize.Bytes(uint64(in.size)))
	}

	checksum, err := fileChecksumHex(in.tempPath)
	if err != nil {
		return err
	}
	if checksum != in.checksum {
		return fmt.Errorf("%w: checksum mismatch", ErrInterrupted)
	}

	return os.Rename(in.tempPath, filepath.Join(m.destDir, in.itemID))
}

// AbandonAll drops every in-flight transfer, e.g. when the connection is
// lost. Inbound items are reported as interrupted so they return to
// pending.
func (m *Manager) AbandonAll() {
	m.mu.Lock()
	inbound := m.inbound
	callback := m.onComplete
	m.inbound = make(map[string]*inboundTransfer)
	m.outbound = make(map[string]*outboundTransfer)
	m.mu.Unlock()

	for _, in := range inbound {
		if in.file != nil {
			in.file.Close()
			os.Remove(in.tempPath)
		}
		if callback != nil {
			callback(in.itemID, "", ErrInterrupted)
		}
	}
}

func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inbound) + len(m.outbound)
}

func (m *Manager) reject(req protocol.TransferRequest, reason string, send SendFrame) {
	frame, err := protocol.NewFrame(protocol.TypeTransferReject, protocol.TransferReject{
		TransferID: req.TransferID,
		ItemID:     req.ItemID,
		Reason:     reason,
	})
	if err != nil {
		return
	}
	_ = send(frame)
}

func (m *Manager) dropOutbound(transferID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.outbound, transferID)
}

func (m *Manager) dropInbound(transferID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inbound, transferID)
}

func chunkCount(size int64) int {
	if size == 0 {
		return 0
	}
	return int((size + protocol.ChunkSize - 1) / protocol.ChunkSize)
}

func fileChecksumHex(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
