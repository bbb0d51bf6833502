package admin

import (
	"io/fs"
	"path/filepath"
	"time"

	"github.com/attunefm/attune/history"
	"github.com/attunefm/attune/session"
	"github.com/attunefm/attune/util"
	"github.com/attunefm/attune/version"
	"github.com/dustin/go-humanize"
)

// GeneralInfo is the one-shot status readout the admin surface serves.
type GeneralInfo struct {
	Version  string `json:"version"`
	Protocol int    `json:"protocol"`

	RoomCode string `json:"room_code,omitempty"`
	RoomName string `json:"room_name,omitempty"`
	Uptime   string `json:"uptime,omitempty"`

	PeerCount       int `json:"peer_count"`
	QueueLength     int `json:"queue_length"`
	ActiveTransfers int `json:"active_transfers"`
	HistorySize     int `json:"history_size"`
	LogQueue        int `json:"log_queue"`

	CacheBytes  int64  `json:"cache_bytes"`
	CachePretty string `json:"cache_pretty"`
}

// CollectGeneralInfo aggregates across the running host. host and ring may
// be nil when the process is a bare directory server.
func CollectGeneralInfo(host *session.Host, ring *history.Ring, cacheDir string) GeneralInfo {
	v := version.Get()
	info := GeneralInfo{
		Version:  v.Git.Tag,
		Protocol: v.Protocol,
		LogQueue: util.GetLogChannelSize(),
	}

	if host != nil {
		info.RoomCode = host.Room.Code
		info.RoomName = host.Room.Name
		info.Uptime = host.Uptime().Round(time.Second).String()
		info.PeerCount = host.LinkCount()
		info.QueueLength = host.Room.Queue.Size()
		info.ActiveTransfers = host.ActiveTransfers()
	}
	if ring != nil {
		info.HistorySize = ring.Size()
	}

	if cacheDir != "" {
		size, err := CacheSize(cacheDir)
		if err == nil {
			info.CacheBytes = size
			info.CachePretty = humanize.Bytes(uint64(size))
		}
	}

	return info
}

// CacheSize totals the bytes of every cached track, in-flight .part files
// included.
func CacheSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		fileInfo, err := d.Info()
		if err != nil {
			return err
		}
		total += fileInfo.Size()
		return nil
	})
	return total, err
}
