package controller

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/attunefm/attune/admin"
	"github.com/attunefm/attune/requests"
	"github.com/attunefm/attune/util"
)

type FullLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	PeerID    string    `json:"peer_id"`
	Nickname  string    `json:"nickname,omitempty"`
	Endpoint  string    `json:"endpoint"`
	Detail    string    `json:"detail,omitempty"`
}

func (c *Controller) GetLogsByDate(w http.ResponseWriter, r *http.Request) {
	dateString := r.URL.Query().Get("date")
	timestamp, err := time.Parse("01-02-06", dateString)
	if err != nil {
		http.Error(w, fmt.Sprintf("bad date format: %s", err), http.StatusBadRequest)
		return
	}

	logEntries, err := util.GetLogsForDate(timestamp)
	if err != nil {
		requests.RespondWithStoreError(w, err)
		return
	}

	fullLogEntries := []FullLogEntry{}
	for _, entry := range logEntries {
		full := FullLogEntry{
			Timestamp: entry.Timestamp,
			PeerID:    entry.PeerID,
			Endpoint:  entry.Endpoint,
			Detail:    entry.Detail,
		}
		// nicknames only resolve for peers still in the room
		if c.Host != nil {
			if record, ok := c.Host.Room.Roster.Get(entry.PeerID); ok {
				full.Nickname = record.Nickname
			}
		}
		fullLogEntries = append(fullLogEntries, full)
	}

	json.NewEncoder(w).Encode(fullLogEntries)
}

func (c *Controller) GetGeneralInfo(w http.ResponseWriter, r *http.Request) {
	info := admin.CollectGeneralInfo(c.Host, c.History, c.CacheDir)
	json.NewEncoder(w).Encode(info)
}
