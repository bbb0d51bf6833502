package directory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Announcer periodically reports a hosted room to a home directory server.
// A failed announcement is only logged; the room keeps working without the
// directory, it just isn't discoverable.
type Announcer struct {
	homeAddr string
	snapshot func() Announcement
	client   *http.Client
}

func NewAnnouncer(homeAddr string, snapshot func() Announcement) *Announcer {
	return &Announcer{
		homeAddr: homeAddr,
		snapshot: snapshot,
		client:   &http.Client{Timeout: 2 * time.Second},
	}
}

func (a *Announcer) Announce() {
	body, err := json.Marshal(a.snapshot())
	if err != nil {
		log.Printf("marshal announcement: %s", err)
		return
	}

	url := fmt.Sprintf("http://%s/rooms", a.homeAddr)
	resp, err := a.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("announce to %s: %s", a.homeAddr, err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("announce to %s: status %d", a.homeAddr, resp.StatusCode)
	}
}

// Delist removes the room listing, used on clean shutdown.
func (a *Announcer) Delist(code string) {
	url := fmt.Sprintf("http://%s/rooms/%s", a.homeAddr, code)
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return
	}
	resp, err := a.client.Do(req)
	if err != nil {
		log.Printf("delist from %s: %s", a.homeAddr, err)
		return
	}
	resp.Body.Close()
}
