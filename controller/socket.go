package controller

import (
	"log"
	"net/http"

	"github.com/attunefm/attune/config"
	"github.com/attunefm/attune/requests"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	// peers dial directly and send no Origin header; browser origins are
	// only let through outside prod
	CheckOrigin: func(r *http.Request) bool {
		return r.Header.Get("Origin") == "" || !config.GetIsProd()
	},
}

// JoinSocket upgrades the request and hands the connection to the host for
// the protocol handshake. Admission control happens there, not here.
func (c *Controller) JoinSocket(w http.ResponseWriter, r *http.Request) {
	if c.Host == nil {
		requests.RespondWithError(w, http.StatusNotFound, "not hosting a room")
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade from %s: %s", r.RemoteAddr, err)
		return
	}
	c.Host.AttachSocket(ws)
}
