package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/attunefm/attune/constants"
	"github.com/attunefm/attune/invite"
	"github.com/attunefm/attune/protocol"
	"github.com/attunefm/attune/requests"
)

// GetRoom returns the hosted room snapshot: participants, queue and track
// metadata, but never file bytes or the password.
func (c *Controller) GetRoom(w http.ResponseWriter, r *http.Request) {
	if c.Host == nil {
		requests.RespondWithError(w, http.StatusNotFound, "not hosting a room")
		return
	}

	json.NewEncoder(w).Encode(c.Host.Room.Snapshot())
}

func (c *Controller) GetQueue(w http.ResponseWriter, r *http.Request) {
	if c.Host == nil {
		requests.RespondWithError(w, http.StatusNotFound, "not hosting a room")
		return
	}

	json.NewEncoder(w).Encode(protocol.QueueState{Items: c.Host.Room.Queue.ToWire()})
}

func (c *Controller) GetHistory(w http.ResponseWriter, r *http.Request) {
	if c.History == nil {
		json.NewEncoder(w).Encode([]struct{}{})
		return
	}

	json.NewEncoder(w).Encode(c.History.Recent())
}

type pushToQueueRequest struct {
	ItemID string             `json:"item_id"`
	Track  protocol.TrackInfo `json:"track"`
}

// PushToQueue enqueues a track from the host's own library. Peer enqueues
// arrive over the session socket instead.
func (c *Controller) PushToQueue(w http.ResponseWriter, r *http.Request) {
	if c.Host == nil {
		requests.RespondWithError(w, http.StatusNotFound, "not hosting a room")
		return
	}

	var body pushToQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ItemID == "" {
		requests.RespondBadRequest(w)
		return
	}

	c.Host.EnqueueLocal(body.ItemID, body.Track)
	w.WriteHeader(http.StatusAccepted)
}

type createInviteRequest struct {
	Password string `json:"password"`
}

type createInviteResponse struct {
	Token string `json:"token"`
}

// CreateInvite mints a shareable token for the hosted room. The room
// password is required here because only its hash is kept; the caller
// repeats the password to prove they can hand it out.
func (c *Controller) CreateInvite(w http.ResponseWriter, r *http.Request) {
	if c.Host == nil {
		requests.RespondWithError(w, http.StatusNotFound, "not hosting a room")
		return
	}

	var body createInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		requests.RespondBadRequest(w)
		return
	}
	if c.Host.Room.HasPassword() && !c.Host.Room.ValidatePassword(body.Password) {
		requests.RespondWithError(w, http.StatusUnauthorized, constants.ErrorPassword)
		return
	}

	token, err := invite.Encode(c.Host.AdvertiseAddr(), invite.Params{
		SessionID: c.Host.Room.Code,
		MaxPeers:  c.Host.Room.MaxPeers,
	}, body.Password)
	if errors.Is(err, invite.ErrPasswordRequired) || errors.Is(err, invite.ErrPasswordTooLong) {
		requests.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		requests.RespondInternalError(w)
		return
	}

	json.NewEncoder(w).Encode(createInviteResponse{Token: token})
}
