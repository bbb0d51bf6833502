package controller

import (
	"encoding/json"
	"net/http"

	"github.com/attunefm/attune/directory"
	"github.com/attunefm/attune/requests"
	"github.com/gorilla/mux"
)

func (c *Controller) ListRooms(w http.ResponseWriter, r *http.Request) {
	if c.Registry == nil {
		requests.RespondWithError(w, http.StatusNotFound, "directory not enabled")
		return
	}

	json.NewEncoder(w).Encode(c.Registry.List())
}

// AnnounceRoom is how hosts register and refresh their listing.
func (c *Controller) AnnounceRoom(w http.ResponseWriter, r *http.Request) {
	if c.Registry == nil {
		requests.RespondWithError(w, http.StatusNotFound, "directory not enabled")
		return
	}

	var announcement directory.Announcement
	if err := json.NewDecoder(r.Body).Decode(&announcement); err != nil || announcement.Code == "" || announcement.Address == "" {
		requests.RespondBadRequest(w)
		return
	}

	c.Registry.Announce(announcement)
	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) ResolveRoom(w http.ResponseWriter, r *http.Request) {
	if c.Registry == nil {
		requests.RespondWithError(w, http.StatusNotFound, "directory not enabled")
		return
	}

	code := mux.Vars(r)["code"]
	entry, ok := c.Registry.Resolve(code)
	if !ok {
		requests.RespondNotFound(w)
		return
	}

	json.NewEncoder(w).Encode(entry)
}

func (c *Controller) DelistRoom(w http.ResponseWriter, r *http.Request) {
	if c.Registry == nil {
		requests.RespondWithError(w, http.StatusNotFound, "directory not enabled")
		return
	}

	c.Registry.Remove(mux.Vars(r)["code"])
	w.WriteHeader(http.StatusNoContent)
}
