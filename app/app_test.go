package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/attunefm/attune/admin"
	"github.com/attunefm/attune/constants"
	"github.com/attunefm/attune/controller"
	"github.com/attunefm/attune/directory"
	"github.com/attunefm/attune/history"
	"github.com/attunefm/attune/requests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, ctrl *controller.Controller) *httptest.Server {
	t.Helper()
	a := App{}
	a.Initialize(ctrl)
	server := httptest.NewServer(a.withMiddleware(a.Router))
	t.Cleanup(server.Close)
	return server
}

func TestHealthAndVersion(t *testing.T) {
	server := newTestServer(t, &controller.Controller{})

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/version")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Contains(t, payload, "protocol")
}

func TestDirectoryEndpoints(t *testing.T) {
	registry := directory.NewRegistry()
	server := newTestServer(t, &controller.Controller{Registry: registry})

	announcement := directory.Announcement{
		Code:      "SUN777",
		Name:      "sunroom",
		Address:   "192.0.2.4:52001",
		PeerCount: 1,
		MaxPeers:  8,
	}
	body, err := json.Marshal(announcement)
	require.NoError(t, err)

	resp, err := http.Post(server.URL+"/rooms", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(server.URL + "/rooms")
	require.NoError(t, err)
	var listed []directory.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	resp.Body.Close()
	require.Len(t, listed, 1)
	assert.Equal(t, "sunroom", listed[0].Name)

	resp, err = http.Get(server.URL + "/rooms/SUN777")
	require.NoError(t, err)
	var resolved directory.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&resolved))
	resp.Body.Close()
	assert.Equal(t, "192.0.2.4:52001", resolved.Address)

	resp, err = http.Get(server.URL + "/rooms/NOPE99")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/rooms/SUN777", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, registry.Size())
}

func TestBadAnnouncementRejected(t *testing.T) {
	server := newTestServer(t, &controller.Controller{Registry: directory.NewRegistry()})

	resp, err := http.Post(server.URL+"/rooms", "application/json", bytes.NewBufferString(`{"name":"no code"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRoomEndpointsWithoutHost(t *testing.T) {
	server := newTestServer(t, &controller.Controller{})

	for _, path := range []string{"/room", "/room/queue"} {
		resp, err := http.Get(server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestAdminGeneralFromLoopback(t *testing.T) {
	ring := history.NewRing()
	ring.Record(history.Event{Title: "Aja", Artist: "Steely Dan", Listener: "ana"})

	server := newTestServer(t, &controller.Controller{History: ring, CacheDir: t.TempDir()})

	// httptest clients come from loopback, which the auth middleware lets
	// through without a token
	resp, err := http.Get(server.URL + "/admin/general")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info admin.GeneralInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, 1, info.HistorySize)
	assert.Equal(t, 0, info.PeerCount)
}

func TestAdminForbiddenOffLoopback(t *testing.T) {
	a := App{}
	a.Initialize(&controller.Controller{CacheDir: t.TempDir()})
	handler := a.withMiddleware(a.Router)

	req := httptest.NewRequest(http.MethodGet, "/admin/general", nil)
	req.RemoteAddr = "203.0.113.5:40112"
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusForbidden, recorder.Code)

	var body requests.ErrorResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&body))
	assert.Equal(t, constants.ErrorForbidden, body.Error)
}
