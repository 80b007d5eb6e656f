package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinicioflores/GreenCarrot/internal/entity"
)

type staticCursors map[entity.Stream]int64

func (c staticCursors) Cursor(s entity.Stream) int64 { return c[s] }

func newServer(t *testing.T) (*httptest.Server, metrics.Registry) {
	t.Helper()
	r := metrics.NewRegistry()
	h := NewHandler(r, staticCursors{entity.StreamOrders: 6, entity.StreamCheckouts: 2})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(EnableCORS(mux))
	t.Cleanup(srv.Close)
	return srv, r
}

func TestGetStats(t *testing.T) {
	srv, r := newServer(t)
	metrics.GetOrRegisterCounter("plans.written", r).Inc(3)

	resp, err := http.Get(srv.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var body map[string]map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.EqualValues(t, 3, body["plans.written"]["count"])
}

func TestGetCursors(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/api/cursors")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body CursorsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, CursorsResponse{Orders: 6, Checkouts: 2}, body)
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Post(srv.URL+"/api/stats", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
