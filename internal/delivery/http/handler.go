package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/vinicioflores/GreenCarrot/internal/entity"
)

// CursorReader exposes the poller's cursors.
type CursorReader interface {
	Cursor(s entity.Stream) int64
}

// Handler serves the relay's operational endpoints.
type Handler struct {
	registry metrics.Registry
	cursors  CursorReader
	started  time.Time
}

func NewHandler(registry metrics.Registry, cursors CursorReader) *Handler {
	return &Handler{
		registry: registry,
		cursors:  cursors,
		started:  time.Now(),
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/stats", h.handleGetStats)
	mux.HandleFunc("GET /api/cursors", h.handleGetCursors)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

func (h *Handler) handleGetStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	metrics.WriteJSONOnce(h.registry, w)
}

type CursorsResponse struct {
	Orders    int64 `json:"orders"`
	Checkouts int64 `json:"checkouts"`
}

func (h *Handler) handleGetCursors(w http.ResponseWriter, r *http.Request) {
	resp := CursorsResponse{
		Orders:    h.cursors.Cursor(entity.StreamOrders),
		Checkouts: h.cursors.Cursor(entity.StreamCheckouts),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode cursors", "err", err)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// EnableCORS is a middleware to allow browser dashboards to read the stats.
func EnableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
