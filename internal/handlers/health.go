package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports database reachability
type Pinger interface {
	IsHealthy() error
}

// WatcherPinger reports whether the watcher service answers
type WatcherPinger interface {
	HealthCheck(ctx context.Context) error
}

const watcherHealthTimeout = 3 * time.Second

// HealthHandler handles health check requests
type HealthHandler struct {
	db      Pinger
	watcher WatcherPinger
}

// NewHealthHandler creates a new health handler. watcher may be nil when no
// watcher service is configured.
func NewHealthHandler(db Pinger, watcher WatcherPinger) *HealthHandler {
	return &HealthHandler{db: db, watcher: watcher}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Watcher  string `json:"watcher"`
	Message  string `json:"message,omitempty"`
}

// HealthCheck handles GET /api/health. An unreachable watcher service
// degrades the status but the API itself stays up.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.db.IsHealthy(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:   "unhealthy",
			Database: "error",
			Watcher:  "unknown",
			Message:  err.Error(),
		})
		return
	}

	if h.watcher == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Database: "ok", Watcher: "disabled"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), watcherHealthTimeout)
	defer cancel()
	if err := h.watcher.HealthCheck(ctx); err != nil {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:   "degraded",
			Database: "ok",
			Watcher:  "error",
			Message:  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Database: "ok", Watcher: "ok"})
}
