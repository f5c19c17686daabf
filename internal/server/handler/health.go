package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// WatcherCounter reports how many position watchers are currently running.
type WatcherCounter interface {
	ActiveWatchers() int
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	watchers WatcherCounter
	logger   *slog.Logger
}

// NewHealthHandler creates a HealthHandler. watchers may be nil.
func NewHealthHandler(watchers WatcherCounter, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{watchers: watchers, logger: logger}
}

// HealthCheck responds with a simple JSON status indicating the agent is
// alive, including the number of active position watchers.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.watchers != nil {
		body["active_watchers"] = h.watchers.ActiveWatchers()
	}
	writeJSON(w, http.StatusOK, body)
}
