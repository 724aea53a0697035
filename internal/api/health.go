package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// HealthHandler reports whether the server's dependencies are reachable.
type HealthHandler struct {
	*Handler
	timeout time.Duration
}

// NewHealthHandler creates a readiness handler.
func NewHealthHandler(base *Handler) *HealthHandler {
	return &HealthHandler{Handler: base, timeout: 2 * time.Second}
}

// RegisterHealth registers the readiness route. Liveness is served by the
// Heartbeat middleware at /health.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Ready)
}

// Ready pings the database.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.repo.Ping(ctx); err != nil {
		JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": err.Error()})
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "ok"})
}
