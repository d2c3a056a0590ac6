package handler

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker probes the liveness of the trading runtime.
type HealthChecker interface {
	HealthCheck(ctx context.Context) (string, error)
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	checker HealthChecker
}

// NewHealthHandler creates a HealthHandler probing the given checker.
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// HealthCheck reports node liveness alongside the server's own status.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, err := h.checker.HealthCheck(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "degraded",
			"error":     err.Error(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
