package handler

import (
	"net/http"
)

// ConnChecker reports transport connectivity.
type ConnChecker interface {
	IsConnected() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	nats  ConnChecker
	proxy bool
}

// NewHealthHandler creates a new HealthHandler. nats may be nil when the
// backend runs without a proxy tier.
func NewHealthHandler(nats ConnChecker, proxy bool) *HealthHandler {
	return &HealthHandler{nats: nats, proxy: proxy}
}

// Health is a simple liveness check.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready is a readiness check. A backend with a proxy platform configured is
// ready only while its transport is connected.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "ready",
		"nats":   "disabled",
	}
	status := http.StatusOK

	if h.proxy {
		response["nats"] = "connected"
		if h.nats == nil || !h.nats.IsConnected() {
			response["status"] = "not_ready"
			response["nats"] = "disconnected"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, response)
}
