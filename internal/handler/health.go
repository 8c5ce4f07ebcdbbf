package handler

import (
	"net/http"
	"time"

	"github.com/parley-chat/messaging-platform/internal/nats"
	"github.com/parley-chat/messaging-platform/internal/store"
)

// HealthHandler reports process liveness and dependency readiness.
type HealthHandler struct {
	store *store.Store
	nats  *nats.Client
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(st *store.Store, nc *nats.Client) *HealthHandler {
	return &HealthHandler{store: st, nats: nc}
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
	})
}

// Ready handles GET /ready. Not ready until the database answers and the
// broker connection is up.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := http.StatusOK

	if db, err := h.store.DB().DB(); err != nil || db.PingContext(r.Context()) != nil {
		checks["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.nats != nil && !h.nats.IsConnected() {
		checks["nats"] = "disconnected"
		status = http.StatusServiceUnavailable
	} else {
		checks["nats"] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, healthResponse{
		Status:    state,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}
