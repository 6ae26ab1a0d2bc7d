package handler

import (
	"net/http"
	"time"

	"mystop/internal/domain"
	"mystop/internal/store"
)

type HealthHandler struct {
	store *store.StatusStore
}

func NewHealthHandler(s *store.StatusStore) *HealthHandler {
	return &HealthHandler{store: s}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready      bool                `json:"ready"`
	State      domain.TrackerState `json:"state"`
	ServerTime time.Time           `json:"serverTime"`
}

// Readyz reports ready once the tracker has finished its first login attempt.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ready := h.store.Ready()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, ReadyResponse{
		Ready:      ready,
		State:      h.store.Snapshot().State,
		ServerTime: time.Now(),
	})
}
