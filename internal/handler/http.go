package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"mystop/internal/store"
)

type HTTPHandler struct {
	store *store.StatusStore
}

func NewHTTPHandler(store *store.StatusStore) *HTTPHandler {
	return &HTTPHandler{store: store}
}

type StatusResponse struct {
	store.Status
	ServerTime time.Time `json:"serverTime"`
}

func (h *HTTPHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatusResponse{
		Status:     h.store.Snapshot(),
		ServerTime: time.Now(),
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
