package handler

import (
	"log/slog"
	"net/http"

	"mystop/internal/hub"
	"mystop/internal/middleware"
	"mystop/internal/store"
)

// NewRouter wires the status API. metrics may be nil.
func NewRouter(status *store.StatusStore, h *hub.Hub, metrics http.Handler, limiter *middleware.RateLimiter, logger *slog.Logger) http.Handler {
	httpHandler := NewHTTPHandler(status)
	wsHandler := NewWSHandler(h, status, logger)
	healthHandler := NewHealthHandler(status)

	api := http.NewServeMux()
	api.HandleFunc("GET /v1/status", httpHandler.GetStatus)
	api.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})

	// The websocket route stays outside gzhttp, which cannot hijack.
	var apiHandler http.Handler = GzipMiddleware(api)
	var wsRoute http.Handler = http.HandlerFunc(wsHandler.ServeWS)
	if limiter != nil {
		apiHandler = limiter.Middleware(apiHandler)
		wsRoute = limiter.Middleware(wsRoute)
	}

	mux := http.NewServeMux()
	mux.Handle("/", CORSMiddleware(apiHandler))
	mux.Handle("/v1/ws", wsRoute)
	mux.HandleFunc("GET /healthz", healthHandler.Healthz)
	mux.HandleFunc("GET /readyz", healthHandler.Readyz)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}
