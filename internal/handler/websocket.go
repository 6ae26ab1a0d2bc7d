package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"mystop/internal/hub"
	"mystop/internal/store"
)

type WSHandler struct {
	hub    *hub.Hub
	store  *store.StatusStore
	logger *slog.Logger
}

func NewWSHandler(h *hub.Hub, s *store.StatusStore, logger *slog.Logger) *WSHandler {
	return &WSHandler{hub: h, store: s, logger: logger.With("component", "websocket")}
}

type WSMessage struct {
	Type string `json:"type"`
}

// ServeWS streams tracker events. Each client first receives the current
// status snapshot.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	client := hub.NewClient(uuid.NewString(), 64)
	h.send(client, hub.Message{Type: "snapshot", Payload: h.store.Snapshot()})
	h.hub.Register(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	h.readLoop(ctx, conn, client)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", client.ID, "error", err)
			continue
		}

		switch msg.Type {
		case "ping":
			h.send(client, hub.Message{Type: "pong"})
		case "status":
			h.send(client, hub.Message{Type: "snapshot", Payload: h.store.Snapshot()})
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-client.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return

		case msg := <-client.Send:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// send queues msg on the client without blocking.
func (h *WSHandler) send(client *hub.Client, msg hub.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	select {
	case client.Send <- data:
	default:
		h.logger.Debug("client send buffer full", "client_id", client.ID, "type", msg.Type)
	}
}
