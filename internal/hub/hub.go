package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"mystop/internal/domain"
)

type Client struct {
	ID   string
	Send chan []byte

	done     chan struct{}
	doneOnce sync.Once
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:   id,
		Send: make(chan []byte, bufferSize),
		done: make(chan struct{}),
	}
}

// Done is closed once the hub has dropped the client. Send stays open so
// late writers never panic.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) close() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Message is the envelope written to websocket clients.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Hub fans tracker events out to every connected client.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		logger:     logger.With("component", "hub"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.ID, "total", total)

		case client := <-h.unregister:
			h.removeClient(client)

		case data := <-h.broadcast:
			h.fanout(data)
		}
	}
}

// Broadcast queues ev for delivery. Events are dropped when the queue is full.
func (h *Hub) Broadcast(ev domain.TrackerEvent) {
	data, err := json.Marshal(Message{Type: "event", Payload: ev})
	if err != nil {
		h.logger.Error("encoding event failed", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast channel full, dropping event", "type", ev.Type)
	}
}

// Register adds client to the fan-out. A client registered after Run has
// returned is closed straight away.
func (h *Hub) Register(client *Client) {
	h.enqueue(h.register, client)
}

func (h *Hub) Unregister(client *Client) {
	h.enqueue(h.unregister, client)
}

func (h *Hub) enqueue(ch chan<- *Client, client *Client) {
	select {
	case <-h.done:
		client.close()
		return
	default:
	}
	select {
	case ch <- client:
	case <-h.done:
		client.close()
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) fanout(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Debug("client send buffer full", "client_id", client.ID)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	client.close()
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", len(h.clients))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.close()
	}
	h.clients = make(map[*Client]struct{})
}
