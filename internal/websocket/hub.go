package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Message type constants
const (
	TypeConnection = "connection"
	TypeDataUpdate = "data_update"
	TypeWarning    = "warning"
	TypeError      = "error"
)

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *slog.Logger

	totalConnections int64

	quit    chan struct{}
	running bool
}

// NewHub creates a new Hub instance.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		quit:       make(chan struct{}),
	}
}

// Start launches the hub loop once.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.run()
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			h.logger.Info("hub shutting down")
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.totalConnections++
			count := len(h.clients)
			h.mu.Unlock()

			h.logger.Info("client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

			h.sendTo(client, envelope(TypeConnection, map[string]interface{}{
				"status":    "connected",
				"client_id": client.id,
			}))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()

			h.logger.Info("client unregistered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id))

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow client; drop it rather than block the hub.
					go func(c *Client) {
						select {
						case h.unregister <- c:
						case <-h.quit:
						}
					}(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Stop shuts the hub down.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.quit)
}

// Broadcast sends an event to every connected client. Implements the
// service layer's Notifier.
func (h *Hub) Broadcast(event string, payload interface{}) {
	data, err := json.Marshal(envelope(event, payload))
	if err != nil {
		h.logger.Error("marshal broadcast message",
			slog.String("event", event),
			slog.String("error", err.Error()))
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast channel full, dropping message",
			slog.String("event", event))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) sendTo(client *Client, msg map[string]interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

func envelope(event string, payload interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type":      event,
		"data":      payload,
		"timestamp": time.Now().Format(time.RFC3339),
	}
}
