package websocket

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard serves same-origin browsers plus local tooling.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	id         string
	remoteAddr string
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	logger     *slog.Logger
}

// ServeWS upgrades an HTTP request to a websocket connection and registers
// the client with the hub.
func ServeWS(hub *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		id:         uuid.New().String(),
		remoteAddr: r.RemoteAddr,
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, 32),
		logger:     logger.With(slog.String("component", "websocket.client")),
	}
	select {
	case hub.register <- client:
	case <-hub.quit:
		conn.Close()
		return errors.New("hub stopped")
	}

	go client.writePump()
	go client.readPump()
	return nil
}

// readPump discards inbound messages; the dashboard only pushes. It exists
// to process control frames and detect closed connections.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("unexpected close",
					slog.String("client_id", c.id),
					slog.String("error", err.Error()))
			}
			return
		}
	}
}

// writePump forwards hub messages to the connection and keeps it alive
// with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
