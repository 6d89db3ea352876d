package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/princekumarofficial/winsome/internal/types"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Outbound events queued per subscriber.
	sendBuffer = 256
)

// ErrQueueFull is returned when a subscriber's outbound queue is saturated.
var ErrQueueFull = errors.New("subscriber queue full")

// Client is one user's directed notification subscription: a bounded
// outbound queue drained by a writer goroutine onto the websocket.
type Client struct {
	// The websocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages. Closed by the hub only.
	send chan []byte

	// Username the subscription belongs to
	userID string

	// Login session the subscription was opened under
	sessionID string

	// Hub instance
	hub *Hub
}

// NewClient creates a new subscription for userID, opened under the login
// session sessionID, over conn.
func NewClient(conn *websocket.Conn, userID, sessionID string, hub *Hub) *Client {
	return &Client{
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		userID:    userID,
		sessionID: sessionID,
		hub:       hub,
	}
}

// readPump only services control frames; subscribers never send data.
func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", slog.String("error", err.Error()))
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
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
				// The hub closed the channel: logout or disconnect.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One websocket message per event keeps framing trivial for clients.
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

// SendEvent queues an event for this client without blocking.
func (c *Client) SendEvent(event *types.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start starts the client's read and write pumps
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// UserID returns the username associated with this client
func (c *Client) UserID() string {
	return c.userID
}
