package websocket

import (
	"context"
	"log/slog"
	"sync"

	"github.com/princekumarofficial/winsome/internal/types"
)

// broadcastBuffer bounds the events queued for the hub loop. Pushes beyond
// it are dropped: delivery is best effort.
const broadcastBuffer = 1024

// Hub maintains the set of subscribed clients and fans events out to them.
// All changes to the client map happen on the Run goroutine, which is also
// the only place a client's send channel is closed. Events for one user are
// delivered in the order they were pushed.
type Hub struct {
	// Registered clients mapped by username
	clients map[string]*Client

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Disconnect requests from session teardown
	disconnect chan sessionRef

	// Mutex to protect clients map
	mu sync.RWMutex

	// Channel to broadcast events
	broadcast chan *BroadcastMessage

	// Closed when Run returns
	done chan struct{}
}

// BroadcastMessage represents a message to be broadcast to specific users.
// A nil UserIDs slice addresses every subscriber.
type BroadcastMessage struct {
	UserIDs []string     `json:"user_ids"`
	Event   *types.Event `json:"event"`
}

type sessionRef struct {
	userID    string
	sessionID string
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		disconnect: make(chan sessionRef),
		broadcast:  make(chan *BroadcastMessage, broadcastBuffer),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and blocks until ctx is canceled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return nil

		case client := <-h.register:
			h.mu.Lock()
			// If user already has a subscription, close the old one
			if existing, exists := h.clients[client.userID]; exists {
				close(existing.send)
				slog.Info("Replaced existing subscription", slog.String("user", client.userID))
			}
			h.clients[client.userID] = client
			h.mu.Unlock()
			slog.Info("Subscriber connected", slog.String("user", client.userID))

		case client := <-h.unregister:
			h.remove(client)

		case ref := <-h.disconnect:
			h.mu.RLock()
			client, ok := h.clients[ref.userID]
			h.mu.RUnlock()
			if ok && client.sessionID == ref.sessionID {
				h.remove(client)
			}

		case message := <-h.broadcast:
			h.broadcastToUsers(message.UserIDs, message.Event)
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.clients[client.userID]; ok && current == client {
		delete(h.clients, client.userID)
		close(client.send)
		slog.Info("Subscriber disconnected", slog.String("user", client.userID))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, client := range h.clients {
		close(client.send)
		delete(h.clients, userID)
	}
}

// RegisterClient registers a new client
func (h *Hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// UnregisterClient unregisters a client
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Disconnect drops username's subscription if it was opened under
// sessionID. The client's outbound queue is closed, which ends its writer.
func (h *Hub) Disconnect(username, sessionID string) {
	select {
	case h.disconnect <- sessionRef{userID: username, sessionID: sessionID}:
	case <-h.done:
	}
}

// BroadcastToUsers sends an event to specific users
func (h *Hub) BroadcastToUsers(userIDs []string, event *types.Event) {
	if userIDs == nil {
		userIDs = []string{}
	}
	h.enqueue(&BroadcastMessage{UserIDs: userIDs, Event: event})
}

// BroadcastToUser sends an event to a specific user
func (h *Hub) BroadcastToUser(userID string, event *types.Event) {
	h.BroadcastToUsers([]string{userID}, event)
}

// BroadcastToAll sends an event to every subscriber
func (h *Hub) BroadcastToAll(event *types.Event) {
	h.enqueue(&BroadcastMessage{Event: event})
}

func (h *Hub) enqueue(message *BroadcastMessage) {
	select {
	case h.broadcast <- message:
	default:
		slog.Warn("Broadcast channel is full, dropping message", slog.String("type", string(message.Event.Type)))
	}
}

// broadcastToUsers is the internal method that actually sends messages to users
func (h *Hub) broadcastToUsers(userIDs []string, event *types.Event) {
	var failed []*Client

	h.mu.RLock()
	targets := make([]*Client, 0, len(userIDs))
	if userIDs == nil {
		for _, client := range h.clients {
			targets = append(targets, client)
		}
	} else {
		for _, userID := range userIDs {
			if client, ok := h.clients[userID]; ok {
				targets = append(targets, client)
			}
		}
	}
	for _, client := range targets {
		if err := client.SendEvent(event); err != nil {
			slog.Error("Failed to send event to client",
				slog.String("user", client.userID),
				slog.String("error", err.Error()))
			failed = append(failed, client)
		}
	}
	h.mu.RUnlock()

	// A subscriber that cannot keep up is dropped.
	for _, client := range failed {
		h.remove(client)
	}
}

// GetConnectedUsers returns a list of currently subscribed usernames
func (h *Hub) GetConnectedUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]string, 0, len(h.clients))
	for userID := range h.clients {
		users = append(users, userID)
	}
	return users
}

// IsUserConnected checks if a user is currently subscribed
func (h *Hub) IsUserConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, exists := h.clients[userID]
	return exists
}

// GetClientCount returns the number of subscribers
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
