package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Message is a live-sync event pushed to members of a house when shared
// plant state changes (created, updated, watered, ...).
type Message struct {
	Type    string         `json:"type"`
	Entity  string         `json:"entity"`
	Action  string         `json:"action"`
	ID      int64          `json:"id,omitempty"`
	HouseID int64          `json:"house_id,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// Hub tracks connected clients and routes house-scoped broadcasts. A
// client only receives events for houses it is a member of.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// BroadcastHouse sends a message to every client belonging to the house,
// except the one identified by excludeUserID (usually the actor, whose UI
// already reflects the change).
func (h *Hub) BroadcastHouse(houseID, excludeUserID int64, msg Message) {
	msg.HouseID = houseID
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.userID == excludeUserID || !c.inHouse(houseID) {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client buffer full: drop rather than block the hub
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
