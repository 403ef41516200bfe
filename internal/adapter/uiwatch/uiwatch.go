// Package uiwatch implements the supplemental debug live-state broadcast:
// Event values pushed to any connected local debug client over a
// websocket, the same pattern the pack's thane-ai-agent uses to push live
// state to its own dashboard. qipsd broadcasts focus changes only; no
// attach or detach events are sent.
package uiwatch

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Event is one broadcast message. Kind is one of "attach", "detach", or
// "focus".
type Event struct {
	Kind   string `json:"kind"`
	SlotID int    `json:"slot_id"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans Event values out to every connected websocket client. It never
// blocks a caller's Broadcast on a slow client: when a client's send buffer
// is full, the event is dropped for that client, which stays connected.
type Hub struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]chan Event
}

// NewHub constructs an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log, clients: make(map[*websocket.Conn]chan Event)}
}

// ServeHTTP upgrades the request to a websocket and registers the
// connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("uiwatch upgrade failed", "err", err)
		return
	}

	ch := make(chan Event, 16)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// Broadcast pushes ev to every connected client.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- ev:
		default:
			h.log.Warn("uiwatch client too slow, dropping event", "remote", conn.RemoteAddr())
		}
	}
}

// Marshal is exposed for tests verifying the wire shape without pulling in
// a real websocket round-trip.
func Marshal(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}
