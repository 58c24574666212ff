package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/SmitUplenchwar2687/Tapedeck/internal/history"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Local dev tool.
	},
}

const writeWait = 5 * time.Second

// Event is the message sent to live-feed subscribers for each recorded
// exchange.
type Event struct {
	Type  string        `json:"type"`
	Entry history.Entry `json:"entry"`
}

// sendBuffer is how many events a subscriber may fall behind before it is
// dropped.
const sendBuffer = 64

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub manages WebSocket clients and broadcasts newly recorded entries.
// Each client has its own writer goroutine so Broadcast never waits on a
// network write.
type Hub struct {
	mu      sync.Mutex
	clients map[*subscriber]struct{}
	log     zerolog.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*subscriber]struct{}),
		log:     log,
	}
}

// HandleWebSocket upgrades the HTTP connection and registers the client.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[sub] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(sub)
	// Subscribers only listen; the read loop notices disconnects.
	go func() {
		defer h.remove(sub)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// writeLoop is the only writer of sub.conn. It exits once sub.send is
// closed, telling the client the feed has ended.
func (h *Hub) writeLoop(sub *subscriber) {
	defer sub.conn.Close()
	for data := range sub.send {
		sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Debug().Err(err).Msg("websocket write failed")
			h.remove(sub)
			return
		}
	}
	sub.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"),
		time.Now().Add(writeWait))
}

// remove unregisters sub. Safe to call more than once.
func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(sub)
}

// drop requires h.mu.
func (h *Hub) drop(sub *subscriber) {
	if _, ok := h.clients[sub]; !ok {
		return
	}
	delete(h.clients, sub)
	close(sub.send)
}

// Broadcast queues e for every connected client without blocking. A client
// whose queue is full is disconnected.
func (h *Hub) Broadcast(e history.Entry) {
	data, err := json.Marshal(Event{Type: "recorded", Entry: e})
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket marshal failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.clients {
		select {
		case sub.send <- data:
		default:
			h.log.Debug().Str("remote", sub.conn.RemoteAddr().String()).Msg("websocket client too slow, dropping")
			h.drop(sub)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.clients {
		h.drop(sub)
	}
}
