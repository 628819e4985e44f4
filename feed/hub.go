package feed

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/colorfulnotion/feauxviz/log"
	"github.com/colorfulnotion/feauxviz/snapshot"
)

// Message is what the feed sends to viewers.
type Message struct {
	Type  string          `json:"type"` // "frame" or "error"
	Frame *snapshot.Frame `json:"frame,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Hub fans frames out to every connected viewer and collects their commands.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan Message
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	commands   chan Command
	done       chan struct{}
	mu         sync.RWMutex
	last       []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		commands:   make(chan Command, 64),
		done:       make(chan struct{}),
	}
}

// Commands delivers commands sent by viewers.
func (h *Hub) Commands() <-chan Command {
	return h.commands
}

// Publish queues msg for every viewer. It drops the message when the hub is
// backed up rather than stall the poll loop.
func (h *Hub) Publish(msg Message) bool {
	select {
	case h.broadcast <- msg:
		return true
	default:
		log.Warn(log.FeedMonitoring, "feed: broadcast queue full, dropping message", "type", msg.Type)
		return false
	}
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run serves the hub until ctx is done, then disconnects every viewer.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			n := len(h.clients)
			last := h.last
			h.mu.Unlock()
			if last != nil {
				if err := conn.WriteMessage(websocket.TextMessage, last); err != nil {
					h.drop(conn)
				}
			}
			log.Debug(log.FeedMonitoring, "feed: client connected", "clients", n)

		case conn := <-h.unregister:
			h.drop(conn)

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Error(log.FeedMonitoring, "feed: marshal", "err", err)
				continue
			}
			h.mu.Lock()
			if msg.Type == "frame" {
				h.last = data
			}
			var failed []*websocket.Conn
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					failed = append(failed, conn)
				}
			}
			h.mu.Unlock()
			for _, conn := range failed {
				h.drop(conn)
			}
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
		log.Debug(log.FeedMonitoring, "feed: client disconnected", "clients", len(h.clients))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
