package web

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vnetscan/vnetscan/utils/customlog"
)

// replaySize bounds how many recent events a newly connected dashboard receives.
const replaySize = 64

// Hub fans probe events and log lines out to every connected dashboard.
// Dashboards that connect mid-run are sent the most recent events first.
type Hub struct {
	clients map[*Client]bool
	recent  [][]byte

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func newHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 1024),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
	}
}

// Close stops run and disconnects every client.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			for _, message := range h.recent {
				select {
				case client.send <- message:
				default:
				}
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			// slow clients are dropped, which mutates the map
			h.mu.Lock()
			h.remember(message)
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remember keeps message in the replay ring. Callers hold mu.
func (h *Hub) remember(message []byte) {
	if len(h.recent) == replaySize {
		copy(h.recent, h.recent[1:])
		h.recent = h.recent[:replaySize-1]
	}
	h.recent = append(h.recent, message)
}

// ClientCount returns the number of connected dashboards.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Write lets the Hub act as an io.Writer for the logger. Each line becomes a
// {"type":"log"} event.
func (h *Hub) Write(p []byte) (n int, err error) {
	trimmed := strings.TrimSpace(string(p))
	if trimmed == "" {
		return len(p), nil
	}
	h.BroadcastJSON("log", trimmed)
	return len(p), nil
}

// BroadcastJSON wraps data in a typed event and broadcasts it.
func (h *Hub) BroadcastJSON(eventType string, data interface{}) {
	msg, err := json.Marshal(map[string]interface{}{"type": eventType, "data": data})
	if err != nil {
		// the logger may be writing into this hub, so go to stderr directly
		fmt.Fprintf(os.Stderr, "hub: failed to marshal %s event: %v\n", eventType, err)
		return
	}
	h.Broadcast(msg)
}

// Broadcast queues a message without blocking.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		fmt.Fprintf(os.Stderr, "hub: broadcast channel full, dropping message\n")
	}
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// readPump only watches the connection state; dashboards send nothing.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				customlog.Printf(customlog.Warning, "websocket closed: %v\n", err)
			}
			return
		}
	}
}

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
			// one event per frame
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
