// server/internal/socket/hub.go
package socket

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// Message is the envelope of every push.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type client struct {
	conn Conn
	mu   sync.Mutex // gorilla allows one concurrent writer
}

// Hub keeps one socket per worker.
type Hub struct {
	clients map[string]*client
	mu      sync.RWMutex
	log     *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*client),
		log:     log.Named("socket"),
	}
}

// Register adds the worker's socket, closing any previous one.
func (h *Hub) Register(userID string, conn Conn) {
	h.mu.Lock()
	old, ok := h.clients[userID]
	h.clients[userID] = &client{conn: conn}
	h.mu.Unlock()

	if ok && old.conn != conn {
		_ = old.conn.Close()
	}
	h.log.Info("websocket client registered", zap.String("user_id", userID))
}

// Unregister removes conn if it is still the worker's current socket.
func (h *Hub) Unregister(userID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[userID]; ok && c.conn == conn {
		delete(h.clients, userID)
		h.log.Info("websocket client unregistered", zap.String("user_id", userID))
	}
}

func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// Send writes a raw text frame. A worker without an open socket is not an error.
func (h *Hub) Send(userID string, message []byte) error {
	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		return fmt.Errorf("failed to write to %s: %w", userID, err)
	}
	return nil
}

// Notify pushes an event with a JSON payload.
func (h *Hub) Notify(userID, event string, payload interface{}) error {
	raw, err := json.Marshal(Message{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}
	return h.Send(userID, raw)
}
