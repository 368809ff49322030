// Package push delivers best-effort live notifications over WebSocket.
// Durable delivery is the notification inbox; the hub only shortens the
// path for connected clients.
package push

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message is the wire format pushed to clients.
type Message struct {
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

// Conn is one live client connection.
type Conn struct {
	UserID  string
	IsAdmin bool
	ws      *websocket.Conn

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// trySend queues a payload without blocking. It reports false when the
// buffer is full. Sends race disconnects, so the closed flag is checked
// under the same lock shutdown closes the channel under.
func (conn *Conn) trySend(data []byte) bool {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.closed {
		return true
	}
	select {
	case conn.send <- data:
		return true
	default:
		return false
	}
}

// shutdown closes the send channel exactly once and drops the socket.
func (conn *Conn) shutdown() {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.closed {
		return
	}
	conn.closed = true
	close(conn.send)
	_ = conn.ws.Close()
}

// Hub tracks live connections per user plus the admin group.
type Hub struct {
	mu          sync.RWMutex
	connections map[string][]*Conn

	register   chan *Conn
	unregister chan *Conn
	done       chan struct{}
}

func NewHub() *Hub {
	h := &Hub{
		connections: make(map[string][]*Conn),
		register:    make(chan *Conn, 100),
		unregister:  make(chan *Conn, 100),
		done:        make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return
		case conn := <-h.register:
			h.addConn(conn)
		case conn := <-h.unregister:
			h.removeConn(conn)
		}
	}
}

// Close stops the hub loop and drops every connection.
func (h *Hub) Close() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conns := range h.connections {
		for _, conn := range conns {
			conn.shutdown()
		}
	}
	h.connections = make(map[string][]*Conn)
}

// Register attaches a websocket to the hub and starts its pumps. The read
// pump only drains client frames (heartbeats) and detects disconnects.
func (h *Hub) Register(userID string, isAdmin bool, ws *websocket.Conn) *Conn {
	conn := &Conn{
		UserID:  userID,
		IsAdmin: isAdmin,
		ws:      ws,
		send:    make(chan []byte, 32),
	}
	go conn.readPump(h)
	go conn.writePump()
	h.register <- conn
	return conn
}

func (h *Hub) addConn(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn.UserID] = append(h.connections[conn.UserID], conn)
}

func (h *Hub) removeConn(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.connections[conn.UserID]
	for i, c := range conns {
		if c == conn {
			h.connections[conn.UserID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	// A disconnect and a buffer-full eviction can both queue the same
	// conn; shutdown is idempotent.
	conn.shutdown()
	if len(h.connections[conn.UserID]) == 0 {
		delete(h.connections, conn.UserID)
	}
}

// SendToUser pushes a message to every live connection of one user. Offline
// users are silently skipped; slow connections are dropped rather than
// blocking the sender.
func (h *Hub) SendToUser(userID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	conns := append([]*Conn(nil), h.connections[userID]...)
	h.mu.RUnlock()

	for _, conn := range conns {
		if !conn.trySend(data) {
			h.unregister <- conn
		}
	}
}

// BroadcastToAdmins pushes a message to every connected admin.
func (h *Hub) BroadcastToAdmins(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	var targets []*Conn
	for _, conns := range h.connections {
		for _, conn := range conns {
			if conn.IsAdmin {
				targets = append(targets, conn)
			}
		}
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		if !conn.trySend(data) {
			h.unregister <- conn
		}
	}
}

// ConnectionCount reports the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conns := range h.connections {
		count += len(conns)
	}
	return count
}

func (conn *Conn) readPump(h *Hub) {
	defer func() {
		h.unregister <- conn
	}()
	for {
		if _, _, err := conn.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (conn *Conn) writePump() {
	for message := range conn.send {
		if err := conn.ws.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = conn.ws.WriteMessage(websocket.CloseMessage, []byte{})
}
