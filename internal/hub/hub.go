// Package hub provides connection management for WebSocket tail clients.
package hub

import (
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection represents a single WebSocket tail connection.
type Connection struct {
	ID          string
	ExecutionID string
	Conn        *websocket.Conn
	Send        chan []byte

	hub       *Hub
	closeOnce sync.Once
	closed    chan struct{}
}

// Closed is closed when the connection has been torn down.
func (c *Connection) Closed() <-chan struct{} {
	return c.closed
}

// Close tears the connection down once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.Conn.Close()
	})
}

// Hub manages all WebSocket tail connections.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// Executions maps execution_id to set of connection IDs
	executions map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection

	mu sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		executions:  make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if h.executions[conn.ExecutionID] == nil {
				h.executions[conn.ExecutionID] = make(map[string]bool)
			}
			h.executions[conn.ExecutionID][conn.ID] = true
			h.mu.Unlock()
			log.Printf("Tail connection registered: %s (execution: %s)", conn.ID, conn.ExecutionID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				if h.executions[conn.ExecutionID] != nil {
					delete(h.executions[conn.ExecutionID], conn.ID)
					if len(h.executions[conn.ExecutionID]) == 0 {
						delete(h.executions, conn.ExecutionID)
					}
				}
				close(conn.Send)
			}
			h.mu.Unlock()
			log.Printf("Tail connection unregistered: %s", conn.ID)
		}
	}
}

// NewConnection creates a new connection for an execution tail.
func (h *Hub) NewConnection(ws *websocket.Conn, executionID string) *Connection {
	return &Connection{
		ID:          uuid.New().String(),
		ExecutionID: executionID,
		Conn:        ws,
		Send:        make(chan []byte, 256),
		hub:         h,
		closed:      make(chan struct{}),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection from the hub and closes it.
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
	conn.Close()
}

// CountForExecution reports how many tail connections an execution has.
func (h *Hub) CountForExecution(executionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.executions[executionID])
}
