// Package ws provides the WebSocket live-tail endpoint: secondary clients
// (dashboards, debugging tools) follow an execution's frames without holding
// an event-stream connection.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/buffer"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/domain"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/hub"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// TailMessage is one frame pushed to a tail client.
type TailMessage struct {
	Sequence int64  `json:"sequence"`
	Event    string `json:"event,omitempty"`
	Data     string `json:"data,omitempty"`
}

// Server handles WebSocket tail connections.
type Server struct {
	hub      *hub.Hub
	buf      *buffer.Buffer
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server and starts its hub.
func NewServer(buf *buffer.Buffer) *Server {
	h := hub.NewHub()
	go h.Run()

	return &Server{
		hub: h,
		buf: buf,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Hub exposes the connection hub.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// HandleTail upgrades the request and streams an execution's frames from
// sequence one until completion or disconnect.
// GET /v1/executions/:execution_id/tail
func (s *Server) HandleTail(c echo.Context) error {
	executionID := c.Param("execution_id")
	if s.buf.Status(executionID) == domain.ExecutionStatusNotFound {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "execution not found"})
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		return err
	}

	conn := s.hub.NewConnection(ws, executionID)
	s.hub.Register(conn)

	go s.writePump(conn)
	go s.tailLoop(conn)
	go s.readPump(conn)

	return nil
}

// tailLoop subscribes to the execution and feeds frames into the send queue.
func (s *Server) tailLoop(conn *hub.Connection) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-conn.Closed()
		cancel()
	}()

	frames, err := s.buf.Subscribe(ctx, conn.ExecutionID, 0)
	if err != nil {
		log.Printf("ERROR: failed to subscribe tail for %s: %v", conn.ExecutionID, err)
		s.hub.Unregister(conn)
		return
	}

	for frame := range frames {
		msg, err := json.Marshal(TailMessage{
			Sequence: frame.Sequence,
			Event:    frame.Event,
			Data:     string(frame.Data),
		})
		if err != nil {
			continue
		}
		select {
		case conn.Send <- msg:
		case <-conn.Closed():
			return
		}
	}

	// Execution completed and fully delivered.
	s.hub.Unregister(conn)
}

// writePump writes queued messages to the WebSocket connection.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-conn.Closed():
			return
		}
	}
}

// readPump consumes control frames and detects disconnects.
func (s *Server) readPump(conn *hub.Connection) {
	defer s.hub.Unregister(conn)

	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
