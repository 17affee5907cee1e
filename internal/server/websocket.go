package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/titlecam/internal/pipeline"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ClientMessage is a command sent by a display client.
type ClientMessage struct {
	Type   string `json:"type"` // "capture", "orientation" or "state"
	Device string `json:"device,omitempty"`
}

// webSocketHandler streams previews and results to a display and accepts
// capture and rotation commands from it.
func (s *Server) webSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	c := s.hub.register(r.RemoteAddr)
	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)

	done := make(chan struct{})
	go func() {
		writePump(conn, c)
		close(done)
	}()

	s.queue(c, Message{Type: MessageState, Payload: s.stateSnapshot()})
	s.readPump(r.Context(), conn, c)

	s.hub.unregister(c)
	<-done
	_ = conn.Close()
	slog.Info("WebSocket connection closed", "remote_addr", r.RemoteAddr)
}

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, c *client) {
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("WebSocket error", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.queue(c, Message{Type: MessageError, Payload: ErrorResponse{Error: "invalid message"}})
			continue
		}
		websocketMessagesTotal.WithLabelValues("received", msg.Type).Inc()
		s.handleClientMessage(ctx, c, msg)
	}
}

func (s *Server) handleClientMessage(ctx context.Context, c *client, msg ClientMessage) {
	switch msg.Type {
	case "capture":
		if _, err := s.capture.RequestCapture(ctx); err != nil {
			if !errors.Is(err, pipeline.ErrCaptureInFlight) {
				slog.Warn("WebSocket capture failed", "error", err)
			}
			s.queue(c, Message{Type: MessageError, Payload: ErrorResponse{Error: err.Error()}})
			return
		}
		s.queue(c, Message{Type: MessageState, Payload: s.stateSnapshot()})
	case "orientation":
		if s.orientation == nil {
			s.queue(c, Message{Type: MessageError, Payload: ErrorResponse{Error: "orientation tracking not configured"}})
			return
		}
		if _, err := s.applyRotation(msg.Device); err != nil {
			s.queue(c, Message{Type: MessageError, Payload: ErrorResponse{Error: err.Error()}})
			return
		}
		s.queue(c, Message{Type: MessageState, Payload: s.stateSnapshot()})
	case "state":
		s.queue(c, Message{Type: MessageState, Payload: s.stateSnapshot()})
	default:
		s.queue(c, Message{Type: MessageError, Payload: ErrorResponse{Error: "unsupported message type: " + msg.Type}})
	}
}

// queue sends msg to one client without blocking.
func (s *Server) queue(c *client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal WebSocket message", "error", err)
		return
	}
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	if _, ok := s.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
		websocketMessagesTotal.WithLabelValues("sent", msg.Type).Inc()
	default:
		websocketMessagesTotal.WithLabelValues("dropped", msg.Type).Inc()
	}
}

// writePump owns all writes to conn until c.send is closed.
func writePump(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("WebSocket write failed", "remote_addr", c.remote, "error", err)
				_ = conn.Close()
				drain(c.send)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = conn.Close()
				drain(c.send)
				return
			}
		}
	}
}

// drain discards queued messages until the hub closes the channel.
func drain(ch <-chan []byte) {
	for range ch {
	}
}
