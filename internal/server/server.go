// Package server exposes the orchestrator's request/notification
// channel to UI clients as JSON over WebSocket.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seiken-dev/jiten/internal/events"
	"github.com/seiken-dev/jiten/internal/models"
	"github.com/seiken-dev/jiten/internal/services/update"
)

// inbound is one client request.
type inbound struct {
	Type     string `json:"type"`
	Language string `json:"language,omitempty"`
	Force    bool   `json:"force,omitempty"`
}

// outbound is one notification on the wire.
type outbound struct {
	Type      string           `json:"type"`
	Snapshot  *models.Snapshot `json:"snapshot,omitempty"`
	LastCheck *time.Time       `json:"lastCheck,omitempty"`
	Error     *outboundError   `json:"error,omitempty"`
	Message   string           `json:"message,omitempty"`
}

type outboundError struct {
	Message  string `json:"message"`
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
}

// Server bridges WebSocket clients to the update manager. It is the
// manager's single notification consumer; every message fans out to
// all connected clients.
type Server struct {
	manager  *update.Manager
	logger   *events.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]chan []byte
}

// New creates a notification bridge.
func New(manager *update.Manager, logger *events.Logger) *Server {
	return &Server{
		manager: manager,
		logger:  logger.WithField("component", "server"),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
		},
		conns: make(map[*websocket.Conn]chan []byte),
	}
}

// Handler returns the HTTP handler, with the bridge at /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Run fans the manager's notifications out to clients until the
// notification stream closes or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return ctx.Err()
		case n, ok := <-s.manager.Notifications():
			if !ok {
				s.closeAll()
				return nil
			}
			payload, err := json.Marshal(toWire(n))
			if err != nil {
				s.logger.WithError(err).Warn("Failed to encode notification")
				continue
			}
			s.broadcast(payload)
		}
	}
}

func toWire(n update.Notification) outbound {
	out := outbound{Type: string(n.Type)}

	switch n.Type {
	case update.NotifStateUpdated:
		out.Snapshot = n.Snapshot
	case update.NotifUpdateComplete:
		if !n.LastCheck.IsZero() {
			t := n.LastCheck
			out.LastCheck = &t
		}
	case update.NotifError:
		out.Error = &outboundError{
			Message:  n.Err.Error(),
			Kind:     models.KindOf(n.Err).String(),
			Severity: string(n.Severity),
		}
	case update.NotifBreadcrumb:
		out.Message = n.Message
	}
	return out
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	send := make(chan []byte, 32)
	s.mu.Lock()
	s.conns[conn] = send
	s.mu.Unlock()

	s.logger.WithField("remote", conn.RemoteAddr().String()).Info("Client connected")

	go s.writeLoop(conn, send)
	s.readLoop(conn)
}

func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.drop(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.WithError(err).Debug("Client read error")
			}
			return
		}

		var req inbound
		if err := json.Unmarshal(data, &req); err != nil {
			s.logger.WithError(err).Debug("Ignoring malformed request")
			continue
		}
		s.dispatch(req)
	}
}

func (s *Server) dispatch(req inbound) {
	switch req.Type {
	case "queryState":
		s.manager.Query()
	case "update":
		s.manager.Update(req.Language, req.Force)
	case "cancelUpdate":
		s.manager.Cancel()
	case "delete":
		s.manager.Delete()
	default:
		s.logger.WithField("type", req.Type).Debug("Ignoring unknown request type")
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, send <-chan []byte) {
	for payload := range send {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.drop(conn)
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
}

func (s *Server) broadcast(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn, send := range s.conns {
		select {
		case send <- payload:
		default:
			// Slow client; drop it rather than buffer unboundedly.
			s.logger.WithField("remote", conn.RemoteAddr().String()).Warn("Dropping slow client")
			delete(s.conns, conn)
			close(send)
		}
	}
}

func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	send, ok := s.conns[conn]
	if ok {
		delete(s.conns, conn)
	}
	s.mu.Unlock()

	if ok {
		close(send)
	}
	conn.Close()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[*websocket.Conn]chan []byte)
	s.mu.Unlock()

	for conn, send := range conns {
		close(send)
		conn.Close()
	}
}
