// Package ws serves the display-sink WebSocket: the rendering client
// connects here and receives the broadcast state stream.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"streamquiz/internal/broadcast"
	"streamquiz/internal/logging"
	"streamquiz/internal/telemetry"
)

// Controller is notified when the rendering client attaches or detaches;
// connection drives the question cycle.
type Controller interface {
	ClientConnected()
	ClientDisconnected()
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Server implements broadcast.Sink over gorilla WebSocket connections.
type Server struct {
	controller Controller
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
}

func NewServer(controller Controller) *Server {
	return &Server{
		controller: controller,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// Broadcast marshals the message once and queues it to every connected
// client. Slow clients drop the oldest queued frame rather than blocking
// the caller.
func (s *Server) Broadcast(msg broadcast.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Log.Errorw("marshal broadcast message", "err", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		select {
		case c.send <- data:
		default:
			select {
			case <-c.send:
			default:
			}
			c.send <- data
		}
	}
}

// ServeWS upgrades the request and attaches the rendering client. The
// first connection starts the question cycle; the last disconnection
// stops it.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Log.Errorw("ws upgrade failed", "err", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 32),
	}

	s.mu.Lock()
	s.clients[c.id] = c
	first := len(s.clients) == 1
	s.mu.Unlock()

	if telemetry.SinksConnected != nil {
		telemetry.SinksConnected.Inc()
	}
	logging.Log.Infow("display client attached", "id", c.id)

	go s.writeLoop(c)
	if first {
		s.controller.ClientConnected()
	}

	// the display client sends nothing we act on; the read loop exists
	// to detect disconnection
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.detach(c)
}

func (s *Server) writeLoop(c *client) {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logging.Log.Debugw("ws write error", "id", c.id, "err", err)
			return
		}
	}
}

func (s *Server) detach(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c.id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c.id)
	last := len(s.clients) == 0
	s.mu.Unlock()

	close(c.send)
	_ = c.conn.Close()
	if telemetry.SinksConnected != nil {
		telemetry.SinksConnected.Dec()
	}
	logging.Log.Infow("display client detached", "id", c.id)

	if last {
		s.controller.ClientDisconnected()
	}
}
