package flowtrace

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Traces are same-origin demo tooling; cross-origin viewers are fine.
		return true
	},
}

// client is one WebSocket observer of a session.
type client struct {
	conn    *websocket.Conn
	send    chan []byte
	session *Session
	logger  *zap.Logger
}

// message is the wire envelope for session info and events.
type message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// HandleWebSocket upgrades the connection and attaches it to the session as
// an observer. The full event history is replayed first, then live events
// stream as they happen.
func (e *Engine) HandleWebSocket(w http.ResponseWriter, r *http.Request, sessionID string, logger *zap.Logger) {
	session, ok := e.GetSession(sessionID)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn:    conn,
		send:    make(chan []byte, 256),
		session: session,
		logger:  logger,
	}
	session.register(c)

	go c.writePump()
	go c.readPump()

	c.sendHistory()
}

func (s *Session) register(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = true
}

func (s *Session) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Session) broadcast(event Event) {
	data, err := json.Marshal(message{Type: string(event.Type), Payload: event})
	if err != nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full, skip
		}
	}
}

func (c *client) sendHistory() {
	c.session.mu.RLock()
	events := make([]Event, len(c.session.Events))
	copy(events, c.session.Events)
	info := message{
		Type: "session.info",
		Payload: map[string]interface{}{
			"id":         c.session.ID,
			"realm":      c.session.Realm,
			"state":      c.session.State,
			"created_at": c.session.CreatedAt,
		},
	}
	c.session.mu.RUnlock()

	data, _ := json.Marshal(info)
	c.send <- data

	for _, event := range events {
		data, err := json.Marshal(message{Type: string(event.Type), Payload: event})
		if err != nil {
			continue
		}
		c.send <- data
	}
}

func (c *client) readPump() {
	defer func() {
		c.session.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", zap.Error(err))
			}
			break
		}
		// Observers are read-only; inbound frames keep the connection alive.
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
