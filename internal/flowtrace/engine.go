// Package flowtrace captures the stages of an authentication flow as a
// stream of events that observers can follow live over WebSocket. It exists
// for demos and debugging: point a browser at a trace session and watch a
// login turn into a signed response step by step.
package flowtrace

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType categorizes flow events.
type EventType string

const (
	EventRequestParsed      EventType = "request.parsed"
	EventCredentialsChecked EventType = "credentials.checked"
	EventClaimsMapped       EventType = "claims.mapped"
	EventResponseBuilt      EventType = "response.built"
	EventResponseSigned     EventType = "response.signed"
	EventAuthFailed         EventType = "auth.failed"
)

// Event is one captured step in an authentication flow.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Title     string                 `json:"title"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// SessionState reports whether a trace session still accepts events.
type SessionState string

const (
	SessionStateActive   SessionState = "active"
	SessionStateComplete SessionState = "complete"
)

// Session is one observable trace: its event history plus the WebSocket
// clients following it. Events and UpdatedAt are written under mu while a
// login is in flight; serialize a Snapshot, never the Session itself.
type Session struct {
	ID        string
	Realm     string
	Events    []Event
	State     SessionState
	CreatedAt time.Time
	UpdatedAt time.Time

	clients map[*client]bool
	mu      sync.RWMutex
}

// SessionSnapshot is a point-in-time copy of a session, safe to serialize
// while events are still being emitted.
type SessionSnapshot struct {
	ID        string       `json:"id"`
	Realm     string       `json:"realm"`
	Events    []Event      `json:"events"`
	State     SessionState `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Snapshot copies the session's mutable state under the lock.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]Event, len(s.Events))
	copy(events, s.Events)
	return SessionSnapshot{
		ID:        s.ID,
		Realm:     s.Realm,
		Events:    events,
		State:     s.State,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// Engine manages trace sessions.
type Engine struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewEngine creates an empty trace engine.
func NewEngine() *Engine {
	return &Engine{sessions: make(map[string]*Session)}
}

// CreateSession opens a new trace session for the given realm.
func (e *Engine) CreateSession(realm string) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := &Session{
		ID:        uuid.New().String(),
		Realm:     realm,
		Events:    make([]Event, 0),
		State:     SessionStateActive,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		clients:   make(map[*client]bool),
	}
	e.sessions[s.ID] = s
	return s
}

// GetSession retrieves a session by ID.
func (e *Engine) GetSession(id string) (*Session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[id]
	return s, ok
}

// ListSessions returns all sessions.
func (e *Engine) ListSessions() []*Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s)
	}
	return out
}

// DeleteSession removes a session.
func (e *Engine) DeleteSession(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, id)
}

// Emit records an event on a session and pushes it to connected clients.
// Unknown session IDs are ignored so tracing stays optional in the auth
// path.
func (e *Engine) Emit(sessionID string, eventType EventType, title string, data map[string]interface{}) {
	e.mu.RLock()
	s, ok := e.sessions[sessionID]
	e.mu.RUnlock()
	if !ok {
		return
	}

	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Title:     title,
		Data:      data,
	}

	s.mu.Lock()
	s.Events = append(s.Events, event)
	s.UpdatedAt = event.Timestamp
	s.mu.Unlock()

	s.broadcast(event)
}

// Complete marks a session finished.
func (e *Engine) Complete(sessionID string) {
	e.mu.RLock()
	s, ok := e.sessions[sessionID]
	e.mu.RUnlock()
	if !ok {
		return
	}
	s.mu.Lock()
	s.State = SessionStateComplete
	s.mu.Unlock()
}
