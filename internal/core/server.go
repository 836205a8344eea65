package core

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/identikit/samlidp/internal/flowtrace"
	"github.com/identikit/samlidp/internal/idp"
	"github.com/identikit/samlidp/internal/metrics"
)

// Server is the HTTP surface of the identity provider.
type Server struct {
	config   *Config
	handlers *idp.Handlers
	trace    *flowtrace.Engine
	recorder *metrics.Recorder
	logger   *zap.Logger
	router   chi.Router
}

// NewServer creates a new server instance
func NewServer(cfg *Config, handlers *idp.Handlers, trace *flowtrace.Engine, recorder *metrics.Recorder, logger *zap.Logger) *Server {
	s := &Server{
		config:   cfg,
		handlers: handlers,
		trace:    trace,
		recorder: recorder,
		logger:   logger,
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Global middleware
	r.Use(Recovery(s.logger))
	r.Use(RequestLogger(s.logger))
	r.Use(SecurityHeaders)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Rate limiting
	rateLimiter := NewRateLimiter(100, time.Minute)
	r.Use(rateLimiter.Limit)

	// Health check
	r.Get("/health", s.handleHealth)

	// Prometheus metrics
	r.Method(http.MethodGet, "/metrics", s.recorder.Handler())

	// SSO endpoints
	r.Route("/sso", func(r chi.Router) {
		r.Get("/login", s.handlers.LoginPage)
		r.Get("/authenticate", s.handlers.Authenticate)
		r.Post("/authenticate", s.handlers.Authenticate)
	})

	// Flow trace API
	r.Route("/api/flowtrace", func(r chi.Router) {
		r.Post("/sessions", s.handleCreateTraceSession)
		r.Get("/sessions", s.handleListTraceSessions)
		r.Get("/sessions/{id}", s.handleGetTraceSession)
		r.Delete("/sessions/{id}", s.handleDeleteTraceSession)
	})

	// WebSocket routes
	r.Get("/ws/flowtrace/{session}", s.handleTraceWS)

	s.router = r
}

// Health check response
type HealthResponse struct {
	Status string `json:"status"`
	Realm  string `json:"realm"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "healthy",
		Realm:  s.config.RealmSID,
	})
}

func (s *Server) handleCreateTraceSession(w http.ResponseWriter, r *http.Request) {
	session := s.trace.CreateSession(s.config.RealmSID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":  session.ID,
		"realm":       session.Realm,
		"ws_endpoint": "/ws/flowtrace/" + session.ID,
	})
}

func (s *Server) handleListTraceSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.trace.ListSessions()
	snapshots := make([]flowtrace.SessionSnapshot, 0, len(sessions))
	for _, session := range sessions {
		snapshots = append(snapshots, session.Snapshot())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": snapshots,
	})
}

func (s *Server) handleGetTraceSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, exists := s.trace.GetSession(id)
	if !exists {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) handleDeleteTraceSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.trace.DeleteSession(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTraceWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session")
	s.trace.HandleWebSocket(w, r, sessionID, s.logger)
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
