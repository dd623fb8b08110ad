package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/slidecast/backend/internal/config"
	"github.com/slidecast/backend/internal/feedback"
	"github.com/slidecast/backend/internal/health"
	"github.com/slidecast/backend/internal/observe"
	"github.com/slidecast/backend/internal/session"
	"github.com/slidecast/backend/internal/slide"
	"github.com/slidecast/backend/internal/stream"
)

type Server struct {
	cfg      *config.Config
	sessions *session.Registry
	log      *feedback.Log
	slides   *slide.Channel
	events   *stream.Events
	probe    *health.Probe

	allowedOrigins map[string]bool
	allowedHosts   map[string]bool

	mu          sync.Mutex
	streamConns int
}

func NewServer(cfg *config.Config, sessions *session.Registry, fblog *feedback.Log, slides *slide.Channel, events *stream.Events, probe *health.Probe) *Server {
	s := &Server{
		cfg:            cfg,
		sessions:       sessions,
		log:            fblog,
		slides:         slides,
		events:         events,
		probe:          probe,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionRoutes)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.Handle("/metrics", observe.Handler())
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := s.sessions.Create()
	observe.RecordSessionCreated()
	log.Info().Str("session", sess.ID).Time("expiresAt", sess.ExpiresAt).Msg("session created")

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":           sess.ID,
		"createdAt":    sess.CreatedAt,
		"expiresAt":    sess.ExpiresAt,
		"audiencePath": "/s/" + sess.ID,
	})
}

func (s *Server) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	// Parse: /api/sessions/{id} or /api/sessions/{id}/{action}
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.SplitN(path, "/", 2)

	sessionID, err := url.PathUnescape(parts[0])
	if err != nil || sessionID == "" {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	if len(parts) == 1 {
		s.handleSession(w, r, sessionID)
		return
	}

	switch parts[1] {
	case "feedback":
		s.handleFeedback(w, r, sessionID)
	case "stream":
		s.handleStream(w, r, sessionID)
	case "slide":
		s.handleSlide(w, r, sessionID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	switch r.Method {
	case http.MethodGet:
		sess, ok := s.sessions.Get(sessionID)
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	case http.MethodDelete:
		if _, ok := s.sessions.Get(sessionID); ok {
			observe.RecordSessionEvicted("explicit", 1)
		}
		s.sessions.Delete(sessionID)
		s.log.Drop(sessionID)
		s.slides.Drop(sessionID)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request, sessionID string) {
	switch r.Method {
	case http.MethodPost:
		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		item, err := s.log.Append(sessionID, body.Text)
		switch {
		case errors.Is(err, feedback.ErrEmptyText):
			http.Error(w, "feedback text is empty", http.StatusBadRequest)
			return
		case errors.Is(err, feedback.ErrSessionNotFound):
			http.Error(w, "session not found", http.StatusNotFound)
			return
		case err != nil:
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		observe.RecordFeedbackAppended()
		writeJSON(w, http.StatusCreated, map[string]string{"feedbackId": item.ID})

	case http.MethodGet:
		var since time.Time
		if raw := r.URL.Query().Get("since"); raw != "" {
			parsed, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				http.Error(w, "invalid since timestamp", http.StatusBadRequest)
				return
			}
			since = parsed
		}
		items := s.log.Query(sessionID, since)
		if items == nil {
			items = []feedback.Item{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSlide(w http.ResponseWriter, r *http.Request, sessionID string) {
	switch r.Method {
	case http.MethodPut:
		var body struct {
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Payload) == 0 {
			http.Error(w, "invalid snapshot", http.StatusBadRequest)
			return
		}
		snap, err := s.slides.Publish(sessionID, body.Payload)
		if errors.Is(err, slide.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		observe.RecordSlidePublished()
		writeJSON(w, http.StatusOK, map[string]any{
			"id":          snap.ID,
			"publishedAt": snap.PublishedAt,
		})

	case http.MethodGet:
		if _, ok := s.sessions.Get(sessionID); !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		var payload any
		if snap, ok := s.slides.Latest(sessionID); ok {
			payload = snap
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"slide":        payload,
			"pollInterval": s.cfg.Slide.PollInterval.Seconds(),
		})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// Reject before upgrading so an invalid session gets a plain 404 and
	// never sees a keepalive.
	if _, ok := s.sessions.Get(sessionID); !ok {
		observe.RecordStreamRejected("not_found")
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if !s.acquireStreamSlot() {
		observe.RecordStreamRejected("capacity")
		http.Error(w, "stream connection limit reached", http.StatusServiceUnavailable)
		return
	}
	defer s.releaseStreamSlot()

	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("stream upgrade failed")
		return
	}
	observe.RecordStreamConnection()
	log.Info().Str("session", sessionID).Str("remote", r.RemoteAddr).Msg("stream connected")

	c := newClient(conn)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The consumer sends nothing meaningful; a read error is the
	// disconnect signal that tears the stream down.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = s.events.Run(ctx, sessionID, c)
	c.close()
	if err != nil && !errors.Is(err, stream.ErrSessionNotFound) {
		log.Warn().Str("session", sessionID).Err(err).Msg("stream ended with error")
	}
	log.Info().Str("session", sessionID).Str("remote", r.RemoteAddr).Msg("stream disconnected")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.probe.Collect(s.sessions.Len(), s.events.ActiveTasks()))
}

func (s *Server) acquireStreamSlot() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Stream.MaxConnections > 0 && s.streamConns >= s.cfg.Stream.MaxConnections {
		return false
	}
	s.streamConns++
	return true
}

func (s *Server) releaseStreamSlot() {
	s.mu.Lock()
	s.streamConns--
	s.mu.Unlock()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("response encode failed")
	}
}

func ListenAndServe(host string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Info().Str("addr", addr).Msg("server listening")
	return http.ListenAndServe(addr, mux)
}
