// Package http exposes the turn processor and session administration as a JSON API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/dispatch/internal/logging"
	"github.com/aretw0/dispatch/internal/sanitize"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/aretw0/dispatch/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultMaxBodyBytes bounds a request body.
const DefaultMaxBodyBytes = 64 << 10

// Server serves the dispatch API.
type Server struct {
	turns   ports.TurnProcessor
	admin   ports.SessionAdmin
	graph   func() string
	metrics http.Handler
	health  func(ctx context.Context) error
	maxBody int64
	logger  *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMaxBodyBytes bounds request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		s.maxBody = n
	}
}

// WithGraph serves the rendered workflow graph on GET /v1/graph.
func WithGraph(render func() string) Option {
	return func(s *Server) {
		s.graph = render
	}
}

// WithMetrics mounts a metrics handler on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithHealthCheck makes GET /health report backend failures as 503.
func WithHealthCheck(check func(ctx context.Context) error) Option {
	return func(s *Server) {
		s.health = check
	}
}

// NewHandler creates the HTTP handler.
func NewHandler(turns ports.TurnProcessor, admin ports.SessionAdmin, opts ...Option) http.Handler {
	s := &Server{
		turns:   turns,
		admin:   admin,
		maxBody: DefaultMaxBodyBytes,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(enableCORS)

	r.Get("/health", s.getHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Post("/turns", s.postTurn)
		r.Post("/confirmations", s.postConfirmation)
		r.Get("/sessions", s.listSessions)
		r.Get("/sessions/{id}", s.getSession)
		r.Delete("/sessions/{id}", s.deleteSession)
		r.Get("/graph", s.getGraph)
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// errorBody is the JSON shape of every non-200 reply.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	s.writeJSON(w, status, errorBody{Error: msg, Code: code})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", fmt.Sprintf("request body exceeds %d bytes", s.maxBody))
			return false
		}
		s.writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		s.logger.Warn("invalid request body", "path", r.URL.Path, "err", err)
		return false
	}
	return true
}

func (s *Server) postTurn(w http.ResponseWriter, r *http.Request) {
	var req domain.TurnRequest
	if !s.decode(w, r, &req) {
		return
	}
	clean, err := sanitize.Input(req.Text)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		s.logger.Warn("turn input rejected", "err", err, "size", len(req.Text))
		return
	}
	req.Text = clean
	req.Resume = nil
	s.writeJSON(w, http.StatusOK, s.turns.Process(r.Context(), req))
}

func (s *Server) postConfirmation(w http.ResponseWriter, r *http.Request) {
	var req domain.ConfirmRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		s.writeError(w, http.StatusBadRequest, "missing_session_id", "session_id is required")
		return
	}
	s.writeJSON(w, http.StatusOK, s.turns.Confirm(r.Context(), req))
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.admin.Sessions(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "store_error", "failed to list sessions")
		s.logger.Error("list sessions failed", "err", err)
		return
	}
	if sessions == nil {
		sessions = []*domain.Session{}
	}
	s.writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.admin.Session(r.Context(), id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		s.writeError(w, http.StatusNotFound, "session_not_found", fmt.Sprintf("session %s not found", id))
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "store_error", "failed to load session")
		s.logger.Error("get session failed", "session_id", id, "err", err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.admin.DeleteSession(r.Context(), id); err != nil {
		s.writeError(w, http.StatusInternalServerError, "store_error", "failed to delete session")
		s.logger.Error("delete session failed", "session_id", id, "err", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getGraph(w http.ResponseWriter, r *http.Request) {
	if s.graph == nil {
		s.writeError(w, http.StatusNotFound, "graph_unavailable", "graph rendering is not enabled")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, s.graph())
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
