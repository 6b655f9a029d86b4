// Package api implements the JSON API fronting the blueprint pipeline.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/blueprintlab/blueprintd/internal/buildinfo"
	"github.com/blueprintlab/blueprintd/internal/cache"
	"github.com/blueprintlab/blueprintd/internal/conversation"
	"github.com/blueprintlab/blueprintd/internal/events"
	"github.com/blueprintlab/blueprintd/internal/generate"
	"github.com/blueprintlab/blueprintd/internal/session"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	mgr     *conversation.Manager
	store   *session.SQLiteStore
	cache   *cache.Store
	bus     *events.Bus
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates a new API server.
func NewServer(address string, port int, mgr *conversation.Manager, store *session.SQLiteStore, cacheStore *cache.Store, bus *events.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		port:    port,
		mgr:     mgr,
		store:   store,
		cache:   cacheStore,
		bus:     bus,
		logger:  logger.With("component", "api"),
	}
}

// Handler builds the route table. Exposed separately from Start so
// tests can drive it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /api/sessions/{id}/turn", s.handleTurn)
	mux.HandleFunc("POST /api/sessions/{id}/blueprint", s.handleBlueprint)
	mux.HandleFunc("POST /api/sessions/{id}/timeout", s.handleTimeout)
	mux.HandleFunc("POST /api/sessions/{id}/complete", s.handleComplete)

	mux.HandleFunc("GET /api/cache/stats", s.handleCacheStats)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests and blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // generation turns can run long
	}

	s.logger.Info("starting API server", "address", s.address, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, map[string]string{"error": msg}, s.logger)
}

// mapError turns domain errors into HTTP status codes.
func (s *Server) mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		s.errorResponse(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrEmptyMessage),
		errors.Is(err, session.ErrMessageTooLong),
		errors.Is(err, session.ErrInvalidSender):
		s.errorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrInvalidTransition):
		s.errorResponse(w, http.StatusConflict, err.Error())
	case errors.Is(err, generate.ErrGenerationFailed):
		s.errorResponse(w, http.StatusBadGateway, "blueprint generation failed")
	default:
		s.logger.Error("request failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "internal error")
	}
}

// CreateSessionRequest is the intake submission. Email and
// ConversationHistory are optional: the email is kept on the session for
// operator follow-up, and the history seeds the message log so the
// conversation picks up where an earlier channel left off.
type CreateSessionRequest struct {
	Persona             string           `json:"persona,omitempty"`
	Email               string           `json:"email,omitempty"`
	Intake              session.Intake   `json:"intake"`
	ConversationHistory []HistoryMessage `json:"conversation_history,omitempty"`
}

// HistoryMessage is one prior turn supplied at session creation.
// An empty sender defaults to the user role.
type HistoryMessage struct {
	Sender  string `json:"sender,omitempty"`
	Content string `json:"content"`
}

// CreateSessionResponse returns the new session and its opening question.
type CreateSessionResponse struct {
	SessionID       string `json:"session_id"`
	State           string `json:"state"`
	OpeningQuestion string `json:"opening_question"`
	ProgressPercent int    `json:"progress_percent"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Validate the supplied history before creating anything so a bad
	// entry cannot leave a half-seeded session behind.
	for i := range req.ConversationHistory {
		if req.ConversationHistory[i].Sender == "" {
			req.ConversationHistory[i].Sender = session.SenderUser
		}
		h := req.ConversationHistory[i]
		if err := session.ValidateSender(h.Sender); err != nil {
			s.mapError(w, err)
			return
		}
		if err := session.ValidateContent(h.Content); err != nil {
			s.mapError(w, err)
			return
		}
	}

	sess := &session.Session{
		Persona: req.Persona,
		Email:   req.Email,
		Intake:  req.Intake,
		State:   string(conversation.StateClarification),
	}
	if err := s.store.CreateSession(r.Context(), sess); err != nil {
		s.mapError(w, err)
		return
	}

	// Seed prior turns ahead of the opening question so the transcript
	// and the clarification heuristic see them in order.
	for _, h := range req.ConversationHistory {
		if err := s.store.AddMessage(r.Context(), &session.Message{
			SessionID: sess.ID,
			Sender:    h.Sender,
			Content:   h.Content,
			Metadata:  map[string]string{"imported": "true"},
		}); err != nil {
			s.mapError(w, err)
			return
		}
	}

	question, err := s.mgr.Open(r.Context(), sess.ID)
	if err != nil {
		s.mapError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, CreateSessionResponse{
		SessionID:       sess.ID,
		State:           sess.State,
		OpeningQuestion: question,
		ProgressPercent: conversation.Progress(conversation.StateClarification),
	}, s.logger)
}

// SessionResponse is the session detail view.
type SessionResponse struct {
	Session         *session.Session  `json:"session"`
	Messages        []session.Message `json:"messages"`
	ProgressPercent int               `json:"progress_percent"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		s.mapError(w, err)
		return
	}
	msgs, err := s.store.GetMessages(r.Context(), id)
	if err != nil {
		s.mapError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, SessionResponse{
		Session:         sess,
		Messages:        msgs,
		ProgressPercent: conversation.Progress(conversation.State(sess.State)),
	}, s.logger)
}

// TurnRequest is one user message.
type TurnRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.mgr.ProcessUserResponse(r.Context(), id, req.Message)
	if err != nil {
		s.mapError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, result, s.logger)
}

// cacheBypassHeader requests a fresh generation even when a cached
// blueprint exists. The existing entry is left in place.
const cacheBypassHeader = "X-Cache-Bypass"

func (s *Server) handleBlueprint(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	opts := cache.Options{}
	switch r.Header.Get(cacheBypassHeader) {
	case "1", "true":
		opts.Bypass = true
	}

	bp, err := s.mgr.GenerateBlueprint(r.Context(), id, opts)
	if err != nil {
		s.mapError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, bp, s.logger)
}

func (s *Server) handleTimeout(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	text, err := s.mgr.HandleTimeout(r.Context(), id)
	if err != nil {
		s.mapError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"assistant_text": text}, s.logger)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.mgr.Complete(r.Context(), id); err != nil {
		s.mapError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"state": string(conversation.StateComplete)}, s.logger)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	var stats cache.Stats
	if s.cache != nil {
		stats = s.cache.Stats()
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, stats, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "blueprintd",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}
