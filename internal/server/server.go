// Package server exposes the orchestration pipeline over HTTP and streams
// live events to viewers over SSE.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vibeforge/internal/hub"
	"vibeforge/internal/orchestrator"
)

// Responder runs the response pipeline. Satisfied by
// *orchestrator.Orchestrator.
type Responder interface {
	Respond(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error)
}

// ActivityReader lists a project's bounded history.
type ActivityReader interface {
	ListActivity(ctx context.Context, projectID string) ([]orchestrator.ActivityEvent, error)
}

// BalanceReader reports a credential's pineapple balance.
type BalanceReader interface {
	Balance(ctx context.Context, credential string) (int64, error)
}

// Server binds the exposed contract to HTTP.
type Server struct {
	responder Responder
	events    *hub.Hub
	activity  ActivityReader
	balances  BalanceReader
	logger    *zap.Logger
}

// New wires the HTTP surface.
func New(responder Responder, events *hub.Hub, activity ActivityReader, balances BalanceReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		responder: responder,
		events:    events,
		activity:  activity,
		balances:  balances,
		logger:    logger,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/respond", s.handleRespond)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/projects/{id}/activity", s.handleActivity)
	mux.HandleFunc("GET /api/balance", s.handleBalance)
	return mux
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := uuid.NewString()

	var req orchestrator.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Credential = bearerToken(r)

	resp, err := s.responder.Respond(r.Context(), req)
	if err != nil {
		if errors.Is(err, orchestrator.ErrEmptyPrompt) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("respond failed",
			zap.String("requestId", requestID),
			zap.String("project", req.ProjectID),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "generation failed")
		return
	}

	s.logger.Info("respond completed",
		zap.String("requestId", requestID),
		zap.String("project", req.ProjectID),
		zap.Int("commands", len(resp.RunCommandResults)),
		zap.Int("appliedFiles", len(resp.AppliedFiles)),
		zap.Int64("pineapples", resp.PineapplesEarned),
		zap.Duration("elapsed", time.Since(started)))

	writeJSON(w, http.StatusOK, resp)
}

// handleEvents holds the connection open and relays every hub broadcast
// until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := &sseSink{w: w, flusher: flusher}
	s.events.Register(sink)
	defer func() {
		s.events.Remove(sink)
		sink.close()
	}()

	<-r.Context().Done()
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	events, err := s.activity.ListActivity(r.Context(), projectID)
	if err != nil {
		s.logger.Error("activity listing failed",
			zap.String("project", projectID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list activity")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	credential := bearerToken(r)
	if credential == "" {
		writeError(w, http.StatusUnauthorized, "credential required")
		return
	}
	balance, err := s.balances.Balance(r.Context(), credential)
	if err != nil {
		s.logger.Error("balance lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

// sseSink adapts one response writer into a hub sink. Writes after the
// handler has returned are refused instead of touching a dead connection.
type sseSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

func (s *sseSink) Write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("stream closed")
	}
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
