package report

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cwbudde/algo-latency/measure/capture"
)

// Starter starts a measurement session and returns its identifier.
type Starter interface {
	Measure() (uint64, error)
}

// Server exposes the hub and a start endpoint:
//
//	GET  /results  JSON array of recorded measurements
//	POST /measure  start a session (202, or 409 while one is running)
//	GET  /ws       websocket feed of snapshot, status and measurement messages
type Server struct {
	hub        *Hub
	starter    Starter
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a server listening on addr.
func NewServer(addr string, hub *Hub, starter Starter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{hub: hub, starter: starter, logger: logger}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /results", s.handleResults)
	mux.HandleFunc("POST /measure", s.handleMeasure)
	mux.Handle("GET /ws", s.hub)

	return mux
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("Results server starting", "addr", s.httpServer.Addr)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleResults(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Results())
}

func (s *Server) handleMeasure(w http.ResponseWriter, _ *http.Request) {
	session, err := s.starter.Measure()
	switch {
	case errors.Is(err, capture.ErrSessionAlreadyRunning):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		s.logger.Error("Failed to start measurement", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusAccepted, map[string]uint64{"session": session})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
