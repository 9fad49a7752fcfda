package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Status is the body of the status endpoint.
type Status struct {
	Agent           string     `json:"agent"`
	State           string     `json:"state"`
	SessionID       string     `json:"session_id,omitempty"`
	ConnectedSince  *time.Time `json:"connected_since,omitempty"`
	Channels        []string   `json:"channels"`
	OutputPath      string     `json:"output_path"`
	Sessions        int64      `json:"sessions"`
	ConnectFailures int64      `json:"connect_failures"`
	Reconnects      int64      `json:"reconnects"`
	EventsReceived  int64      `json:"events_received"`
	EventsDropped   int64      `json:"events_dropped"`
	EntriesWritten  int64      `json:"entries_written"`
	DecodeFailures  int64      `json:"decode_failures"`
	WriteFailures   int64      `json:"write_failures"`
	Conversations   int64      `json:"conversations"`
}

// StatusFunc reports the watcher's current status.
type StatusFunc func() Status

type Server struct {
	router *chi.Mux
	srv    *http.Server
	status StatusFunc
}

func NewServer(port int, apiToken string, status StatusFunc) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		status: status,
	}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	router.Get("/health", s.health)
	router.Group(func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Get("/api/v1/scribe/status", s.getStatus)
	})

	return s
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	slog.Info("API server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
