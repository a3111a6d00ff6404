package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// defaultRequestTimeout bounds individual request handling.
const defaultRequestTimeout = 30 * time.Second

// Pinger reports backing-store liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wraps the HTTP server and chi router for the checkout API.
type Server struct {
	router *chi.Mux
	srv    *http.Server
	db     Pinger
}

// NewServer builds the server chassis with the standard middleware stack.
// Route registration happens separately so callers can mount handler groups
// before Start.
func NewServer(port int, db Pinger) *Server {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(RequestLogger)
	r.Use(Recoverer)
	r.Use(ContextTimeout(defaultRequestTimeout))

	s := &Server{
		router: r,
		db:     db,
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}

	r.Get("/health", s.handleHealth)

	return s
}

// Router exposes the chi mux for handler registration.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start runs the server until ctx is canceled, then drains in-flight
// requests with a shutdown grace period.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		slog.Info("http server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("http server shutting down")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return <-errCh
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			slog.WarnContext(r.Context(), "health check failed", "error", err)
			JSON(w, r, http.StatusServiceUnavailable, APIResponse{Data: map[string]string{"status": "degraded"}})
			return
		}
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: map[string]string{"status": "ok"}})
}
