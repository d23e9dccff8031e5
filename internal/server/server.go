// Package server serves the placeholder page and the local control API of
// the daemon.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/runnerr0/tabtidy/internal/placeholder"
	"github.com/runnerr0/tabtidy/internal/suspender"
	"github.com/runnerr0/tabtidy/internal/tabs"
)

// Daemon is the part of the suspender service the API exposes.
type Daemon interface {
	Status(ctx context.Context) (suspender.Status, error)
	Snapshot(ctx context.Context) []suspender.SuspendedEntry
	Tidy(ctx context.Context) (suspender.TidyResult, error)
	Restore(ctx context.Context, id tabs.TabID) (string, error)
	SetPinned(ctx context.Context, id tabs.TabID, pinned bool) error
}

// Server is the loopback HTTP server of the daemon.
type Server struct {
	daemon Daemon
	logger *slog.Logger
	router *chi.Mux
}

func New(daemon Daemon, logger *slog.Logger) *Server {
	s := &Server{daemon: daemon, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get(placeholder.Path, s.handlePlaceholder)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/suspended", s.handleSuspended)
		r.Post("/tidy", s.handleTidy)
		r.Route("/tabs/{id}", func(r chi.Router) {
			r.Post("/restore", s.handleRestore)
			r.Post("/pin", s.handlePin(true))
			r.Delete("/pin", s.handlePin(false))
		})
	})

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Serve accepts connections on ln until ctx ends, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("server: listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("server: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
