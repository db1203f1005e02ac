package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"deployhook/internal/async"
	"deployhook/internal/config"
	"deployhook/internal/deployment"
	"deployhook/internal/history"
	"deployhook/internal/notify"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// HTTP server timeouts
	HTTPReadTimeout = 10 * time.Second
	// Synchronization runs on the request path, so responses may take a while
	HTTPWriteTimeout = 10 * time.Minute
	HTTPIdleTimeout  = 60 * time.Second
)

// Server represents the HTTP server
type Server struct {
	Registry     *config.Registry
	Synchronizer *deployment.Synchronizer
	Executor     *deployment.Executor
	Dispatcher   *async.Dispatcher
	LockManager  *deployment.LockManager
	History      *history.History // nil disables delivery history
	Reporter     *notify.Reporter // nil disables commit statuses
	Logger       *slog.Logger
	RateLimit    int // webhook requests per minute per client, zero disables
}

// NewServer creates a server for cfg. History and Reporter are optional and
// set by the caller.
func NewServer(cfg *config.Config, logger *slog.Logger) *Server {
	return &Server{
		Registry:     config.NewRegistry(cfg.Repos),
		Synchronizer: deployment.NewSynchronizer(cfg.GitBinary, logger),
		Executor:     deployment.NewExecutor(logger),
		Dispatcher:   async.NewDispatcher(logger),
		LockManager:  deployment.NewLockManager(),
		Logger:       logger,
		RateLimit:    cfg.RateLimit,
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				s.Logger.Info("http_request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"request_id", middleware.GetReqID(r.Context()),
					"duration_ms", time.Since(start).Milliseconds())
			}()

			next.ServeHTTP(ww, r)
		})
	})

	r.Get("/", s.HandleRoot)
	r.Get("/health", s.HandleHealth)
	r.Get("/status/{owner}/{name}", s.HandleStatus)

	if s.RateLimit > 0 {
		r.With(NewRateLimitMiddleware(s.RateLimit, s.Logger)).Post("/hook", s.HandleHook)
	} else {
		r.Post("/hook", s.HandleHook)
	}

	return r
}

// HTTPServer returns an http.Server serving the router on host:port.
func (s *Server) HTTPServer(host string, port int) *http.Server {
	return &http.Server{
		Addr:         net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}
}

// Start listens on host:port until the listener fails or ctx is cancelled,
// then shuts down gracefully within grace.
func (s *Server) Start(ctx context.Context, host string, port int, grace time.Duration) error {
	httpServer := s.HTTPServer(host, port)
	s.Logger.Info("Starting server", "addr", httpServer.Addr, "repos", s.Registry.Count())

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.Logger.Info("Shutting down", "grace_period", grace.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.Logger.Error("HTTP shutdown did not complete", "error", err)
	}

	return s.Shutdown(shutdownCtx)
}

// WaitForCommands blocks until every dispatched command has finished.
// This is primarily useful for testing.
func (s *Server) WaitForCommands() {
	s.Dispatcher.Wait()
}

// Shutdown waits for running commands until ctx expires, then closes the
// history database. The database stays open while commands are still
// running so they can record their outcome if the process lives on.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.Dispatcher.Shutdown(ctx); err != nil {
		s.Logger.Warn("Commands still running at exit, leaving history open",
			"running", s.Dispatcher.InFlight())
		return nil
	}

	if s.History != nil {
		return s.History.Close()
	}
	return nil
}
