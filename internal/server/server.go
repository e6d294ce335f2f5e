// Package server exposes the query pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/veriquery/veriquery/internal/config"
	"github.com/veriquery/veriquery/internal/observability"
	"github.com/veriquery/veriquery/internal/search"
)

// Version reported by the health endpoint, overridable at link time.
var Version = "1.0.0"

// Server is the HTTP front end over the search service.
type Server struct {
	cfg     config.ServerConfig
	router  *chi.Mux
	service *search.Service
	logger  *zap.Logger
	metrics *observability.Metrics
	tracing *observability.Tracing
	server  *http.Server
	started time.Time
}

// NewServer creates the HTTP server around an initialized service.
func NewServer(cfg config.ServerConfig, service *search.Service, logger *zap.Logger, metrics *observability.Metrics, tracing *observability.Tracing) *Server {
	s := &Server{
		cfg:     cfg,
		router:  chi.NewRouter(),
		service: service,
		logger:  logger,
		metrics: metrics,
		tracing: tracing,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// setupRoutes configures the HTTP routes and middleware.
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.observabilityMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Get("/providers", s.handleProviders)
		r.Get("/usage", s.handleUsage)
		r.Post("/admin/reload", s.handleReload)
	})
}

// observabilityMiddleware traces each request and records the HTTP
// metrics.
func (s *Server) observabilityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx, span := s.tracing.StartSpan(r.Context(), "http_request")
		defer span.End()

		s.tracing.SetAttributes(ctx, map[string]string{
			"http.method": r.Method,
			"http.url":    r.URL.String(),
		})

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		duration := time.Since(start)
		s.metrics.RecordRequest(r.Method, r.URL.Path, wrapped.statusCode, duration)
		s.tracing.SetAttributes(ctx, map[string]string{
			"http.status_code": fmt.Sprintf("%d", wrapped.statusCode),
		})
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start runs the server until the context is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.started = time.Now()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Handler exposes the mux, used by the tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
