// Package http exposes the query API: /health, /events, /events/summary,
// and /metrics, plus optional static hosting for the map UI.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/storm-data-query/internal/domain"
	"github.com/couchcryptid/storm-data-query/internal/observability"
	"github.com/couchcryptid/storm-data-query/internal/query"
)

// QueryService is what the route layer needs from the result shaper.
type QueryService interface {
	Events(ctx context.Context, f query.Filter) ([]domain.EventRow, error)
	Summary(ctx context.Context, f query.Filter) ([]domain.SummaryRow, error)
	Health(ctx context.Context) domain.HealthStatus
}

// Options tunes the server beyond its listen address.
type Options struct {
	// QueryTimeout bounds each request's engine work.
	QueryTimeout time.Duration

	// StaticDir is served at / when the directory exists.
	StaticDir string
}

// Server exposes the API over HTTP.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds the router and wraps it in an http.Server with sane
// timeouts.
func NewServer(addr string, svc QueryService, metrics *observability.Metrics, opts Options, logger *slog.Logger) *Server {
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 30 * time.Second
	}

	h := &handlers{svc: svc, metrics: metrics, queryTimeout: opts.QueryTimeout, logger: logger}

	router := chi.NewRouter()
	// Dev CORS posture: the API serves public read-only data.
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}))
	router.Use(requestMetrics(metrics))

	router.Get("/health", h.handleHealth)
	router.Get("/events", h.handleEvents)
	router.Get("/events/summary", h.handleSummary)
	router.Handle("/metrics", promhttp.Handler())

	if info, err := os.Stat(opts.StaticDir); err == nil && info.IsDir() {
		logger.Info("serving static assets", "dir", opts.StaticDir)
		router.Handle("/*", http.FileServer(http.Dir(opts.StaticDir)))
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: opts.QueryTimeout + 10*time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
