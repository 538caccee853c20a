// Package httpserver provides the HTTP REST API for starting harvest runs,
// following their progress and downloading their exports.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-harvester/internal/harvest"
)

// Runner executes a harvest run. *harvest.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, params harvest.Params, obs harvest.Observer) (*harvest.Report, error)
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	runner     Runner
	store      *RunStore
	cfg        Config
	logger     zerolog.Logger

	// baseCtx outlives individual requests; runs are cancelled on Shutdown.
	baseCtx    context.Context
	cancelRuns context.CancelFunc
	now        func() time.Time
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// DefaultMaxParallel is used when a request omits max_parallel.
	DefaultMaxParallel int

	// FilePrefix names downloaded exports.
	FilePrefix string

	// MetricsPath and MetricsHandler mount a metrics endpoint when the
	// handler is set.
	MetricsPath    string
	MetricsHandler http.Handler
}

// NewServer creates a new HTTP server.
func NewServer(cfg Config, runner Runner, store *RunStore, logger zerolog.Logger) *Server {
	if store == nil {
		store = NewRunStore()
	}
	if cfg.DefaultMaxParallel == 0 {
		cfg.DefaultMaxParallel = harvest.MinParallel
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		runner:     runner,
		store:      store,
		cfg:        cfg,
		logger:     logger.With().Str("component", "http-server").Logger(),
		baseCtx:    ctx,
		cancelRuns: cancel,
		now:        time.Now,
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(correlationIDMiddleware)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthHandler)
	if s.cfg.MetricsHandler != nil {
		path := s.cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, s.cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.With(jsonContentTypeMiddleware).Get("/export-formats", s.listExportFormats)

		r.Route("/harvests", func(r chi.Router) {
			r.With(jsonContentTypeMiddleware).Post("/", s.startHarvest)
			r.With(jsonContentTypeMiddleware).Get("/", s.listHarvests)
			r.With(jsonContentTypeMiddleware).Get("/{runID}", s.getHarvestStatus)
			r.Get("/{runID}/progress", s.streamProgress)
			r.Get("/{runID}/exports/{format}", s.downloadExport)
		})
	})

	return r
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server and cancels running harvests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelRuns()
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"runs":   s.store.Len(),
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
