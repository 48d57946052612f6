package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/resultgrid/internal/api"
	"github.com/ethpandaops/resultgrid/internal/config"
	"github.com/ethpandaops/resultgrid/internal/handlers"
	"github.com/ethpandaops/resultgrid/internal/middleware"
	"github.com/ethpandaops/resultgrid/internal/querycache"
	"github.com/ethpandaops/resultgrid/internal/ratelimit"
)

// Dependencies are the services the HTTP routes are served from.
type Dependencies struct {
	Loader api.RowLoader
	Cache  querycache.Cache
	// Views is nil when per-view stale response detection is disabled.
	Views api.ViewLoader
	// Limiter is nil when rate limiting is disabled.
	Limiter ratelimit.Limiter
	// Ready lists dependencies checked by GET /ready.
	Ready []handlers.Pinger
}

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	logger     logrus.FieldLogger
}

type route struct {
	pattern string
	handler http.Handler
}

// New creates a new HTTP server with all routes and middleware.
func New(
	logger logrus.FieldLogger,
	cfg *config.Config,
	deps Dependencies,
) (*Server, error) {
	if deps.Loader == nil || deps.Cache == nil {
		return nil, fmt.Errorf("loader and cache are required")
	}

	mux := http.NewServeMux()

	routes := []route{
		{pattern: "GET /health", handler: handlers.Health()},
		{pattern: "GET /ready", handler: handlers.Ready(deps.Ready...)},
		{pattern: "GET /version", handler: handlers.Version()},
		{pattern: "GET /metrics", handler: promhttp.Handler()},
		{pattern: "POST /api/v1/rows", handler: api.NewRowsHandler(deps.Loader, deps.Views, logger)},
		{pattern: "POST /api/v1/count", handler: api.NewCountHandler(deps.Loader, logger)},
		{pattern: "POST /api/v1/selection", handler: api.NewSelectionHandler(logger)},
		{pattern: "POST /api/v1/selection/records", handler: api.NewSelectionRecordsHandler(deps.Loader, logger)},
		{pattern: "GET /api/v1/records/{id}", handler: api.NewRecordHandler(deps.Loader, logger)},
		{pattern: "DELETE /api/v1/cache", handler: api.NewCachePurgeHandler(deps.Cache, logger)},
	}

	for _, r := range routes {
		mux.Handle(r.pattern, r.handler)
		logger.WithField("route", r.pattern).Info("Registered route")
	}

	// Middleware chain, innermost first: Metrics → RateLimit → CORS →
	// Logging → Recovery. Metrics wraps the mux directly so it can label by
	// route pattern.
	handler := middleware.Metrics()(mux)

	if deps.Limiter != nil {
		handler = middleware.RateLimit(logger, cfg.RateLimiting, deps.Limiter)(handler)
		logger.WithField("rules", len(cfg.RateLimiting.Rules)).Info("Rate limiting enabled")
	}

	handler = middleware.CORS(cfg.Server.CORSOrigins)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Recovery(logger)(handler)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		logger:     logger,
	}, nil
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server (blocking call).
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting HTTP server")

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")

	return s.httpServer.Shutdown(ctx)
}
