// Package server implements the SDRVault HTTP server and route multiplexer.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sdrvault/sdrvault/internal/config"
	"github.com/sdrvault/sdrvault/internal/handlers"
	"github.com/sdrvault/sdrvault/internal/logging"
)

// Server is the SDRVault HTTP server. JSON operations are registered through
// huma; audio downloads and probes are plain chi handlers.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	api        huma.API
	handler    *handlers.Handler
	logger     *slog.Logger
	httpServer *http.Server
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the logger used by the server.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logging.WithComponent(logger, "server")
	}
}

// New creates a Server routing to h according to cfg.
func New(cfg *config.Config, h *handlers.Handler, opts ...ServerOption) (*Server, error) {
	router := chi.NewMux()

	humaConfig := huma.DefaultConfig("SDRVault API", "1.0.0")
	humaConfig.DocsPath = "/docs"
	humaConfig.OpenAPIPath = "/openapi"
	api := humachi.New(router, humaConfig)

	s := &Server{
		cfg:     cfg,
		router:  router,
		api:     api,
		handler: h,
		logger:  logging.WithComponent(nil, "server"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerRoutes()
	return s, nil
}

// Handler returns the router wrapped in the middleware chain:
// metricsMiddleware -> commonHeaders -> router.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.router
	handler = commonHeaders(handler)
	if s.cfg.Observability.Metrics {
		handler = metricsMiddleware(handler)
	}
	return handler
}

// ListenAndServe starts the HTTP server on the given address.
// The returned http.Server is stored so it can be shut down gracefully.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("listening", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// registerRoutes configures all routes on the Chi router.
func (s *Server) registerRoutes() {
	healthChecks := s.cfg.Observability.HealthCheck

	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the SDRVault server and, when enabled, of the object store.",
		Tags:        []string{"System"},
	}, s.handler.Health(healthChecks))

	// Huma only does one method per registration. HEAD runs the same checks
	// as GET and drops the body.
	health := s.handler.Health(healthChecks)
	s.router.Head("/health", func(w http.ResponseWriter, r *http.Request) {
		out, err := health(r.Context(), nil)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(out.Status)
	})

	if healthChecks {
		s.router.Get("/healthz", handlers.Live)
		s.router.Get("/readyz", s.handler.Ready)
	}

	if s.cfg.Observability.Metrics {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	handlers.Register(s.api, s.handler)

	s.router.Get("/getaudiofile/{uuid}/{filename}", s.handler.GetAudioFile)
	s.router.Head("/getaudiofile/{uuid}/{filename}", s.handler.GetAudioFile)
}
