// Package api provides the HTTP API server and handlers for the PrefHub service.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/prefhubapp/prefhub-server/internal/kv"
	"github.com/prefhubapp/prefhub-server/internal/ratelimit"
	"github.com/prefhubapp/prefhub-server/internal/settings"
	"github.com/prefhubapp/prefhub-server/internal/sse"
	"github.com/prefhubapp/prefhub-server/internal/validation"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	settings   *settings.Store
	backing    kv.Store
	sseManager *sse.Manager
	sseHandler *sse.Handler
	limiter    *ratelimit.KeyedRateLimiter
	validate   *validation.Validator
	router     *chi.Mux
	api        huma.API
	logger     *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(store *settings.Store, backing kv.Store, sseManager *sse.Manager, sseHandler *sse.Handler, limiter *ratelimit.KeyedRateLimiter, logger *slog.Logger) *Server {
	s := &Server{
		settings:   store,
		backing:    backing,
		sseManager: sseManager,
		sseHandler: sseHandler,
		limiter:    limiter,
		validate:   validation.New(),
		router:     chi.NewRouter(),
		logger:     logger,
	}

	s.setupMiddleware()

	config := huma.DefaultConfig("PrefHub API", "1.0.0")
	config.Info.Description = "Settings service with durable persistence and change streaming"
	s.api = humachi.New(s.router, config)

	s.registerHealthRoutes()
	s.registerSettingsRoutes()

	// SSE does not fit the OpenAPI request/response model; mount it directly.
	s.router.Get("/api/v1/settings/stream", s.sseHandler.ServeHTTP)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	s.router.Use(s.rateLimitMutations)
}
