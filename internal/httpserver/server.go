package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jaxzhang-svg/render-arena-sub000/internal/config"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/httpserver/middleware"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/observability"
)

// Server represents the HTTP server.
type Server struct {
	config      *config.ServerConfig
	handler     *Handler
	middlewares middleware.Middleware
	srv         *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg *config.ServerConfig,
	handler *Handler,
	middlewares middleware.Middleware,
) *Server {
	return &Server{
		config:      cfg,
		handler:     handler,
		middlewares: middlewares,
		srv:         nil,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("POST /v1/runs/{id}/generate", s.handler.HandleRelay)
	mux.HandleFunc("GET /v1/runs/{id}", s.handler.HandleGetRun)
	mux.HandleFunc("POST /v1/arena/generate", s.handler.HandleArenaGenerate)
	mux.HandleFunc("GET /v1/arena/status", s.handler.HandleArenaStatus)
	mux.HandleFunc("POST /v1/arena/stop", s.handler.HandleArenaStop)
	mux.HandleFunc("POST /v1/arena/slots/{slot}/generate", s.handler.HandleSlotRegenerate)
	mux.HandleFunc("POST /v1/apps/{id}/like", s.handler.HandleLike)
	mux.HandleFunc("GET /health", s.handler.HandleHealth)

	// Apply middleware chain.
	handlerWithMiddleware := s.middlewares(mux)

	// Create server with timeouts. The write timeout bounds the longest
	// relay stream, so it tracks the upstream completion timeout.
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      handlerWithMiddleware,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
	}

	ctx := context.Background()
	observability.FromContext(ctx).Info("starting HTTP server", observability.Int("port", s.config.Port))

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	observability.FromContext(ctx).Info("shutting down HTTP server")

	if s.srv == nil {
		return nil
	}

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}
