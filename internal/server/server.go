package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/runpack/internal/app"
	"github.com/ternarybob/runpack/internal/common"
	"github.com/ternarybob/runpack/internal/handlers"
	"github.com/ternarybob/runpack/internal/ratelimit"
)

// Server manages the HTTP server and routes
type Server struct {
	config  *common.Config
	logger  arbor.ILogger
	limiter *ratelimit.Limiter

	jobHandler    *handlers.JobHandler
	runnerHandler *handlers.RunnerHandler
	adminHandler  *handlers.AdminHandler

	router *http.ServeMux
	server *http.Server
}

// New creates a new HTTP server with the given app
func New(application *app.App) *Server {
	s := &Server{
		config:        application.Config,
		logger:        application.Logger,
		limiter:       ratelimit.NewLimiter(application.Config.RateWindow()),
		jobHandler:    application.JobHandler,
		runnerHandler: application.RunnerHandler,
		adminHandler:  application.AdminHandler,
	}

	s.router = s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.withMiddleware(s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped handler, used by tests to drive the
// server through httptest.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().
		Str("address", s.server.Addr).
		Str("storage", s.config.Storage.Type).
		Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}
