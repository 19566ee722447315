package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ternarybob/agenthub/internal/app"
	"github.com/ternarybob/agenthub/internal/common"
)

// Server owns the HTTP listener for the REST API and the /ws stream
type Server struct {
	app    *app.App
	router *http.ServeMux
	server *http.Server
}

// New builds the router and an http.Server from the app's server config
func New(application *app.App) *Server {
	s := &Server{app: application}
	s.router = s.setupRoutes()

	cfg := application.Config.Server
	s.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       common.ParseDurationOr(cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      common.ParseDurationOr(cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       common.ParseDurationOr(cfg.IdleTimeout, 60*time.Second),
	}

	return s
}

// Handler returns the router wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	return s.withMiddleware(s.router)
}

// Addr is the configured listen address
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start listens and serves until Shutdown. A clean shutdown returns nil.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on an existing listener
func (s *Server) Serve(listener net.Listener) error {
	s.app.Logger.Info().
		Str("address", listener.Addr().String()).
		Str("health", fmt.Sprintf("http://%s/api/health", listener.Addr())).
		Msg("HTTP server listening")

	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown closes WebSocket clients, then drains in-flight HTTP requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.app.Logger.Info().Msg("Shutting down HTTP server")

	// Hijacked connections are invisible to http.Server.Shutdown
	s.app.WSHandler.Close()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.app.Logger.Info().Msg("HTTP server stopped")
	return nil
}
