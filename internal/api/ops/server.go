package ops

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Server serves the ops API on its own listener.
type Server struct {
	server *http.Server
	addr   string
	logger zerolog.Logger
}

// NewServer creates an ops API server around the handler's router.
func NewServer(addr string, handler *Handler, logger zerolog.Logger) *Server {
	return &Server{
		addr:   addr,
		logger: logger.With().Str("component", "api").Logger(),
		server: &http.Server{
			Addr:         addr,
			Handler:      handler.Router(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Start starts the ops API server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.addr).Msg("ops API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ops API server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down ops API server")
	return s.server.Shutdown(ctx)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.addr
}
