// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetfield/meetfield/internal/config"
)

// Server wraps http.Server with supervisor-friendly lifecycle.
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

// NewServer builds the HTTP server for the given handler set.
func NewServer(cfg config.ServerConfig, handler http.Handler, logger zerolog.Logger) *Server {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			// No WriteTimeout: it would sever upgraded websocket
			// connections. Handler timeouts come from middleware.
			IdleTimeout: timeout,
		},
		logger: logger.With().Str("component", "http-server").Logger(),
	}
}

// Serve runs until ctx is cancelled, then shuts down gracefully with a
// 10 second drain window.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("HTTP shutdown incomplete, forcing close")
			_ = s.httpServer.Close()
		}
		s.logger.Info().Msg("HTTP server stopped")
		return ctx.Err()
	}
}

// String names the server for supervisor logs.
func (s *Server) String() string { return "http-server" }
