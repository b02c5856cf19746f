// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tagsight/tagsight/internal/logging"
)

// HTTPServer adapts http.Server to suture.Service with graceful shutdown.
type HTTPServer struct {
	srv             *http.Server
	shutdownTimeout time.Duration
}

// NewHTTPServer wraps a listener address and handler for supervision.
func NewHTTPServer(addr string, handler http.Handler, requestTimeout, shutdownTimeout time.Duration) *HTTPServer {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  requestTimeout,
			WriteTimeout: requestTimeout,
			IdleTimeout:  2 * requestTimeout,
		},
		shutdownTimeout: shutdownTimeout,
	}
}

// Serve listens until ctx is cancelled, then drains in-flight requests.
func (s *HTTPServer) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.srv.Addr).Msg("HTTP server listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("HTTP server shutdown incomplete")
		}
		return ctx.Err()
	}
}
