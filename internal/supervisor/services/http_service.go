// D-Back - Discord Presence and Chat Relay
// Copyright 2026 NNTin
// SPDX-License-Identifier: MIT
// https://github.com/NNTin/d-back

package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// HTTPServer matches *http.Server's lifecycle methods, enabling tests with
// mocks.
type HTTPServer interface {
	Serve(ln net.Listener) error
	Shutdown(ctx context.Context) error
}

// HTTPServerService wraps an HTTP server as a supervised service over a
// pre-bound listener.
//
// The listener is created by the caller before the tree starts so that a
// port-in-use error is fatal at startup instead of looping through
// supervisor restarts.
type HTTPServerService struct {
	server          HTTPServer
	listener        net.Listener
	shutdownTimeout time.Duration
	name            string
}

// NewHTTPServerService creates an HTTP server service on the given listener.
//
// The shutdownTimeout bounds graceful shutdown of in-flight connections.
func NewHTTPServerService(server HTTPServer, ln net.Listener, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{
		server:          server,
		listener:        ln,
		shutdownTimeout: shutdownTimeout,
		name:            "http-server",
	}
}

// Serve implements suture.Service: serve until the context is canceled, then
// shut down gracefully. http.ErrServerClosed is expected on shutdown and is
// not treated as a failure.
func (s *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		// A fresh context: the original is already canceled.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *HTTPServerService) String() string {
	return s.name
}
