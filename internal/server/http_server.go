package server

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartHub starts the hub's event loop in a separate goroutine.
// This should be called before starting the HTTP server.
func (s *Server) StartHub() {
	go s.hub.Run()
}

// Serve blocks until the HTTP server stops. A clean Shutdown returns nil.
func (s *Server) Serve(httpServer *http.Server) error {
	s.logger.Info(context.Background(), "server listening", "addr", httpServer.Addr)

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then closes every WebSocket
// connection. Hijacked connections are not covered by http.Server.Shutdown,
// so the hub closes them itself.
func (s *Server) Shutdown(httpServer *http.Server, timeout time.Duration) error {
	s.logger.Info(context.Background(), "shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	httpErr := httpServer.Shutdown(ctx)
	if httpErr != nil {
		s.logger.Error(ctx, "HTTP server shutdown error", "error", httpErr)
	}

	hubErr := s.hub.Shutdown(timeout)
	return errors.Join(httpErr, hubErr)
}
