// Package server constructs and runs the HTTP service around the hub.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// NewHTTPServer creates an HTTP server listening on addr with production
// timeouts. The timeouts cover the upgrade handshake only; established
// WebSocket connections manage their own deadlines.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer blocks serving srv. The http.ErrServerClosed raised by a
// graceful shutdown is not treated as a failure.
func StartServer(srv *http.Server, logger *zap.Logger) error {
	logger.Info("server listening", zap.String("addr", srv.Addr))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server")
	}
	return nil
}

// ShutdownServer stops accepting new connections and waits up to timeout
// for in-flight requests to finish.
func ShutdownServer(srv *http.Server, timeout time.Duration, logger *zap.Logger) error {
	logger.Info("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "http server shutdown")
	}

	logger.Info("HTTP server shutdown completed")
	return nil
}
