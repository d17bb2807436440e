package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/khulnasoft/pr-insight/internal/config"
	"github.com/khulnasoft/pr-insight/internal/logger"
)

const shutdownTimeout = 10 * time.Second

// Addr is the listen address: $PORT, then server.port, then 3000.
func Addr(s *config.Settings, getenv func(string) string) string {
	port := getenv("PORT")
	if _, err := strconv.Atoi(port); err != nil {
		port = ""
	}
	if port == "" && s.Server.Port > 0 {
		port = strconv.Itoa(s.Server.Port)
	}
	if port == "" {
		port = "3000"
	}
	return ":" + port
}

// Serve runs h on addr until ctx is done, then shuts the listener down and
// calls drain so background work of accepted deliveries can finish.
func Serve(ctx context.Context, s *config.Settings, addr string, h http.Handler, drain func()) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.Server.ReadTimeout,
		WriteTimeout:      s.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "http server shutdown error", err)
	}
	if drain != nil {
		drain()
	}
	logger.Info(ctx, "shutdown complete")
	return nil
}
