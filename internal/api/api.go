package api

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// StartServer runs an API server bound to services until ctx is
// cancelled, then shuts it down gracefully.
func StartServer(ctx context.Context, cfg ServerConfig, services *Services) error {
	server := NewServer(cfg, services)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("api server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}
