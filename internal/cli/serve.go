package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"formless/internal/config"
	"formless/internal/server"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the formless HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			logger := newLogger(cfg)

			memoryStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := memoryStore.Close(); closeErr != nil {
					logger.Error("close store failed", "error", closeErr)
				}
			}()

			registry, err := buildRegistry(cfg)
			if err != nil {
				return err
			}
			orchestrator, err := buildOrchestrator(cfg, registry, memoryStore, logger)
			if err != nil {
				return err
			}

			httpServer, err := server.New(server.Config{
				Store:          memoryStore,
				Matcher:        orchestrator,
				Logger:         logger,
				AllowedOrigins: cfg.AllowedOrigins,
				Version:        version,
			})
			if err != nil {
				return err
			}

			return runHTTPServer(cmd.Context(), cfg, logger, httpServer.Handler())
		},
	}
}

func runHTTPServer(parent context.Context, cfg config.Config, logger *slog.Logger, handler http.Handler) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: handler,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()
	logger.Info("http server listening", "address", cfg.Listen)

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}

	return nil
}
