// Package main provides the entry point for the beatstore API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/maauso/beatstore-api/internal/bootstrap"
	"github.com/maauso/beatstore-api/internal/config"
	"github.com/maauso/beatstore-api/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting beatstore API",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("storage", cfg.StorageBackend()),
		slog.Bool("database", cfg.DatabaseDSN != ""),
		slog.Bool("redis", cfg.RedisAddr != ""),
		slog.Bool("async_processing", cfg.AsyncProcessing),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("failed to close dependencies", slog.String("error", err.Error()))
		}
	}()

	opts := []server.HandlerOption{
		server.WithAsyncProcessing(cfg.AsyncProcessing),
		server.WithMaxUploadBytes(cfg.MaxUploadBytes()),
		server.WithNotificationHub(deps.Hub),
	}
	if deps.Files != nil {
		opts = append(opts, server.WithFileServer(deps.Files))
	}
	if deps.Monitor != nil {
		if err := deps.Monitor.Start(ctx); err != nil {
			return fmt.Errorf("start rpc monitor: %w", err)
		}
		defer deps.Monitor.Stop()
		opts = append(opts, server.WithRPCStatus(deps.Monitor))
	}

	// Initialize HTTP handlers and router
	handlers := server.NewHandlers(deps.BeatService, deps.Previews, logger, opts...)
	router := server.NewRouter(handlers, deps.Verifier, logger, server.Config{
		AllowedOrigins: strings.Split(cfg.CORSOrigin, ","),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second, // Allow for synchronous preview encoding
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		return err
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	deps.Hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
