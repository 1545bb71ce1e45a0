// Package main is the entry point for the SDRVault recording retrieval server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sdrvault/sdrvault/internal/catalog"
	"github.com/sdrvault/sdrvault/internal/config"
	"github.com/sdrvault/sdrvault/internal/handlers"
	"github.com/sdrvault/sdrvault/internal/lock"
	"github.com/sdrvault/sdrvault/internal/logging"
	"github.com/sdrvault/sdrvault/internal/metrics"
	"github.com/sdrvault/sdrvault/internal/retrieve"
	"github.com/sdrvault/sdrvault/internal/server"
	"github.com/sdrvault/sdrvault/internal/stage"
	"github.com/sdrvault/sdrvault/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "sdrvault.yaml", "path to configuration file")
	port := flag.Int("port", 0, "override listening port (default: from config or 5000)")
	host := flag.String("host", "", "override listening host (default: from config or 0.0.0.0)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (default: from config or info)")
	logFormat := flag.String("log-format", "", "log format: text, json (default: from config or text)")
	shutdownTimeout := flag.Int("shutdown-timeout", 0, "graceful shutdown timeout in seconds (default: from config or 30)")
	stagingRoot := flag.String("staging-root", "", "override the staging root directory")
	backend := flag.String("backend", "", "override the storage backend: s3, gcs, azure, sqlite, local, memory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	// Command-line flags override config file values.
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *shutdownTimeout != 0 {
		cfg.Server.ShutdownTimeout = *shutdownTimeout
	}
	if *stagingRoot != "" {
		cfg.Staging.RootDir = *stagingRoot
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return 1
	}

	// One server per staging root.
	pidLock, err := lock.Acquire(lock.PathFor(cfg.Staging.RootDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to lock staging root: %v\n", err)
		return 1
	}
	defer pidLock.Release()

	ctx := context.Background()
	gw, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize storage backend: %v\n", err)
		return 1
	}
	if c, ok := gw.(io.Closer); ok {
		defer c.Close()
	}
	if cfg.Observability.Metrics {
		metrics.Register()
	}
	store := storage.Instrument(gw)

	cat := catalog.New(store, cfg.Bucket(), logger)
	mgr, err := stage.NewManager(cfg.Staging.RootDir, store, cat, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize staging: %v\n", err)
		return 1
	}

	// Crash-only design: every startup is recovery. Partial downloads and
	// decodes from a previous run are removed, and old workspaces pruned.
	if _, err := mgr.CleanTempFiles(ctx); err != nil {
		slog.Warn("Failed to clean temp files", "error", err)
	}
	if cfg.Staging.MaxAge > 0 {
		if _, err := mgr.Cleanup(ctx, cfg.Staging.MaxAge); err != nil {
			slog.Warn("Failed to prune old workspaces", "max_age", cfg.Staging.MaxAge, "error", err)
		}
	}

	dec, err := retrieve.NewDecoder(cfg.Staging.Decoder, cfg.Staging.DecoderPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid decoder: %v\n", err)
		return 1
	}
	if err := dec.Available(); err != nil {
		slog.Warn("Decoder not found; uncompressed downloads will fail", "decoder", dec.Name, "path", dec.Path, "error", err)
	}

	h := handlers.New(cat, mgr, retrieve.New(mgr, dec, logger), store, logger)
	srv, err := server.New(cfg, h, server.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
		return 1
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	// Start the server in a goroutine so we can handle shutdown signals.
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// SIGTERM/SIGINT handler: stop accepting connections, wait for in-flight
	// requests with a timeout, then exit. No cleanup -- crash-only design.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Received signal, shutting down", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("Shutdown error", "error", err)
		}
		slog.Info("Server stopped")

	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			return 1
		}
	}
	return 0
}
