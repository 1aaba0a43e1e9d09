// Package main provides the course search server entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/uwinops/lancer/internal/archive"
	"github.com/uwinops/lancer/internal/archive/ndjson"
	"github.com/uwinops/lancer/internal/archive/postgres"
	"github.com/uwinops/lancer/internal/archive/sqlite"
	"github.com/uwinops/lancer/internal/config"
	"github.com/uwinops/lancer/internal/fetch"
	"github.com/uwinops/lancer/internal/fingerprint"
	"github.com/uwinops/lancer/internal/lifecycle"
	"github.com/uwinops/lancer/internal/portal"
	"github.com/uwinops/lancer/internal/scrape"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("starting course search server")

	fetcher, err := fetch.New(fetch.Config{
		Timeout:           cfg.RequestTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Jitter:            cfg.RequestJitter,
		Fingerprint:       fingerprint.Profile(cfg.Fingerprint),
	})
	if err != nil {
		logger.Error("creating fetcher", "error", err)
		os.Exit(1)
	}
	defer fetcher.Close()

	client := portal.NewClient(fetcher, cfg.PortalURL)
	orchestrator := scrape.New(client, cfg.ScrapeWorkers, logger)

	var archiver lifecycle.Archiver
	backend, err := openArchive(context.Background(), cfg)
	if err != nil {
		logger.Error("opening corpus archive", "backend", cfg.ArchiveBackend, "error", err)
		os.Exit(1)
	}
	if backend != nil {
		store := archive.NewStore(backend)
		defer func() { _ = store.Close() }()
		archiver = store
		logger.Info("corpus archive enabled", "backend", cfg.ArchiveBackend)
	}

	manager := lifecycle.New(lifecycle.Config{
		Path:     cfg.IndexPath,
		Source:   orchestrator,
		Archiver: archiver,
		Logger:   logger,
	})
	if err := manager.Open(context.Background()); err != nil {
		logger.Error("no index to serve", "error", err)
		os.Exit(1)
	}
	defer func() { _ = manager.Close() }()

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: newRouter(manager, orchestrator, logger),
		// A detail request makes three rate-limited portal round trips, so
		// the write timeout stays well above the per-request timeout.
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: 4 * cfg.RequestTimeout,
		IdleTimeout:  2 * cfg.RequestTimeout,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()
	logger.Info("listening", "port", cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func openArchive(ctx context.Context, cfg *config.Config) (archive.Backend, error) {
	switch cfg.ArchiveBackend {
	case "sqlite":
		dsn := cfg.ArchiveDSN
		if dsn == "" {
			dsn = "data/archive.db"
		}
		return sqlite.New(dsn)
	case "postgres":
		return postgres.New(ctx, cfg.ArchiveDSN)
	case "ndjson":
		path := cfg.ArchiveDSN
		if path == "" {
			path = "data/corpus.ndjson"
		}
		return ndjson.New(path)
	default:
		return nil, nil
	}
}
