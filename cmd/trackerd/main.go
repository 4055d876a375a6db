// Package main implements the entry point for the tracker service.
// It wires storage, events, metadata providers and cover storage into the
// HTTP server.
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
	"time"

	"github.com/vannputh/analytics/internal/auth"
	"github.com/vannputh/analytics/internal/batch"
	"github.com/vannputh/analytics/internal/catalog"
	"github.com/vannputh/analytics/internal/config"
	"github.com/vannputh/analytics/internal/event"
	"github.com/vannputh/analytics/internal/media"
	"github.com/vannputh/analytics/internal/metadata"
	"github.com/vannputh/analytics/internal/metrics"
	"github.com/vannputh/analytics/internal/schema"
	"github.com/vannputh/analytics/internal/server"
	"github.com/vannputh/analytics/internal/storage"
	"github.com/vannputh/analytics/internal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.Env == "dev" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if _, err := telemetry.InitTracer("tracker-service", version); err != nil {
		logger.Error("failed to initialize OpenTelemetry tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.ShutdownTracer(ctx)
	}()

	// PostgreSQL when a DSN is configured, in-memory otherwise
	var store storage.Store
	if cfg.DatabaseDSN != "" {
		store, err = storage.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			logger.Error("failed to initialize postgres storage", "error", err)
			os.Exit(1)
		}
		logger.Info("using postgres storage")
	} else {
		store = storage.NewMemory()
		logger.Warn("TRACKER_DB_DSN not set, records are kept in memory only")
	}
	defer store.Close()

	pub := event.NewPublisher(cfg.NATSURL, logger)
	defer pub.Close()

	validator, err := schema.NewValidator()
	if err != nil {
		logger.Error("failed to compile record schemas", "error", err)
		os.Exit(1)
	}

	m := metrics.NewMetrics()
	svc := catalog.NewService(store, validator, pub, m, logger)

	fetcher := metadata.New(metadata.Options{
		OMDBKey:        cfg.OMDBAPIKey,
		TMDBKey:        cfg.TMDBAPIKey,
		GoogleBooksKey: cfg.GoogleBooksAPIKey,
		CacheTTL:       cfg.MetadataCacheTTL,
		Logger:         logger,
		Metrics:        m,
	})
	if cfg.OMDBAPIKey == "" && cfg.TMDBAPIKey == "" {
		logger.Warn("no OMDB or TMDB key configured, movie and TV lookups will fail")
	}

	deps := server.Deps{
		Store:              store,
		Catalog:            svc,
		Batch:              batch.NewRunner(svc, fetcher, cfg.BatchDelay, m, logger),
		Fetcher:            fetcher,
		Logger:             logger,
		Metrics:            m,
		MaxCoverSize:       cfg.MaxCoverSize,
		AllowedImageTypes:  cfg.AllowedImageTypes,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}

	if cfg.S3Bucket != "" {
		uploader, err := media.NewS3Client(cfg.S3Endpoint, cfg.S3Region, cfg.S3Bucket, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3PublicURL)
		if err != nil {
			logger.Error("failed to initialize cover storage", "error", err)
			os.Exit(1)
		}
		deps.Uploader = uploader
	} else {
		logger.Info("TRACKER_S3_BUCKET not set, cover uploads disabled")
	}

	if cfg.AuthEnabled() {
		deps.Verifier = auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	} else {
		logger.Warn("TRACKER_JWT_SECRET not set, mutating routes are open")
	}

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.NewMux(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Batch metadata refreshes are paced, so responses can take a while
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		logger.Info("server starting", "addr", addr, "env", cfg.Env, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	logger.Info("server exited")
}
