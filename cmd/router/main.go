package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hangarhq/hangar/internal/proxy"
	"github.com/hangarhq/hangar/internal/repository/postgres"
	"github.com/hangarhq/hangar/internal/service/analytics"
	"github.com/hangarhq/hangar/internal/service/geo"
	"github.com/hangarhq/hangar/internal/storage"
	"github.com/hangarhq/hangar/pkg/config"
	"github.com/hangarhq/hangar/pkg/logger"
)

func main() {
	cfg := config.LoadRouterConfig()
	log := logger.New("router", logger.Level(os.Getenv("LOG_LEVEL")))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}

	store, err := storage.New(ctx, storage.Options{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		log.Error("failed to connect to object store", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	analyticsSvc := analytics.NewService(repo, cfg.AnalyticsTimeout, log)
	geoResolver := geo.NewResolver(cfg.GeoEndpoint, cfg.GeoTimeout, cfg.GeoCacheTTL, log)
	geoResolver.StartPurging(cfg.GeoPurgeEvery)
	defer geoResolver.Stop()

	server := proxy.New(repo, store, analyticsSvc, geoResolver, cfg, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("artifact router starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("artifact router stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
