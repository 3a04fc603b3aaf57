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
	redis "github.com/redis/go-redis/v9"

	"github.com/hangarhq/hangar/internal/app/migrate"
	"github.com/hangarhq/hangar/internal/docker"
	httpx "github.com/hangarhq/hangar/internal/http"
	"github.com/hangarhq/hangar/internal/repository/postgres"
	"github.com/hangarhq/hangar/internal/service/analytics"
	"github.com/hangarhq/hangar/internal/service/dispatch"
	"github.com/hangarhq/hangar/internal/stream"
	"github.com/hangarhq/hangar/internal/ws"
	"github.com/hangarhq/hangar/pkg/config"
	"github.com/hangarhq/hangar/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.Level(os.Getenv("LOG_LEVEL")))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)

	dockerClient, err := docker.New(cfg.DockerHost)
	if err != nil {
		log.Error("failed to connect to docker", "error", err)
		os.Exit(1)
	}
	defer dockerClient.Close()
	if err := dockerClient.Ping(ctx); err != nil {
		log.Error("docker ping failed", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	hub := ws.NewHub()
	tailer := stream.NewTailer(redisClient, cfg.LogStream, log)
	go ws.Feed(ctx, tailer, hub, log)

	dispatchSvc := dispatch.NewService(repo, repo, repo, dockerClient, cfg, log)
	analyticsSvc := analytics.NewService(repo, 5*time.Second, log)

	limiter := httpx.NewMemoryRateLimiter()
	router := httpx.NewRouter(log, dispatchSvc, analyticsSvc, hub, limiter, cfg.WebhookSecret, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
