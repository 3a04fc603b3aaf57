package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/hangarhq/hangar/internal/repository/postgres"
	"github.com/hangarhq/hangar/internal/service/ingest"
	"github.com/hangarhq/hangar/internal/stream"
	"github.com/hangarhq/hangar/pkg/config"
	"github.com/hangarhq/hangar/pkg/logger"
)

// The consumer process runs one group reader per stream: build log lines are
// batch-inserted into the log store, status transitions are applied to the
// deployment records. Entries are acknowledged only after the store write
// succeeds.
func main() {
	cfg := config.LoadConsumerConfig()
	log := logger.New("consumer", logger.Level(os.Getenv("LOG_LEVEL")))

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

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("redis ping failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)

	logConsumer, err := stream.NewGroupConsumer(redisClient, stream.GroupOptions{
		Stream:       cfg.LogStream,
		Group:        cfg.LogGroup,
		Consumer:     cfg.ConsumerName,
		BatchSize:    cfg.BatchSize,
		BlockTimeout: cfg.BlockTimeout,
		Heartbeat:    cfg.Heartbeat,
		ClaimMinIdle: cfg.ClaimMinIdle,
	}, log)
	if err != nil {
		log.Error("failed to build log consumer", "error", err)
		os.Exit(1)
	}

	statusConsumer, err := stream.NewGroupConsumer(redisClient, stream.GroupOptions{
		Stream:       cfg.StatusStream,
		Group:        cfg.StatusGroup,
		Consumer:     cfg.ConsumerName,
		BatchSize:    cfg.BatchSize,
		BlockTimeout: cfg.BlockTimeout,
		Heartbeat:    cfg.Heartbeat,
		ClaimMinIdle: cfg.ClaimMinIdle,
	}, log)
	if err != nil {
		log.Error("failed to build status consumer", "error", err)
		os.Exit(1)
	}

	logIngestor := ingest.NewLogIngestor(repo, log)
	statusIngestor := ingest.NewStatusIngestor(repo, log)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := logConsumer.Run(ctx, logIngestor.Handle); err != nil {
			log.Error("log consumer stopped", "error", err)
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		if err := statusConsumer.Run(ctx, statusIngestor.Handle); err != nil {
			log.Error("status consumer stopped", "error", err)
			stop()
		}
	}()

	log.Info("consumers running",
		"log_stream", cfg.LogStream,
		"status_stream", cfg.StatusStream,
		"consumer", cfg.ConsumerName)
	wg.Wait()
	log.Info("consumers stopped")
}
