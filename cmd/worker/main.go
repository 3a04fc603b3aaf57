package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	redis "github.com/redis/go-redis/v9"

	"github.com/hangarhq/hangar/internal/service/build"
	"github.com/hangarhq/hangar/internal/storage"
	"github.com/hangarhq/hangar/internal/stream"
	"github.com/hangarhq/hangar/pkg/config"
	"github.com/hangarhq/hangar/pkg/logger"
)

// The worker is a one-shot process: it runs a single deployment to READY or
// FAIL and exits with a matching code. Any state it needs to survive lives in
// the event streams and the object store, never locally.
func main() {
	cfg := config.LoadWorkerConfig()
	log := logger.New("worker", logger.Level(os.Getenv("LOG_LEVEL")))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	spool, err := stream.NewSpool(cfg.SpoolPath)
	if err != nil {
		log.Error("failed to open event spool", "path", cfg.SpoolPath, "error", err)
		os.Exit(1)
	}

	publisher := stream.NewPublisher(redisClient, cfg.LogStream, cfg.StatusStream, spool, log)
	if replayed, err := publisher.Drain(ctx); err != nil {
		log.Warn("spool drain incomplete", "error", err)
	} else if replayed > 0 {
		log.Info("spooled events replayed", "count", replayed)
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

	emitter := build.NewEmitter(publisher, cfg.DeploymentID, log)
	pipeline := build.NewPipeline(cfg, store, emitter, log)

	if err := pipeline.Run(ctx); err != nil {
		log.Error("deployment failed", "deployment_id", cfg.DeploymentID, "error", err)
		os.Exit(1)
	}
	log.Info("deployment complete", "deployment_id", cfg.DeploymentID)
}
