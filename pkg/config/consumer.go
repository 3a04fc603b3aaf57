package config

import (
	"os"
	"time"
)

// ConsumerConfig holds runtime configuration for the log and status consumers.
type ConsumerConfig struct {
	Environment string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LogStream    string
	StatusStream string
	LogGroup     string
	StatusGroup  string
	ConsumerName string

	BatchSize     int
	BlockTimeout  time.Duration
	Heartbeat     time.Duration
	ClaimMinIdle  time.Duration
	ProcessWindow time.Duration
}

// LoadConsumerConfig constructs a ConsumerConfig from environment variables.
func LoadConsumerConfig() ConsumerConfig {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "consumer"
	}
	return ConsumerConfig{
		Environment:   GetString("APP_ENV", "development"),
		DatabaseURL:   GetString("DATABASE_URL", "postgres://hangar:hangar@db:5432/hangar?sslmode=disable"),
		RedisAddr:     GetString("REDIS_ADDR", "redis:6379"),
		RedisPassword: GetString("REDIS_PASSWORD", ""),
		RedisDB:       GetInt("REDIS_DB", 0),
		LogStream:     GetString("LOG_STREAM", "hangar:logs"),
		StatusStream:  GetString("STATUS_STREAM", "hangar:status"),
		LogGroup:      GetString("LOG_GROUP", "log-ingest"),
		StatusGroup:   GetString("STATUS_GROUP", "status-apply"),
		ConsumerName:  GetString("CONSUMER_NAME", hostname),
		BatchSize:     GetInt("CONSUMER_BATCH_SIZE", 100),
		BlockTimeout:  time.Duration(GetInt("CONSUMER_BLOCK_MS", 5000)) * time.Millisecond,
		Heartbeat:     time.Duration(GetInt("CONSUMER_HEARTBEAT_MS", 3000)) * time.Millisecond,
		ClaimMinIdle:  time.Duration(GetInt("CONSUMER_CLAIM_IDLE_SECONDS", 60)) * time.Second,
		ProcessWindow: time.Duration(GetInt("CONSUMER_PROCESS_SECONDS", 30)) * time.Second,
	}
}
