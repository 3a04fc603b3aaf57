package config

import "time"

// APIConfig holds runtime configuration for the dispatcher / query API service.
type APIConfig struct {
	Environment   string
	Addr          string
	DatabaseURL   string
	MigrationsDir string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LogStream     string
	StatusStream  string

	DockerHost     string
	WorkerImage    string
	WorkerNetwork  string
	WorkerSpoolDir string

	BaseDomain      string
	URLScheme       string
	RepoAccessToken string
	EnvSealSecret   string
	WebhookSecret   string

	LaunchTimeout time.Duration
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:     GetString("APP_ENV", "development"),
		Addr:            GetString("API_ADDR", ":4000"),
		DatabaseURL:     GetString("DATABASE_URL", "postgres://hangar:hangar@db:5432/hangar?sslmode=disable"),
		MigrationsDir:   GetString("MIGRATIONS_DIR", "migrations"),
		RedisAddr:       GetString("REDIS_ADDR", "redis:6379"),
		RedisPassword:   GetString("REDIS_PASSWORD", ""),
		RedisDB:         GetInt("REDIS_DB", 0),
		LogStream:       GetString("LOG_STREAM", "hangar:logs"),
		StatusStream:    GetString("STATUS_STREAM", "hangar:status"),
		DockerHost:      GetString("DOCKER_HOST", "unix:///var/run/docker.sock"),
		WorkerImage:     GetString("WORKER_IMAGE", "hangar/worker:latest"),
		WorkerNetwork:   GetString("WORKER_NETWORK", ""),
		WorkerSpoolDir:  GetString("WORKER_SPOOL_DIR", ""),
		BaseDomain:      GetString("BASE_DOMAIN", "localhost:8000"),
		URLScheme:       GetString("URL_SCHEME", "http"),
		RepoAccessToken: GetString("REPO_ACCESS_TOKEN", ""),
		EnvSealSecret:   GetString("ENV_SEAL_SECRET", ""),
		WebhookSecret:   GetString("WEBHOOK_SECRET", ""),
		LaunchTimeout:   time.Duration(GetInt("LAUNCH_TIMEOUT_SECONDS", 30)) * time.Second,
	}
}
