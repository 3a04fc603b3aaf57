package config

import "time"

// WorkerConfig combines the per-deployment execution context handed to an
// isolated build worker with the infrastructure settings it needs to report
// back through the event channels and the object store.
type WorkerConfig struct {
	// Execution context, injected by the dispatcher.
	Subdomain     string
	ProjectID     string
	DeploymentID  string
	RootDirectory string
	EnvVariables  string
	GitRepoURL    string
	Branch        string
	RepoToken     string

	// Infrastructure.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LogStream     string
	StatusStream  string
	SpoolPath     string

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	ArtifactPrefix string
	BaseDomain     string
	URLScheme      string
	EnvSealSecret  string

	Workdir      string
	BuildCommand string
	CloneTimeout time.Duration
	BuildTimeout time.Duration
}

// LoadWorkerConfig constructs a WorkerConfig from environment variables.
func LoadWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Subdomain:     GetString("SUBDOMAIN", ""),
		ProjectID:     GetString("PROJECT_ID", ""),
		DeploymentID:  GetString("DEPLOYMENT_ID", ""),
		RootDirectory: GetString("ROOT_DIRECTORY", ""),
		EnvVariables:  GetString("ENV_VARIABLES", ""),
		GitRepoURL:    GetString("GIT_REPOSITORY_URL", ""),
		Branch:        GetString("BRANCH", ""),
		RepoToken:     GetString("REPO_ACCESS_TOKEN", ""),

		RedisAddr:     GetString("REDIS_ADDR", "redis:6379"),
		RedisPassword: GetString("REDIS_PASSWORD", ""),
		RedisDB:       GetInt("REDIS_DB", 0),
		LogStream:     GetString("LOG_STREAM", "hangar:logs"),
		StatusStream:  GetString("STATUS_STREAM", "hangar:status"),
		SpoolPath:     GetString("EVENT_SPOOL_PATH", "/tmp/hangar/spool"),

		S3Endpoint:  GetString("S3_ENDPOINT", ""),
		S3Region:    GetString("S3_REGION", "us-east-1"),
		S3Bucket:    GetString("S3_BUCKET", "hangar-artifacts"),
		S3AccessKey: GetString("S3_ACCESS_KEY", ""),
		S3SecretKey: GetString("S3_SECRET_KEY", ""),

		ArtifactPrefix: GetString("ARTIFACT_PREFIX", "__outputs"),
		BaseDomain:     GetString("BASE_DOMAIN", "localhost:8000"),
		URLScheme:      GetString("URL_SCHEME", "http"),
		EnvSealSecret:  GetString("ENV_SEAL_SECRET", ""),

		Workdir:      GetString("WORKER_WORKDIR", "/tmp/hangar/build"),
		BuildCommand: GetString("BUILD_COMMAND", "npm install && npm run build"),
		CloneTimeout: time.Duration(GetInt("CLONE_TIMEOUT_SECONDS", 120)) * time.Second,
		BuildTimeout: time.Duration(GetInt("BUILD_TIMEOUT_SECONDS", 600)) * time.Second,
	}
}
