package config

import "time"

// RouterConfig holds runtime configuration for the artifact router.
type RouterConfig struct {
	Environment string
	Addr        string
	DatabaseURL string

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	ArtifactPrefix string
	IndexDocument  string

	GeoEndpoint   string
	GeoTimeout    time.Duration
	GeoCacheTTL   time.Duration
	GeoPurgeEvery time.Duration

	AnalyticsTimeout time.Duration
	RequestTimeout   time.Duration
}

// LoadRouterConfig constructs a RouterConfig from environment variables.
func LoadRouterConfig() RouterConfig {
	return RouterConfig{
		Environment:      GetString("APP_ENV", "development"),
		Addr:             GetString("ROUTER_ADDR", ":8000"),
		DatabaseURL:      GetString("DATABASE_URL", "postgres://hangar:hangar@db:5432/hangar?sslmode=disable"),
		S3Endpoint:       GetString("S3_ENDPOINT", ""),
		S3Region:         GetString("S3_REGION", "us-east-1"),
		S3Bucket:         GetString("S3_BUCKET", "hangar-artifacts"),
		S3AccessKey:      GetString("S3_ACCESS_KEY", ""),
		S3SecretKey:      GetString("S3_SECRET_KEY", ""),
		ArtifactPrefix:   GetString("ARTIFACT_PREFIX", "__outputs"),
		IndexDocument:    GetString("INDEX_DOCUMENT", "index.html"),
		GeoEndpoint:      GetString("GEO_ENDPOINT", "http://ip-api.com/json"),
		GeoTimeout:       time.Duration(GetInt("GEO_TIMEOUT_MS", 800)) * time.Millisecond,
		GeoCacheTTL:      time.Duration(GetInt("GEO_CACHE_TTL_SECONDS", 3600)) * time.Second,
		GeoPurgeEvery:    time.Duration(GetInt("GEO_PURGE_SECONDS", 300)) * time.Second,
		AnalyticsTimeout: time.Duration(GetInt("ANALYTICS_TIMEOUT_SECONDS", 5)) * time.Second,
		RequestTimeout:   time.Duration(GetInt("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
	}
}
