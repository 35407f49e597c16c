// Package config loads process configuration from environment variables
// (mirroring the teacher's pkg/config/config.go) and the sources/keyword
// YAML files (mirroring pkg/config/profile_loader.go's YAML-backed
// secondary configuration, repurposed here for the Source list instead of
// regional compliance profiles).
package config

import "os"

// Config holds the regulatory watch service's process-wide configuration.
type Config struct {
	DBURL         string
	KeywordsPath  string
	SourcesPath   string
	LogLevel      string
	CacheRedisURL string
	S3Bucket      string
	OTELEndpoint  string
}

// Load reads configuration from environment variables, falling back to
// development defaults exactly as the teacher's Load() defaults
// DATABASE_URL to a local Postgres URL when unset.
func Load() *Config {
	return &Config{
		DBURL:         envOr("ANNEX4_DB_URL", "sqlite://annex4parser.db"),
		KeywordsPath:  envOr("ANNEX4_KEYWORDS", "/etc/annex4parser/keywords.yaml"),
		SourcesPath:   envOr("ANNEX4_SOURCES_CONFIG", "/etc/annex4parser/sources.yaml"),
		LogLevel:      envOr("ANNEX4_LOG_LEVEL", "INFO"),
		CacheRedisURL: os.Getenv("ANNEX4_CACHE_REDIS_URL"),
		S3Bucket:      os.Getenv("ANNEX4_S3_BUCKET"),
		OTELEndpoint:  os.Getenv("ANNEX4_OTEL_ENDPOINT"),
	}
}

// TracingEnabled reports whether an OTLP endpoint was configured.
func (c *Config) TracingEnabled() bool {
	return c.OTELEndpoint != ""
}

// CachingEnabled reports whether a Redis cache backend was configured.
func (c *Config) CachingEnabled() bool {
	return c.CacheRedisURL != ""
}

// BlobStorageTier returns "s3" when an S3 bucket is configured, else "local".
func (c *Config) BlobStorageTier() string {
	if c.S3Bucket != "" {
		return "s3"
	}
	return "local"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
