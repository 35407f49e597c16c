package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/annex4parser/annex4parser/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ANNEX4_DB_URL", "")
	t.Setenv("ANNEX4_KEYWORDS", "")
	t.Setenv("ANNEX4_SOURCES_CONFIG", "")
	t.Setenv("ANNEX4_LOG_LEVEL", "")
	t.Setenv("ANNEX4_CACHE_REDIS_URL", "")
	t.Setenv("ANNEX4_S3_BUCKET", "")
	t.Setenv("ANNEX4_OTEL_ENDPOINT", "")

	cfg := config.Load()

	assert.Contains(t, cfg.DBURL, "sqlite://")
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.False(t, cfg.TracingEnabled())
	assert.False(t, cfg.CachingEnabled())
	assert.Equal(t, "local", cfg.BlobStorageTier())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ANNEX4_DB_URL", "postgres://prod:5432/annex4parser")
	t.Setenv("ANNEX4_LOG_LEVEL", "DEBUG")
	t.Setenv("ANNEX4_S3_BUCKET", "annex4parser-documents")
	t.Setenv("ANNEX4_OTEL_ENDPOINT", "otel-collector:4317")

	cfg := config.Load()

	assert.Equal(t, "postgres://prod:5432/annex4parser", cfg.DBURL)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.True(t, cfg.TracingEnabled())
	assert.Equal(t, "s3", cfg.BlobStorageTier())
}
