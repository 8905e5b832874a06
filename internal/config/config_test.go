package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://ocr@localhost/ocr?sslmode=disable")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, "fs", cfg.StorageBackend)
	assert.Equal(t, int64(104857600), cfg.MaxFileSize)
	assert.Equal(t, 30.0, cfg.DefaultConfidenceThreshold)
	assert.Equal(t, 300, cfg.RasterDPI)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Equal(t, 30*time.Second, cfg.CollaboratorTimeout)
	assert.Equal(t, 2*time.Hour, cfg.JobTimeout)
	assert.Equal(t, DefaultAllowedExtensions, cfg.AllowedExtensions)
	assert.Equal(t, DefaultSupportedLanguages, cfg.SupportedLanguages)
	assert.True(t, cfg.StatusEvents)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file:ocr.db")
	t.Setenv("SUPPORTED_LANGUAGES", " ENG, fra ,,deu")
	t.Setenv("WORKER_CONCURRENCY", "12")
	t.Setenv("DEFAULT_CONFIDENCE_THRESHOLD", "55.5")
	t.Setenv("STATUS_EVENTS", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"eng", "fra", "deu"}, cfg.SupportedLanguages)
	assert.Equal(t, 12, cfg.WorkerConcurrency)
	assert.Equal(t, 55.5, cfg.DefaultConfidenceThreshold)
	assert.False(t, cfg.StatusEvents)
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestValidateRanges(t *testing.T) {
	valid := func() *Config {
		return &Config{
			RedisURL:                   "redis://localhost:6379/0",
			QueueName:                  "ocr",
			DatabaseDriver:             "sqlite",
			DatabaseURL:                "file::memory:",
			StorageBackend:             "fs",
			UploadDir:                  "/tmp/uploads",
			WorkerConcurrency:          4,
			PageConcurrency:            1,
			JobTimeout:                 time.Hour,
			MaxFileSize:                DefaultMaxFileSize,
			AllowedExtensions:          DefaultAllowedExtensions,
			SupportedLanguages:         DefaultSupportedLanguages,
			DefaultConfidenceThreshold: 30,
			RasterDPI:                  300,
			CollaboratorTimeout:        30 * time.Second,
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"concurrency low", func(c *Config) { c.WorkerConcurrency = 0 }, "WORKER_CONCURRENCY"},
		{"concurrency high", func(c *Config) { c.WorkerConcurrency = 101 }, "WORKER_CONCURRENCY"},
		{"page concurrency", func(c *Config) { c.PageConcurrency = 17 }, "PAGE_CONCURRENCY"},
		{"max size", func(c *Config) { c.MaxFileSize = 10 }, "MAX_FILE_SIZE"},
		{"threshold", func(c *Config) { c.DefaultConfidenceThreshold = 101 }, "DEFAULT_CONFIDENCE_THRESHOLD"},
		{"dpi", func(c *Config) { c.RasterDPI = 20 }, "RASTER_DPI"},
		{"driver", func(c *Config) { c.DatabaseDriver = "mysql" }, "DATABASE_DRIVER"},
		{"backend", func(c *Config) { c.StorageBackend = "ftp" }, "STORAGE_BACKEND"},
		{"s3 bucket", func(c *Config) { c.StorageBackend = "s3" }, "S3_BUCKET"},
		{"gcs bucket", func(c *Config) { c.StorageBackend = "gcs" }, "GCS_BUCKET"},
		{"languages", func(c *Config) { c.SupportedLanguages = nil }, "SUPPORTED_LANGUAGES"},
		{"timeout", func(c *Config) { c.CollaboratorTimeout = time.Millisecond }, "COLLABORATOR_TIMEOUT_MS"},
		{"job timeout low", func(c *Config) { c.JobTimeout = time.Second }, "JOB_TIMEOUT_MINUTES"},
		{"job timeout high", func(c *Config) { c.JobTimeout = 25 * time.Hour }, "JOB_TIMEOUT_MINUTES"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}
