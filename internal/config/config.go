/**
 * Configuration for the OCR pipeline
 *
 * Loads configuration from environment variables. Components receive the typed
 * values through their constructors and never read the environment themselves.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultMaxFileSize         = 100 * 1024 * 1024
	DefaultConfidenceThreshold = 30.0
	DefaultRasterDPI           = 300
)

var (
	DefaultAllowedExtensions  = []string{"pdf", "jpg", "jpeg", "png", "tiff", "tif", "bmp"}
	DefaultSupportedLanguages = []string{"eng", "fra", "deu", "spa", "ita", "por", "hau", "ibo", "yor"}
)

// Config holds pipeline configuration
type Config struct {
	// Redis configuration (queue + status events)
	RedisURL     string
	QueueName    string
	StatusEvents bool

	// Record store configuration
	DatabaseDriver string
	DatabaseURL    string

	// Blob storage configuration
	StorageBackend     string
	UploadDir          string
	S3Bucket           string
	S3Region           string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	GCSBucket          string

	// Worker configuration
	WorkerConcurrency int
	PageConcurrency   int

	// JobTimeout bounds one queued job and how long shutdown waits for it
	JobTimeout time.Duration

	// Upload limits
	MaxFileSize       int64
	AllowedExtensions []string

	// OCR configuration
	SupportedLanguages         []string
	DefaultConfidenceThreshold float64
	RasterDPI                  int
	PdftoppmPath               string
	TessdataPrefix             string

	// Temporary directory for rasterized pages
	TempDir string

	// Remote collaborators; empty means in-process
	FileServiceURL      string
	OCRServiceURL       string
	CollaboratorTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:                   getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		QueueName:                  getEnvOrDefault("QUEUE_NAME", "ocr"),
		StatusEvents:               getEnvAsBoolOrDefault("STATUS_EVENTS", true),
		DatabaseDriver:             getEnvOrDefault("DATABASE_DRIVER", "postgres"),
		DatabaseURL:                os.Getenv("DATABASE_URL"),
		StorageBackend:             getEnvOrDefault("STORAGE_BACKEND", "fs"),
		UploadDir:                  getEnvOrDefault("UPLOAD_DIR", "./uploads"),
		S3Bucket:                   os.Getenv("S3_BUCKET"),
		S3Region:                   os.Getenv("S3_REGION"),
		AWSAccessKeyID:             os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey:         os.Getenv("AWS_SECRET_ACCESS_KEY"),
		GCSBucket:                  os.Getenv("GCS_BUCKET"),
		WorkerConcurrency:          getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		PageConcurrency:            getEnvAsIntOrDefault("PAGE_CONCURRENCY", 1),
		JobTimeout:                 time.Duration(getEnvAsIntOrDefault("JOB_TIMEOUT_MINUTES", 120)) * time.Minute,
		MaxFileSize:                getEnvAsInt64OrDefault("MAX_FILE_SIZE", DefaultMaxFileSize), // 100MB
		AllowedExtensions:          getEnvAsListOrDefault("ALLOWED_EXTENSIONS", DefaultAllowedExtensions),
		SupportedLanguages:         getEnvAsListOrDefault("SUPPORTED_LANGUAGES", DefaultSupportedLanguages),
		DefaultConfidenceThreshold: getEnvAsFloatOrDefault("DEFAULT_CONFIDENCE_THRESHOLD", DefaultConfidenceThreshold),
		RasterDPI:                  getEnvAsIntOrDefault("RASTER_DPI", DefaultRasterDPI),
		PdftoppmPath:               getEnvOrDefault("PDFTOPPM_PATH", "pdftoppm"),
		TessdataPrefix:             os.Getenv("TESSDATA_PREFIX"),
		TempDir:                    getEnvOrDefault("TEMP_DIR", os.TempDir()),
		FileServiceURL:             os.Getenv("FILE_SERVICE_URL"),
		OCRServiceURL:              os.Getenv("OCR_SERVICE_URL"),
		CollaboratorTimeout:        time.Duration(getEnvAsIntOrDefault("COLLABORATOR_TIMEOUT_MS", 30000)) * time.Millisecond,
		LogLevel:                   getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:                  getEnvOrDefault("LOG_FORMAT", "json"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.QueueName == "" {
		return fmt.Errorf("QUEUE_NAME is required")
	}

	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver)
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch c.StorageBackend {
	case "fs":
		if c.UploadDir == "" {
			return fmt.Errorf("UPLOAD_DIR is required for the fs storage backend")
		}
	case "s3":
		if c.S3Bucket == "" || c.S3Region == "" {
			return fmt.Errorf("S3_BUCKET and S3_REGION are required for the s3 storage backend")
		}
	case "gcs":
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required for the gcs storage backend")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be fs, s3 or gcs, got %q", c.StorageBackend)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.PageConcurrency < 1 || c.PageConcurrency > 16 {
		return fmt.Errorf("PAGE_CONCURRENCY must be between 1 and 16, got %d", c.PageConcurrency)
	}

	if c.JobTimeout < time.Minute || c.JobTimeout > 24*time.Hour {
		return fmt.Errorf("JOB_TIMEOUT_MINUTES must be between 1 and 1440, got %d", int(c.JobTimeout.Minutes()))
	}

	if c.MaxFileSize < 1024 || c.MaxFileSize > 10737418240 { // 1KB to 10GB
		return fmt.Errorf("MAX_FILE_SIZE must be between 1KB and 10GB, got %d", c.MaxFileSize)
	}

	if len(c.AllowedExtensions) == 0 {
		return fmt.Errorf("ALLOWED_EXTENSIONS must not be empty")
	}

	if len(c.SupportedLanguages) == 0 {
		return fmt.Errorf("SUPPORTED_LANGUAGES must not be empty")
	}

	if c.DefaultConfidenceThreshold < 0 || c.DefaultConfidenceThreshold > 100 {
		return fmt.Errorf("DEFAULT_CONFIDENCE_THRESHOLD must be between 0 and 100, got %v", c.DefaultConfidenceThreshold)
	}

	if c.RasterDPI < 72 || c.RasterDPI > 600 {
		return fmt.Errorf("RASTER_DPI must be between 72 and 600, got %d", c.RasterDPI)
	}

	if c.CollaboratorTimeout < time.Second || c.CollaboratorTimeout > 10*time.Minute {
		return fmt.Errorf("COLLABORATOR_TIMEOUT_MS must be between 1000 and 600000, got %d", c.CollaboratorTimeout.Milliseconds())
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsListOrDefault splits a comma separated variable, lower-casing entries
func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return append([]string(nil), defaultValue...)
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
