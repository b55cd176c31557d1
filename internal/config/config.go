// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Static errors for configuration validation.
var (
	// ErrJWTSecretRequired is returned when AUTH_JWT_SECRET is not set.
	ErrJWTSecretRequired = errors.New("config: AUTH_JWT_SECRET is required")
	// ErrMinIOBucketRequired is returned when MINIO_ENDPOINT is set without MINIO_BUCKET.
	ErrMinIOBucketRequired = errors.New("config: MINIO_BUCKET is required when MINIO_ENDPOINT is set")
	// ErrInvalidMaxUpload is returned when MAX_UPLOAD_MB is not positive.
	ErrInvalidMaxUpload = errors.New("config: MAX_UPLOAD_MB must be positive")
)

// Storage backends selected by StorageBackend.
const (
	StorageS3    = "s3"
	StorageMinIO = "minio"
	StorageLocal = "local"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port            int    `env:"PORT, default=8080" json:"port"`
	AsyncProcessing bool   `env:"ASYNC_PROCESSING, default=true" json:"async_processing"`
	MaxUploadMB     int64  `env:"MAX_UPLOAD_MB, default=50" json:"max_upload_mb"`
	CORSOrigin      string `env:"CORS_ORIGIN, default=*" json:"cors_origin"`

	// Auth settings
	AuthJWTSecret string `env:"AUTH_JWT_SECRET" json:"-"` // Masked in JSON
	AuthIssuer    string `env:"AUTH_ISSUER" json:"auth_issuer,omitempty"`

	// Local storage settings
	StorageDir     string        `env:"STORAGE_DIR, default=/tmp/beatstore" json:"storage_dir"`
	PublicFilesURL string        `env:"PUBLIC_FILES_URL, default=/files" json:"public_files_url"`
	SignedURLTTL   time.Duration `env:"SIGNED_URL_TTL, default=10m" json:"signed_url_ttl"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Optional MinIO settings
	MinIOEndpoint  string `env:"MINIO_ENDPOINT" json:"minio_endpoint,omitempty"`
	MinIOAccessKey string `env:"MINIO_ACCESS_KEY" json:"-"` // Masked in JSON
	MinIOSecretKey string `env:"MINIO_SECRET_KEY" json:"-"` // Masked in JSON
	MinIOBucket    string `env:"MINIO_BUCKET" json:"minio_bucket,omitempty"`
	MinIOUseSSL    bool   `env:"MINIO_USE_SSL, default=false" json:"minio_use_ssl"`

	// Catalog database (MySQL). Empty keeps the catalog in memory.
	DatabaseDSN string `env:"DATABASE_DSN" json:"-"` // Masked in JSON

	// Notifications
	RedisAddr         string        `env:"REDIS_ADDR" json:"redis_addr,omitempty"`
	RedisPassword     string        `env:"REDIS_PASSWORD" json:"-"` // Masked in JSON
	RedisDB           int           `env:"REDIS_DB, default=0" json:"redis_db"`
	NotifyDedupWindow time.Duration `env:"NOTIFY_DEDUP_WINDOW, default=3s" json:"notify_dedup_window"`

	// RPC health monitor
	RPCEndpoints        []string      `env:"RPC_ENDPOINTS" json:"rpc_endpoints,omitempty"`
	RPCCheckInterval    time.Duration `env:"RPC_CHECK_INTERVAL, default=30s" json:"rpc_check_interval"`
	RPCFailureThreshold int           `env:"RPC_FAILURE_THRESHOLD, default=3" json:"rpc_failure_threshold"`
	RPCTimeout          time.Duration `env:"RPC_TIMEOUT, default=5s" json:"rpc_timeout"`

	// Audio
	FFmpegPath string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`

	// Logging settings
	LogFormat     string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel      string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
	LogFile       string `env:"LOG_FILE" json:"log_file,omitempty"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB, default=100" json:"log_max_size_mb"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS, default=5" json:"log_max_backups"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS, default=30" json:"log_max_age_days"`
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// MinIOEnabled returns true if MinIO configuration is provided.
func (c *Config) MinIOEnabled() bool {
	return c.MinIOEndpoint != ""
}

// RPCMonitorEnabled returns true if at least one RPC endpoint is configured.
func (c *Config) RPCMonitorEnabled() bool {
	return len(c.RPCEndpoints) > 0
}

// StorageBackend reports which object store is used. S3 wins over MinIO,
// and local disk is the fallback.
func (c *Config) StorageBackend() string {
	switch {
	case c.S3Enabled():
		return StorageS3
	case c.MinIOEnabled():
		return StorageMinIO
	default:
		return StorageLocal
	}
}

// MaxUploadBytes returns MaxUploadMB in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// Load reads configuration from environment variables using go-envconfig.
// A .env file in the working directory is loaded first; variables already
// present in the environment take precedence.
func Load() (*Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit dotenv files. Missing files are skipped.
func LoadFiles(files ...string) (*Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.AuthJWTSecret == "" {
		return ErrJWTSecretRequired
	}
	if c.MinIOEndpoint != "" && c.MinIOBucket == "" {
		return ErrMinIOBucketRequired
	}
	if c.MaxUploadMB <= 0 {
		return ErrInvalidMaxUpload
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs. A LogFile adds a rotated
// copy of the output.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)
	out := c.logWriter()

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

func (c *Config) logWriter() io.Writer {
	if c.LogFile == "" {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAge:     c.LogMaxAgeDays,
		Compress:   true,
	})
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, Storage: %s, StorageDir: %s, S3Bucket: %s, S3Region: %s, MinIOEndpoint: %s, MinIOBucket: %s, Database: %t, RedisAddr: %s, RPCEndpoints: %d, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.StorageBackend(),
		c.StorageDir,
		c.S3Bucket,
		c.S3Region,
		c.MinIOEndpoint,
		c.MinIOBucket,
		c.DatabaseDSN != "",
		c.RedisAddr,
		len(c.RPCEndpoints),
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
