// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultModelURL is the asset fetched at startup when no deep link names one.
const DefaultModelURL = "https://raw.githubusercontent.com/kamkard/three-gltf-viewer/main/data/glb_output.glb"

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Loading
	DefaultModelURL string
	DeepLink        string
	FetchTimeout    time.Duration
	LoadTimeout     time.Duration // 0 = no per-attempt timeout
	MaxAssetSize    int64
	MaxUploadSize   int64

	// Watched drop directory (empty = disabled)
	DropDir    string
	DropSettle time.Duration

	// History database (empty = in-memory)
	DatabaseURL string

	// S3 sources for s3:// addresses
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string

	// Auth (empty = write endpoints are open)
	JWTSecret string

	// Validation
	ValidatorWorkers int
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:       envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:      envOr("METRICS_ADDR", ":9090"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		LogFormat:        envOr("LOG_FORMAT", "json"),
		DefaultModelURL:  envOr("DEFAULT_MODEL_URL", DefaultModelURL),
		DeepLink:         envOr("DEEP_LINK", ""),
		FetchTimeout:     envDuration("FETCH_TIMEOUT", 60*time.Second),
		LoadTimeout:      envDuration("LOAD_TIMEOUT", 0),
		MaxAssetSize:     envInt64("MAX_ASSET_SIZE", 256*1024*1024),  // 256MB default
		MaxUploadSize:    envInt64("MAX_UPLOAD_SIZE", 512*1024*1024), // 512MB default
		DropDir:          envOr("DROP_DIR", ""),
		DropSettle:       envDuration("DROP_SETTLE", 750*time.Millisecond),
		DatabaseURL:      envOr("DATABASE_URL", ""),
		S3Endpoint:       envOr("S3_ENDPOINT", ""),
		S3Region:         envOr("S3_REGION", "us-east-1"),
		S3AccessKey:      envOr("S3_ACCESS_KEY", ""),
		S3SecretKey:      envOr("S3_SECRET_KEY", ""),
		JWTSecret:        envOr("JWT_SECRET", ""),
		ValidatorWorkers: envInt("VALIDATOR_WORKERS", 2),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.MaxAssetSize <= 0 {
		return fmt.Errorf("MAX_ASSET_SIZE must be positive")
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive")
	}
	if c.FetchTimeout < 0 || c.LoadTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.ValidatorWorkers <= 0 {
		return fmt.Errorf("VALIDATOR_WORKERS must be positive")
	}
	if (c.S3AccessKey == "") != (c.S3SecretKey == "") {
		return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY must be set together")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
