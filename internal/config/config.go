// Package config provides configuration loading for the tracker service.
// It handles environment variable parsing and provides default values for all settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// init loads .env and .env.local when present. godotenv.Load never overrides
// variables already set in the process environment, so OS env wins.
func init() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	}

	// Local overrides, gitignored
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env.local file: %v\n", err)
		}
	}
}

// Config captures environment-driven settings for the tracker service.
type Config struct {
	Env         string // Deployment environment (dev, staging, prod)
	Port        string // HTTP server port
	DatabaseDSN string // PostgreSQL connection string; in-memory store when empty
	NATSURL     string // NATS server URL; events disabled when empty

	S3Endpoint  string // S3-compatible storage endpoint
	S3Region    string // S3 region
	S3Bucket    string // Bucket for cover art; uploads disabled when empty
	S3AccessKey string
	S3SecretKey string
	S3PublicURL string // Base URL covers are served from

	// Cover upload limits
	MaxCoverSize      int64    // Maximum cover size in bytes (default 10MB)
	AllowedImageTypes []string // Allowed MIME types for covers

	// Bearer token auth; disabled when JWTSecret is empty
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	// Metadata providers
	OMDBAPIKey        string
	TMDBAPIKey        string
	GoogleBooksAPIKey string
	MetadataCacheTTL  time.Duration

	BatchDelay time.Duration // Pause between items of a batch operation

	CORSAllowedOrigins []string // Allowed origins for CORS (empty means deny all)
}

const (
	defaultEnv              = "dev"
	defaultPort             = "8080"
	defaultS3Region         = "us-east-1"
	defaultMaxCoverSize     = 10 * 1024 * 1024
	defaultMetadataCacheTTL = time.Hour
	defaultBatchDelay       = 500 * time.Millisecond
)

var defaultImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// Load reads environment variables and produces a Config suitable for wiring the service.
// Returns an error if a value is malformed or a required companion setting is missing.
func Load() (Config, error) {
	cfg := Config{
		Env:         getEnv("TRACKER_ENV", defaultEnv),
		Port:        getEnv("TRACKER_PORT", defaultPort),
		DatabaseDSN: os.Getenv("TRACKER_DB_DSN"),
		NATSURL:     os.Getenv("TRACKER_NATS_URL"),

		S3Endpoint:  os.Getenv("TRACKER_S3_ENDPOINT"),
		S3Region:    getEnv("TRACKER_S3_REGION", defaultS3Region),
		S3Bucket:    os.Getenv("TRACKER_S3_BUCKET"),
		S3AccessKey: os.Getenv("TRACKER_S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("TRACKER_S3_SECRET_KEY"),
		S3PublicURL: os.Getenv("TRACKER_S3_PUBLIC_URL"),

		MaxCoverSize:      defaultMaxCoverSize,
		AllowedImageTypes: defaultImageTypes,

		JWTSecret:   os.Getenv("TRACKER_JWT_SECRET"),
		JWTIssuer:   os.Getenv("TRACKER_JWT_ISSUER"),
		JWTAudience: os.Getenv("TRACKER_JWT_AUDIENCE"),

		OMDBAPIKey:        os.Getenv("OMDB_API_KEY"),
		TMDBAPIKey:        os.Getenv("TMDB_API_KEY"),
		GoogleBooksAPIKey: os.Getenv("GOOGLE_BOOKS_API_KEY"),
		MetadataCacheTTL:  defaultMetadataCacheTTL,

		BatchDelay: defaultBatchDelay,
	}

	if v, ok := os.LookupEnv("TRACKER_MAX_COVER_SIZE"); ok {
		size, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || size <= 0 {
			return cfg, fmt.Errorf("TRACKER_MAX_COVER_SIZE must be a positive byte count, got %q", v)
		}
		cfg.MaxCoverSize = size
	}

	if v, ok := os.LookupEnv("TRACKER_ALLOWED_IMAGE_TYPES"); ok {
		cfg.AllowedImageTypes = splitList(v)
	}

	if v, ok := os.LookupEnv("TRACKER_METADATA_CACHE_TTL"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return cfg, fmt.Errorf("TRACKER_METADATA_CACHE_TTL: %w", err)
		}
		cfg.MetadataCacheTTL = d
	}

	if v, ok := os.LookupEnv("TRACKER_BATCH_DELAY"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil || d < 0 {
			return cfg, fmt.Errorf("TRACKER_BATCH_DELAY must be a non-negative duration, got %q", v)
		}
		cfg.BatchDelay = d
	}

	if v, ok := os.LookupEnv("TRACKER_CORS_ALLOWED_ORIGINS"); ok {
		cfg.CORSAllowedOrigins = splitList(v)
	}

	if cfg.JWTSecret != "" {
		if cfg.JWTIssuer == "" {
			return cfg, fmt.Errorf("TRACKER_JWT_ISSUER is required when TRACKER_JWT_SECRET is set")
		}
		if cfg.JWTAudience == "" {
			return cfg, fmt.Errorf("TRACKER_JWT_AUDIENCE is required when TRACKER_JWT_SECRET is set")
		}
	}

	return cfg, nil
}

// AuthEnabled reports whether bearer tokens are required on mutating routes.
func (c Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// getEnv retrieves an environment variable value, returning a fallback if not set or empty
func getEnv(key, fallback string) string {
	if v, exists := os.LookupEnv(key); exists && v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
