// Package config loads runtime configuration from the environment.
// Every knob has a default good enough for local development; production
// overrides them with environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendFS = "fs"
	BackendS3 = "s3"
)

type Config struct {
	Port   int
	DBPath string

	// Blob storage. Backend selects the implementation; the rest of the
	// fields only matter for the backend they belong to.
	BlobBackend string
	BlobDir     string
	S3Endpoint  string
	S3Bucket    string
	S3Region    string
	S3AccessKey string
	S3SecretKey string

	SnippetTTL      time.Duration
	JanitorInterval time.Duration
	MaxContentBytes int64
	ReservationTTL  time.Duration
	IDMinLen        int
	IDMaxLen        int
}

func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", 8080)
	v.SetDefault("DB_PATH", "codether.db")
	v.SetDefault("BLOB_BACKEND", BackendFS)
	v.SetDefault("BLOB_DIR", "data")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_BUCKET", "")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_ACCESS_KEY", "")
	v.SetDefault("S3_SECRET_KEY", "")
	v.SetDefault("SNIPPET_TTL", "168h")
	v.SetDefault("JANITOR_INTERVAL", "1h")
	v.SetDefault("MAX_CONTENT_BYTES", 10485760)
	v.SetDefault("RESERVATION_TTL", "1h")
	v.SetDefault("ID_MIN_LEN", 6)
	v.SetDefault("ID_MAX_LEN", 10)

	cfg := &Config{
		Port:            v.GetInt("PORT"),
		DBPath:          v.GetString("DB_PATH"),
		BlobBackend:     v.GetString("BLOB_BACKEND"),
		BlobDir:         v.GetString("BLOB_DIR"),
		S3Endpoint:      v.GetString("S3_ENDPOINT"),
		S3Bucket:        v.GetString("S3_BUCKET"),
		S3Region:        v.GetString("S3_REGION"),
		S3AccessKey:     v.GetString("S3_ACCESS_KEY"),
		S3SecretKey:     v.GetString("S3_SECRET_KEY"),
		SnippetTTL:      v.GetDuration("SNIPPET_TTL"),
		JanitorInterval: v.GetDuration("JANITOR_INTERVAL"),
		MaxContentBytes: v.GetInt64("MAX_CONTENT_BYTES"),
		ReservationTTL:  v.GetDuration("RESERVATION_TTL"),
		IDMinLen:        v.GetInt("ID_MIN_LEN"),
		IDMaxLen:        v.GetInt("ID_MAX_LEN"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	switch c.BlobBackend {
	case BackendFS:
		if c.BlobDir == "" {
			return fmt.Errorf("BLOB_DIR is required for the fs backend")
		}
	case BackendS3:
		if c.S3Endpoint == "" || c.S3Bucket == "" {
			return fmt.Errorf("S3_ENDPOINT and S3_BUCKET are required for the s3 backend")
		}
		if c.S3AccessKey == "" || c.S3SecretKey == "" {
			return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required for the s3 backend")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be %q or %q, got %q", BackendFS, BackendS3, c.BlobBackend)
	}
	if c.SnippetTTL <= 0 {
		return fmt.Errorf("SNIPPET_TTL must be positive, got %s", c.SnippetTTL)
	}
	if c.JanitorInterval <= 0 {
		return fmt.Errorf("JANITOR_INTERVAL must be positive, got %s", c.JanitorInterval)
	}
	if c.MaxContentBytes <= 0 {
		return fmt.Errorf("MAX_CONTENT_BYTES must be positive, got %d", c.MaxContentBytes)
	}
	if c.IDMinLen < 1 || c.IDMaxLen < c.IDMinLen {
		return fmt.Errorf("invalid id length bounds: min %d, max %d", c.IDMinLen, c.IDMaxLen)
	}
	return nil
}

// Addr is the listen address derived from Port.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
