package s3backup

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/ReplyFox/internal/pkg/env"
)

// Config holds the ledger export bucket configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Prefix          string
	Enabled         bool
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Prefix:          env.GetEnv("S3_LEDGER_PREFIX", "ledger"),
		Enabled:         env.GetEnv("S3_EXPORT_ENABLED", "false") == "true",
	}

	// Validate required fields if the export is enabled
	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when the ledger export is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when the ledger export is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when the ledger export is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if the ledger export is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// GetObjectKey returns the object key of one UTC day of ledger entries
func (c *Config) GetObjectKey(day time.Time) string {
	// Format: <prefix>/YYYY/MM/YYYY-MM-DD.jsonl
	day = day.UTC()
	prefix := c.Prefix
	if prefix == "" {
		prefix = "ledger"
	}
	return fmt.Sprintf("%s/%04d/%02d/%s.jsonl", prefix, day.Year(), int(day.Month()), day.Format("2006-01-02"))
}

// GetAppEnv returns the current application environment
func GetAppEnv() string {
	return env.GetEnv("APP_ENV", "dev")
}

// GetBucketName returns the bucket name as configured (no automatic prefixing)
func (c *Config) GetBucketName() string {
	return c.BucketName
}
