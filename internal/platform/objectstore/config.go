package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maia-experience/dpc-cicd/internal/platform/env"
)

// Config describes an S3-compatible bucket. A zero Endpoint means object
// storage is not configured.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
}

func ConfigFromEnv() (Config, error) {
	endpoint := env.NonEmpty("DPC_ARCHIVE_ENDPOINT", "")
	if endpoint == "" {
		return Config{}, nil
	}
	useSSL, err := env.Bool("DPC_ARCHIVE_USE_SSL", true)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:  endpoint,
		AccessKey: env.NonEmpty("DPC_ARCHIVE_ACCESS_KEY", ""),
		SecretKey: env.NonEmpty("DPC_ARCHIVE_SECRET_KEY", ""),
		Region:    env.NonEmpty("DPC_ARCHIVE_REGION", "us-east-1"),
		UseSSL:    useSSL,
		Bucket:    env.NonEmpty("DPC_ARCHIVE_BUCKET", "dpc-artifacts"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("DPC_ARCHIVE_ENDPOINT is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("DPC_ARCHIVE_ENDPOINT must not include scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("DPC_ARCHIVE_ACCESS_KEY is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("DPC_ARCHIVE_SECRET_KEY is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("DPC_ARCHIVE_REGION is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("DPC_ARCHIVE_BUCKET is required")
	}
	return nil
}
