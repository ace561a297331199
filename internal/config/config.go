package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cloudkoala/plystream/internal/progress"
)

// Config defines configuration for the plystream CLI.
type Config struct {
	BaseURL                string      `yaml:"base_url"`
	Dataset                string      `yaml:"dataset"`
	MaxConcurrentDownloads int         `yaml:"max_concurrent_downloads"`
	MaxBufferSize          int         `yaml:"max_buffer_size"`
	TargetChunkSizeMB      float64     `yaml:"target_chunk_size_mb"`
	Compress               bool        `yaml:"compress"`
	Progress               bool        `yaml:"progress"`
	Retry                  RetryConfig `yaml:"retry"`
}

// RetryConfig defines retry behavior for chunk downloads.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		MaxConcurrentDownloads: 2,
		MaxBufferSize:          8,
		TargetChunkSizeMB:      0.2,
		Retry: RetryConfig{
			Attempts:   5,
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations and
// a string chunk size ("0.2" or "0.2MB").
type yamlConfig struct {
	BaseURL                string          `yaml:"base_url"`
	Dataset                string          `yaml:"dataset"`
	MaxConcurrentDownloads int             `yaml:"max_concurrent_downloads"`
	MaxBufferSize          int             `yaml:"max_buffer_size"`
	TargetChunkSizeMB      string          `yaml:"target_chunk_size_mb"`
	Compress               bool            `yaml:"compress"`
	Progress               bool            `yaml:"progress"`
	Retry                  yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.BaseURL != "" {
		cfg.BaseURL = yc.BaseURL
	}
	if yc.Dataset != "" {
		cfg.Dataset = yc.Dataset
	}
	if yc.MaxConcurrentDownloads != 0 {
		cfg.MaxConcurrentDownloads = yc.MaxConcurrentDownloads
	}
	if yc.MaxBufferSize != 0 {
		cfg.MaxBufferSize = yc.MaxBufferSize
	}
	if yc.TargetChunkSizeMB != "" {
		mb, err := progress.ParseMB(yc.TargetChunkSizeMB)
		if err != nil {
			return Config{}, fmt.Errorf("parse target_chunk_size_mb: %w", err)
		}
		cfg.TargetChunkSizeMB = mb
	}
	cfg.Compress = yc.Compress
	cfg.Progress = yc.Progress
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.Retry.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff: %w", err)
		}
		cfg.Retry.Backoff = d
	}
	if yc.Retry.MaxBackoff != "" {
		d, err := time.ParseDuration(yc.Retry.MaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.max_backoff: %w", err)
		}
		cfg.Retry.MaxBackoff = d
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the PLYSTREAM_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("PLYSTREAM_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("PLYSTREAM_DATASET"); v != "" {
		c.Dataset = v
	}
	if v := os.Getenv("PLYSTREAM_MAX_CONCURRENT_DOWNLOADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PLYSTREAM_MAX_CONCURRENT_DOWNLOADS: %w", err)
		}
		c.MaxConcurrentDownloads = n
	}
	if v := os.Getenv("PLYSTREAM_MAX_BUFFER_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PLYSTREAM_MAX_BUFFER_SIZE: %w", err)
		}
		c.MaxBufferSize = n
	}
	if v := os.Getenv("PLYSTREAM_TARGET_CHUNK_SIZE_MB"); v != "" {
		mb, err := progress.ParseMB(v)
		if err != nil {
			return fmt.Errorf("parse PLYSTREAM_TARGET_CHUNK_SIZE_MB: %w", err)
		}
		c.TargetChunkSizeMB = mb
	}
	if v := os.Getenv("PLYSTREAM_COMPRESS"); v != "" {
		c.Compress = v == "true" || v == "1"
	}
	if v := os.Getenv("PLYSTREAM_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("PLYSTREAM_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PLYSTREAM_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("PLYSTREAM_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse PLYSTREAM_RETRY_BACKOFF: %w", err)
		}
		c.Retry.Backoff = d
	}
	if v := os.Getenv("PLYSTREAM_RETRY_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse PLYSTREAM_RETRY_MAX_BACKOFF: %w", err)
		}
		c.Retry.MaxBackoff = d
	}

	return nil
}

// Validate validates the configuration for streaming commands.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("config: base_url is required")
	}
	if c.Dataset == "" {
		return errors.New("config: dataset is required")
	}
	if c.MaxConcurrentDownloads <= 0 {
		return errors.New("config: max_concurrent_downloads must be positive")
	}
	if c.MaxBufferSize <= 0 {
		return errors.New("config: max_buffer_size must be positive")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.BaseURL != "" {
		c.BaseURL = override.BaseURL
	}
	if override.Dataset != "" {
		c.Dataset = override.Dataset
	}
	if override.MaxConcurrentDownloads != 0 {
		c.MaxConcurrentDownloads = override.MaxConcurrentDownloads
	}
	if override.MaxBufferSize != 0 {
		c.MaxBufferSize = override.MaxBufferSize
	}
	if override.TargetChunkSizeMB != 0 {
		c.TargetChunkSizeMB = override.TargetChunkSizeMB
	}
	if override.Compress {
		c.Compress = override.Compress
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	return c
}
