package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.MaxConcurrentDownloads != 2 {
		t.Errorf("expected default max concurrent downloads 2, got %d", cfg.MaxConcurrentDownloads)
	}
	if cfg.MaxBufferSize != 8 {
		t.Errorf("expected default max buffer size 8, got %d", cfg.MaxBufferSize)
	}
	if cfg.TargetChunkSizeMB != 0.2 {
		t.Errorf("expected default target chunk size 0.2MB, got %v", cfg.TargetChunkSizeMB)
	}
	if cfg.Retry.Attempts != 5 {
		t.Errorf("expected default retry attempts 5, got %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.Backoff != time.Second {
		t.Errorf("expected default retry backoff 1s, got %v", cfg.Retry.Backoff)
	}
	if cfg.Retry.MaxBackoff != 30*time.Second {
		t.Errorf("expected default retry max backoff 30s, got %v", cfg.Retry.MaxBackoff)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
base_url: https://cdn.example.com/models
dataset: castleton
max_concurrent_downloads: 4
max_buffer_size: 16
target_chunk_size_mb: "0.5"
compress: true
progress: true
retry:
  attempts: 10
  backoff: 2s
  max_backoff: 60s
`
	// Create temp file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.BaseURL != "https://cdn.example.com/models" {
		t.Errorf("expected base URL, got %q", cfg.BaseURL)
	}
	if cfg.Dataset != "castleton" {
		t.Errorf("expected dataset castleton, got %q", cfg.Dataset)
	}
	if cfg.MaxConcurrentDownloads != 4 {
		t.Errorf("expected max concurrent downloads 4, got %d", cfg.MaxConcurrentDownloads)
	}
	if cfg.MaxBufferSize != 16 {
		t.Errorf("expected max buffer size 16, got %d", cfg.MaxBufferSize)
	}
	if cfg.TargetChunkSizeMB != 0.5 {
		t.Errorf("expected target chunk size 0.5MB, got %v", cfg.TargetChunkSizeMB)
	}
	if !cfg.Compress {
		t.Error("expected compress true")
	}
	if !cfg.Progress {
		t.Error("expected progress true")
	}
	if cfg.Retry.Attempts != 10 {
		t.Errorf("expected retry attempts 10, got %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.Backoff != 2*time.Second {
		t.Errorf("expected retry backoff 2s, got %v", cfg.Retry.Backoff)
	}
	if cfg.Retry.MaxBackoff != 60*time.Second {
		t.Errorf("expected retry max backoff 60s, got %v", cfg.Retry.MaxBackoff)
	}
}

func TestLoadFromEnv(t *testing.T) {
	// Set env vars
	t.Setenv("PLYSTREAM_BASE_URL", "https://cdn.example.com/models")
	t.Setenv("PLYSTREAM_DATASET", "mesa")
	t.Setenv("PLYSTREAM_MAX_CONCURRENT_DOWNLOADS", "6")
	t.Setenv("PLYSTREAM_MAX_BUFFER_SIZE", "32")
	t.Setenv("PLYSTREAM_TARGET_CHUNK_SIZE_MB", "1.5")
	t.Setenv("PLYSTREAM_PROGRESS", "true")
	t.Setenv("PLYSTREAM_RETRY_ATTEMPTS", "3")
	t.Setenv("PLYSTREAM_RETRY_BACKOFF", "500ms")
	t.Setenv("PLYSTREAM_RETRY_MAX_BACKOFF", "10s")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.BaseURL != "https://cdn.example.com/models" {
		t.Errorf("expected base URL, got %q", cfg.BaseURL)
	}
	if cfg.Dataset != "mesa" {
		t.Errorf("expected dataset mesa, got %q", cfg.Dataset)
	}
	if cfg.MaxConcurrentDownloads != 6 {
		t.Errorf("expected max concurrent downloads 6, got %d", cfg.MaxConcurrentDownloads)
	}
	if cfg.MaxBufferSize != 32 {
		t.Errorf("expected max buffer size 32, got %d", cfg.MaxBufferSize)
	}
	if cfg.TargetChunkSizeMB != 1.5 {
		t.Errorf("expected target chunk size 1.5MB, got %v", cfg.TargetChunkSizeMB)
	}
	if !cfg.Progress {
		t.Error("expected progress true")
	}
	if cfg.Retry.Attempts != 3 {
		t.Errorf("expected retry attempts 3, got %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.Backoff != 500*time.Millisecond {
		t.Errorf("expected retry backoff 500ms, got %v", cfg.Retry.Backoff)
	}
	if cfg.Retry.MaxBackoff != 10*time.Second {
		t.Errorf("expected retry max backoff 10s, got %v", cfg.Retry.MaxBackoff)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				BaseURL:                "https://cdn.example.com/models",
				Dataset:                "castleton",
				MaxConcurrentDownloads: 2,
				MaxBufferSize:          8,
			},
			wantErr: false,
		},
		{
			name: "missing base URL",
			cfg: Config{
				Dataset:                "castleton",
				MaxConcurrentDownloads: 2,
				MaxBufferSize:          8,
			},
			wantErr: true,
		},
		{
			name: "missing dataset",
			cfg: Config{
				BaseURL:                "https://cdn.example.com/models",
				MaxConcurrentDownloads: 2,
				MaxBufferSize:          8,
			},
			wantErr: true,
		},
		{
			name: "invalid concurrency",
			cfg: Config{
				BaseURL:                "https://cdn.example.com/models",
				Dataset:                "castleton",
				MaxConcurrentDownloads: 0,
				MaxBufferSize:          8,
			},
			wantErr: true,
		},
		{
			name: "invalid buffer size",
			cfg: Config{
				BaseURL:                "https://cdn.example.com/models",
				Dataset:                "castleton",
				MaxConcurrentDownloads: 2,
				MaxBufferSize:          0,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := Default()
	base.BaseURL = "https://cdn.example.com/models"

	merged := base.Merge(Config{
		Dataset:                "mesa",
		MaxConcurrentDownloads: 4,
		Retry: RetryConfig{
			Backoff: 2 * time.Second,
		},
	})

	if merged.BaseURL != "https://cdn.example.com/models" {
		t.Errorf("expected base URL preserved, got %q", merged.BaseURL)
	}
	if merged.Dataset != "mesa" {
		t.Errorf("expected dataset mesa, got %q", merged.Dataset)
	}
	if merged.MaxConcurrentDownloads != 4 {
		t.Errorf("expected max concurrent downloads 4, got %d", merged.MaxConcurrentDownloads)
	}
	if merged.MaxBufferSize != 8 {
		t.Errorf("expected max buffer size 8 preserved, got %d", merged.MaxBufferSize)
	}
	if merged.Retry.Backoff != 2*time.Second {
		t.Errorf("expected retry backoff 2s, got %v", merged.Retry.Backoff)
	}
	if merged.Retry.Attempts != 5 {
		t.Errorf("expected retry attempts 5 preserved, got %d", merged.Retry.Attempts)
	}
}
