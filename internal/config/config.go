// Package config loads the shardfetch configuration from a YAML file with
// environment variable overrides for deployment-sensitive settings.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/datasetops/shardfetch/internal/logging"
	"github.com/datasetops/shardfetch/internal/metrics"
	"github.com/datasetops/shardfetch/internal/shard"
	"github.com/datasetops/shardfetch/internal/stats"
	"github.com/datasetops/shardfetch/internal/storage"
)

// Config is the root configuration for a shardfetch run.
type Config struct {
	Download DownloadConfig `yaml:"download"`
	Storage  storage.Config `yaml:"storage"`
	Writer   WriterConfig   `yaml:"writer"`
	Stats    stats.Config   `yaml:"stats"`
	Logging  logging.Config `yaml:"logging"`
	Metrics  metrics.Config `yaml:"metrics"`
}

// DownloadConfig controls the per-shard download pass.
type DownloadConfig struct {
	ThreadCount          int      `yaml:"thread_count"`
	TimeoutSeconds       int      `yaml:"timeout_seconds"`
	Retries              int      `yaml:"retries"`
	NumberSamplePerShard int      `yaml:"number_sample_per_shard"`
	OOMShardCount        int      `yaml:"oom_shard_count"`
	ComputeMD5           bool     `yaml:"compute_md5"`
	ColumnList           []string `yaml:"column_list"`
	SaveCaption          bool     `yaml:"save_caption"`
	OutputFolder         string   `yaml:"output_folder"`
	StatusCap            int      `yaml:"status_cap"`
}

// WriterConfig selects the sample output format.
type WriterConfig struct {
	Backend    string `yaml:"backend"`     // "parquet" | "files"
	ContentExt string `yaml:"content_ext"` // payload extension, e.g. ".pdf"
}

// Default returns the configuration used when no file or overrides are given.
func Default() Config {
	return Config{
		Download: DownloadConfig{
			ThreadCount:          32,
			TimeoutSeconds:       10,
			Retries:              0,
			NumberSamplePerShard: 10000,
			OOMShardCount:        5,
			ComputeMD5:           true,
			ColumnList:           []string{"url"},
			SaveCaption:          true,
			OutputFolder:         "dataset",
		},
		Storage: storage.Config{
			Backend:  "local",
			LocalDir: "./data",
		},
		Writer: WriterConfig{
			Backend:    "files",
			ContentExt: ".pdf",
		},
		Stats: stats.Config{
			Backend: "json",
			Folder:  "dataset",
		},
		Logging: logging.Config{
			Format: "text",
			Level:  "info",
		},
		Metrics: metrics.Config{
			Enabled: false,
			Address: ":9090",
		},
	}
}

// Load reads configuration from path (optional), then applies environment
// overrides, then validates. An empty path loads defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays deployment-sensitive settings from the environment.
func applyEnv(cfg *Config) {
	if v := os.Getenv("THREAD_COUNT"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Download.ThreadCount = parsed
		}
	}
	if v := os.Getenv("OUTPUT_FOLDER"); v != "" {
		cfg.Download.OutputFolder = v
	}

	cfg.Storage.Backend = getenvDefault("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.LocalDir = getenvDefault("LOCAL_DIR", cfg.Storage.LocalDir)
	cfg.Storage.GCSBucket = getenvDefault("GCS_BUCKET", cfg.Storage.GCSBucket)
	cfg.Storage.S3Bucket = getenvDefault("S3_BUCKET", cfg.Storage.S3Bucket)
	cfg.Storage.S3Endpoint = getenvDefault("S3_ENDPOINT", cfg.Storage.S3Endpoint)
	cfg.Storage.S3Region = getenvDefault("S3_REGION", cfg.Storage.S3Region)

	cfg.Stats.PostgresDSN = getenvDefault("STATS_DSN", cfg.Stats.PostgresDSN)

	cfg.Logging.Level = getenvDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getenvDefault("LOG_FORMAT", cfg.Logging.Format)

	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true"
	}
	cfg.Metrics.Address = getenvDefault("METRICS_ADDRESS", cfg.Metrics.Address)
}

// Validate checks that the configuration describes a runnable job.
func (c Config) Validate() error {
	d := c.Download
	if d.ThreadCount <= 0 {
		return fmt.Errorf("download.thread_count must be positive, got %d", d.ThreadCount)
	}
	if d.Retries < 0 {
		return fmt.Errorf("download.retries must not be negative, got %d", d.Retries)
	}
	if d.TimeoutSeconds <= 0 {
		return fmt.Errorf("download.timeout_seconds must be positive, got %d", d.TimeoutSeconds)
	}
	if d.NumberSamplePerShard <= 0 {
		return fmt.Errorf("download.number_sample_per_shard must be positive, got %d", d.NumberSamplePerShard)
	}
	if d.OOMShardCount <= 0 {
		return fmt.Errorf("download.oom_shard_count must be positive, got %d", d.OOMShardCount)
	}
	if len(d.ColumnList) == 0 || !slices.Contains(d.ColumnList, "url") {
		return fmt.Errorf("download.column_list must include %q", "url")
	}
	switch c.Writer.Backend {
	case "parquet", "files":
	default:
		return fmt.Errorf("writer.backend must be parquet or files, got %q", c.Writer.Backend)
	}
	return nil
}

// Timeout returns the per-attempt fetch timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Download.TimeoutSeconds) * time.Second
}

// OOMSamplePerShard is the digit width needed for in-shard sample indices.
func (c Config) OOMSamplePerShard() int {
	return shard.OOMSamplePerShard(c.Download.NumberSamplePerShard)
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
