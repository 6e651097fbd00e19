package storage

import (
	"context"
	"fmt"
	"io"
)

// Store abstracts the filesystem holding shard inputs and sample outputs.
// Keys are slash-separated paths; the locator scheme behind them is opaque
// to callers (local directory, in-memory bucket, object store).
type Store interface {
	// Open returns a reader for the object at key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Write stores data at key, replacing any existing object.
	Write(ctx context.Context, key string, data []byte) error

	// Remove deletes the object at key.
	Remove(ctx context.Context, key string) error

	// Exists checks whether an object is present at key.
	Exists(ctx context.Context, key string) (bool, error)

	// URI returns the canonical URI for the given key.
	// For local: file:///path, GCS: gs://bucket/path, S3: s3://bucket/path
	URI(key string) string

	// Close releases any resources.
	Close() error
}

// Config configures the storage backend.
type Config struct {
	Backend string `yaml:"backend"` // "local" | "mem" | "gcs" | "s3"

	// Local filesystem
	LocalDir string `yaml:"local_dir"`

	// GCS
	GCSBucket string `yaml:"gcs_bucket"`

	// S3 (also works for B2, R2, MinIO)
	S3Bucket   string `yaml:"s3_bucket"`
	S3Endpoint string `yaml:"s3_endpoint"` // custom endpoint for B2/MinIO/R2
	S3Region   string `yaml:"s3_region"`
}

// NewStore creates a storage backend based on configuration.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "local":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		return NewLocalStore(cfg.LocalDir)
	case "mem":
		return NewBlobStore(ctx, "mem://")
	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("GCSBucket required for gcs backend")
		}
		return NewBlobStore(ctx, fmt.Sprintf("gs://%s", cfg.GCSBucket))
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3Bucket required for s3 backend")
		}
		url := fmt.Sprintf("s3://%s?region=%s", cfg.S3Bucket, cfg.S3Region)
		if cfg.S3Endpoint != "" {
			url += fmt.Sprintf("&endpoint=%s&s3ForcePathStyle=true", cfg.S3Endpoint)
		}
		return NewBlobStore(ctx, url)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
