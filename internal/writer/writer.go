// Package writer persists downloaded samples and their metadata, one writer
// instance per shard.
package writer

import (
	"context"
	"fmt"

	"github.com/datasetops/shardfetch/internal/storage"
)

// Sample status values recorded in metadata.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed_to_download"
)

// Metadata maps column names to values for one sample: the shard's original
// columns plus key, status, error_message and optionally md5.
type Metadata map[string]string

// Writer receives exactly one Write per sample of its shard, in completion
// order, from a single goroutine. content is nil for failed samples.
type Writer interface {
	Write(content []byte, key, caption string, meta Metadata) error
	Close() error
}

// Factory constructs the writer for one shard. columns is the shard's
// projected column list, in order.
type Factory func(ctx context.Context, shardID int, columns []string) (Writer, error)

// FactoryConfig configures the built-in writer backends.
type FactoryConfig struct {
	Backend       string // "parquet" | "files"
	Store         storage.Store
	OutputFolder  string
	SaveCaption   bool
	OOMShardCount int
	ContentExt    string // extension for payload objects, e.g. ".pdf"
}

// NewFactory returns a Factory for the configured backend.
func NewFactory(cfg FactoryConfig) (Factory, error) {
	if cfg.ContentExt == "" {
		cfg.ContentExt = ".pdf"
	}

	switch cfg.Backend {
	case "parquet":
		return func(ctx context.Context, shardID int, columns []string) (Writer, error) {
			return NewParquetWriter(ctx, cfg, shardID)
		}, nil
	case "files":
		return func(ctx context.Context, shardID int, columns []string) (Writer, error) {
			return NewFilesWriter(ctx, cfg, shardID)
		}, nil
	default:
		return nil, fmt.Errorf("unknown writer backend: %s", cfg.Backend)
	}
}
