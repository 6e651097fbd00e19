package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/parquet-go/parquet-go"

	"github.com/datasetops/shardfetch/internal/shard"
	"github.com/datasetops/shardfetch/internal/storage"
)

// metaRow is one sample's metadata in the per-shard parquet table.
// Optional columns encode as null when the value is absent.
type metaRow struct {
	Key          string `parquet:"key,zstd"`
	URL          string `parquet:"url,zstd"`
	Caption      string `parquet:"caption,optional,zstd"`
	Status       string `parquet:"status,zstd"`
	ErrorMessage string `parquet:"error_message,optional,zstd"`
	MD5          string `parquet:"md5,optional,zstd"`
}

// ParquetWriter stores payload bytes as individual objects and buffers one
// metadata row per sample, flushed as <shard>.parquet on Close.
type ParquetWriter struct {
	ctx         context.Context
	store       storage.Store
	folder      string
	saveCaption bool
	contentExt  string
	metaKey     string
	rows        []metaRow
}

// NewParquetWriter creates the parquet-backed writer for one shard.
func NewParquetWriter(ctx context.Context, cfg FactoryConfig, shardID int) (*ParquetWriter, error) {
	name := shard.Name(shardID, cfg.OOMShardCount)
	return &ParquetWriter{
		ctx:         ctx,
		store:       cfg.Store,
		folder:      cfg.OutputFolder,
		saveCaption: cfg.SaveCaption,
		contentExt:  cfg.ContentExt,
		metaKey:     path.Join(cfg.OutputFolder, name+".parquet"),
	}, nil
}

// Write stores content (when present) and buffers the sample's metadata row.
func (w *ParquetWriter) Write(content []byte, key, caption string, meta Metadata) error {
	if content != nil {
		objKey := path.Join(w.folder, key+w.contentExt)
		if err := w.store.Write(w.ctx, objKey, content); err != nil {
			return fmt.Errorf("store payload %s: %w", objKey, err)
		}
	}

	row := metaRow{
		Key:          key,
		URL:          meta["url"],
		Status:       meta["status"],
		ErrorMessage: meta["error_message"],
		MD5:          meta["md5"],
	}
	if w.saveCaption {
		row.Caption = caption
	}
	w.rows = append(w.rows, row)
	return nil
}

// Close writes the buffered metadata table to storage.
func (w *ParquetWriter) Close() error {
	var buf bytes.Buffer
	pw := parquet.NewGenericWriter[metaRow](&buf)
	if len(w.rows) > 0 {
		if _, err := pw.Write(w.rows); err != nil {
			return fmt.Errorf("write metadata rows: %w", err)
		}
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}

	if err := w.store.Write(w.ctx, w.metaKey, buf.Bytes()); err != nil {
		return fmt.Errorf("store metadata %s: %w", w.metaKey, err)
	}
	w.rows = nil
	return nil
}
