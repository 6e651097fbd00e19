package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/datasetops/shardfetch/internal/storage"
)

// FilesWriter stores each sample as individual objects: the payload, a JSON
// metadata sidecar, and optionally the caption as a text file.
type FilesWriter struct {
	ctx         context.Context
	store       storage.Store
	folder      string
	saveCaption bool
	contentExt  string
}

// NewFilesWriter creates the file-per-sample writer for one shard.
func NewFilesWriter(ctx context.Context, cfg FactoryConfig, shardID int) (*FilesWriter, error) {
	return &FilesWriter{
		ctx:         ctx,
		store:       cfg.Store,
		folder:      cfg.OutputFolder,
		saveCaption: cfg.SaveCaption,
		contentExt:  cfg.ContentExt,
	}, nil
}

// Write stores the sample's payload, metadata, and caption objects.
func (w *FilesWriter) Write(content []byte, key, caption string, meta Metadata) error {
	if content != nil {
		objKey := path.Join(w.folder, key+w.contentExt)
		if err := w.store.Write(w.ctx, objKey, content); err != nil {
			return fmt.Errorf("store payload %s: %w", objKey, err)
		}
	}

	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata for %s: %w", key, err)
	}
	metaKey := path.Join(w.folder, key+".json")
	if err := w.store.Write(w.ctx, metaKey, metaBytes); err != nil {
		return fmt.Errorf("store metadata %s: %w", metaKey, err)
	}

	if w.saveCaption && caption != "" {
		capKey := path.Join(w.folder, key+".txt")
		if err := w.store.Write(w.ctx, capKey, []byte(caption)); err != nil {
			return fmt.Errorf("store caption %s: %w", capKey, err)
		}
	}

	return nil
}

// Close is a no-op; every sample is flushed on Write.
func (w *FilesWriter) Close() error {
	return nil
}
