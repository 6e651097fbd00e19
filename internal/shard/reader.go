package shard

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/parquet-go/parquet-go"

	"github.com/datasetops/shardfetch/internal/storage"
)

// Table holds one shard's records projected onto the configured columns.
// Rows[i][j] is the value of Columns[j] for the record with local index i.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Reader reads columnar shard files through the storage abstraction.
// Shards are parquet files; a .zst suffix marks zstd-compressed payloads.
type Reader struct {
	store       storage.Store
	zstdDecoder *zstd.Decoder
}

// NewReader creates a shard reader over the given store.
func NewReader(store storage.Store) (*Reader, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Reader{store: store, zstdDecoder: dec}, nil
}

// Close releases reader resources.
func (r *Reader) Close() {
	if r.zstdDecoder != nil {
		r.zstdDecoder.Close()
	}
}

// Read loads the shard at path and projects it onto columns, in order.
// All requested columns must exist in the shard's schema.
func (r *Reader) Read(ctx context.Context, path string, columns []string) (*Table, error) {
	rc, err := r.store.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("read shard %s: %w", path, err)
	}

	if strings.HasSuffix(path, ".zst") {
		data, err = r.zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress %s: %w", path, err)
		}
	}

	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse parquet %s: %w", path, err)
	}

	schema := f.Schema()
	colIndex := make(map[int]int, len(columns)) // leaf column index -> projected position
	for j, name := range columns {
		leaf, ok := schema.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("shard %s: missing column %q", path, name)
		}
		colIndex[leaf.ColumnIndex] = j
	}

	table := &Table{Columns: columns}
	buf := make([]parquet.Row, 128)
	for _, rg := range f.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				rec := make([]string, len(columns))
				for _, v := range row {
					if j, ok := colIndex[v.Column()]; ok && !v.IsNull() {
						rec[j] = v.String()
					}
				}
				table.Rows = append(table.Rows, rec)
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("read rows from %s: %w", path, err)
			}
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("close row reader for %s: %w", path, err)
		}
	}

	return table, nil
}
