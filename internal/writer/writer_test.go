package writer

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/datasetops/shardfetch/internal/shard"
	"github.com/datasetops/shardfetch/internal/storage"
)

func memStore(t *testing.T) storage.Store {
	t.Helper()

	store, err := storage.NewBlobStore(context.Background(), "mem://")
	if err != nil {
		t.Fatalf("open mem store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func readObject(t *testing.T, store storage.Store, key string) []byte {
	t.Helper()

	rc, err := store.Open(context.Background(), key)
	if err != nil {
		t.Fatalf("open %s: %v", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	return data
}

func TestFilesWriter(t *testing.T) {
	ctx := context.Background()
	store := memStore(t)

	cfg := FactoryConfig{
		Backend:       "files",
		Store:         store,
		OutputFolder:  "out",
		SaveCaption:   true,
		OOMShardCount: 5,
		ContentExt:    ".pdf",
	}
	factory, err := NewFactory(cfg)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}

	w, err := factory(ctx, 3, []string{"url", "caption"})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}

	meta := Metadata{
		"url":     "http://a.example/1.pdf",
		"caption": "a report",
		"key":     "000030000",
		"status":  StatusSuccess,
	}
	if err := w.Write([]byte("pdfbytes"), "000030000", "a report", meta); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Failed sample: no payload object, metadata only
	failMeta := Metadata{
		"url":           "http://a.example/2.pdf",
		"key":           "000030001",
		"status":        StatusFailed,
		"error_message": "unexpected status: 404 Not Found",
	}
	if err := w.Write(nil, "000030001", "", failMeta); err != nil {
		t.Fatalf("Write failed sample: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := readObject(t, store, "out/000030000.pdf"); string(got) != "pdfbytes" {
		t.Errorf("payload = %q", got)
	}
	if got := readObject(t, store, "out/000030000.txt"); string(got) != "a report" {
		t.Errorf("caption = %q", got)
	}

	var decoded map[string]string
	if err := json.Unmarshal(readObject(t, store, "out/000030001.json"), &decoded); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}
	if decoded["status"] != StatusFailed {
		t.Errorf("status = %q", decoded["status"])
	}

	if exists, _ := store.Exists(ctx, "out/000030001.pdf"); exists {
		t.Error("failed sample should not have a payload object")
	}
}

func TestParquetWriter(t *testing.T) {
	ctx := context.Background()
	store := memStore(t)

	cfg := FactoryConfig{
		Backend:       "parquet",
		Store:         store,
		OutputFolder:  "out",
		SaveCaption:   true,
		OOMShardCount: 5,
		ContentExt:    ".pdf",
	}
	factory, err := NewFactory(cfg)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}

	w, err := factory(ctx, 7, []string{"url", "caption"})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}

	ok := Metadata{"url": "http://a/1", "key": "000070000", "status": StatusSuccess, "md5": "abc123"}
	if err := w.Write([]byte("content"), "000070000", "cap one", ok); err != nil {
		t.Fatalf("Write: %v", err)
	}
	bad := Metadata{"url": "http://a/2", "key": "000070001", "status": StatusFailed, "error_message": "timeout"}
	if err := w.Write(nil, "000070001", "", bad); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Payload object present only for the success
	if got := readObject(t, store, "out/000070000.pdf"); string(got) != "content" {
		t.Errorf("payload = %q", got)
	}
	if exists, _ := store.Exists(ctx, "out/000070001.pdf"); exists {
		t.Error("failed sample should not have a payload object")
	}

	// Metadata table parses back through the shard reader
	r, err := shard.NewReader(store)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	table, err := r.Read(ctx, "out/00007.parquet", []string{"key", "status", "error_message", "md5"})
	if err != nil {
		t.Fatalf("read metadata parquet: %v", err)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(table.Rows))
	}
	if table.Rows[0][0] != "000070000" || table.Rows[0][1] != StatusSuccess || table.Rows[0][3] != "abc123" {
		t.Errorf("success row = %v", table.Rows[0])
	}
	if table.Rows[1][0] != "000070001" || table.Rows[1][1] != StatusFailed || table.Rows[1][2] != "timeout" {
		t.Errorf("failure row = %v", table.Rows[1])
	}
}

func TestNewFactoryUnknownBackend(t *testing.T) {
	if _, err := NewFactory(FactoryConfig{Backend: "webdataset"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
