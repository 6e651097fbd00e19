package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewLocalStore(tmpDir)
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	key := "shards/00042.parquet"
	data := []byte("columnar shard payload")

	if err := store.Write(ctx, key, data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// No temp file should be left behind
	if _, err := os.Stat(filepath.Join(tmpDir, key) + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should be removed after Write")
	}

	exists, err := store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Fatal("object should exist after Write")
	}

	rc, err := store.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	got, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("data mismatch: got %q, want %q", got, data)
	}

	if !strings.HasPrefix(store.URI(key), "file://") {
		t.Errorf("URI should use file scheme, got %s", store.URI(key))
	}

	if err := store.Remove(ctx, key); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	exists, err = store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists after remove failed: %v", err)
	}
	if exists {
		t.Error("object should be gone after Remove")
	}
}

func TestLocalStoreOpenMissing(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	defer store.Close()

	if _, err := store.Open(context.Background(), "no/such/key"); err == nil {
		t.Fatal("expected error opening missing key")
	}
}

func TestNewStoreUnknownBackend(t *testing.T) {
	if _, err := NewStore(context.Background(), Config{Backend: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
