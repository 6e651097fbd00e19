// Package stats persists per-shard download statistics.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/datasetops/shardfetch/internal/shard"
	"github.com/datasetops/shardfetch/internal/storage"
)

// ShardStats summarizes one completed shard pass. Immutable after creation.
type ShardStats struct {
	ShardID          int
	Total            int
	Successes        int
	FailedToDownload int
	StartTime        time.Time
	EndTime          time.Time
	StatusCounts     map[string]int
	OOMShardCount    int
}

// Reporter persists aggregate shard statistics.
type Reporter interface {
	WriteStats(ctx context.Context, st ShardStats) error
	Close() error
}

// Config configures the stats backend.
type Config struct {
	Backend string `yaml:"backend"` // "json" | "postgres" | "sqlite"

	// JSON
	Folder string `yaml:"folder"` // storage prefix for <shard>_stats.json objects

	// Postgres
	PostgresDSN string `yaml:"postgres_dsn"`

	// SQLite
	SQLitePath string `yaml:"sqlite_path"`
}

// NewReporter creates a stats backend based on configuration.
func NewReporter(ctx context.Context, cfg Config, store storage.Store) (Reporter, error) {
	switch cfg.Backend {
	case "", "json":
		return NewJSONReporter(store, cfg.Folder), nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("PostgresDSN required for postgres backend")
		}
		return NewPostgresReporter(ctx, cfg.PostgresDSN)
	case "sqlite":
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("SQLitePath required for sqlite backend")
		}
		return NewSQLiteReporter(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown stats backend: %s", cfg.Backend)
	}
}

// statsRecord is the JSON shape of a persisted shard stats object.
type statsRecord struct {
	Count            int            `json:"count"`
	Successes        int            `json:"successes"`
	FailedToDownload int            `json:"failed_to_download"`
	DurationSeconds  float64        `json:"duration"`
	StartTime        float64        `json:"start_time"`
	EndTime          float64        `json:"end_time"`
	StatusCounts     map[string]int `json:"status_dict"`
}

// JSONReporter writes one <shard>_stats.json object per shard through the
// storage abstraction.
type JSONReporter struct {
	store  storage.Store
	folder string
}

// NewJSONReporter creates a JSON stats reporter rooted at folder.
func NewJSONReporter(store storage.Store, folder string) *JSONReporter {
	return &JSONReporter{store: store, folder: folder}
}

// WriteStats persists the shard's stats object.
func (r *JSONReporter) WriteStats(ctx context.Context, st ShardStats) error {
	rec := statsRecord{
		Count:            st.Total,
		Successes:        st.Successes,
		FailedToDownload: st.FailedToDownload,
		DurationSeconds:  st.EndTime.Sub(st.StartTime).Seconds(),
		StartTime:        float64(st.StartTime.UnixNano()) / 1e9,
		EndTime:          float64(st.EndTime.UnixNano()) / 1e9,
		StatusCounts:     st.StatusCounts,
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}

	key := path.Join(r.folder, shard.Name(st.ShardID, st.OOMShardCount)+"_stats.json")
	if err := r.store.Write(ctx, key, data); err != nil {
		return fmt.Errorf("store stats %s: %w", key, err)
	}
	return nil
}

// Close is a no-op for the JSON backend.
func (r *JSONReporter) Close() error {
	return nil
}
