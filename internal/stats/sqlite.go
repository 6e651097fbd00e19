package stats

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS shard_stats (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	shard_id            INTEGER NOT NULL,
	total_count         INTEGER NOT NULL,
	successes           INTEGER NOT NULL,
	failed_to_download  INTEGER NOT NULL,
	start_time          TEXT NOT NULL,
	end_time            TEXT NOT NULL,
	status_counts       TEXT NOT NULL
);
`

// SQLiteReporter records shard stats rows in a local SQLite catalog.
type SQLiteReporter struct {
	db *sql.DB
}

// NewSQLiteReporter opens (creating if needed) the catalog at path.
func NewSQLiteReporter(path string) (*SQLiteReporter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create catalog directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// WAL mode and busy timeout for concurrent shard workers on one host
	if _, err := db.Exec(`
		PRAGMA busy_timeout = 5000;
		PRAGMA journal_mode = WAL;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteReporter{db: db}, nil
}

// WriteStats inserts one shard_stats row.
func (r *SQLiteReporter) WriteStats(ctx context.Context, st ShardStats) error {
	counts, err := json.Marshal(st.StatusCounts)
	if err != nil {
		return fmt.Errorf("marshal status counts: %w", err)
	}

	query := `
		INSERT INTO shard_stats (
			shard_id, total_count, successes, failed_to_download,
			start_time, end_time, status_counts
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	if _, err := r.db.ExecContext(ctx, query,
		st.ShardID,
		st.Total,
		st.Successes,
		st.FailedToDownload,
		st.StartTime.UTC().Format("2006-01-02T15:04:05.999999999Z"),
		st.EndTime.UTC().Format("2006-01-02T15:04:05.999999999Z"),
		string(counts),
	); err != nil {
		return fmt.Errorf("insert shard stats: %w", err)
	}

	return nil
}

// Close releases the database handle.
func (r *SQLiteReporter) Close() error {
	return r.db.Close()
}
