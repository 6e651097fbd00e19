package stats

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// PostgresReporter records shard stats rows in a PostgreSQL catalog.
type PostgresReporter struct {
	pool *pgxpool.Pool
}

// NewPostgresReporter connects to the catalog and ensures the schema exists.
func NewPostgresReporter(ctx context.Context, dsn string) (*PostgresReporter, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	// Configure connection pool
	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &PostgresReporter{pool: pool}, nil
}

// WriteStats inserts one shard_stats row.
func (r *PostgresReporter) WriteStats(ctx context.Context, st ShardStats) error {
	counts, err := json.Marshal(st.StatusCounts)
	if err != nil {
		return fmt.Errorf("marshal status counts: %w", err)
	}

	query := `
		INSERT INTO shard_stats (
			shard_id, total_count, successes, failed_to_download,
			start_time, end_time, status_counts
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if _, err := r.pool.Exec(ctx, query,
		st.ShardID,
		st.Total,
		st.Successes,
		st.FailedToDownload,
		st.StartTime,
		st.EndTime,
		counts,
	); err != nil {
		return fmt.Errorf("insert shard stats: %w", err)
	}

	return nil
}

// Close releases the connection pool.
func (r *PostgresReporter) Close() error {
	r.pool.Close()
	return nil
}
