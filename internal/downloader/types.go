package downloader

import "github.com/datasetops/shardfetch/internal/stats"

// Result is the outcome of processing one shard. Either OK is true and Stats
// carries the shard's counts, or Err describes why the shard failed. A failed
// shard never terminates the run; callers inspect Result instead.
type Result struct {
	ShardID int
	OK      bool
	Stats   stats.ShardStats
	Err     error
}
