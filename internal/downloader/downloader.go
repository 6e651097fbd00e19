// Package downloader drives the per-shard fetch pipeline: bounded-concurrency
// HTTP retrieval of every record in a shard, metadata assembly, writer
// delegation, and stats finalization.
package downloader

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/datasetops/shardfetch/internal/config"
	"github.com/datasetops/shardfetch/internal/counter"
	"github.com/datasetops/shardfetch/internal/fetch"
	"github.com/datasetops/shardfetch/internal/logging"
	"github.com/datasetops/shardfetch/internal/metrics"
	"github.com/datasetops/shardfetch/internal/shard"
	"github.com/datasetops/shardfetch/internal/stats"
	"github.com/datasetops/shardfetch/internal/storage"
	"github.com/datasetops/shardfetch/internal/writer"
)

// Downloader processes shards one at a time. All collaborators are injected;
// no state is shared between shards.
type Downloader struct {
	cfg       config.DownloadConfig
	store     storage.Store
	reader    *shard.Reader
	fetcher   *fetch.Client
	newWriter writer.Factory
	reporter  stats.Reporter
}

// New assembles a downloader from its collaborators.
func New(cfg config.DownloadConfig, store storage.Store, reader *shard.Reader,
	fetcher *fetch.Client, newWriter writer.Factory, reporter stats.Reporter) *Downloader {
	return &Downloader{
		cfg:       cfg,
		store:     store,
		reader:    reader,
		fetcher:   fetcher,
		newWriter: newWriter,
		reporter:  reporter,
	}
}

// workItem is one (local index, url) pair queued for fetching.
type workItem struct {
	index int
	url   string
}

// fetchResult is one worker's outcome for a record. Exactly one of content
// and err is set.
type fetchResult struct {
	index   int
	content []byte
	err     error
}

// Process runs the full download pass for one shard. Panics and errors are
// contained here: the returned Result reports failure, the process survives.
func (d *Downloader) Process(ctx context.Context, desc shard.Descriptor) (res Result) {
	log := logging.ShardLogger(desc.ID, desc.Path).With("correlation_id", uuid.NewString())

	defer func() {
		if r := recover(); r != nil {
			log.Error("shard processing panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			if m := metrics.Get(); m != nil {
				m.IncShardsFailed()
			}
			res = Result{ShardID: desc.ID, Err: fmt.Errorf("shard %d panicked: %v", desc.ID, r)}
		}
	}()

	st, err := d.downloadShard(ctx, desc, log)
	if err != nil {
		log.Error("shard processing failed", "error", err)
		if m := metrics.Get(); m != nil {
			m.IncShardsFailed()
		}
		return Result{ShardID: desc.ID, Err: err}
	}

	if m := metrics.Get(); m != nil {
		m.IncShardsProcessed()
		m.ObserveShardDuration(st.EndTime.Sub(st.StartTime).Seconds())
	}
	log.Info("shard complete",
		"total", st.Total,
		"successes", st.Successes,
		"failed_to_download", st.FailedToDownload,
		"duration", st.EndTime.Sub(st.StartTime).String(),
	)
	return Result{ShardID: desc.ID, OK: true, Stats: st}
}

func (d *Downloader) downloadShard(ctx context.Context, desc shard.Descriptor, log *slog.Logger) (stats.ShardStats, error) {
	start := time.Now()

	table, err := d.reader.Read(ctx, desc.Path, d.cfg.ColumnList)
	if err != nil {
		return stats.ShardStats{}, fmt.Errorf("read shard %s: %w", desc.Path, err)
	}
	log.Info("shard loaded", "records", len(table.Rows))

	urlCol := slices.Index(table.Columns, "url")
	if urlCol < 0 {
		return stats.ShardStats{}, fmt.Errorf("shard %s: projected columns lack url", desc.Path)
	}
	captionCol := slices.Index(table.Columns, "caption")

	w, err := d.newWriter(ctx, desc.ID, table.Columns)
	if err != nil {
		return stats.ShardStats{}, fmt.Errorf("construct writer for shard %d: %w", desc.ID, err)
	}

	oomSample := shard.OOMSamplePerShard(d.cfg.NumberSamplePerShard)

	// Permit pool sized at twice the worker count. A permit is held from
	// before a record enters the work queue until its writer call returns,
	// bounding buffered payload memory independent of writer latency.
	permits := make(chan struct{}, 2*d.cfg.ThreadCount)
	work := make(chan workItem)
	results := make(chan fetchResult)

	go func() {
		defer close(work)
		for i, row := range table.Rows {
			select {
			case permits <- struct{}{}:
			case <-ctx.Done():
				return
			}
			if m := metrics.Get(); m != nil {
				m.IncInFlightSamples()
			}
			select {
			case work <- workItem{index: i, url: row[urlCol]}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < d.cfg.ThreadCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				fetchStart := time.Now()
				content, err := d.fetcher.FetchWithRetry(ctx, item.url)
				if m := metrics.Get(); m != nil {
					m.ObserveFetchDuration(time.Since(fetchStart).Seconds())
				}
				select {
				case results <- fetchResult{index: item.index, content: content, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	counts := counter.NewCapped(d.cfg.StatusCap)
	var successes, failed int

	// Single consumer: the writer sees exactly one Write per record, in
	// completion order, never concurrently.
	for res := range results {
		d.processResult(desc, table, res, w, counts, oomSample, captionCol,
			&successes, &failed, permits, log)
	}

	// A cancelled context stops the generator mid-shard, so the counts above
	// cover only a prefix of the records. Persisting stats or removing the
	// source here would destroy the unattempted remainder; report the shard
	// as failed instead so it can be reprocessed.
	if err := ctx.Err(); err != nil {
		w.Close()
		return stats.ShardStats{}, fmt.Errorf("shard %d interrupted after %d of %d records: %w",
			desc.ID, successes+failed, len(table.Rows), err)
	}

	if err := w.Close(); err != nil {
		return stats.ShardStats{}, fmt.Errorf("close writer for shard %d: %w", desc.ID, err)
	}

	st := stats.ShardStats{
		ShardID:          desc.ID,
		Total:            len(table.Rows),
		Successes:        successes,
		FailedToDownload: failed,
		StartTime:        start,
		EndTime:          time.Now(),
		StatusCounts:     counts.Snapshot(),
		OOMShardCount:    d.cfg.OOMShardCount,
	}
	if err := d.reporter.WriteStats(ctx, st); err != nil {
		return stats.ShardStats{}, fmt.Errorf("write stats for shard %d: %w", desc.ID, err)
	}

	if err := d.store.Remove(ctx, desc.Path); err != nil {
		return stats.ShardStats{}, fmt.Errorf("remove shard %s: %w", desc.Path, err)
	}

	return st, nil
}

// processResult handles one completed fetch: key assignment, metadata
// assembly, counting, and the writer call. The record's permit is released
// on every path, including panics, so one bad record never wedges the gate.
func (d *Downloader) processResult(desc shard.Descriptor, table *shard.Table,
	res fetchResult, w writer.Writer, counts *counter.Capped,
	oomSample, captionCol int, successes, failed *int,
	permits chan struct{}, log *slog.Logger) {

	defer func() {
		<-permits
		if m := metrics.Get(); m != nil {
			m.DecInFlightSamples()
		}
		if r := recover(); r != nil {
			log.Error("record processing panicked",
				"local_index", res.index,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	key, err := shard.Key(res.index, desc.ID, oomSample, d.cfg.OOMShardCount)
	if err != nil {
		// Out-of-range key assignment would silently collide; abandon the
		// record instead.
		log.Error("key assignment failed", "local_index", res.index, "error", err)
		return
	}

	row := table.Rows[res.index]
	meta := make(writer.Metadata, len(table.Columns)+4)
	for j, col := range table.Columns {
		meta[col] = row[j]
	}
	meta["key"] = key

	var caption string
	if captionCol >= 0 {
		caption = row[captionCol]
	}

	if res.err != nil {
		*failed++
		counts.Increment(res.err.Error())
		meta["status"] = writer.StatusFailed
		meta["error_message"] = res.err.Error()
		if m := metrics.Get(); m != nil {
			m.IncSamplesProcessed(writer.StatusFailed)
		}
		if err := w.Write(nil, key, caption, meta); err != nil {
			log.Error("writer rejected failed record", "key", key, "error", err)
		}
		return
	}

	*successes++
	counts.Increment(writer.StatusSuccess)
	meta["status"] = writer.StatusSuccess
	if d.cfg.ComputeMD5 {
		sum := md5.Sum(res.content)
		meta["md5"] = hex.EncodeToString(sum[:])
	}
	if m := metrics.Get(); m != nil {
		m.IncSamplesProcessed(writer.StatusSuccess)
	}
	if err := w.Write(res.content, key, caption, meta); err != nil {
		log.Error("writer rejected record", "key", key, "error", err)
	}
}
