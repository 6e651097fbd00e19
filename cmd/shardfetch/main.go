package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/datasetops/shardfetch/internal/config"
	"github.com/datasetops/shardfetch/internal/downloader"
	"github.com/datasetops/shardfetch/internal/fetch"
	"github.com/datasetops/shardfetch/internal/logging"
	"github.com/datasetops/shardfetch/internal/metrics"
	"github.com/datasetops/shardfetch/internal/shard"
	"github.com/datasetops/shardfetch/internal/stats"
	"github.com/datasetops/shardfetch/internal/storage"
	"github.com/datasetops/shardfetch/internal/writer"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional, env vars override)")
	shardList := flag.String("shards", "", "path to shard list file: one \"<id> <path>\" per line")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging)
	log := logging.Component("main")

	var shards []shard.Descriptor
	switch {
	case *shardList != "":
		shards, err = parseShardList(*shardList)
	case flag.NArg() > 0:
		shards, err = parseShardArgs(flag.Args())
	default:
		log.Error("no shards given: use -shards <file> or <id>:<path> arguments")
		os.Exit(1)
	}
	if err != nil {
		log.Error("parse shard list", "error", err)
		os.Exit(1)
	}
	if len(shards) == 0 {
		log.Info("no shards to process")
		return
	}

	metrics.Init("shardfetch")
	if cfg.Metrics.Enabled {
		go func() {
			log.Info("metrics server listening", "address", cfg.Metrics.Address)
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				log.Error("metrics server exited", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown handler
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		log.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	store, err := storage.NewStore(ctx, cfg.Storage)
	if err != nil {
		log.Error("create storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	reader, err := shard.NewReader(store)
	if err != nil {
		log.Error("create shard reader", "error", err)
		os.Exit(1)
	}
	defer reader.Close()

	fetcher := fetch.NewClient(fetch.Options{
		Timeout: cfg.Timeout(),
		Retries: cfg.Download.Retries,
	})

	newWriter, err := writer.NewFactory(writer.FactoryConfig{
		Backend:       cfg.Writer.Backend,
		Store:         store,
		OutputFolder:  cfg.Download.OutputFolder,
		SaveCaption:   cfg.Download.SaveCaption,
		OOMShardCount: cfg.Download.OOMShardCount,
		ContentExt:    cfg.Writer.ContentExt,
	})
	if err != nil {
		log.Error("create writer factory", "error", err)
		os.Exit(1)
	}

	reporter, err := stats.NewReporter(ctx, cfg.Stats, store)
	if err != nil {
		log.Error("create stats reporter", "error", err)
		os.Exit(1)
	}
	defer reporter.Close()

	d := downloader.New(cfg.Download, store, reader, fetcher, newWriter, reporter)

	log.Info("starting run",
		"shards", len(shards),
		"thread_count", cfg.Download.ThreadCount,
		"writer_backend", cfg.Writer.Backend,
	)

	var processed, failed int
	for _, desc := range shards {
		if ctx.Err() != nil {
			log.Warn("run interrupted", "remaining", len(shards)-processed)
			break
		}
		processed++
		res := d.Process(ctx, desc)
		if !res.OK {
			failed++
		}
	}

	if failed > 0 {
		log.Error("run finished with failures", "failed_shards", failed, "total_shards", len(shards))
		os.Exit(1)
	}
	log.Info("run finished", "shards", len(shards))
}

// parseShardArgs parses "<id>:<path>" command-line arguments.
func parseShardArgs(args []string) ([]shard.Descriptor, error) {
	shards := make([]shard.Descriptor, 0, len(args))
	for _, arg := range args {
		id, path, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, fmt.Errorf("want <id>:<path>, got %q", arg)
		}
		n, err := strconv.Atoi(id)
		if err != nil {
			return nil, fmt.Errorf("shard id %q: %w", id, err)
		}
		shards = append(shards, shard.Descriptor{ID: n, Path: path})
	}
	return shards, nil
}

// parseShardList reads shard descriptors from path. Each non-empty,
// non-comment line is "<shard_id> <shard_path>".
func parseShardList(path string) ([]shard.Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var shards []shard.Descriptor
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: want \"<id> <path>\", got %q", lineNo, line)
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: shard id %q: %w", lineNo, fields[0], err)
		}
		shards = append(shards, shard.Descriptor{ID: id, Path: fields[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return shards, nil
}
