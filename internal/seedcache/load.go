package seedcache

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentLoads bounds the number of seed files indexed in parallel.
// Each file gets its own bulk indexer; more parallelism than this just
// queues on the single-node server.
const maxConcurrentLoads = 4

// bulkFlushBytes is the flush threshold for the bulk indexer. 1 MiB keeps
// request sizes well under the server's default 100 MiB http.max_content_length
// while still batching enough documents to amortize request overhead.
const bulkFlushBytes = 1 << 20

// maxDocBytes is the maximum length of a single seed document line.
const maxDocBytes = 8 << 20

// loadSeedData indexes all seed files into the target cluster and refreshes
// the affected indices so the flushed data directory contains searchable
// segments. Files are loaded concurrently, each into the index named after
// the file.
func loadSeedData(ctx context.Context, logger *slog.Logger, es *elasticsearch.Client, files []hashedFile) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLoads)

	for _, f := range files {
		g.Go(func() error {
			return loadFile(gCtx, logger, es, f)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	res, err := es.Indices.Refresh(es.Indices.Refresh.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("refresh indices: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return fmt.Errorf("refresh indices: %s", res.String())
	}
	return nil
}

// loadFile bulk-indexes one NDJSON seed file. Each non-blank line must be a
// JSON object; lines are validated before submission so a malformed seed
// file fails with its line number rather than an opaque bulk rejection.
func loadFile(ctx context.Context, logger *slog.Logger, es *elasticsearch.Client, f hashedFile) error {
	index := indexNameForFile(f.path)

	// firstErr records the first per-document failure reported by the
	// indexer's callbacks, which run on the indexer's worker goroutines.
	var (
		mu       sync.Mutex
		firstErr error
	)
	recordErr := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:     es,
		Index:      index,
		NumWorkers: 2,
		FlushBytes: bulkFlushBytes,
		OnError: func(_ context.Context, err error) {
			recordErr(fmt.Errorf("bulk indexer: %w", err))
		},
	})
	if err != nil {
		return fmt.Errorf("create bulk indexer for %s: %w", index, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(f.content))
	scanner.Buffer(make([]byte, 0, 64*1024), maxDocBytes)

	lineNo := 0
	docs := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			_ = bi.Close(ctx)
			return fmt.Errorf("seed file %s line %d: invalid JSON", f.path, lineNo)
		}

		// scanner.Bytes is reused on the next Scan; the item body must own
		// its data.
		doc := bytes.Clone(line)
		err := bi.Add(ctx, esutil.BulkIndexerItem{
			Action: "index",
			Body:   bytes.NewReader(doc),
			OnFailure: func(_ context.Context, _ esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				if err == nil {
					err = fmt.Errorf("%s: %s", res.Error.Type, res.Error.Reason)
				}
				recordErr(fmt.Errorf("index document into %s: %w", index, err))
			},
		})
		if err != nil {
			_ = bi.Close(ctx)
			return fmt.Errorf("enqueue document for %s: %w", index, err)
		}
		docs++
	}
	if err := scanner.Err(); err != nil {
		_ = bi.Close(ctx)
		return fmt.Errorf("scan seed file %s: %w", f.path, err)
	}

	if err := bi.Close(ctx); err != nil {
		return fmt.Errorf("flush bulk indexer for %s: %w", index, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if firstErr != nil {
		return firstErr
	}
	if stats := bi.Stats(); stats.NumFailed > 0 {
		return fmt.Errorf("index %s: %d of %d documents failed", index, stats.NumFailed, docs)
	}

	logger.Debug("seed file loaded", "index", index, "documents", docs)
	return nil
}
