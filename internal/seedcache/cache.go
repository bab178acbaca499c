package seedcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"

	"github.com/giantswarm/esenv/internal/esnode"
	"github.com/giantswarm/esenv/internal/fileutil"
	"github.com/giantswarm/esenv/internal/netutil"
	"github.com/giantswarm/esenv/internal/process"
)

// ledgerFileName is the name of the SQLite ledger inside the cache directory.
const ledgerFileName = "ledger.db"

// Config holds configuration for seed cache initialization.
type Config struct {
	SeedDir      string                // Directory containing NDJSON seed files
	CacheDir     string                // Directory to store cached data directories
	Binary       string                // Path to the elasticsearch launch script
	HomeDir      string                // ES home of the installation
	Timeout      time.Duration         // Overall timeout for cache creation
	StopTimeout  time.Duration         // Timeout for stopping the temporary node (zero uses 10s default)
	PortRegistry *netutil.PortRegistry // Shared port registry for cross-instance coordination
	Logger       *slog.Logger          // Logger for operational messages (nil uses slog.Default)
}

// logger returns the configured logger or falls back to the default.
func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// stopTimeout returns the configured stop timeout or the default.
func (c Config) stopTimeout() time.Duration {
	if c.StopTimeout > 0 {
		return c.StopTimeout
	}
	return process.DefaultStopTimeout
}

// validate checks that all required Config fields are set and returns an error
// describing the first missing or invalid field.
func (c Config) validate() error {
	if c.SeedDir == "" {
		return errors.New("seed dir must not be empty")
	}
	if c.CacheDir == "" {
		return errors.New("cache dir must not be empty")
	}
	if c.Binary == "" {
		return errors.New("binary path must not be empty")
	}
	if c.HomeDir == "" {
		return errors.New("home dir must not be empty")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.PortRegistry == nil {
		return errors.New("port registry must not be nil")
	}
	return nil
}

// Result contains the outcome of cache initialization.
type Result struct {
	CachePath string // Path to the cached data directory
	Hash      string // Hash of the seed directory contents
	Created   bool   // true if cache was created, false if existing cache was used
}

// EnsureCache checks for an existing cache or creates one.
// If a cached data directory with matching content hash exists, it returns
// immediately. Otherwise, it creates a new cache by spinning up a temporary
// Elasticsearch node, bulk-loading the seed files, and copying the resulting
// data directory.
func EnsureCache(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Compute hash of seed directory contents and collect file contents.
	// The files (with their contents) are threaded through to loadSeedData
	// to avoid both a redundant directory walk and redundant disk reads.
	hash, files, err := computeDirHash(cfg.SeedDir)
	if err != nil {
		return nil, fmt.Errorf("compute dir hash: %w", err)
	}

	if err := fileutil.EnsureDir(cfg.CacheDir); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	cachePath := filepath.Join(cfg.CacheDir, "seed-"+hash)
	logger := cfg.logger()

	ledger, err := OpenLedger(filepath.Join(cfg.CacheDir, ledgerFileName))
	if err != nil {
		return nil, err
	}
	defer func() { _ = ledger.Close() }()

	// Check if cache already exists
	if _, err := os.Stat(cachePath); err == nil {
		logger.Info("using existing seed cache", "cache_path", cachePath, "hash", hash)
		if err := ledger.Touch(ctx, hash); err != nil {
			logger.Debug("touch ledger entry", "err", err)
		}
		return &Result{CachePath: cachePath, Hash: hash, Created: false}, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat cache dir %s: %w", cachePath, err)
	}

	// Acquire file lock to prevent concurrent cache creation
	lockPath := cachePath + ".lock"
	logger.Debug("acquiring cache lock", "lock_path", lockPath)
	lock, err := acquireFileLock(ctx, lockPath)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	defer releaseFileLock(logger, lock)

	// Re-check cache (another process might have created it while we waited for lock)
	if _, err := os.Stat(cachePath); err == nil {
		logger.Info("using existing seed cache (created while waiting)", "cache_path", cachePath, "hash", hash)
		if err := ledger.Touch(ctx, hash); err != nil {
			logger.Debug("touch ledger entry", "err", err)
		}
		return &Result{CachePath: cachePath, Hash: hash, Created: false}, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat cache dir %s: %w", cachePath, err)
	}

	// Create cache
	logger.Info("creating seed cache", "seed_dir", cfg.SeedDir, "hash", hash)
	if err := createCache(ctx, cfg, cachePath, files); err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	if err := ledger.Record(ctx, hash, cachePath); err != nil {
		logger.Warn("record cache entry", "err", err)
	}

	return &Result{CachePath: cachePath, Hash: hash, Created: true}, nil
}

// createCache spins up a temporary node, loads the seed files, and copies the
// data directory. It creates a temp directory for the throwaway node,
// delegates to populateCache for the core work, and handles cleanup of the
// temp directory unconditionally.
// The files slice contains pre-read seed file contents from computeDirHash.
func createCache(ctx context.Context, cfg Config, cachePath string, files []hashedFile) error {
	logger := cfg.logger()
	startTime := time.Now()

	// Create temp directory for this cache build
	tempDir, err := os.MkdirTemp(cfg.CacheDir, "seed-cache-build-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(tempDir); rmErr != nil {
			logger.Debug("failed to remove temp dir", "dir", tempDir, "err", rmErr)
		}
	}()

	if err := populateCache(ctx, cfg, tempDir, cachePath, files); err != nil {
		return err
	}

	logger.Info("seed cache created", "cache_path", cachePath, "elapsed", time.Since(startTime).Round(time.Millisecond))
	return nil
}

// populateCache performs the core cache-building work: starts a temporary
// node, bulk-loads the seed documents, stops the node so all segments are
// flushed to disk, and copies the resulting data directory into the cache.
//
// The node is always stopped exactly once via a sync.Once: the success path
// calls stopNode to flush writes before copying the data directory, and the
// deferred cleanup also calls stopNode so error paths are covered.
func populateCache(ctx context.Context, cfg Config, tempDir, cachePath string, files []hashedFile) error {
	logger := cfg.logger()

	// Create timeout context for cache creation operations.
	timeoutCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	// Create process lifetime context derived from the timeout context so that
	// cancellation propagates to the temporary node. Unlike long-lived pool
	// instances (which use context.Background to outlive Acquire), this node
	// is ephemeral and must stop when the caller cancels or the timeout
	// expires.
	procCtx, procCancel := context.WithCancel(timeoutCtx)
	defer procCancel()

	node, err := esnode.StartWithRetry(procCtx, timeoutCtx, esnode.Config{
		Binary:       cfg.Binary,
		HomeDir:      cfg.HomeDir,
		BaseDir:      tempDir,
		ClusterName:  "esenv-seed-" + uuid.NewString()[:8],
		ReadyTimeout: cfg.Timeout,
		PortRegistry: cfg.PortRegistry,
		Logger:       logger,
	}, esnode.DefaultMaxPortRetries, cfg.stopTimeout())
	if err != nil {
		return fmt.Errorf("start node for seed cache: %w", err)
	}

	// stopNode stops the node exactly once. Both the explicit call on the
	// success path (to flush segments before copying the data directory) and
	// the deferred cleanup (for error paths) invoke this.
	var stopOnce sync.Once
	var stopErr error
	stopNode := func() error {
		stopOnce.Do(func() {
			logger.Debug("stopping seed cache node")
			if stopResult := node.Stop(cfg.stopTimeout()); stopResult != nil {
				stopErr = fmt.Errorf("stop seed cache node: %w", stopResult)
			}
			node.Close()
		})
		return stopErr
	}
	defer func() {
		if stopCleanupErr := stopNode(); stopCleanupErr != nil {
			logger.Debug("failed to stop node during cleanup", "err", stopCleanupErr)
		}
	}()

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{node.URL()},
	})
	if err != nil {
		return fmt.Errorf("create client for seed load: %w", err)
	}

	logger.Info("loading seed files", "dir", cfg.SeedDir, "files", len(files))
	if err := loadSeedData(timeoutCtx, logger, client, files); err != nil {
		return fmt.Errorf("load seed data: %w", err)
	}

	dataDir := node.DataDir()

	// Stop the node explicitly so the translog and segments are flushed
	// before the data directory is copied.
	if err := stopNode(); err != nil {
		return err
	}

	// Copy into a staging directory and rename, so a concurrent process
	// statting cachePath never observes a half-written cache.
	stagingPath := cachePath + ".tmp-" + uuid.NewString()[:8]
	if err := fileutil.CopyDir(dataDir, stagingPath); err != nil {
		return fmt.Errorf("copy data dir to cache: %w", err)
	}
	if err := os.Rename(stagingPath, cachePath); err != nil {
		_ = os.RemoveAll(stagingPath)
		return fmt.Errorf("publish cache dir: %w", err)
	}

	return nil
}

// LedgerPath returns the path of the ledger database inside cacheDir.
func LedgerPath(cacheDir string) string {
	return filepath.Join(cacheDir, ledgerFileName)
}

// PurgeStale removes cached data directories whose last use is before cutoff,
// along with their ledger entries. Returns the removed cache paths.
// Each edit of the seed files produces a new cache entry, so old entries
// accumulate unless purged.
func PurgeStale(ctx context.Context, cacheDir string, cutoff time.Time, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cutoff.IsZero() {
		return nil, errors.New("cutoff must not be zero")
	}

	ledger, err := OpenLedger(LedgerPath(cacheDir))
	if err != nil {
		return nil, err
	}
	defer func() { _ = ledger.Close() }()

	stale, err := ledger.Stale(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	var (
		removed []string
		hashes  []string
		errs    []error
	)
	for _, e := range stale {
		// Only remove directories under cacheDir; a ledger entry pointing
		// elsewhere is stale metadata, not a deletion warrant.
		if filepath.Dir(e.Path) != filepath.Clean(cacheDir) {
			logger.Warn("skipping ledger entry outside cache dir", "path", e.Path)
			hashes = append(hashes, e.Hash)
			continue
		}
		if err := os.RemoveAll(e.Path); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", e.Path, err))
			continue
		}
		logger.Info("purged stale seed cache", "path", e.Path, "last_used", e.LastUsedAt)
		removed = append(removed, e.Path)
		hashes = append(hashes, e.Hash)
	}
	if len(hashes) > 0 {
		if err := ledger.Delete(ctx, hashes...); err != nil {
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}
