package esenv

import (
	"fmt"
	"maps"
	"time"

	"github.com/giantswarm/esenv/internal/esnode"
)

// requirePositive panics if v <= 0 with a descriptive message.
func requirePositive[T int | time.Duration](name string, v T) {
	if v <= 0 {
		panic(fmt.Sprintf("esenv: %s must be greater than 0, got %v", name, v))
	}
}

// requireNonEmpty panics if s is empty with a descriptive message.
func requireNonEmpty(name, s string) {
	if s == "" {
		panic(fmt.Sprintf("esenv: %s must not be empty", name))
	}
}

// ManagerOption configures a Manager during construction via NewManager.
// Each With* function returns a ManagerOption that sets a specific field.
//
// Several With* functions panic on invalid input (zero-value sizes, empty paths,
// non-positive durations). These panics are intentional: option values are
// typically compile-time constants or package-level variables, so an invalid
// value indicates a programmer error rather than a runtime condition. The
// pattern mirrors [regexp.MustCompile] — fail fast during initialization
// instead of returning errors that would be universally fatal anyway.
type ManagerOption func(*managerConfig)

// WithPoolSize sets the maximum number of instances the pool will create.
// A positive value caps the pool; Acquire blocks when all instances are in use
// and unblocks when one is released. A value of 0 means unlimited: instances
// are created on demand without an upper bound.
//
// Default: 2.
//
// The acquireTimeout (configured via WithAcquireTimeout) bounds how long
// Acquire can block waiting for a free instance, so set it high enough to
// account for both pool wait time and server startup (~10-30s).
//
// Panics if size < 0.
func WithPoolSize(size int) ManagerOption {
	if size < 0 {
		panic(fmt.Sprintf("esenv: pool size must not be negative, got %d", size))
	}
	return func(c *managerConfig) {
		c.PoolSize = size
	}
}

// WithServerBinary sets the path to the elasticsearch launch script. When set
// without WithElasticsearchHome, the home directory is derived from the
// binary's location (the parent of its bin directory).
// Panics if binPath is empty.
func WithServerBinary(binPath string) ManagerOption {
	requireNonEmpty("server binary path", binPath)
	return func(c *managerConfig) {
		c.ServerBinary = binPath
	}
}

// WithElasticsearchHome sets the root directory of the Elasticsearch
// installation. The launch script is expected at bin/elasticsearch below it
// unless WithServerBinary overrides that. Setting this skips automatic
// discovery via ES_HOME, PATH, and common install locations.
// Panics if dir is empty.
func WithElasticsearchHome(dir string) ManagerOption {
	requireNonEmpty("elasticsearch home", dir)
	return func(c *managerConfig) {
		c.HomeDir = dir
	}
}

// WithAcquireTimeout sets the total timeout for Acquire(), covering both pool
// wait time and server startup time. Server startup typically takes 10-30
// seconds.
//
// Default: 2 minutes.
//
// Panics if d <= 0.
func WithAcquireTimeout(d time.Duration) ManagerOption {
	requirePositive("acquire timeout", d)
	return func(c *managerConfig) {
		c.AcquireTimeout = d
	}
}

// WithSeedDir sets a directory containing NDJSON seed files to pre-index into
// every instance. Each file becomes an index named after the file (users.ndjson
// → index "users"), with one JSON document per line.
//
// On the first Initialize, a throwaway server indexes the seed files and its
// data directory is cached under the base data directory, keyed by a hash of
// the seed file names and contents. Subsequent runs (and every instance start)
// copy the cached data directory instead of re-indexing. Changing, adding,
// renaming, or removing seed files automatically triggers a new cache.
//
// Mutually exclusive with WithDataFrom.
// Panics if dirPath is empty.
func WithSeedDir(dirPath string) ManagerOption {
	requireNonEmpty("seed directory path", dirPath)
	return func(c *managerConfig) {
		c.SeedDir = dirPath
	}
}

// WithDataFrom sets an existing Elasticsearch data directory to use as the
// seed template for every instance, bypassing the NDJSON indexing step. The
// directory must come from a compatible server version and is copied, never
// modified.
//
// Mutually exclusive with WithSeedDir.
// Panics if dirPath is empty.
func WithDataFrom(dirPath string) ManagerOption {
	requireNonEmpty("data-from directory path", dirPath)
	return func(c *managerConfig) {
		c.DataFromDir = dirPath
	}
}

// WithClusterSettings sets extra elasticsearch.yml settings applied to every
// instance. Keys use the flat dotted form (e.g. "indices.query.bool.max_clause_count").
// Caller-provided settings override the built-in defaults on key collision;
// network.host, ports, and path settings are instance-specific and cannot be
// overridden. The map is copied.
func WithClusterSettings(settings map[string]any) ManagerOption {
	return func(c *managerConfig) {
		if c.ClusterSettings == nil {
			c.ClusterSettings = esnode.Settings{}
		}
		maps.Copy(c.ClusterSettings, settings)
	}
}

// WithReleaseStrategy sets the cleanup strategy used by Instance.Release().
// See ReleaseRestart, ReleaseWipe, and ReleaseNone for the trade-offs.
//
// Default: ReleaseRestart.
//
// Panics if s is not a recognized strategy.
func WithReleaseStrategy(s ReleaseStrategy) ManagerOption {
	if !s.IsValid() {
		panic(fmt.Sprintf("esenv: invalid release strategy: %v", s))
	}
	return func(c *managerConfig) {
		c.ReleaseStrategy = s
	}
}

// WithSeedCacheTimeout sets the overall timeout for seed cache creation.
// This covers spinning up a temporary server, bulk-indexing the NDJSON files
// from the seed directory, and copying the resulting data directory. Readiness
// timeouts for the temporary server are derived from this value.
//
// Default: 5 minutes.
//
// Panics if d <= 0.
func WithSeedCacheTimeout(d time.Duration) ManagerOption {
	requirePositive("seed cache timeout", d)
	return func(c *managerConfig) {
		c.SeedCacheTimeout = d
	}
}

// WithInstanceStartTimeout sets the maximum time allowed for an instance's
// server process to start and report green or yellow cluster health.
//
// Default: 2 minutes.
//
// Panics if d <= 0.
func WithInstanceStartTimeout(d time.Duration) ManagerOption {
	requirePositive("instance start timeout", d)
	return func(c *managerConfig) {
		c.InstanceStartTimeout = d
	}
}

// WithInstanceStopTimeout sets the maximum time allowed for an instance's
// server process to stop gracefully during shutdown or release.
//
// Default: 10 seconds.
//
// Panics if d <= 0.
func WithInstanceStopTimeout(d time.Duration) ManagerOption {
	requirePositive("instance stop timeout", d)
	return func(c *managerConfig) {
		c.InstanceStopTimeout = d
	}
}

// WithWipeTimeout sets the maximum time allowed for index cleanup during
// release when ReleaseWipe is configured.
//
// Default: 30 seconds.
//
// Panics if d <= 0.
func WithWipeTimeout(d time.Duration) ManagerOption {
	requirePositive("wipe timeout", d)
	return func(c *managerConfig) {
		c.WipeTimeout = d
	}
}

// WithShutdownDrainTimeout sets the maximum time Shutdown() waits for
// in-flight release operations to complete before proceeding with instance
// teardown.
//
// Default: 30 seconds.
//
// Panics if d <= 0.
func WithShutdownDrainTimeout(d time.Duration) ManagerOption {
	requirePositive("shutdown drain timeout", d)
	return func(c *managerConfig) {
		c.ShutdownDrainTimeout = d
	}
}

// WithBaseDataDir sets the base directory for instance data and the seed
// cache. Useful in CI environments where multiple projects may use esenv
// simultaneously and need isolated data directories to prevent conflicts.
// If not set, defaults to a directory named "esenv" under the system temp
// directory.
// Panics if dir is empty.
func WithBaseDataDir(dir string) ManagerOption {
	requireNonEmpty("base data directory", dir)
	return func(c *managerConfig) {
		c.BaseDataDir = dir
	}
}
