package esenv

import "time"

// Default configuration values for NewManager.
// These constants are exported so callers can reference the defaults
// when building custom configurations relative to them (e.g.,
// 2 * DefaultAcquireTimeout).
const (
	// DefaultPoolSize is the maximum number of instances the pool will create.
	// Acquire blocks when all instances are in use and unblocks when one is
	// released. Set to 0 for unlimited (on-demand creation without bound).
	// Elasticsearch servers are heavyweight (a JVM each), so the default is
	// deliberately small.
	DefaultPoolSize = 2

	// DefaultAcquireTimeout is the total time allowed for pool acquisition
	// and server startup. Under pool contention, increase this to account
	// for both wait time and startup (~10-30 seconds).
	DefaultAcquireTimeout = 2 * time.Minute

	// DefaultBaseDataDirName is the directory name under the system temp
	// directory where instance data is stored. The full path is computed
	// as filepath.Join(os.TempDir(), DefaultBaseDataDirName).
	DefaultBaseDataDirName = "esenv"

	// DefaultSeedCacheTimeout is the overall timeout for seed cache creation,
	// including spinning up a temporary server, bulk-indexing the seed files,
	// and copying the resulting data directory.
	DefaultSeedCacheTimeout = 5 * time.Minute

	// DefaultInstanceStartTimeout is the maximum time allowed for an
	// instance's server process to start and report green or yellow
	// cluster health.
	DefaultInstanceStartTimeout = 2 * time.Minute

	// DefaultInstanceStopTimeout is the maximum time allowed for an
	// instance's server process to stop gracefully before SIGKILL
	// escalation.
	DefaultInstanceStopTimeout = 10 * time.Second

	// DefaultWipeTimeout is the maximum time allowed for index cleanup
	// during release. This timeout covers the API calls deleting data
	// streams and indices. Although only exercised when ReleaseStrategy is
	// ReleaseWipe, a positive value is always required because config
	// validation does not vary by strategy.
	DefaultWipeTimeout = 30 * time.Second

	// DefaultShutdownDrainTimeout is the maximum time Shutdown() waits
	// for in-flight release operations to complete before proceeding.
	// If InstanceStopTimeout is configured larger than this value (e.g. for
	// slow CI), an in-flight release performing ReleaseRestart could exceed
	// the drain window, causing Shutdown() to proceed prematurely. Increase
	// this timeout to at least match the longest expected release duration.
	DefaultShutdownDrainTimeout = 30 * time.Second

	// DefaultReleaseStrategy is the strategy used by Instance.Release()
	// when no explicit strategy is configured via WithReleaseStrategy.
	// ReleaseRestart stops the server on release; the next Acquire
	// starts fresh with the data directory reset from the seed template.
	DefaultReleaseStrategy = ReleaseRestart
)
