package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/giantswarm/esenv/internal/esnode"
)

// ReleaseStrategy controls what happens when an Instance is released back to the pool.
type ReleaseStrategy int

const (
	// ReleaseRestart stops the instance without performing any API-level
	// cleanup. The next Acquire starts a fresh server — esnode's Start()
	// either restores the data directory from the seed template (when seed
	// data is configured) or removes the old data so the server creates a
	// fresh cluster state. This is the safest and simplest strategy: no
	// cleanup code to get wrong, full isolation via data-directory reset.
	// This is the default strategy.
	ReleaseRestart ReleaseStrategy = iota

	// ReleaseWipe deletes all data streams and indices through the HTTP API
	// but keeps the server running. The next Acquire reuses the same warm
	// JVM, skipping the multi-second server startup. Faster than
	// ReleaseRestart but relies on cleanup correctness for isolation:
	// cluster-level state (index templates, ingest pipelines, persistent
	// settings) survives the wipe.
	ReleaseWipe

	// ReleaseNone performs no cleanup. The instance is returned to the pool
	// as-is with all indices and documents intact. Use this only when tests
	// use unique index names and never share state, or when cleanup
	// overhead is unacceptable.
	//
	// WARNING: Previous test state persists. The next consumer of this
	// instance will see all indices and documents from prior tests. Use
	// unique index names (e.g., with test name or UUID prefix) to ensure
	// isolation.
	ReleaseNone
)

// IsValid reports whether s is a recognized ReleaseStrategy value.
func (s ReleaseStrategy) IsValid() bool {
	switch s {
	case ReleaseRestart, ReleaseWipe, ReleaseNone:
		return true
	default:
		return false
	}
}

// String returns the name of the strategy.
func (s ReleaseStrategy) String() string {
	switch s {
	case ReleaseRestart:
		return "ReleaseRestart"
	case ReleaseWipe:
		return "ReleaseWipe"
	case ReleaseNone:
		return "ReleaseNone"
	default:
		return fmt.Sprintf("ReleaseStrategy(%d)", int(s))
	}
}

// ManagerConfig holds configuration for Manager instances.
//
// Concurrency contract: all fields are immutable after construction via
// NewManagerWithConfig. Instance goroutines read ServerBinary and HomeDir
// without synchronization, relying on this guarantee. The seed data path is
// stored as separate runtime state in Manager.seedDataPath to preserve this
// immutability contract.
type ManagerConfig struct {
	ServerBinary   string // Path to the elasticsearch launch script
	HomeDir        string // ES home of the installation
	AcquireTimeout time.Duration
	BaseDataDir    string
	SeedDir        string // Directory of NDJSON seed files, bulk-loaded via the seed cache
	DataFromDir    string // Existing data directory used directly as the seed template

	// ClusterSettings are extra elasticsearch.yml settings applied to every
	// instance, overriding the built-in defaults on key collision.
	ClusterSettings esnode.Settings

	// PoolSize is the maximum number of instances the pool will create.
	// A positive value caps the pool; Acquire blocks when all instances
	// are in use. 0 means unlimited (instances created on demand).
	// Default: 2.
	PoolSize int

	// ReleaseStrategy controls what happens when an Instance is released
	// back to the pool. Default: ReleaseRestart.
	ReleaseStrategy ReleaseStrategy

	// SeedCacheTimeout is the overall timeout for seed cache creation,
	// including spinning up a temporary server, bulk-loading the seed files,
	// and copying the resulting data directory. Readiness timeouts for the
	// temporary server are derived from this value. Default: 5 minutes.
	SeedCacheTimeout time.Duration

	// InstanceStartTimeout is the maximum time allowed for an instance's
	// server process to start and report green or yellow cluster health.
	// Default: 2 minutes.
	InstanceStartTimeout time.Duration

	// InstanceStopTimeout is the maximum time allowed for an instance's
	// server process to stop gracefully before SIGKILL escalation.
	// Default: 10 seconds.
	InstanceStopTimeout time.Duration

	// WipeTimeout is the maximum time for index cleanup during release.
	// This timeout covers the API calls deleting data streams and indices.
	// Although only exercised when ReleaseStrategy is ReleaseWipe, a
	// positive value is always required by Validate because validation does
	// not vary by strategy. Default: 30 seconds.
	WipeTimeout time.Duration

	// ShutdownDrainTimeout is the maximum time Shutdown() waits for
	// in-flight ReleaseToPool operations to complete before proceeding
	// with instance teardown. If InstanceStopTimeout is configured larger
	// than this value, an in-flight release performing ReleaseRestart
	// could still be running when the drain fires. Default: 30 seconds.
	ShutdownDrainTimeout time.Duration
}

// Validate checks all ManagerConfig invariants and returns an error describing
// every violation found. It uses errors.Join to report multiple issues at once,
// allowing callers to fix all problems in a single pass rather than playing
// whack-a-mole with one error at a time.
//
// Validate is called by NewManagerWithConfig (which panics on error, since
// invalid config is a programmer error) and by Initialize (which returns the
// error, providing defense in depth).
func (c ManagerConfig) Validate() error {
	var errs []error

	if c.ServerBinary == "" {
		errs = append(errs, errors.New("server binary path must not be empty"))
	}
	if c.HomeDir == "" {
		errs = append(errs, errors.New("elasticsearch home must not be empty"))
	}
	if c.AcquireTimeout <= 0 {
		errs = append(errs, fmt.Errorf("acquire timeout must be greater than 0, got %s", c.AcquireTimeout))
	}
	if c.BaseDataDir == "" {
		errs = append(errs, errors.New("base data directory must not be empty"))
	}
	if c.SeedDir != "" && c.DataFromDir != "" {
		errs = append(errs, errors.New("seed dir and data-from dir are mutually exclusive"))
	}
	if c.InstanceStartTimeout <= 0 {
		errs = append(errs, fmt.Errorf("instance start timeout must be greater than 0, got %s", c.InstanceStartTimeout))
	}
	if c.InstanceStopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("instance stop timeout must be greater than 0, got %s", c.InstanceStopTimeout))
	}
	if c.WipeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("wipe timeout must be greater than 0, got %s", c.WipeTimeout))
	}
	if c.SeedCacheTimeout <= 0 {
		errs = append(errs, fmt.Errorf("seed cache timeout must be greater than 0, got %s", c.SeedCacheTimeout))
	}
	if c.ShutdownDrainTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown drain timeout must be greater than 0, got %s", c.ShutdownDrainTimeout))
	}
	if c.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("pool size must not be negative, got %d", c.PoolSize))
	}
	if !c.ReleaseStrategy.IsValid() {
		errs = append(errs, fmt.Errorf("invalid release strategy: %v", c.ReleaseStrategy))
	}

	return errors.Join(errs...)
}

// InstanceConfig holds configuration for Instance objects.
// All fields are immutable after construction via NewInstance.
type InstanceConfig struct {
	// StartTimeout is the maximum time for the server to report green or
	// yellow cluster health.
	StartTimeout time.Duration
	// StopTimeout is the maximum time for graceful shutdown before the
	// SIGTERM/SIGKILL escalation gives up.
	StopTimeout time.Duration
	// WipeTimeout is the maximum time for index cleanup during release.
	// Although only exercised when ReleaseStrategy is ReleaseWipe, a
	// positive value is always required by Validate.
	WipeTimeout time.Duration
	// MaxStartRetries is the number of startup attempts before giving up.
	MaxStartRetries int
	// SeedDataPath is the path to a pre-indexed data directory to copy
	// into the instance's data directory before starting the server. Empty
	// means start with a fresh cluster state.
	SeedDataPath string
	ServerBinary string
	HomeDir      string
	// Settings are extra elasticsearch.yml settings applied to the instance.
	Settings        esnode.Settings
	ReleaseStrategy ReleaseStrategy
}

// Validate checks all InstanceConfig invariants and returns an error describing
// every violation found. It uses errors.Join to report multiple issues at once,
// allowing callers to fix all problems in a single pass rather than playing
// whack-a-mole with one error at a time.
//
// Validate is called by NewInstance (which panics on error, since invalid config
// is a programmer error), providing a single source of truth for validation logic.
func (c InstanceConfig) Validate() error {
	var errs []error

	if c.StartTimeout <= 0 {
		errs = append(errs, fmt.Errorf("start timeout must be greater than 0, got %s", c.StartTimeout))
	}
	if c.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("stop timeout must be greater than 0, got %s", c.StopTimeout))
	}
	if c.WipeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("wipe timeout must be greater than 0, got %s", c.WipeTimeout))
	}
	if c.MaxStartRetries <= 0 {
		errs = append(errs, fmt.Errorf("max start retries must be greater than 0, got %d", c.MaxStartRetries))
	}
	if c.ServerBinary == "" {
		errs = append(errs, errors.New("server binary path must not be empty"))
	}
	if c.HomeDir == "" {
		errs = append(errs, errors.New("elasticsearch home must not be empty"))
	}
	if !c.ReleaseStrategy.IsValid() {
		errs = append(errs, fmt.Errorf("invalid release strategy: %v", c.ReleaseStrategy))
	}

	return errors.Join(errs...)
}
