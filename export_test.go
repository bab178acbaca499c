package esenv

import "time"

// ResetForTesting resets the singleton manager state so that the next
// call to NewManager creates a fresh instance. This is exported only
// for use in test packages (package esenv_test).
func ResetForTesting() { resetForTesting() }

// ConfigSnapshot holds a copy of managerConfig fields for test assertions.
// Exported only via export_test.go so that the _test package can verify
// option closures actually mutate the config without accessing internals.
type ConfigSnapshot struct {
	PoolSize             int
	ReleaseStrategy      ReleaseStrategy
	ServerBinary         string
	HomeDir              string
	AcquireTimeout       time.Duration
	SeedDir              string
	DataFromDir          string
	ClusterSettings      map[string]any
	BaseDataDir          string
	SeedCacheTimeout     time.Duration
	InstanceStartTimeout time.Duration
	InstanceStopTimeout  time.Duration
	WipeTimeout          time.Duration
	ShutdownDrainTimeout time.Duration
}

// ApplyOptionsForTesting creates a default managerConfig, applies the given
// options, and returns a ConfigSnapshot of the result. This tests the option
// closures directly without touching the singleton.
func ApplyOptionsForTesting(opts ...ManagerOption) ConfigSnapshot {
	cfg := defaultManagerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return ConfigSnapshot{
		PoolSize:             cfg.PoolSize,
		ReleaseStrategy:      cfg.ReleaseStrategy,
		ServerBinary:         cfg.ServerBinary,
		HomeDir:              cfg.HomeDir,
		AcquireTimeout:       cfg.AcquireTimeout,
		SeedDir:              cfg.SeedDir,
		DataFromDir:          cfg.DataFromDir,
		ClusterSettings:      cfg.ClusterSettings,
		BaseDataDir:          cfg.BaseDataDir,
		SeedCacheTimeout:     cfg.SeedCacheTimeout,
		InstanceStartTimeout: cfg.InstanceStartTimeout,
		InstanceStopTimeout:  cfg.InstanceStopTimeout,
		WipeTimeout:          cfg.WipeTimeout,
		ShutdownDrainTimeout: cfg.ShutdownDrainTimeout,
	}
}
