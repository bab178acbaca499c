package esenv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"

	"github.com/giantswarm/esenv/internal/core"
	"github.com/giantswarm/esenv/internal/eshome"
)

// Singleton state for NewManager. The first call creates the manager;
// subsequent calls return the same instance and log a warning.
//
// singletonMu protects both singletonMgr and singletonOnce so that
// resetForTesting (used in tests) is concurrency-safe with NewManager.
var (
	singletonMu   sync.Mutex
	singletonMgr  Manager
	singletonOnce sync.Once
)

// Compile-time interface satisfaction checks.
var (
	_ Manager  = (*managerWrapper)(nil)
	_ Instance = (*instanceWrapper)(nil)
)

// managerWrapper wraps core.Manager to implement the Manager interface.
// It serves as the concrete singleton implementation returned by NewManager.
// This allows returning Instance interface from Acquire instead of *core.Instance.
//
// The core.Manager is constructed lazily inside Initialize rather than in
// NewManager, because construction requires a resolved Elasticsearch
// installation and discovery can fail — Initialize reports that as an error
// wrapping ErrBinaryNotFound, where NewManager could only panic.
//
// The core.Manager is stored as a named (unexported) field rather than embedded
// to prevent callers from using type assertions to access internal methods
// (e.g., IsShuttingDown, ReleaseToPool) that are not part of the public Manager interface.
type managerWrapper struct {
	mu       sync.Mutex
	cfg      managerConfig
	mgr      *core.Manager
	shutdown bool
}

// resolveInstallation fills in ServerBinary and HomeDir from whichever of the
// two the caller provided, falling back to automatic discovery when neither
// is set. The returned config always has both fields populated and the binary
// verified to exist.
func resolveInstallation(cfg managerConfig) (managerConfig, error) {
	switch {
	case cfg.ServerBinary != "" && cfg.HomeDir != "":
		// Both explicit — nothing to derive.
	case cfg.ServerBinary != "":
		// bin/elasticsearch → installation root is two levels up.
		cfg.HomeDir = filepath.Dir(filepath.Dir(cfg.ServerBinary))
	case cfg.HomeDir != "":
		cfg.ServerBinary = eshome.Binary(cfg.HomeDir)
	default:
		home, err := eshome.Locate()
		if err != nil {
			return cfg, fmt.Errorf("locate elasticsearch installation: %w", err)
		}
		cfg.HomeDir = home
		cfg.ServerBinary = eshome.Binary(home)
	}

	if _, err := os.Stat(cfg.ServerBinary); err != nil {
		return cfg, fmt.Errorf("server binary %s: %w", cfg.ServerBinary, ErrBinaryNotFound)
	}
	return cfg, nil
}

// ensureCoreManager resolves the installation and constructs the underlying
// core.Manager on first call. Subsequent calls return the existing manager.
func (w *managerWrapper) ensureCoreManager() (*core.Manager, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.shutdown {
		return nil, ErrShuttingDown
	}
	if w.mgr != nil {
		return w.mgr, nil
	}

	cfg, err := resolveInstallation(w.cfg)
	if err != nil {
		return nil, err
	}
	coreCfg := cfg.toCoreConfig()
	// Validate before constructing: NewManagerWithConfig panics on invalid
	// config, but option combinations (e.g. WithSeedDir together with
	// WithDataFrom) should surface as an Initialize error, not a panic.
	if err := coreCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	w.mgr = core.NewManagerWithConfig(coreCfg)
	return w.mgr, nil
}

// Initialize resolves the Elasticsearch installation, builds the seed cache
// when seed data is configured, and prepares the pool.
func (w *managerWrapper) Initialize(ctx context.Context) error {
	mgr, err := w.ensureCoreManager()
	if err != nil {
		return err
	}
	return mgr.Initialize(ctx)
}

// loadCoreManager returns the constructed core.Manager, or nil when
// Initialize has not run (or failed before construction).
func (w *managerWrapper) loadCoreManager() *core.Manager {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mgr
}

// Acquire implements Manager.Acquire, returning Instance interface.
//
//nolint:ireturn // Returns Instance interface by design for testability (mockable).
func (w *managerWrapper) Acquire(ctx context.Context) (Instance, error) {
	mgr := w.loadCoreManager()
	if mgr == nil {
		return nil, ErrNotInitialized
	}
	inst, token, err := mgr.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &instanceWrapper{inst: inst, token: token}, nil
}

// Shutdown wraps core.Manager.Shutdown. Safe to call before Initialize: the
// wrapper records the shutdown so a later Initialize fails with ErrShuttingDown.
func (w *managerWrapper) Shutdown() error {
	w.mu.Lock()
	w.shutdown = true
	mgr := w.mgr
	w.mu.Unlock()

	if mgr == nil {
		return nil
	}
	return mgr.Shutdown()
}

// instanceWrapper wraps core.Instance to implement the Instance interface.
//
// The core.Instance is stored as a named (unexported) field rather than embedded
// to prevent callers from using type assertions to access internal methods
// that are not part of the public Instance interface.
//
// released tracks whether Release has been called on this wrapper. It prevents
// the accessors from returning stale data after Release, enforcing the
// contract that they must only be called between Acquire and Release. The
// underlying core.Instance also checks its generation counter, but that check
// is tied to pool-level state (the instance may be re-acquired by another
// consumer). The wrapper-level flag provides a definitive per-acquisition guard.
type instanceWrapper struct {
	inst     *core.Instance
	token    uint64
	released atomic.Bool
}

// Client returns a go-elasticsearch client connected to this instance's server.
//
// Returns ErrInstanceReleased if called after Release. The check uses a
// wrapper-level atomic flag that is set once by Release, providing a
// definitive per-acquisition guard independent of pool-level state.
func (w *instanceWrapper) Client() (*elasticsearch.Client, error) {
	if w.released.Load() {
		return nil, ErrInstanceReleased
	}
	return w.inst.Client()
}

// URL returns the HTTP base URL of this instance's server.
// Returns ErrInstanceReleased if called after Release.
func (w *instanceWrapper) URL() (string, error) {
	if w.released.Load() {
		return "", ErrInstanceReleased
	}
	return w.inst.URL()
}

// HTTPPort returns the HTTP port of this instance's server.
// Returns ErrInstanceReleased if called after Release.
func (w *instanceWrapper) HTTPPort() (int, error) {
	if w.released.Load() {
		return 0, ErrInstanceReleased
	}
	return w.inst.HTTPPort()
}

// ClusterName returns the cluster name of this instance's server.
// Returns ErrInstanceReleased if called after Release.
func (w *instanceWrapper) ClusterName() (string, error) {
	if w.released.Load() {
		return "", ErrInstanceReleased
	}
	return w.inst.ClusterName()
}

// Release returns the instance to the pool. The behavior depends on the
// ReleaseStrategy configured on the Manager (see WithReleaseStrategy).
//
// Returns nil on success; using defer inst.Release() is safe. On error the
// instance is already removed from the pool, so no corrective action is needed.
//
// After Release returns, any subsequent accessor call on this wrapper returns
// ErrInstanceReleased.
func (w *instanceWrapper) Release() error {
	w.released.Store(true)
	return w.inst.Release(w.token)
}

// ID returns a unique identifier for this instance.
// Delegates to the underlying core.Instance.
func (w *instanceWrapper) ID() string {
	return w.inst.ID()
}

// defaultManagerConfig returns a managerConfig populated with all default
// values. Both NewManager and test helpers use this to avoid duplicating
// the default field assignments. ServerBinary and HomeDir are left empty;
// they are resolved during Initialize (see resolveInstallation).
func defaultManagerConfig() managerConfig {
	return managerConfig{core.ManagerConfig{
		PoolSize:             DefaultPoolSize,
		ReleaseStrategy:      DefaultReleaseStrategy,
		AcquireTimeout:       DefaultAcquireTimeout,
		BaseDataDir:          filepath.Join(os.TempDir(), DefaultBaseDataDirName),
		SeedCacheTimeout:     DefaultSeedCacheTimeout,
		InstanceStartTimeout: DefaultInstanceStartTimeout,
		InstanceStopTimeout:  DefaultInstanceStopTimeout,
		WipeTimeout:          DefaultWipeTimeout,
		ShutdownDrainTimeout: DefaultShutdownDrainTimeout,
	}}
}

// resetForTesting resets the singleton state so that the next call to
// NewManager creates a fresh manager. This follows the Go stdlib pattern
// (e.g., net/http/internal) for enabling test isolation within a single
// binary. It must only be called from tests.
func resetForTesting() {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	singletonMgr = nil
	singletonOnce = sync.Once{}
}

// NewManager returns the process-level singleton Manager.
//
// The first call creates the manager with the given options and stores it.
// Subsequent calls return the same instance — options are ignored and a
// warning is logged. This performs no I/O operations; call Initialize
// before Acquire.
//
// The singleton is never reset after Shutdown; callers that need a fresh
// manager must restart the process (or, in tests, use a separate test binary).
//
// Panics if any option receives an invalid value. See individual With*
// functions for constraints.
//
//nolint:ireturn // Returns Manager interface by design for testability (mockable).
func NewManager(opts ...ManagerOption) Manager {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	// created is written inside the Do closure and read after Do returns.
	// sync.Once guarantees the closure completes (happens-before) Do returns,
	// so the write is visible here without additional synchronization.
	created := false
	singletonOnce.Do(func() {
		cfg := defaultManagerConfig()
		for _, opt := range opts {
			opt(&cfg)
		}
		singletonMgr = &managerWrapper{cfg: cfg}
		created = true
	})
	if !created {
		core.Logger().Warn("NewManager called more than once; returning existing singleton (options ignored)")
	}
	return singletonMgr
}
