package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"

	"github.com/giantswarm/esenv/internal/esnode"
	"github.com/giantswarm/esenv/internal/netutil"
	"github.com/giantswarm/esenv/internal/sentinel"
)

// DefaultMaxStartRetries is the default number of startup retries for
// transient startup failures (port conflicts).
const DefaultMaxStartRetries = 3

// ErrInstanceReleased is returned by Client and URL when called on an instance
// that has been released back to the pool. After Release, the instance may be
// re-acquired by another consumer or stopped, making any previously obtained
// connection details stale.
const ErrInstanceReleased = sentinel.Error("instance has been released")

// ErrNotStarted is returned by Client and URL when called on an instance whose
// server process has not been launched yet. This typically indicates a
// programming error where the accessor is called before the instance has been
// started by the pool.
const ErrNotStarted = sentinel.Error("instance not started")

// InstanceReleaser handles returning an instance to the pool or marking it
// as failed. It breaks the dependency from Instance back to Manager/Pool,
// allowing Instance to release itself without knowing the concrete types.
//
// Implementations must be safe for concurrent use. In particular, ReleaseToPool
// may be called concurrently with Shutdown, and the implementation must ensure
// that every instance is cleaned up exactly once regardless of call ordering.
type InstanceReleaser interface {
	// ReleaseToPool returns the instance to the pool for reuse.
	// The token is the generation value returned by markAcquired during
	// the corresponding Acquire. It is threaded through to the pool's
	// Release method, which uses it to detect stale (double) releases.
	// Returns true if the instance was returned to the pool, false if the
	// manager was shutting down and the instance was stopped instead.
	//
	// Safe for concurrent use with Shutdown. The implementation brackets
	// the state check and pool.Release with an inflight counter, preventing
	// Shutdown from proceeding while any release is in progress.
	ReleaseToPool(i *Instance, token uint64) bool

	// ReleaseFailed marks the instance as permanently failed and removes it
	// from the pool. The token is the generation value from markAcquired.
	// The instance is stopped and never returned to the free stack.
	ReleaseFailed(i *Instance, token uint64)
}

// Instance represents a single disposable Elasticsearch server.
// It holds both consumer-facing methods (Client, URL, Release, ID) exposed
// through the public esenv.Instance interface, and lifecycle methods (Start,
// Stop, IsStarted, IsBusy, Err) used internally by Manager and Pool.
//
// Synchronization strategy:
//   - busy (gen), started, lastErr use atomics for lock-free reads.
//   - node and cancel are only accessed under startMu (in doStart and Stop),
//     so no additional lock is needed. started.Store(true) after setting
//     node/cancel under startMu provides happens-before via the Go memory model.
type Instance struct {
	cfg InstanceConfig

	id      string
	dataDir string
	// clusterName is unique per instance so that concurrently running
	// servers on the same host never try to form a cluster.
	clusterName string

	// releaser is the Pool/Manager callback for release.
	// Set once at construction, read-only thereafter.
	releaser InstanceReleaser
	// ports is the shared port registry for cross-instance coordination.
	ports *netutil.PortRegistry

	// gen is a monotonic generation counter: odd = acquired, even = free (0, 2, 4, ...).
	gen atomic.Uint64
	// started is set by doStart, cleared by Stop.
	started atomic.Bool
	// lastErr is set during warm-up or start failure.
	lastErr atomic.Pointer[error]
	// cachedClient is a cached API client bound to the running server's URL.
	// Set on first Client() call, cleared by Stop (the next start allocates
	// new ports, invalidating the address).
	cachedClient atomic.Pointer[elasticsearch.Client]

	// startMu serializes Start/Stop to prevent duplicate process launches.
	startMu sync.Mutex
	// cancel is the process context cancel function. Protected by startMu only.
	cancel context.CancelFunc
	// node is the running server process. Protected by startMu only.
	node *esnode.Node

	// log is the instance-scoped logger.
	log *slog.Logger
}

// IsStarted reports whether the instance's server process has been launched.
func (i *Instance) IsStarted() bool {
	return i.started.Load()
}

// IsBusy reports whether the instance is currently acquired by a consumer.
// An odd generation value means acquired; even (including 0) means free.
func (i *Instance) IsBusy() bool {
	return i.gen.Load()%2 == 1
}

// markAcquired increments the generation counter and returns the new value
// as a release token. The counter is monotonically increasing: odd values
// (1, 3, 5, ...) indicate acquired, even values (0, 2, 4, ...) indicate free.
// The token must be passed to tryRelease to complete the release. This prevents
// ABA double-release races: each acquisition produces a unique odd token, so a
// stale token from a prior acquisition can never match the current generation.
func (i *Instance) markAcquired() uint64 {
	return i.gen.Add(1)
}

// tryRelease atomically advances the generation counter from the provided
// token (odd/acquired) to token+1 (even/free). Returns true if the release
// succeeded, false if the token is stale (the instance was re-acquired by
// another goroutine). Because the counter never resets to 0, each token is
// globally unique, eliminating the ABA race where a stale token from a prior
// acquisition could match the current generation.
func (i *Instance) tryRelease(token uint64) bool {
	return i.gen.CompareAndSwap(token, token+1)
}

// isCurrentToken reports whether the given token matches the current generation.
// This is a non-consuming check used to reject stale releases before performing
// irreversible side effects (e.g., index deletion). The actual release is
// still performed via tryRelease (CAS) after side effects complete.
func (i *Instance) isCurrentToken(token uint64) bool {
	return i.gen.Load() == token
}

// Err returns the last error that occurred on this instance.
func (i *Instance) Err() error {
	if p := i.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// ID returns the instance's unique identifier.
func (i *Instance) ID() string {
	return i.id
}

// DataDir returns the instance's data directory root.
func (i *Instance) DataDir() string {
	return i.dataDir
}

// setErr records the last error on this instance.
func (i *Instance) setErr(e error) {
	i.lastErr.Store(&e)
}

// NewInstanceParams holds the parameters for creating a new Instance.
// All fields are required.
type NewInstanceParams struct {
	ID       string
	DataDir  string
	Releaser InstanceReleaser
	Ports    *netutil.PortRegistry
	Config   InstanceConfig
}

// NewInstance creates a new Instance from the given parameters.
// Callers must fully populate params, including params.Config.
// Panics if ID or DataDir is empty, if Releaser or Ports is nil, or if
// Config fails validation (see InstanceConfig.Validate).
// These are programmer errors that should be caught at initialization time.
func NewInstance(params NewInstanceParams) *Instance {
	if params.ID == "" {
		panic("esenv: instance id must not be empty")
	}
	if params.DataDir == "" {
		panic("esenv: instance data dir must not be empty")
	}
	if params.Releaser == nil {
		panic("esenv: instance releaser must not be nil")
	}
	if params.Ports == nil {
		panic("esenv: instance port registry must not be nil")
	}
	if err := params.Config.Validate(); err != nil {
		panic(fmt.Sprintf("esenv: invalid instance config: %v", err))
	}
	return &Instance{
		cfg:         params.Config,
		id:          params.ID,
		dataDir:     params.DataDir,
		clusterName: "esenv-" + params.ID,
		releaser:    params.Releaser,
		ports:       params.Ports,
		log:         Logger().With("id", params.ID),
	}
}

// Start launches the Elasticsearch server process.
// Safe for concurrent calls: startMu serializes callers so only one
// actually launches the process; subsequent callers see started==true.
// Retry logic for transient failures (e.g., port conflicts) is handled
// by [esnode.StartWithRetry] inside doStart.
func (i *Instance) Start(ctx context.Context) error {
	i.startMu.Lock()
	defer i.startMu.Unlock()

	if i.IsStarted() {
		return nil // Already started
	}

	return i.doStart(ctx)
}

// doStart performs a single startup sequence. On success it sets node and
// cancel under startMu, then publishes started=true via an atomic store.
// The atomic store provides a happens-before edge: any goroutine that
// observes started==true is guaranteed to see the node/cancel writes
// that preceded the store.
func (i *Instance) doStart(ctx context.Context) error {
	startTime := time.Now()
	i.log.Debug("starting instance", "time", startTime.Format("15:04:05.000"))

	// Create process context just before starting the server.
	// Using Background so the process survives beyond the Acquire() call.
	// The passed ctx is only used for startup timeouts (readiness checks).
	processCtx, cancel := context.WithCancel(context.Background())

	// Each retry inside StartWithRetry creates a fresh node with new port
	// allocations, so transient port conflicts self-heal.
	node, err := esnode.StartWithRetry(processCtx, ctx, esnode.Config{
		Binary:       i.cfg.ServerBinary,
		HomeDir:      i.cfg.HomeDir,
		BaseDir:      i.dataDir,
		ClusterName:  i.clusterName,
		SeedDataPath: i.cfg.SeedDataPath,
		Settings:     i.cfg.Settings,
		ReadyTimeout: i.cfg.StartTimeout,
		PortRegistry: i.ports,
		Logger:       i.log,
	}, i.cfg.MaxStartRetries, i.cfg.StopTimeout)
	if err != nil {
		cancel()
		return fmt.Errorf("start server: %w", err)
	}

	// Install process handles under startMu (already held by caller),
	// then publish started=true. The atomic store creates a happens-before
	// edge so any reader that sees started==true also sees node/cancel.
	i.cancel = cancel
	i.node = node
	i.started.Store(true)

	i.log.Debug("instance started successfully",
		"url", node.URL(), "total_elapsed", time.Since(startTime))
	return nil
}

// URL returns the HTTP base URL of this instance's server, e.g.
// "http://127.0.0.1:39201". It must be called while the instance is acquired
// (between Acquire and Release).
//
// Returns ErrInstanceReleased if the instance has been released back to the pool.
// Returns ErrNotStarted if the instance has not been started yet.
func (i *Instance) URL() (string, error) {
	node, err := i.acquiredNode()
	if err != nil {
		return "", err
	}
	return node.URL(), nil
}

// HTTPPort returns the HTTP port of this instance's server. Same acquisition
// contract as URL.
func (i *Instance) HTTPPort() (int, error) {
	node, err := i.acquiredNode()
	if err != nil {
		return 0, err
	}
	return node.HTTPPort(), nil
}

// ClusterName returns the cluster name of this instance's server. Same
// acquisition contract as URL.
func (i *Instance) ClusterName() (string, error) {
	node, err := i.acquiredNode()
	if err != nil {
		return "", err
	}
	return node.ClusterName(), nil
}

// Client returns an API client connected to this instance's server.
// The client is cached: repeated calls return the same client until Stop
// clears it. It must be called while the instance is acquired (between
// Acquire and Release).
//
// Returns ErrInstanceReleased if the instance has been released back to the pool.
// Returns ErrNotStarted if the instance has not been started yet.
//
// TOCTOU note: there is a deliberate time-of-check-time-of-use window between
// the busy/started checks and the subsequent client construction. Between
// those two steps, a concurrent goroutine could theoretically call Release or
// Stop, making the state snapshot stale. This is acceptable because the
// Instance contract requires callers to hold the instance via Acquire for the
// entire duration of use. A correctly written caller never races Client
// against Release on the same instance. The busy/started checks therefore
// serve as guards against programmer error (e.g., calling Client after
// Release), not as concurrency-safe guarantees.
func (i *Instance) Client() (*elasticsearch.Client, error) {
	node, err := i.acquiredNode()
	if err != nil {
		return nil, err
	}
	if c := i.cachedClient.Load(); c != nil {
		return c, nil
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{node.URL()},
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	i.cachedClient.CompareAndSwap(nil, client)
	return i.cachedClient.Load(), nil
}

// acquiredNode validates the acquisition contract and returns the running
// node. The node pointer is read under startMu to pair with doStart/Stop.
func (i *Instance) acquiredNode() (*esnode.Node, error) {
	if i.gen.Load()%2 == 0 {
		return nil, ErrInstanceReleased
	}
	if !i.started.Load() {
		return nil, ErrNotStarted
	}
	i.startMu.Lock()
	node := i.node
	i.startMu.Unlock()
	if node == nil {
		return nil, ErrNotStarted
	}
	return node, nil
}

// Stop shuts down the server process. The provided context allows callers to
// bound the stop duration or cancel it early. If the context has a deadline,
// the effective timeout is the minimum of the context's remaining time and the
// configured StopTimeout. If the context has no deadline, the configured
// StopTimeout is used as a fallback.
//
// Safe for concurrent calls with Start: startMu serializes them so Stop
// cannot run while Start is launching the process (and vice versa).
func (i *Instance) Stop(ctx context.Context) error {
	// Fail fast if the caller has already canceled the context, to avoid
	// acquiring startMu and doing unnecessary work.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("stop instance: %w", err)
	}

	i.startMu.Lock()
	defer i.startMu.Unlock()

	// Clear state under startMu, then publish started=false.
	node := i.node
	cancel := i.cancel
	i.node = nil
	i.cancel = nil
	i.cachedClient.Store(nil)
	i.started.Store(false)

	if cancel != nil {
		cancel()
	}

	if node == nil {
		return nil
	}

	timeout := i.effectiveStopTimeout(ctx)
	err := node.Stop(timeout)
	node.Close()
	if err != nil {
		return fmt.Errorf("stop server: %w", err)
	}
	return nil
}

// effectiveStopTimeout returns the stop timeout to use, choosing the smaller
// of the context's remaining time and the configured StopTimeout. If the
// context has no deadline, the configured StopTimeout is used.
func (i *Instance) effectiveStopTimeout(ctx context.Context) time.Duration {
	timeout := i.cfg.StopTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	// Ensure a non-negative timeout; a zero or negative value would cause
	// immediate expiry in the underlying stop sequence.
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	return timeout
}

// Release marks the Instance as free and returns it to the pool.
//
// The behavior depends on the ReleaseStrategy configured on the Manager:
//
//   - ReleaseRestart: stops the server. The next Acquire starts a fresh one
//     with the data directory reset (restored from the seed template when
//     seed data is configured). No API-level cleanup is needed.
//   - ReleaseWipe: deletes all data streams and indices through the HTTP API
//     and returns the still-running instance to the pool. Faster than
//     ReleaseRestart but relies on cleanup correctness: cluster-level state
//     (templates, pipelines, persistent settings) survives.
//   - ReleaseNone: returns the instance to the pool immediately with no
//     cleanup. Use only when tests use unique index names.
//
// Error semantics:
//   - ReleaseNone always returns nil (no cleanup to fail).
//   - ReleaseWipe returns nil on success. If index cleanup fails, the
//     instance is marked as permanently failed via ReleaseFailed and the
//     error is returned. Using defer inst.Release() is safe.
//   - ReleaseRestart returns nil on success. If Stop fails, the instance
//     is marked as permanently failed via ReleaseFailed. The error is
//     informational: no corrective action is required.
//
// The shutdown check and pool release are performed atomically via
// the InstanceReleaser to prevent a TOCTOU race. If the manager is shutting
// down, the instance is stopped instead of being returned to the pool.
func (i *Instance) Release(token uint64) error {
	if i.releaser == nil {
		panic("esenv: Release called on instance with nil releaser")
	}

	// Validate the token before performing any side effects. A stale token
	// means this release is from a prior acquisition — the instance has
	// already been released and re-acquired by another goroutine. Running
	// cleanup (index deletion) with a stale token would corrupt the current
	// holder's state. Panic immediately, matching the double-release panic
	// contract from Pool.Release/tryRelease.
	//
	// Token validity window: there is a gap between this isCurrentToken
	// check and the eventual ReleaseToPool/ReleaseFailed call below. During
	// this window the token remains valid (gen is still odd/acquired) because
	// only this goroutine holds the instance — the pool contract guarantees
	// at most one holder per acquisition. No other goroutine can call
	// markAcquired (which would advance gen) until tryRelease completes
	// inside ReleaseToPool or ReleaseFailed.
	if !i.isCurrentToken(token) {
		panic("esenv: double-release of instance " + i.id)
	}

	switch i.cfg.ReleaseStrategy {
	case ReleaseNone:
		// Skip all cleanup — return to pool immediately.

	case ReleaseWipe:
		// Delete all data streams and indices before returning to pool, so
		// the next consumer gets an empty server without paying the restart
		// cost. Only run if the instance has a running server to talk to.
		if i.started.Load() {
			wipeCtx, wipeCancel := context.WithTimeout(context.Background(), i.cfg.WipeTimeout)
			err := i.wipeData(wipeCtx)
			wipeCancel()
			if err != nil {
				wipeErr := fmt.Errorf("index cleanup during release: %w", err)
				i.setErr(wipeErr)
				i.releaser.ReleaseFailed(i, token)
				return wipeErr
			}
		}

	case ReleaseRestart:
		// Stop the server. The next Acquire will start fresh with the data
		// directory reset, so no API-level cleanup is needed.
		ctx, cancel := context.WithTimeout(context.Background(), i.cfg.StopTimeout)
		defer cancel()
		if err := i.Stop(ctx); err != nil {
			stopErr := fmt.Errorf("stop during release: %w", err)
			i.setErr(stopErr)
			i.releaser.ReleaseFailed(i, token)
			return stopErr
		}

	default:
		// All valid strategies are handled above. An unknown value here
		// indicates a programmer error — the strategy is validated at
		// construction time by InstanceConfig.Validate, so this branch
		// should be unreachable.
		panic(fmt.Sprintf("esenv: unknown release strategy: %v", i.cfg.ReleaseStrategy))
	}

	// Atomically check shutdown state and release to pool. This eliminates
	// the TOCTOU race where Shutdown could start between checking the
	// manager state and calling pool.Release.
	i.releaser.ReleaseToPool(i, token)
	return nil
}
