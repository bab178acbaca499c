package esnode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/giantswarm/esenv/internal/eshome"
	"github.com/giantswarm/esenv/internal/fileutil"
	"github.com/giantswarm/esenv/internal/netutil"
	"github.com/giantswarm/esenv/internal/process"
)

// readinessPollInterval is the interval between consecutive cluster health
// probes when waiting for the server to become ready. JVM startup dominates
// the wait, so probing more often than this buys nothing.
const readinessPollInterval = 200 * time.Millisecond

// readinessRequestTimeout is the per-attempt timeout for the HTTP request
// used in readiness checks. Early attempts fail immediately with a
// connection-refused error while the server is not yet listening; this
// timeout only guards against a socket that accepts but never answers.
const readinessRequestTimeout = 2 * time.Second

// defaultJavaOpts caps the JVM heap so several concurrent nodes fit in the
// memory of a typical CI machine. Callers can override via Config.JavaOpts.
const defaultJavaOpts = "-Xms256m -Xmx512m"

// DefaultMaxPortRetries is the default number of startup retries for
// transient failures such as port conflicts during node startup.
const DefaultMaxPortRetries = 3

// Compile-time interface satisfaction check.
var _ process.Stoppable = (*Node)(nil)

// Config holds the configuration for a single Elasticsearch server node.
type Config struct {
	// Required
	Binary  string // Path to the elasticsearch launch script
	HomeDir string // ES home; its config dir supplies jvm.options etc.
	BaseDir string // Instance directory; config/, data/, and logs/ live under it

	// Optional
	ClusterName  string   // Unique cluster name (required; generated by the caller)
	SeedDataPath string   // Optional: data directory template copied in before start
	Settings     Settings // Optional: elasticsearch.yml overrides, last write wins
	JavaOpts     string   // Optional: ES_JAVA_OPTS value (default caps the heap)

	// ReadyTimeout bounds the wait for the cluster health endpoint.
	ReadyTimeout time.Duration

	// PortRegistry coordinates port allocation across concurrent nodes.
	// Required: callers must provide a shared PortRegistry to prevent
	// duplicate port allocation. Typically created once per Manager and
	// shared across all instances.
	PortRegistry *netutil.PortRegistry

	// Logger (optional, defaults to slog.Default())
	Logger *slog.Logger
}

// Node manages a single Elasticsearch server process: directory layout,
// rendered configuration, the OS process, and readiness polling.
type Node struct {
	// Immutable after New: configuration, logger, and shared port registry.
	config Config
	log    *slog.Logger
	ports  *netutil.PortRegistry

	// Set by Start, cleared by Stop: process handle and allocated ports.
	base          process.BaseProcess
	httpPort      int
	transportPort int
	started       bool
}

// validate checks that all required Config fields are set and returns an error
// describing every violation found. It uses errors.Join to report multiple
// issues at once, allowing callers to fix all problems in a single pass rather
// than playing whack-a-mole with one error at a time.
func (c Config) validate() error {
	var errs []error

	if c.Binary == "" {
		errs = append(errs, errors.New("binary path must not be empty"))
	}
	if c.HomeDir == "" {
		errs = append(errs, errors.New("home dir must not be empty"))
	}
	if c.BaseDir == "" {
		errs = append(errs, errors.New("base dir must not be empty"))
	}
	if c.ClusterName == "" {
		errs = append(errs, errors.New("cluster name must not be empty"))
	}
	if c.PortRegistry == nil {
		errs = append(errs, errors.New("port registry must not be nil"))
	}
	if c.ReadyTimeout <= 0 {
		errs = append(errs, errors.New("ready timeout must be positive"))
	}

	return errors.Join(errs...)
}

// New creates a new Node. Does not start the process or touch the
// filesystem; all side effects are deferred to Start. Returns an error if
// any required field is missing or invalid.
func New(cfg Config) (*Node, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid esnode config: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Node{
		config: cfg,
		log:    log,
		ports:  cfg.PortRegistry,
		base:   process.NewBaseProcess("elasticsearch", log, process.DefaultStopTimeout),
	}, nil
}

// ConfigDir returns the instance's private config directory.
func (n *Node) ConfigDir() string { return filepath.Join(n.config.BaseDir, "config") }

// DataDir returns the instance's data directory.
func (n *Node) DataDir() string { return filepath.Join(n.config.BaseDir, "data") }

// LogsDir returns the instance's logs directory. Server logs and the
// captured stdout/stderr both land here.
func (n *Node) LogsDir() string { return filepath.Join(n.config.BaseDir, "logs") }

// HTTPPort returns the allocated HTTP port, or 0 before Start.
func (n *Node) HTTPPort() int { return n.httpPort }

// TransportPort returns the allocated transport port, or 0 before Start.
func (n *Node) TransportPort() int { return n.transportPort }

// ClusterName returns the configured cluster name.
func (n *Node) ClusterName() string { return n.config.ClusterName }

// URL returns the base URL of the node's HTTP API. Only meaningful after
// Start has succeeded.
func (n *Node) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", n.httpPort)
}

// StderrPath returns the path of the captured stderr log, for inclusion in
// startup failure diagnostics. Empty before Start.
func (n *Node) StderrPath() string { return n.base.StderrPath() }

// Start prepares the instance directories and launches the server process.
//
// Preparation order: allocate an HTTP/transport port pair, lay out the
// data directory (copied from SeedDataPath when set, otherwise emptied so
// a restarted instance does not resurrect the previous test's indices),
// populate the config directory, then exec the launch script with
// ES_PATH_CONF pointing at the private config directory.
//
// ctx governs the OS process lifetime: it is passed to exec.CommandContext,
// so canceling it kills the server. Callers typically derive it from
// context.Background so the process outlives the startup call and persists
// until Stop.
//
// Start is not safe for concurrent use. Each Node is owned by a single
// Instance whose startMu serializes lifecycle calls.
func (n *Node) Start(ctx context.Context) (retErr error) {
	if ctx == nil {
		return errors.New("ctx must not be nil")
	}
	if n.started || n.base.IsStarted() {
		return process.ErrAlreadyStarted
	}

	startTime := time.Now()

	httpPort, transportPort, err := n.ports.AllocatePortPair()
	if err != nil {
		return fmt.Errorf("allocate ports: %w", err)
	}
	n.httpPort = httpPort
	n.transportPort = transportPort
	n.log.Debug("ports allocated", "http_port", httpPort, "transport_port", transportPort)

	defer func() {
		if retErr != nil {
			n.releasePorts()
		}
	}()

	if n.config.SeedDataPath != "" {
		// Restore from the seed template so the node starts with the
		// fixture data already indexed.
		if err := fileutil.ReplaceDir(n.config.SeedDataPath, n.DataDir()); err != nil {
			return fmt.Errorf("seed data dir: %w", err)
		}
	} else {
		// No template: remove any stale data so the server creates a fresh
		// cluster state. Without this, a restarted instance would reopen
		// the previous test's indices, leaking state across acquisitions.
		if err := os.RemoveAll(n.DataDir()); err != nil {
			return fmt.Errorf("remove stale data dir: %w", err)
		}
		if err := fileutil.EnsureDir(n.DataDir()); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	if err := fileutil.EnsureDir(n.LogsDir()); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}

	rc := renderConfig{
		ClusterName:   n.config.ClusterName,
		NodeName:      n.config.ClusterName + "-0",
		HTTPPort:      httpPort,
		TransportPort: transportPort,
		DataDir:       n.DataDir(),
		LogsDir:       n.LogsDir(),
	}
	if err := writeConfigDir(n.ConfigDir(), eshome.ConfigDir(n.config.HomeDir), rc, n.config.Settings); err != nil {
		return fmt.Errorf("write config dir: %w", err)
	}

	javaOpts := n.config.JavaOpts
	if javaOpts == "" {
		javaOpts = defaultJavaOpts
	}

	cmd := exec.CommandContext(ctx, n.config.Binary)
	cmd.Dir = n.config.BaseDir
	cmd.Env = append(os.Environ(),
		"ES_PATH_CONF="+n.ConfigDir(),
		"ES_JAVA_OPTS="+javaOpts,
	)
	if err := n.base.SetupAndStart(cmd, n.LogsDir()); err != nil {
		return fmt.Errorf("setup and start elasticsearch process: %w", err)
	}

	n.started = true
	n.log.Debug("elasticsearch process launched",
		"http_port", httpPort, "elapsed", time.Since(startTime))
	return nil
}

// clusterHealth is the subset of the /_cluster/health response consulted
// during readiness checks.
type clusterHealth struct {
	Status string `json:"status"`
}

// WaitReady polls the node's cluster health endpoint until the cluster
// reports green or yellow status. Yellow is accepted because a single-node
// cluster can never allocate replica shards, so green is unreachable for
// any index with replicas configured.
//
// If the server process exits before becoming ready (e.g., a config it
// rejects), WaitReady aborts immediately instead of polling out the full
// timeout.
func (n *Node) WaitReady(ctx context.Context) error {
	url := n.URL() + "/_cluster/health"

	// Keep-alives are disabled because the polling connection would pin a
	// socket to a server that is about to be stopped and restarted many
	// times over the pool's lifetime.
	client := &http.Client{
		Timeout:   readinessRequestTimeout,
		Transport: &http.Transport{DisableKeepAlives: true},
	}
	defer client.CloseIdleConnections()

	if err := process.WaitReady(ctx, process.WaitReadyConfig{
		Interval:      readinessPollInterval,
		Timeout:       n.config.ReadyTimeout,
		Name:          "elasticsearch",
		Port:          n.httpPort,
		Logger:        n.log,
		ProcessExited: n.base.Exited(),
	}, func(checkCtx context.Context, attempt int) (bool, error) {
		req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, url, nil)
		if err != nil {
			return false, fmt.Errorf("build health request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			n.log.Debug("health probe attempt", "port", n.httpPort, "attempt", attempt, "error", err)
			return false, nil // Not listening yet
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			n.log.Debug("health probe attempt", "port", n.httpPort, "attempt", attempt, "status", resp.StatusCode)
			return false, nil // Listening but not serving health yet
		}

		var health clusterHealth
		if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
			return false, nil // Truncated response during startup
		}
		switch health.Status {
		case "green", "yellow":
			return true, nil
		default:
			n.log.Debug("health probe attempt", "port", n.httpPort, "attempt", attempt, "cluster_status", health.Status)
			return false, nil
		}
	}); err != nil {
		return n.decorateStartupError(err)
	}
	return nil
}

// decorateStartupError points the caller at the captured server stderr,
// which holds the actual failure reason (bootstrap check failures, bad
// settings) when startup fails or times out.
func (n *Node) decorateStartupError(err error) error {
	if path := n.StderrPath(); path != "" {
		return fmt.Errorf("elasticsearch not ready (see %s): %w", path, err)
	}
	return fmt.Errorf("elasticsearch not ready: %w", err)
}

// Stop terminates the server process and releases the allocated ports back
// to the registry.
//
// Stop is not safe for concurrent use. Each Node is owned by a single
// Instance whose startMu serializes lifecycle calls.
func (n *Node) Stop(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("stop timeout must be positive, got %s", timeout)
	}
	if !n.started {
		return nil
	}
	n.started = false

	err := n.base.Stop(timeout)
	n.releasePorts()
	if err != nil {
		return fmt.Errorf("stop elasticsearch: %w", err)
	}
	return nil
}

// Close releases log file handles held by the process.
func (n *Node) Close() {
	n.base.Close()
}

// releasePorts releases allocated ports back to the registry and zeroes
// the stored values. Safe to call when ports are already zero (no-op).
func (n *Node) releasePorts() {
	if n.httpPort != 0 {
		n.ports.Release(n.httpPort)
		n.httpPort = 0
	}
	if n.transportPort != 0 {
		n.ports.Release(n.transportPort)
		n.transportPort = 0
	}
}

// StartWithRetry creates and starts a node, retrying up to maxRetries times
// on transient failures (e.g., a port stolen between kernel allocation and
// server bind). Each retry creates a fresh Node via [New], whose Start
// allocates new ports via [netutil.PortRegistry], resolving the root cause
// of port collisions without backoff.
//
// Config validation errors from [New] are permanent and not retried.
// The readyCtx is checked before each attempt to avoid pointless retries
// after timeout. On failure, each partially-started node is stopped using
// stopTimeout to release allocated ports.
func StartWithRetry(
	procCtx, readyCtx context.Context,
	cfg Config,
	maxRetries int,
	stopTimeout time.Duration,
) (*Node, error) {
	if procCtx == nil {
		return nil, errors.New("procCtx must not be nil")
	}
	if readyCtx == nil {
		return nil, errors.New("readyCtx must not be nil")
	}
	if maxRetries < 1 {
		return nil, fmt.Errorf("maxRetries must be >= 1, got %d", maxRetries)
	}
	if stopTimeout <= 0 {
		return nil, fmt.Errorf("stopTimeout must be positive, got %s", stopTimeout)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		select {
		case <-readyCtx.Done():
			if lastErr != nil {
				return nil, errors.Join(
					fmt.Errorf("context canceled after %d attempts: %w", attempt-1, readyCtx.Err()),
					fmt.Errorf("last attempt error: %w", lastErr),
				)
			}
			return nil, readyCtx.Err()
		default:
		}

		node, err := New(cfg)
		if err != nil {
			return nil, fmt.Errorf("create esnode: %w", err)
		}

		err = node.Start(procCtx)
		if err == nil {
			err = node.WaitReady(readyCtx)
		}
		if err != nil {
			lastErr = err
			log.Warn("elasticsearch start attempt failed",
				"attempt", attempt,
				"max_retries", maxRetries,
				"error", err,
			)
			if stopErr := node.Stop(stopTimeout); stopErr != nil {
				log.Warn("cleanup partially-started node", "error", stopErr)
			}
			node.Close()
			continue
		}

		if attempt > 1 {
			log.Info("elasticsearch start succeeded after retry", "attempt", attempt)
		}
		return node, nil
	}

	return nil, fmt.Errorf("start elasticsearch after %d attempts: %w", maxRetries, lastErr)
}
