package esenv

import (
	"context"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
)

// Manager coordinates a pool of Elasticsearch server instances for testing.
//
// Callers must follow this lifecycle ordering:
//
//	NewManager → Initialize → Acquire/Release (repeatable) → Shutdown
//
// Initialize must be called before Acquire. Shutdown is safe to call at any
// point, including before Initialize. See each method's documentation for
// detailed error conditions.
type Manager interface {
	// Initialize performs expensive initialization operations: locating the
	// Elasticsearch installation, building the seed cache when seed data is
	// configured, and preparing the pool.
	// Must be called before Acquire. Returns error instead of panicking.
	// Safe to call multiple times: after a successful initialization,
	// subsequent calls return nil immediately. If initialization fails,
	// subsequent calls retry instead of returning a cached error permanently.
	//
	// Returns an error wrapping ErrBinaryNotFound if no Elasticsearch
	// installation could be located.
	Initialize(ctx context.Context) error

	// Acquire gets an instance from the pool, creating one on demand if none
	// are free. Implements lazy start: the instance's server process is
	// started on first acquisition.
	//
	// When a pool size limit is configured (WithPoolSize), Acquire blocks if
	// all instances are in use and unblocks when one is released.
	//
	// The acquireTimeout (configured via WithAcquireTimeout) covers both the
	// time spent waiting for a free instance and server startup time.
	// Server startup typically takes 10-30 seconds.
	//
	// Returns ErrNotInitialized if Initialize has not been called.
	// Returns ErrShuttingDown if the manager is shutting down.
	Acquire(ctx context.Context) (Instance, error)

	// Shutdown stops all instances and deletes their data directories.
	// Safe to call even if Initialize was never called.
	// Returns an error if any instance fails to stop.
	Shutdown() error
}

// Instance represents an acquired disposable Elasticsearch server.
// It exposes only the methods needed by test consumers. Lifecycle management
// (Start, Stop, state queries) is handled internally by the Manager and pool.
//
// All accessors must be called while the instance is acquired (between
// Acquire and Release) and return ErrInstanceReleased afterwards. Callers
// must not call accessors concurrently with Release on the same instance.
type Instance interface {
	// Client returns a go-elasticsearch client connected to this instance's
	// server. The client is cached; repeated calls return the same client.
	Client() (*elasticsearch.Client, error)

	// URL returns the HTTP base URL of the server, e.g. "http://127.0.0.1:39201".
	URL() (string, error)

	// HTTPPort returns the HTTP port the server listens on.
	HTTPPort() (int, error)

	// ClusterName returns the unique cluster name of this instance's server.
	ClusterName() (string, error)

	// Release returns the instance to the pool. The behavior depends on the
	// ReleaseStrategy configured on the Manager:
	//
	//   - ReleaseRestart (default): stops the server. The next Acquire
	//     starts fresh with the data directory reset from the seed template.
	//   - ReleaseWipe: deletes all data streams and indices via the HTTP
	//     API, keeps the server running.
	//   - ReleaseNone: returns immediately with no cleanup.
	//
	// On success, returns nil. Using defer inst.Release() is safe.
	// On error (cleanup or stop failure), the instance is marked as
	// permanently failed and removed from the pool. The error is
	// informational: no corrective action is required.
	Release() error

	// ID returns a unique identifier for this instance.
	ID() string
}
