package esenv

import (
	"github.com/giantswarm/esenv/internal/core"
	"github.com/giantswarm/esenv/internal/eshome"
)

// Sentinel errors for error inspection with errors.Is.
// These are immutable constants safe for use in wrapped error chain comparison.
const (
	// ErrShuttingDown is returned by Acquire when the manager is shutting down.
	ErrShuttingDown = core.ErrShuttingDown

	// ErrNotInitialized is returned by Acquire when Initialize has not been called.
	ErrNotInitialized = core.ErrNotInitialized

	// ErrPoolClosed is returned when Acquire is called on a pool that has
	// been closed during shutdown.
	ErrPoolClosed = core.ErrPoolClosed

	// ErrInstanceReleased is returned by Instance accessors when called after
	// Release. After release, the instance may be re-acquired by another
	// consumer, making any previously obtained connection details stale.
	ErrInstanceReleased = core.ErrInstanceReleased

	// ErrNotStarted is returned by Instance accessors when the instance's
	// server process has not been launched yet.
	ErrNotStarted = core.ErrNotStarted

	// ErrNoSeedFiles is returned by Initialize when the seed directory
	// contains no NDJSON files.
	ErrNoSeedFiles = core.ErrNoSeedFiles

	// ErrBinaryNotFound is returned by Initialize when no Elasticsearch
	// installation could be located. Set ES_HOME, or use
	// WithElasticsearchHome or WithServerBinary to point at an installation.
	ErrBinaryNotFound = eshome.ErrNotFound
)
