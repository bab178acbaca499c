package esenv

import "github.com/giantswarm/esenv/internal/core"

// ReleaseStrategy controls what happens when an Instance is released back to
// the pool. See the individual constant documentation for details on each
// strategy's behavior and trade-offs.
//
// ReleaseStrategy is a type alias (not a named type) so that the underlying
// [core.ReleaseStrategy] methods are part of the public API:
//
//   - IsValid reports whether the value is a recognized strategy.
//   - String returns the strategy name (implements [fmt.Stringer]).
//
// This is intentional: callers can validate and print strategy values without
// the public package needing to redeclare these methods.
//
// Audit: new methods added to core.ReleaseStrategy automatically become
// part of the public API through this alias.
type ReleaseStrategy = core.ReleaseStrategy

const (
	// ReleaseRestart stops the server without performing any API-level
	// cleanup. The next Acquire starts a fresh server with the data
	// directory restored from the seed template (or emptied when no seed
	// data is configured). This is the default strategy.
	ReleaseRestart = core.ReleaseRestart

	// ReleaseWipe deletes all data streams and indices via the HTTP API but
	// keeps the server (and its warm JVM) running. Faster than
	// ReleaseRestart but relies on cleanup correctness for isolation:
	// cluster-level state such as index templates survives.
	ReleaseWipe = core.ReleaseWipe

	// ReleaseNone performs no cleanup. The instance is returned to the pool
	// as-is. Use only when tests use unique index names and never share state.
	ReleaseNone = core.ReleaseNone
)
