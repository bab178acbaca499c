// Package core implements the instance pool behind the public esenv API.
//
// A Manager owns a Pool of Instance objects, each wrapping one disposable
// Elasticsearch server process (internal/esnode). Instances are created on
// demand, started lazily on first acquisition, and returned to the pool
// according to the configured ReleaseStrategy. Seed data is prepared once per
// seed-file set via internal/seedcache and copied into each instance's data
// directory before its server starts.
package core
