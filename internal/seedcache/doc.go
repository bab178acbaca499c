// Package seedcache builds and reuses pre-indexed Elasticsearch data
// directories from NDJSON seed files.
//
// Bulk-loading fixture documents on every test run is the slowest part of a
// seeded instance's startup. The cache pays that cost once per unique seed
// content: a throwaway node is started, the seed files are bulk-indexed,
// the node is stopped to flush its segments, and the data directory is
// copied into the cache keyed by a content hash of the seed files. Later
// runs (and concurrent processes, coordinated via a file lock) copy the
// cached directory instead of re-indexing. A SQLite ledger records when
// each cache was last used so PurgeStale can expire abandoned entries.
package seedcache
