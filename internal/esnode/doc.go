// Package esnode manages a single disposable Elasticsearch server process.
//
// A Node owns an instance directory containing rendered configuration
// (elasticsearch.yml plus files copied from the installation), a data
// directory optionally seeded from a template, and a logs directory. Start
// launches the server launch script with ES_PATH_CONF pointing at the
// private config directory; WaitReady polls the cluster health endpoint;
// Stop terminates the process and releases its ports. StartWithRetry wraps
// the sequence with retries for transient port conflicts.
package esnode
