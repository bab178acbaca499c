// Package eshome locates a local Elasticsearch installation.
//
// Locate checks the ES_HOME environment variable, well-known package paths,
// the PATH, and version-suffixed directories in that order, returning the
// installation directory (ES home) or ErrNotFound.
package eshome
