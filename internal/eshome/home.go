package eshome

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/giantswarm/esenv/internal/sentinel"
)

// ErrNotFound is returned when no Elasticsearch installation can be located.
const ErrNotFound = sentinel.Error("elasticsearch installation not found")

// searchPaths lists well-known installation directories checked after the
// ES_HOME environment variable. The Debian/RPM packages install here.
var searchPaths = []string{
	"/usr/share/elasticsearch",
}

// globPatterns lists glob patterns for version-suffixed installations
// (e.g., a tarball unpacked as /usr/local/elasticsearch-8.14.0, or a
// Homebrew keg). When several match, the newest version wins.
var globPatterns = []string{
	"/usr/local/*elasticsearch*",
	"/opt/*elasticsearch*",
	"*elasticsearch*",
	"/usr/local/Cellar/elasticsearch/*/libexec",
}

// Locate finds an Elasticsearch installation directory (ES home).
//
// The search order is:
//  1. The ES_HOME environment variable, if it points at a directory
//     containing bin/elasticsearch.
//  2. Well-known package installation paths (/usr/share/elasticsearch).
//  3. An `elasticsearch` binary on PATH, resolved through symlinks to its
//     installation directory.
//  4. Version-suffixed directories matched by glob patterns under /usr/local,
//     /opt, the working directory, and Homebrew kegs; the directory with the
//     newest version in its name wins.
//
// Returns ErrNotFound (wrapped) when nothing matches.
func Locate() (string, error) {
	if home := os.Getenv("ES_HOME"); home != "" {
		abs, err := filepath.Abs(home)
		if err == nil && hasServerBinary(abs) {
			return abs, nil
		}
	}

	for _, path := range searchPaths {
		if hasServerBinary(path) {
			return path, nil
		}
	}

	if home, ok := locateFromPath(); ok {
		return home, nil
	}

	if home, ok := locateNewestGlobbed(); ok {
		return home, nil
	}

	return "", fmt.Errorf("locate elasticsearch home (set ES_HOME or install the server): %w", ErrNotFound)
}

// Binary returns the path of the server launch script inside home.
func Binary(home string) string {
	return filepath.Join(home, "bin", "elasticsearch")
}

// ConfigDir returns the default configuration directory inside home. The
// files there (jvm.options, log4j2.properties) are copied into each
// instance's private config directory before start.
func ConfigDir(home string) string {
	return filepath.Join(home, "config")
}

func hasServerBinary(home string) bool {
	info, err := os.Stat(Binary(home))
	return err == nil && !info.IsDir()
}

// locateFromPath resolves an `elasticsearch` binary found on PATH back to its
// installation directory. Symlinks (e.g., /usr/local/bin/elasticsearch ->
// /usr/local/elasticsearch-8.14.0/bin/elasticsearch) are followed so the
// returned home contains the real bin/ and config/ directories.
func locateFromPath() (string, bool) {
	bin, err := exec.LookPath("elasticsearch")
	if err != nil {
		return "", false
	}
	resolved, err := filepath.EvalSymlinks(bin)
	if err != nil {
		return "", false
	}
	home := filepath.Dir(filepath.Dir(resolved))
	if !hasServerBinary(home) {
		return "", false
	}
	return home, true
}

// locateNewestGlobbed scans the glob patterns for candidate installation
// directories and returns the one with the newest version in its path.
func locateNewestGlobbed() (string, bool) {
	var candidates []string
	for _, pattern := range globPatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil {
				continue
			}
			if hasServerBinary(abs) {
				candidates = append(candidates, abs)
			}
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return versionLess(parseVersion(candidates[i]), parseVersion(candidates[j]))
	})
	return candidates[len(candidates)-1], true
}

var versionRe = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)

// parseVersion extracts an x.y.z version from a directory path. Paths without
// a version sort before all versioned paths.
func parseVersion(path string) [3]int {
	m := versionRe.FindStringSubmatch(path)
	if m == nil {
		return [3]int{-1, -1, -1}
	}
	var v [3]int
	for i := range 3 {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return [3]int{-1, -1, -1}
		}
		v[i] = n
	}
	return v
}

func versionLess(a, b [3]int) bool {
	for i := range 3 {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
