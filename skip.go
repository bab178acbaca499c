package esenv

import (
	"errors"
	"testing"

	"github.com/giantswarm/esenv/internal/eshome"
)

// SkipIfNotInstalled skips the calling test when no Elasticsearch installation
// can be located on this machine. Use it at the top of tests that launch real
// servers so they degrade to a skip instead of a failure on machines without
// Elasticsearch:
//
//	func TestSearch(t *testing.T) {
//	    esenv.SkipIfNotInstalled(t)
//	    ...
//	}
//
// Discovery follows the same order as Initialize: ES_HOME, well-known install
// directories, PATH, and versioned install locations.
func SkipIfNotInstalled(tb testing.TB) {
	tb.Helper()
	if _, err := eshome.Locate(); err != nil {
		if errors.Is(err, eshome.ErrNotFound) {
			tb.Skipf("skipping: %v", err)
		}
		tb.Fatalf("locate elasticsearch installation: %v", err)
	}
}
