//go:build integration

package esenv_test

import (
	"context"
	"testing"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"

	"github.com/giantswarm/esenv"
	"github.com/giantswarm/esenv/tests/internal/testutil"
)

// uniqueIndex returns an index name that is unique across all parallel tests.
func uniqueIndex(prefix string) string {
	return testutil.UniqueName(prefix)
}

// acquireWithClient acquires an instance and creates a go-elasticsearch client
// for it. The caller is responsible for releasing the instance.
//
//nolint:ireturn // Test helper returns Instance matching the public API.
func acquireWithClient(ctx context.Context, t *testing.T, mgr esenv.Manager) (esenv.Instance, *elasticsearch.Client) {
	t.Helper()

	return testutil.AcquireWithClient(ctx, t, mgr)
}
