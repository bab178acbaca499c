//go:build integration

package esenv_wipe_test

import (
	"context"
	"testing"

	"github.com/giantswarm/esenv/tests/internal/testutil"
)

// TestReleaseWipeDeletesIndices verifies that Release() with the ReleaseWipe
// strategy deletes all indices but keeps the server process running: the next
// Acquire gets the same instance on the same port with no leftover data.
func TestReleaseWipeDeletesIndices(t *testing.T) {
	ctx := context.Background()

	index := testutil.UniqueName("scratch")

	// First acquisition: write a document.
	inst1, client1 := testutil.AcquireWithClient(ctx, t, sharedManager)
	id1 := inst1.ID()

	port1, err := inst1.HTTPPort()
	if err != nil {
		t.Fatalf("HTTPPort() failed: %v", err)
	}

	testutil.IndexDocument(ctx, t, client1, index, "1", map[string]any{"keep": false})
	if got := testutil.CountDocuments(ctx, t, client1, index); got != 1 {
		t.Fatalf("expected 1 document in %s, got %d", index, got)
	}

	if err := inst1.Release(); err != nil {
		t.Fatalf("release error: %v", err)
	}

	// Second acquisition: pool size is 1, so this is the same instance. The
	// server was never restarted, only its indices were deleted.
	inst2, client2 := testutil.AcquireWithClient(ctx, t, sharedManager)
	defer func() {
		if err := inst2.Release(); err != nil {
			t.Logf("release error: %v", err)
		}
	}()

	if inst2.ID() != id1 {
		t.Fatalf("expected the same instance, got %s then %s", id1, inst2.ID())
	}

	port2, err := inst2.HTTPPort()
	if err != nil {
		t.Fatalf("HTTPPort() failed: %v", err)
	}
	if port2 != port1 {
		t.Errorf("port changed from %d to %d; wipe must not restart the server", port1, port2)
	}

	if testutil.IndexExists(ctx, t, client2, index) {
		t.Errorf("index %s survived the wipe", index)
	}
}

// TestReleaseWipeRepeated runs several write-release cycles to verify the wipe
// leaves the server usable every time.
func TestReleaseWipeRepeated(t *testing.T) {
	ctx := context.Background()

	for cycle := range 3 {
		inst, client := testutil.AcquireWithClient(ctx, t, sharedManager)

		index := testutil.UniqueName("cycle")
		testutil.IndexDocument(ctx, t, client, index, "1", map[string]any{"cycle": cycle})

		if got := testutil.CountDocuments(ctx, t, client, index); got != 1 {
			t.Errorf("cycle %d: expected 1 document in %s, got %d", cycle, index, got)
		}

		if err := inst.Release(); err != nil {
			t.Fatalf("cycle %d: release error: %v", cycle, err)
		}
	}
}
