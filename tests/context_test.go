//go:build integration

package esenv_test

import (
	"context"
	"errors"
	"testing"
)

// TestAcquireCanceledContext verifies that Acquire fails fast when the caller's
// context is already canceled, without consuming a pool slot.
func TestAcquireCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := sharedManager.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire with canceled context: err = %v, want context.Canceled", err)
	}
}
