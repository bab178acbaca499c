package process

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestWaitReady_ZeroInterval(t *testing.T) {
	err := WaitReady(context.Background(), WaitReadyConfig{
		Interval: 0,
		Timeout:  5 * time.Second,
		Name:     "test-proc",
		Port:     9200,
	}, func(_ context.Context, _ int) (bool, error) {
		t.Fatal("check should not be called with zero interval")
		return false, nil
	})
	if err == nil {
		t.Fatal("expected error for zero interval, got nil")
	}
	if !errors.Is(err, ErrIntervalNotPositive) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWaitReady_NegativeInterval(t *testing.T) {
	err := WaitReady(context.Background(), WaitReadyConfig{
		Interval: -1 * time.Second,
		Timeout:  5 * time.Second,
		Name:     "test-proc",
		Port:     9200,
	}, func(_ context.Context, _ int) (bool, error) {
		t.Fatal("check should not be called with negative interval")
		return false, nil
	})
	if err == nil {
		t.Fatal("expected error for negative interval, got nil")
	}
	if !errors.Is(err, ErrIntervalNotPositive) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWaitReady_ZeroTimeout(t *testing.T) {
	err := WaitReady(context.Background(), WaitReadyConfig{
		Interval: 100 * time.Millisecond,
		Timeout:  0,
		Name:     "test-proc",
		Port:     9200,
	}, func(_ context.Context, _ int) (bool, error) {
		t.Fatal("check should not be called with zero timeout")
		return false, nil
	})
	if err == nil {
		t.Fatal("expected error for zero timeout, got nil")
	}
	if !errors.Is(err, ErrTimeoutNotPositive) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWaitReady_EmptyName(t *testing.T) {
	err := WaitReady(context.Background(), WaitReadyConfig{
		Interval: 100 * time.Millisecond,
		Timeout:  5 * time.Second,
	}, func(_ context.Context, _ int) (bool, error) {
		t.Fatal("check should not be called with empty name")
		return false, nil
	})
	if err == nil {
		t.Fatal("expected error for empty name, got nil")
	}
	if !strings.Contains(err.Error(), "name must not be empty") {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestWaitReady_SucceedsAfterRetries(t *testing.T) {
	t.Parallel()

	var attempts []int
	err := WaitReady(context.Background(), WaitReadyConfig{
		Interval: 5 * time.Millisecond,
		Timeout:  5 * time.Second,
		Name:     "test-proc",
		Port:     9200,
	}, func(_ context.Context, attempt int) (bool, error) {
		attempts = append(attempts, attempt)
		return attempt >= 3, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(attempts))
	}
	for i, a := range attempts {
		if a != i+1 {
			t.Errorf("attempt %d reported as %d", i+1, a)
		}
	}
}

func TestWaitReady_FatalCheckError(t *testing.T) {
	t.Parallel()

	fatal := errors.New("config rejected")
	calls := 0
	err := WaitReady(context.Background(), WaitReadyConfig{
		Interval: 5 * time.Millisecond,
		Timeout:  5 * time.Second,
		Name:     "test-proc",
		Port:     9200,
	}, func(_ context.Context, _ int) (bool, error) {
		calls++
		return false, fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error to propagate, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("fatal error should abort polling after 1 call, got %d", calls)
	}
}

func TestWaitReady_TimesOut(t *testing.T) {
	t.Parallel()

	err := WaitReady(context.Background(), WaitReadyConfig{
		Interval: 5 * time.Millisecond,
		Timeout:  50 * time.Millisecond,
		Name:     "test-proc",
		Port:     9200,
	}, func(_ context.Context, _ int) (bool, error) {
		return false, nil
	})
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if !strings.Contains(err.Error(), "test-proc") {
		t.Fatalf("error should name the process: %v", err)
	}
}

func TestWaitReady_ProcessExited(t *testing.T) {
	t.Parallel()

	// Pre-close the channel to simulate a process that has already exited.
	exited := make(chan struct{})
	close(exited)

	start := time.Now()
	err := WaitReady(context.Background(), WaitReadyConfig{
		Interval:      100 * time.Millisecond,
		Timeout:       10 * time.Second,
		Name:          "test-proc",
		Port:          9200,
		ProcessExited: exited,
	}, func(_ context.Context, _ int) (bool, error) {
		// Should never be called because the exited check fires first.
		t.Fatal("readiness check should not have been called")
		return false, nil
	})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, ErrProcessExited) {
		t.Fatalf("unexpected error: %v", err)
	}
	// The function should return almost immediately, well under 1 second.
	if elapsed > time.Second {
		t.Fatalf("expected fast abort, took %v", elapsed)
	}
}

func TestWaitReady_NilProcessExited(t *testing.T) {
	t.Parallel()

	// When ProcessExited is nil, WaitReady should behave normally.
	err := WaitReady(context.Background(), WaitReadyConfig{
		Interval: 10 * time.Millisecond,
		Timeout:  5 * time.Second,
		Name:     "test-proc",
		Port:     9200,
	}, func(_ context.Context, _ int) (bool, error) {
		// Succeed on first attempt.
		return true, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
