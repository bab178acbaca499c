//go:build integration

// Package testutil provides shared helpers for integration test packages.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"github.com/giantswarm/esenv"
)

// nameCounter is an atomic counter used by UniqueName to generate index
// names that are unique across parallel test goroutines.
var nameCounter atomic.Int64

// UniqueName returns an index name that is unique across all parallel tests.
// It combines the given prefix with a monotonically increasing counter value.
// The prefix must be lowercase; Elasticsearch rejects uppercase index names.
func UniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, nameCounter.Add(1))
}

// TestParallel returns the effective -test.parallel value for the current test
// binary. This mirrors Go's own default: if the flag is unset or unparseable,
// it falls back to GOMAXPROCS.
func TestParallel() int {
	f := flag.Lookup("test.parallel")
	if f == nil {
		n := runtime.GOMAXPROCS(0)
		slog.Info("test.parallel flag not found, falling back to GOMAXPROCS", "parallel", n)

		return n
	}

	n, err := strconv.Atoi(f.Value.String())
	if err != nil || n < 1 {
		fallback := runtime.GOMAXPROCS(0)
		slog.Warn("test.parallel flag unparseable, falling back to GOMAXPROCS",
			"raw", f.Value.String(), "error", err, "parallel", fallback)

		return fallback
	}

	slog.Info("using test.parallel flag value", "parallel", n)

	return n
}

// AcquireWithClient acquires an instance and returns it together with its
// go-elasticsearch client. The caller is responsible for releasing the instance.
//
//nolint:ireturn // Test helper returns Instance matching the public API.
func AcquireWithClient(ctx context.Context, t *testing.T, mgr esenv.Manager) (esenv.Instance, *elasticsearch.Client) {
	t.Helper()

	inst, err := mgr.Acquire(ctx)
	if err != nil {
		t.Fatalf("Failed to acquire instance: %v", err)
	}

	client, err := inst.Client()
	if err != nil {
		if relErr := inst.Release(); relErr != nil {
			t.Logf("release error: %v", relErr)
		}
		t.Fatalf("Failed to get client: %v", err)
	}

	return inst, client
}

// AcquireWithGuardedRelease acquires an instance and client, then registers a
// deferred safety-net release that only fires if the caller has not already
// released the instance explicitly. It returns the instance, client, and a
// release function. Calling the release function performs the explicit release
// and disarms the safety net; subsequent calls to the release function are
// no-ops. The test fails immediately if the explicit release returns an error.
//
//nolint:ireturn // Test helper returns Instance matching the public API.
func AcquireWithGuardedRelease(
	ctx context.Context,
	t *testing.T,
	mgr esenv.Manager,
) (esenv.Instance, *elasticsearch.Client, func()) {
	t.Helper()

	inst, client := AcquireWithClient(ctx, t, mgr)

	var releaseOnce sync.Once
	doRelease := func() {
		if err := inst.Release(); err != nil {
			t.Errorf("Release() failed: %v", err)
		}
	}
	t.Cleanup(func() { releaseOnce.Do(doRelease) })

	release := func() {
		t.Helper()
		releaseOnce.Do(doRelease)
	}

	return inst, client, release
}

// RequireHealthy fails the test unless the instance's cluster reports green or
// yellow health.
func RequireHealthy(ctx context.Context, t *testing.T, client *elasticsearch.Client) {
	t.Helper()

	res, err := client.Cluster.Health(
		client.Cluster.Health.WithContext(ctx),
		client.Cluster.Health.WithWaitForStatus("yellow"),
	)
	if err != nil {
		t.Fatalf("cluster health request: %v", err)
	}
	defer drainBody(res)
	if res.IsError() {
		t.Fatalf("cluster health returned %s", res.Status())
	}
}

// IndexDocument indexes a single document with an immediate refresh so it is
// visible to searches and counts right away. Fails the test on any error.
func IndexDocument(ctx context.Context, t *testing.T, client *elasticsearch.Client, index, id string, doc any) {
	t.Helper()

	res, err := client.Index(
		index,
		esutil.NewJSONReader(doc),
		client.Index.WithDocumentID(id),
		client.Index.WithRefresh("true"),
		client.Index.WithContext(ctx),
	)
	if err != nil {
		t.Fatalf("index document %s/%s: %v", index, id, err)
	}
	defer drainBody(res)
	if res.IsError() {
		t.Fatalf("index document %s/%s returned %s", index, id, res.Status())
	}
}

// CountDocuments returns the number of documents in the given index.
// Fails the test on any error, including a missing index.
func CountDocuments(ctx context.Context, t *testing.T, client *elasticsearch.Client, index string) int {
	t.Helper()

	res, err := client.Count(
		client.Count.WithIndex(index),
		client.Count.WithContext(ctx),
	)
	if err != nil {
		t.Fatalf("count documents in %s: %v", index, err)
	}
	defer drainBody(res)
	if res.IsError() {
		t.Fatalf("count documents in %s returned %s", index, res.Status())
	}

	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode count response for %s: %v", index, err)
	}

	return body.Count
}

// IndexExists reports whether the given index exists on the instance.
func IndexExists(ctx context.Context, t *testing.T, client *elasticsearch.Client, index string) bool {
	t.Helper()

	res, err := client.Indices.Exists(
		[]string{index},
		client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		t.Fatalf("check index %s exists: %v", index, err)
	}
	defer drainBody(res)

	return res.StatusCode == 200
}

// drainBody fully consumes and closes a response body so the underlying HTTP
// connection can be reused.
func drainBody(res *esapi.Response) {
	if res == nil || res.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}

// SetupTestLogging configures slog based on the ESENV_LOG_LEVEL environment variable.
// This only affects test runs - the library itself inherits the application's logging config.
func SetupTestLogging() {
	levelStr := os.Getenv("ESENV_LOG_LEVEL")
	if levelStr == "" {
		levelStr = "INFO"
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	esenv.SetLogger(slog.Default().With("component", "esenv"))
}

// ExitOnInitError inspects an Initialize error and exits the process. A missing
// Elasticsearch installation exits 0 so CI machines without a server skip the
// integration suite instead of failing it; any other error exits 1. This is
// used in TestMain where *testing.T is not available.
func ExitOnInitError(err error, tmpDir string) {
	_ = os.RemoveAll(tmpDir)
	if errors.Is(err, esenv.ErrBinaryNotFound) {
		fmt.Fprintf(os.Stderr, "elasticsearch not installed, skipping integration tests: %v\n", err)
		os.Exit(0)
	}
	fmt.Fprintf(os.Stderr, "Initialize failed: %v\n", err)
	os.Exit(1)
}

// RunTestMain sets up signal handling for graceful shutdown, runs all tests,
// then performs cleanup (shutdown + temp dir removal). Returns the exit code.
func RunTestMain(m *testing.M, mgr esenv.Manager, tmpDir string) int {
	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			signal.Stop(sigCh) // Restore default handler so a second signal force-kills
			fmt.Fprintf(os.Stderr, "\nReceived %s, shutting down...\n", sig)
			if err := mgr.Shutdown(); err != nil {
				fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
			}
			_ = os.RemoveAll(tmpDir)
			os.Exit(1)
		case <-done:
			return
		}
	}()

	code := m.Run()

	signal.Stop(sigCh)
	close(done)
	if err := mgr.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
	}
	_ = os.RemoveAll(tmpDir)

	return code
}

// SetupAndRun handles the standard TestMain boilerplate: flag parsing, logging
// setup, temp dir creation, manager creation with WithBaseDataDir and
// WithAcquireTimeout prepended, initialization, test execution, and cleanup.
// The created manager is assigned to *mgr so tests can reference it. This
// function calls os.Exit and never returns.
//
//nolint:gocritic // ptrToRefParam: pointer-to-interface needed to assign the created manager back to the caller's variable.
func SetupAndRun(m *testing.M, mgr *esenv.Manager, prefix string, opts ...esenv.ManagerOption) {
	SetupAndRunWithHook(m, mgr, prefix, nil, opts...)
}

// SetupHook is called after temp dir creation, allowing custom setup that
// depends on the temp dir path. It returns additional manager options.
type SetupHook func(tmpDir string) ([]esenv.ManagerOption, error)

// SetupAndRunWithHook is like SetupAndRun but calls hook after temp dir
// creation, prepending the returned options before opts.
//
//nolint:gocritic // ptrToRefParam: pointer-to-interface needed to assign the created manager back to the caller's variable.
func SetupAndRunWithHook(
	m *testing.M,
	mgr *esenv.Manager,
	prefix string,
	hook SetupHook,
	opts ...esenv.ManagerOption,
) {
	flag.Parse()
	SetupTestLogging()

	tmpDir, err := os.MkdirTemp("", prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}

	baseOpts := []esenv.ManagerOption{
		esenv.WithBaseDataDir(tmpDir),
		esenv.WithAcquireTimeout(5 * time.Minute),
		esenv.WithPoolSize(TestParallel()),
	}

	if hook != nil {
		extra, hookErr := hook(tmpDir)
		if hookErr != nil {
			fmt.Fprintf(os.Stderr, "setup hook failed: %v\n", hookErr)
			os.Exit(1)
		}

		baseOpts = append(baseOpts, extra...)
	}

	baseOpts = append(baseOpts, opts...)

	created := esenv.NewManager(baseOpts...)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	if initErr := created.Initialize(ctx); initErr != nil {
		cancel()
		ExitOnInitError(initErr, tmpDir)
	}

	cancel()

	*mgr = created

	os.Exit(RunTestMain(m, created, tmpDir))
}
