package esnode

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/esenv/internal/netutil"
)

func validTestConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Binary:       "/usr/share/elasticsearch/bin/elasticsearch",
		HomeDir:      "/usr/share/elasticsearch",
		BaseDir:      t.TempDir(),
		ClusterName:  "esenv-test",
		ReadyTimeout: 30 * time.Second,
		PortRegistry: netutil.NewPortRegistry(nil),
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		mutate  func(c *Config)
		wantErr string
	}{
		"valid": {
			mutate: func(_ *Config) {},
		},
		"missing binary": {
			mutate:  func(c *Config) { c.Binary = "" },
			wantErr: "binary path must not be empty",
		},
		"missing home dir": {
			mutate:  func(c *Config) { c.HomeDir = "" },
			wantErr: "home dir must not be empty",
		},
		"missing base dir": {
			mutate:  func(c *Config) { c.BaseDir = "" },
			wantErr: "base dir must not be empty",
		},
		"missing cluster name": {
			mutate:  func(c *Config) { c.ClusterName = "" },
			wantErr: "cluster name must not be empty",
		},
		"nil port registry": {
			mutate:  func(c *Config) { c.PortRegistry = nil },
			wantErr: "port registry must not be nil",
		},
		"zero ready timeout": {
			mutate:  func(c *Config) { c.ReadyTimeout = 0 },
			wantErr: "ready timeout must be positive",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := validTestConfig(t)
			tc.mutate(&cfg)

			err := cfg.validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("validate() = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestConfig_ValidateReportsAllViolations(t *testing.T) {
	t.Parallel()

	err := Config{}.validate()
	if err == nil {
		t.Fatal("expected error for zero config")
	}
	for _, want := range []string{
		"binary path must not be empty",
		"home dir must not be empty",
		"base dir must not be empty",
		"cluster name must not be empty",
		"port registry must not be nil",
		"ready timeout must be positive",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should contain %q, got %v", want, err)
		}
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("valid config", func(t *testing.T) {
		t.Parallel()
		n, err := New(validTestConfig(t))
		if err != nil {
			t.Fatalf("New() error: %v", err)
		}
		if n.HTTPPort() != 0 {
			t.Errorf("HTTPPort() = %d before Start, want 0", n.HTTPPort())
		}
		if n.ClusterName() != "esenv-test" {
			t.Errorf("ClusterName() = %q", n.ClusterName())
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		t.Parallel()
		_, err := New(Config{})
		if err == nil {
			t.Fatal("expected error for zero config")
		}
		if !strings.Contains(err.Error(), "invalid esnode config") {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestNode_DirectoryLayout(t *testing.T) {
	t.Parallel()

	cfg := validTestConfig(t)
	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	for _, dir := range []string{n.ConfigDir(), n.DataDir(), n.LogsDir()} {
		if !strings.HasPrefix(dir, cfg.BaseDir) {
			t.Errorf("%s not under base dir %s", dir, cfg.BaseDir)
		}
	}
	if n.ConfigDir() == n.DataDir() || n.DataDir() == n.LogsDir() {
		t.Error("instance subdirectories must be distinct")
	}
}

func TestNode_StopWhenNotStarted(t *testing.T) {
	t.Parallel()

	n, err := New(validTestConfig(t))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := n.Stop(time.Second); err != nil {
		t.Fatalf("Stop on unstarted node should return nil, got %v", err)
	}
}

func TestNode_StopRejectsNonPositiveTimeout(t *testing.T) {
	t.Parallel()

	n, err := New(validTestConfig(t))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := n.Stop(0); err == nil {
		t.Fatal("expected error for zero timeout")
	}
}

func TestStartWithRetry_ArgumentValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := validTestConfig(t)

	tests := map[string]struct {
		procCtx, readyCtx context.Context
		maxRetries        int
		stopTimeout       time.Duration
		wantErr           string
	}{
		"nil proc ctx": {
			readyCtx: ctx, maxRetries: 1, stopTimeout: time.Second,
			wantErr: "procCtx must not be nil",
		},
		"nil ready ctx": {
			procCtx: ctx, maxRetries: 1, stopTimeout: time.Second,
			wantErr: "readyCtx must not be nil",
		},
		"zero retries": {
			procCtx: ctx, readyCtx: ctx, maxRetries: 0, stopTimeout: time.Second,
			wantErr: "maxRetries must be >= 1",
		},
		"zero stop timeout": {
			procCtx: ctx, readyCtx: ctx, maxRetries: 1,
			wantErr: "stopTimeout must be positive",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := StartWithRetry(tc.procCtx, tc.readyCtx, cfg, tc.maxRetries, tc.stopTimeout)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestStartWithRetry_PermanentConfigError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, err := StartWithRetry(ctx, ctx, Config{}, 3, time.Second)
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
	if !strings.Contains(err.Error(), "invalid esnode config") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStartWithRetry_CanceledContext(t *testing.T) {
	t.Parallel()

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := StartWithRetry(context.Background(), canceled, validTestConfig(t), 3, time.Second)
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
	if !strings.Contains(err.Error(), context.Canceled.Error()) {
		t.Errorf("unexpected error: %v", err)
	}
}
