package core

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func validManagerConfig() ManagerConfig {
	return ManagerConfig{
		ServerBinary:         "/usr/share/elasticsearch/bin/elasticsearch",
		HomeDir:              "/usr/share/elasticsearch",
		AcquireTimeout:       2 * time.Minute,
		BaseDataDir:          "/tmp/esenv",
		InstanceStartTimeout: 2 * time.Minute,
		InstanceStopTimeout:  10 * time.Second,
		WipeTimeout:          30 * time.Second,
		SeedCacheTimeout:     5 * time.Minute,
		ShutdownDrainTimeout: 30 * time.Second,
	}
}

func TestManagerConfig_Validate(t *testing.T) {
	t.Parallel()

	t.Run("valid config returns nil", func(t *testing.T) {
		t.Parallel()
		cfg := validManagerConfig()
		if err := cfg.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	tests := map[string]struct {
		modify       func(c *ManagerConfig)
		wantContains string
	}{
		"empty server binary": {
			modify:       func(c *ManagerConfig) { c.ServerBinary = "" },
			wantContains: "server binary",
		},
		"empty home dir": {
			modify:       func(c *ManagerConfig) { c.HomeDir = "" },
			wantContains: "elasticsearch home",
		},
		"zero acquire timeout": {
			modify:       func(c *ManagerConfig) { c.AcquireTimeout = 0 },
			wantContains: "acquire timeout",
		},
		"negative acquire timeout": {
			modify:       func(c *ManagerConfig) { c.AcquireTimeout = -1 },
			wantContains: "acquire timeout",
		},
		"empty base data dir": {
			modify:       func(c *ManagerConfig) { c.BaseDataDir = "" },
			wantContains: "base data directory",
		},
		"seed dir and data-from dir both set": {
			modify: func(c *ManagerConfig) {
				c.SeedDir = "/seeds"
				c.DataFromDir = "/data"
			},
			wantContains: "mutually exclusive",
		},
		"zero instance start timeout": {
			modify:       func(c *ManagerConfig) { c.InstanceStartTimeout = 0 },
			wantContains: "instance start timeout",
		},
		"zero instance stop timeout": {
			modify:       func(c *ManagerConfig) { c.InstanceStopTimeout = 0 },
			wantContains: "instance stop timeout",
		},
		"zero wipe timeout": {
			modify:       func(c *ManagerConfig) { c.WipeTimeout = 0 },
			wantContains: "wipe timeout",
		},
		"zero seed cache timeout": {
			modify:       func(c *ManagerConfig) { c.SeedCacheTimeout = 0 },
			wantContains: "seed cache timeout",
		},
		"negative pool size": {
			modify:       func(c *ManagerConfig) { c.PoolSize = -1 },
			wantContains: "pool size",
		},
		"zero shutdown drain timeout": {
			modify:       func(c *ManagerConfig) { c.ShutdownDrainTimeout = 0 },
			wantContains: "shutdown drain timeout",
		},
		"invalid release strategy": {
			modify:       func(c *ManagerConfig) { c.ReleaseStrategy = ReleaseStrategy(99) },
			wantContains: "release strategy",
		},
		"invalid release strategy boundary": {
			modify:       func(c *ManagerConfig) { c.ReleaseStrategy = ReleaseStrategy(3) },
			wantContains: "release strategy",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := validManagerConfig()
			tc.modify(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantContains) {
				t.Errorf("error %q should contain %q", err.Error(), tc.wantContains)
			}
		})
	}

	t.Run("multiple errors joined", func(t *testing.T) {
		t.Parallel()
		cfg := ManagerConfig{PoolSize: -1} // zero values + negative pool size

		err := cfg.Validate()
		if err == nil {
			t.Fatal("expected error for zero-value config")
		}

		errMsg := err.Error()
		// Should contain errors for all invalid fields
		expectedParts := []string{
			"server binary",
			"elasticsearch home",
			"acquire timeout",
			"base data directory",
			"instance start timeout",
			"instance stop timeout",
			"wipe timeout",
			"seed cache timeout",
			"shutdown drain timeout",
			"pool size",
		}

		for _, part := range expectedParts {
			if !strings.Contains(errMsg, part) {
				t.Errorf("error %q should contain %q", errMsg, part)
			}
		}
	})
}

func TestInstanceConfig_Validate(t *testing.T) {
	t.Parallel()

	t.Run("valid config returns nil", func(t *testing.T) {
		t.Parallel()
		cfg := validInstanceConfig()
		if err := cfg.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	tests := map[string]struct {
		modify       func(c *InstanceConfig)
		wantContains string
	}{
		"zero start timeout": {
			modify:       func(c *InstanceConfig) { c.StartTimeout = 0 },
			wantContains: "start timeout",
		},
		"negative start timeout": {
			modify:       func(c *InstanceConfig) { c.StartTimeout = -1 },
			wantContains: "start timeout",
		},
		"zero stop timeout": {
			modify:       func(c *InstanceConfig) { c.StopTimeout = 0 },
			wantContains: "stop timeout",
		},
		"zero wipe timeout": {
			modify:       func(c *InstanceConfig) { c.WipeTimeout = 0 },
			wantContains: "wipe timeout",
		},
		"zero max start retries": {
			modify:       func(c *InstanceConfig) { c.MaxStartRetries = 0 },
			wantContains: "max start retries",
		},
		"negative max start retries": {
			modify:       func(c *InstanceConfig) { c.MaxStartRetries = -1 },
			wantContains: "max start retries",
		},
		"empty server binary": {
			modify:       func(c *InstanceConfig) { c.ServerBinary = "" },
			wantContains: "server binary",
		},
		"empty home dir": {
			modify:       func(c *InstanceConfig) { c.HomeDir = "" },
			wantContains: "elasticsearch home",
		},
		"invalid release strategy": {
			modify:       func(c *InstanceConfig) { c.ReleaseStrategy = ReleaseStrategy(99) },
			wantContains: "release strategy",
		},
		"invalid release strategy boundary": {
			modify:       func(c *InstanceConfig) { c.ReleaseStrategy = ReleaseStrategy(3) },
			wantContains: "release strategy",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := validInstanceConfig()
			tc.modify(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantContains) {
				t.Errorf("error %q should contain %q", err.Error(), tc.wantContains)
			}
		})
	}

	t.Run("multiple errors joined", func(t *testing.T) {
		t.Parallel()
		cfg := InstanceConfig{} // all zero values

		err := cfg.Validate()
		if err == nil {
			t.Fatal("expected error for zero-value config")
		}

		errMsg := err.Error()
		expectedParts := []string{
			"start timeout",
			"stop timeout",
			"wipe timeout",
			"max start retries",
			"server binary",
			"elasticsearch home",
		}

		for _, part := range expectedParts {
			if !strings.Contains(errMsg, part) {
				t.Errorf("error %q should contain %q", errMsg, part)
			}
		}
	})

	t.Run("optional SeedDataPath", func(t *testing.T) {
		t.Parallel()
		// SeedDataPath is optional - empty means a fresh cluster state.
		cfg := validInstanceConfig()
		cfg.SeedDataPath = ""
		if err := cfg.Validate(); err != nil {
			t.Fatalf("empty SeedDataPath should be valid: %v", err)
		}

		cfg.SeedDataPath = "/some/cached/data"
		if err := cfg.Validate(); err != nil {
			t.Fatalf("non-empty SeedDataPath should be valid: %v", err)
		}
	})
}

func TestReleaseStrategy_IsValid(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		strategy ReleaseStrategy
		want     bool
	}{
		"restart":            {strategy: ReleaseRestart, want: true},
		"wipe":               {strategy: ReleaseWipe, want: true},
		"none":               {strategy: ReleaseNone, want: true},
		"negative":           {strategy: ReleaseStrategy(-1), want: false},
		"one past the range": {strategy: ReleaseStrategy(3), want: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := tc.strategy.IsValid(); got != tc.want {
				t.Errorf("IsValid() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestReleaseStrategy_String(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		strategy ReleaseStrategy
		want     string
	}{
		"restart": {strategy: ReleaseRestart, want: "ReleaseRestart"},
		"wipe":    {strategy: ReleaseWipe, want: "ReleaseWipe"},
		"none":    {strategy: ReleaseNone, want: "ReleaseNone"},
		"unknown": {strategy: ReleaseStrategy(42), want: "ReleaseStrategy(42)"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := tc.strategy.String(); got != tc.want {
				t.Errorf("String() = %q, want %q", got, tc.want)
			}
		})
	}
}

// TestManagerConfigFieldCount is a canary test that detects when fields are
// added to ManagerConfig without updating the public API in the root package.
//
// If this test fails, you added a field to core.ManagerConfig. You must also:
//  1. Add a public WithXxx option function in options.go
//  2. Update expectedFields below to match the new count
func TestManagerConfigFieldCount(t *testing.T) {
	t.Parallel()
	const expectedFields = 14 // Update this when adding new fields to ManagerConfig.

	actual := reflect.TypeFor[ManagerConfig]().NumField()
	if actual != expectedFields {
		t.Errorf("ManagerConfig has %d fields, expected %d; "+
			"if you added a field, also add a WithXxx option in the root package options.go",
			actual, expectedFields)
	}
}
