package netutil

import (
	"sync"
	"testing"
)

func TestNewPortRegistry(t *testing.T) {
	t.Parallel()

	t.Run("nil logger uses default", func(t *testing.T) {
		r := NewPortRegistry(nil)
		if r == nil {
			t.Fatal("expected non-nil registry")
		}
		// Verify the registry is functional by reserving and releasing a port.
		if !r.reserve(9200) {
			t.Fatal("expected reserve to succeed on new registry")
		}
		r.Release(9200)
	})
}

func TestPortRegistry_reserve(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		setup  func(r *PortRegistry)
		port   int
		wantOK bool
	}{
		"reserve new port": {
			setup:  func(_ *PortRegistry) {},
			port:   9200,
			wantOK: true,
		},
		"reserve duplicate port": {
			setup: func(r *PortRegistry) {
				r.reserve(9300)
			},
			port:   9300,
			wantOK: false,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := NewPortRegistry(nil)
			tc.setup(r)

			got := r.reserve(tc.port)
			if got != tc.wantOK {
				t.Errorf("reserve(%d) = %v, want %v", tc.port, got, tc.wantOK)
			}
			// Regardless of who reserved it, a second reserve must fail.
			if r.reserve(tc.port) {
				t.Errorf("port %d should be reserved, but second reserve succeeded", tc.port)
			}
		})
	}
}

func TestPortRegistry_Release(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		setup         func(r *PortRegistry)
		port          int
		otherPort     int // another port that should remain reserved (0 means none)
		otherReserved bool
	}{
		"release existing port": {
			setup: func(r *PortRegistry) {
				r.reserve(9200)
			},
			port: 9200,
		},
		"release non-existent port": {
			setup: func(_ *PortRegistry) {},
			port:  9200,
		},
		"release one of multiple": {
			setup: func(r *PortRegistry) {
				r.reserve(9200)
				r.reserve(9300)
			},
			port:          9200,
			otherPort:     9300,
			otherReserved: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := NewPortRegistry(nil)
			tc.setup(r)

			r.Release(tc.port)

			// Verify the released port is now available by reserving it.
			if !r.reserve(tc.port) {
				t.Errorf("port %d should be available after release, but reserve failed", tc.port)
			}
			r.Release(tc.port)

			if tc.otherPort != 0 && tc.otherReserved {
				if r.reserve(tc.otherPort) {
					t.Errorf("port %d should still be reserved, but reserve succeeded", tc.otherPort)
				}
			}
		})
	}
}

func TestPortRegistry_AllocatePortPair(t *testing.T) {
	t.Parallel()

	r := NewPortRegistry(nil)

	httpPort, transportPort, err := r.AllocatePortPair()
	if err != nil {
		t.Fatalf("AllocatePortPair() error: %v", err)
	}
	if httpPort == transportPort {
		t.Fatalf("expected distinct ports, got %d twice", httpPort)
	}
	if httpPort <= 0 || transportPort <= 0 {
		t.Fatalf("expected positive ports, got %d and %d", httpPort, transportPort)
	}

	// Both ports must be registered until released.
	if r.reserve(httpPort) {
		t.Errorf("http port %d should be registered after allocation", httpPort)
	}
	if r.reserve(transportPort) {
		t.Errorf("transport port %d should be registered after allocation", transportPort)
	}

	r.Release(httpPort)
	r.Release(transportPort)
	if !r.reserve(httpPort) {
		t.Errorf("http port %d should be available after release", httpPort)
	}
}

func TestPortRegistry_ConcurrentAllocate(t *testing.T) {
	t.Parallel()

	r := NewPortRegistry(nil)
	const goroutines = 20

	var wg sync.WaitGroup
	ports := make(chan int, goroutines*2)

	for range goroutines {
		wg.Go(func() {
			p1, p2, err := r.AllocatePortPair()
			if err != nil {
				t.Errorf("AllocatePortPair() error: %v", err)
				return
			}
			ports <- p1
			ports <- p2
		})
	}

	wg.Wait()
	close(ports)

	seen := make(map[int]struct{})
	for p := range ports {
		if _, dup := seen[p]; dup {
			t.Errorf("port %d allocated twice", p)
		}
		seen[p] = struct{}{}
		r.Release(p)
	}
}
