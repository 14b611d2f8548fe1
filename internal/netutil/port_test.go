package netutil

import (
	"net"
	"strconv"
	"sync"
	"testing"
)

func TestPortRegistry_reserve(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		setup  func(r *PortRegistry)
		port   int
		wantOK bool
	}{
		"new port": {
			setup:  func(_ *PortRegistry) {},
			port:   5984,
			wantOK: true,
		},
		"duplicate port": {
			setup:  func(r *PortRegistry) { r.reserve(5984) },
			port:   5984,
			wantOK: false,
		},
		"different port": {
			setup:  func(r *PortRegistry) { r.reserve(5984) },
			port:   59840,
			wantOK: true,
		},
		"released port": {
			setup: func(r *PortRegistry) {
				r.reserve(5984)
				r.Release(5984)
			},
			port:   5984,
			wantOK: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := NewPortRegistry(nil)
			tc.setup(r)

			if got := r.reserve(tc.port); got != tc.wantOK {
				t.Errorf("reserve(%d) = %v, want %v", tc.port, got, tc.wantOK)
			}
			if r.reserve(tc.port) {
				t.Errorf("port %d should be reserved after the call", tc.port)
			}
		})
	}
}

func TestPortRegistry_ConcurrentDuplicateReserve(t *testing.T) {
	t.Parallel()

	r := NewPortRegistry(nil)
	const goroutines = 100

	var wg sync.WaitGroup
	successes := make(chan bool, goroutines)
	for range goroutines {
		wg.Go(func() {
			successes <- r.reserve(4984)
		})
	}
	wg.Wait()
	close(successes)

	count := 0
	for ok := range successes {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly 1 successful reserve, got %d", count)
	}
}

func TestPortRegistry_AllocatePort(t *testing.T) {
	t.Parallel()

	r := NewPortRegistry(nil)

	port, err := r.AllocatePort()
	if err != nil {
		t.Fatalf("AllocatePort() error: %v", err)
	}
	if port <= 0 {
		t.Fatalf("port = %d, want > 0", port)
	}
	if r.Reserved() != 1 {
		t.Errorf("Reserved() = %d, want 1", r.Reserved())
	}

	// The discovery listener must be closed so a child can bind the port.
	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		t.Fatalf("port %d not bindable after allocation: %v", port, err)
	}
	_ = l.Close()

	r.Release(port)
	if r.Reserved() != 0 {
		t.Errorf("Reserved() after release = %d, want 0", r.Reserved())
	}
}

func TestPortRegistry_AllocatePortConcurrentDistinct(t *testing.T) {
	t.Parallel()

	r := NewPortRegistry(nil)
	const goroutines = 16

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		ports = make(map[int]struct{})
	)
	for range goroutines {
		wg.Go(func() {
			port, err := r.AllocatePort()
			if err != nil {
				t.Errorf("AllocatePort() error: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if _, dup := ports[port]; dup {
				t.Errorf("port %d allocated twice", port)
			}
			ports[port] = struct{}{}
		})
	}
	wg.Wait()

	for port := range ports {
		r.Release(port)
	}
	if r.Reserved() != 0 {
		t.Errorf("Reserved() = %d, want 0", r.Reserved())
	}
}
