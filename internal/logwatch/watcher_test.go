package logwatch

import (
	"io"
	"strings"
	"sync"
	"testing"
)

func TestMarker(t *testing.T) {
	t.Parallel()

	if got, want := Marker(5984), "is listening on port 5984"; got != want {
		t.Errorf("Marker(5984) = %q, want %q", got, want)
	}
}

func TestWatcher_Write(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		port      int
		chunks    []string
		wantReady bool
	}{
		"marker mid chunk": {
			port:      5984,
			chunks:    []string{"Server is listening on port 5984 now\n"},
			wantReady: true,
		},
		"marker at offset zero": {
			port:      5984,
			chunks:    []string{"is listening on port 5984\n"},
			wantReady: true,
		},
		"marker at end of chunk": {
			port:      5984,
			chunks:    []string{"2024 I Listener Server is listening on port 5984"},
			wantReady: true,
		},
		"marker after unrelated chunks": {
			port:      5984,
			chunks:    []string{"Starting LiteServ\n", "Opening databases\n", "Server is listening on port 5984\n"},
			wantReady: true,
		},
		"marker split across chunks": {
			port:      5984,
			chunks:    []string{"Server is listen", "ing on po", "rt 59", "84\n"},
			wantReady: true,
		},
		"marker split one byte at a time": {
			port:      5984,
			chunks:    strings.Split("xx is listening on port 5984", ""),
			wantReady: true,
		},
		"unrelated text": {
			port:      5984,
			chunks:    []string{"Starting LiteServ\n", "ERROR: cannot open database\n"},
			wantReady: false,
		},
		"different port": {
			port:      5984,
			chunks:    []string{"Server is listening on port 4984\n"},
			wantReady: false,
		},
		"marker followed by more digits": {
			port:      5984,
			chunks:    []string{"Server is listening on port 59840\n"},
			wantReady: true,
		},
		"marker at chunk end then digits": {
			port:      5984,
			chunks:    []string{"is listening on port 5984", "0\n"},
			wantReady: true,
		},
		"empty writes": {
			port:      5984,
			chunks:    []string{"", "", ""},
			wantReady: false,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			w := New(Marker(tc.port))
			for _, c := range tc.chunks {
				n, err := io.WriteString(w, c)
				if err != nil || n != len(c) {
					t.Fatalf("Write(%q) = %d, %v; want %d, nil", c, n, err, len(c))
				}
			}

			if got := w.Matched(); got != tc.wantReady {
				t.Errorf("Matched() = %v, want %v", got, tc.wantReady)
			}
		})
	}
}

func TestWatcher_NotReadyBeforeWrite(t *testing.T) {
	t.Parallel()

	w := New(Marker(5984))
	select {
	case <-w.Ready():
		t.Fatal("Ready closed before any write")
	default:
	}

	_, _ = io.WriteString(w, "Server is listening on port 5984 now")
	select {
	case <-w.Ready():
	default:
		t.Fatal("Ready not closed after marker write")
	}
}

func TestWatcher_RepeatedMarkerClosesOnce(t *testing.T) {
	t.Parallel()

	w := New(Marker(5984))
	// A second close of Ready would panic.
	for range 3 {
		_, _ = io.WriteString(w, "Server is listening on port 5984\n")
	}
	if !w.Matched() {
		t.Fatal("expected match")
	}
}

func TestWatcher_ConcurrentWrites(t *testing.T) {
	t.Parallel()

	w := New(Marker(5984))
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 50 {
				_, _ = io.WriteString(w, "noise line\n")
			}
			_, _ = io.WriteString(w, "is listening on port 5984\n")
		})
	}
	wg.Wait()

	if !w.Matched() {
		t.Fatal("expected match after concurrent writes")
	}
}

func TestNew_PanicsOnEmptyMarker(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for empty marker")
		}
	}()
	New("")
}
