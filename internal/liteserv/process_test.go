package liteserv

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/giantswarm/liteservenv/internal/netutil"
	"github.com/giantswarm/liteservenv/internal/process"
	"github.com/giantswarm/liteservenv/internal/testutil/fakeliteserv"
)

var ports = netutil.NewPortRegistry(nil)

// syncBuffer is a bytes.Buffer safe for the exec copy goroutine and the test
// to use at once.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// startFake starts the test binary as a fake LiteServ in mode and registers
// cleanup.
func startFake(t *testing.T, mode string, mutate func(*Config)) (*Process, *syncBuffer) {
	t.Helper()

	bin, err := fakeliteserv.Binary()
	if err != nil {
		t.Fatal(err)
	}
	port, err := ports.AllocatePort()
	if err != nil {
		t.Fatalf("allocate port: %v", err)
	}
	t.Cleanup(func() { ports.Release(port) })

	stderr := &syncBuffer{}
	cfg := Config{
		Binary: bin,
		Port:   port,
		Env:    []string{fakeliteserv.Env(mode)},
		Stderr: stderr,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		_ = p.Stop(5 * time.Second)
		p.Close()
	})
	return p, stderr
}

func TestArgs(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		port int
		dir  string
		want []string
	}{
		"without dir": {
			port: 5984,
			want: []string{"--port", "5984"},
		},
		"with dir": {
			port: 5984,
			dir:  "/tmp/liteserv-data",
			want: []string{"--port", "5984", "--dir", "/tmp/liteserv-data"},
		},
		"dir with spaces": {
			port: 49152,
			dir:  "/tmp/my dbs",
			want: []string{"--port", "49152", "--dir", "/tmp/my dbs"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := Args(tc.port, tc.dir); !slices.Equal(got, tc.want) {
				t.Errorf("Args(%d, %q) = %q, want %q", tc.port, tc.dir, got, tc.want)
			}
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := map[string]Config{
		"empty binary":  {Port: 5984},
		"zero port":     {Binary: "LiteServ"},
		"negative port": {Binary: "LiteServ", Port: -1},
		"port too big":  {Binary: "LiteServ", Port: 70000},
	}

	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(cfg); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestStart_MissingBinary(t *testing.T) {
	t.Parallel()

	bin := filepath.Join(t.TempDir(), "LiteServ")
	p, err := New(Config{Binary: bin, Port: 5984})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = p.Start(context.Background())
	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("Start() = %v, want *LaunchError", err)
	}
	if launchErr.Path != bin {
		t.Errorf("LaunchError.Path = %q, want %q", launchErr.Path, bin)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Start() = %v, want wrapped fs.ErrNotExist", err)
	}
	if p.Exited() != nil || p.PID() != 0 {
		t.Error("failed Start should leave the process unstarted")
	}
}

func TestProcess_ReadyModes(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		fakeliteserv.ModeReady:     true,
		fakeliteserv.ModeOffset0:   true,
		fakeliteserv.ModeSplit:     true,
		fakeliteserv.ModeSilent:    false,
		fakeliteserv.ModeWrongPort: false,
	}

	for mode, wantReady := range tests {
		t.Run(mode, func(t *testing.T) {
			t.Parallel()

			p, _ := startFake(t, mode, nil)

			timeout := 10 * time.Second
			if !wantReady {
				timeout = 500 * time.Millisecond
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			err := p.WaitLogReady(ctx)
			if wantReady && err != nil {
				t.Fatalf("WaitLogReady() = %v, want nil", err)
			}
			if !wantReady && !errors.Is(err, ErrNotReady) {
				t.Fatalf("WaitLogReady() = %v, want %v", err, ErrNotReady)
			}
		})
	}
}

func TestProcess_StartReturnsBeforeReady(t *testing.T) {
	t.Parallel()

	p, _ := startFake(t, fakeliteserv.ModeSilent, nil)

	select {
	case <-p.Ready():
		t.Fatal("Ready closed for a server that never logged the listening line")
	default:
	}
	if p.PID() <= 0 {
		t.Errorf("PID() = %d, want > 0", p.PID())
	}
}

func TestProcess_WaitReadyProbes(t *testing.T) {
	t.Parallel()

	p, _ := startFake(t, fakeliteserv.ModeReady, nil)

	if err := p.WaitReady(context.Background(), 10*time.Second); err != nil {
		t.Fatalf("WaitReady() = %v", err)
	}
	if err := NewClient(p.URL()).Ping(context.Background()); err != nil {
		t.Errorf("Ping after WaitReady = %v", err)
	}
}

// A listener that comes up long after the listening line must still be
// found, within one Cap of becoming reachable.
func TestProbeBackoff_RunsUntilContextEnds(t *testing.T) {
	if testing.Short() {
		t.Skip("waits 12s of wall-clock time")
	}
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	upAt := time.Now().Add(12 * time.Second)
	err := process.WaitReady(ctx, process.WaitReadyConfig{
		Backoff: &probeBackoff,
		Timeout: 30 * time.Second,
		Name:    processName,
	}, func(context.Context, int) (bool, error) {
		return !time.Now().Before(upAt), nil
	})
	if err != nil {
		t.Fatalf("WaitReady() = %v, want nil", err)
	}
	if late := time.Since(upAt); late > 2*probeBackoff.Cap {
		t.Errorf("readiness noticed %v after it came up, want within %v", late, 2*probeBackoff.Cap)
	}
}

func TestProcess_PassesArgs(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "dbs")
	p, stderr := startFake(t, fakeliteserv.ModeReady, func(c *Config) { c.Dir = dir })

	if err := p.WaitReady(context.Background(), 10*time.Second); err != nil {
		t.Fatalf("WaitReady() = %v", err)
	}
	if !strings.Contains(stderr.String(), `"--dir" "`+dir+`"`) {
		t.Errorf("stderr %q does not show --dir %s", stderr.String(), dir)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("fake did not receive --dir: %v", err)
	}
}

func TestProcess_ExitBeforeReady(t *testing.T) {
	t.Parallel()

	p, stderr := startFake(t, fakeliteserv.ModeExit, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := p.WaitLogReady(ctx)
	if !errors.Is(err, ErrProcessExited) {
		t.Fatalf("WaitLogReady() = %v, want %v", err, ErrProcessExited)
	}
	if p.ExitErr() == nil {
		t.Error("ExitErr() = nil after non-zero exit")
	}
	if !strings.Contains(stderr.String(), "cannot open database directory") {
		t.Errorf("stderr = %q, want fatal message", stderr.String())
	}
}

func TestProcess_StopAndLogFiles(t *testing.T) {
	t.Parallel()

	logDir := t.TempDir()
	p, _ := startFake(t, fakeliteserv.ModeReady, func(c *Config) { c.LogDir = logDir })

	if err := p.WaitLogReady(context.Background()); err != nil {
		t.Fatalf("WaitLogReady() = %v", err)
	}
	if err := p.Stop(5 * time.Second); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	select {
	case <-p.Exited():
	default:
		t.Fatal("Exited not closed after Stop")
	}
	// A second Stop is a no-op.
	if err := p.Stop(time.Second); err != nil {
		t.Errorf("second Stop() = %v", err)
	}

	if p.StderrPath() != filepath.Join(logDir, "liteserv-stderr.log") {
		t.Fatalf("StderrPath() = %q", p.StderrPath())
	}
	data, err := os.ReadFile(p.StderrPath())
	if err != nil {
		t.Fatalf("read stderr log: %v", err)
	}
	if !strings.Contains(string(data), "is listening on port") {
		t.Errorf("stderr log = %q, want listening line", data)
	}
}

func TestProcess_URL(t *testing.T) {
	t.Parallel()

	p, err := New(Config{Binary: "LiteServ", Port: 5984})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := p.URL(), "http://127.0.0.1:5984/"; got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
	if err := p.WaitLogReady(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("WaitLogReady before Start = %v, want %v", err, ErrNotStarted)
	}
}
