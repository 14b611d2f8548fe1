package liteservenv

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/giantswarm/liteservenv/internal/core"
	"github.com/giantswarm/liteservenv/internal/liteserv"
)

// LaunchRequest describes one LiteServ server to start.
type LaunchRequest struct {
	Path string // LiteServ executable; a bare name is looked up in PATH
	Port int    // passed as --port
	Dir  string // passed as --dir when non-empty

	// Env entries (KEY=VALUE) are added to the inherited environment.
	Env []string

	// LogDir, when set, receives liteserv-stdout.log and liteserv-stderr.log.
	LogDir string

	// Stderr, when set, receives a copy of the child's stderr.
	Stderr io.Writer

	// StopTimeout is how long Close waits after SIGTERM before SIGKILL.
	StopTimeout time.Duration

	// Logger defaults to the package logger (see SetLogger).
	Logger *slog.Logger
}

// Handle is a running LiteServ child started by Launch.
type Handle struct {
	proc *liteserv.Process
}

// Args returns the command line Launch passes to LiteServ: --port, then
// --dir only when dir is non-empty.
func Args(port int, dir string) []string {
	return liteserv.Args(port, dir)
}

// Launch starts LiteServ and returns once the process is running. It does
// not wait for readiness; use Ready or WaitReady for that.
//
// An invalid request or an executable that cannot be started yields a
// *LaunchError. ctx bounds the life of the child: canceling it kills
// LiteServ.
func Launch(ctx context.Context, req LaunchRequest) (*Handle, error) {
	log := req.Logger
	if log == nil {
		log = core.Logger()
	}
	proc, err := liteserv.New(liteserv.Config{
		Binary:      req.Path,
		Port:        req.Port,
		Dir:         req.Dir,
		LogDir:      req.LogDir,
		Env:         req.Env,
		Stderr:      req.Stderr,
		StopTimeout: req.StopTimeout,
		Logger:      log,
	})
	if err != nil {
		return nil, &LaunchError{Path: req.Path, Err: err}
	}
	if err := proc.Start(ctx); err != nil {
		proc.Close()
		return nil, err
	}
	return &Handle{proc: proc}, nil
}

// Ready is closed once LiteServ has written its listening line for this
// port. It is closed at most once and never if LiteServ exits first.
func (h *Handle) Ready() <-chan struct{} { return h.proc.Ready() }

// Exited is closed when the child has exited.
func (h *Handle) Exited() <-chan struct{} { return h.proc.Exited() }

// ExitErr returns the child's exit error. Valid after Exited is closed.
func (h *Handle) ExitErr() error { return h.proc.ExitErr() }

// WaitReady blocks until the listening line has been seen. It returns an
// ErrProcessExited error if LiteServ exits first and an ErrNotReady error
// when ctx ends.
func (h *Handle) WaitReady(ctx context.Context) error {
	return h.proc.WaitLogReady(ctx)
}

// Probe polls GET / until LiteServ answers or ctx ends.
func (h *Handle) Probe(ctx context.Context) error {
	return h.proc.Probe(ctx)
}

func (h *Handle) PID() int { return h.proc.PID() }

func (h *Handle) Port() int { return h.proc.Port() }

// URL returns the base URL of the REST listener.
func (h *Handle) URL() string { return h.proc.URL() }

// StderrPath returns the stderr log file, or "" without a LogDir.
func (h *Handle) StderrPath() string { return h.proc.StderrPath() }

// Stop sends SIGTERM and waits up to timeout before killing the child.
func (h *Handle) Stop(timeout time.Duration) error {
	return h.proc.Stop(timeout)
}

// Close stops a still-running child and releases its log files. Idempotent.
func (h *Handle) Close() {
	h.proc.Close()
}
