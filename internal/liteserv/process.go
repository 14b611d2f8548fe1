package liteserv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/giantswarm/liteservenv/internal/logwatch"
	"github.com/giantswarm/liteservenv/internal/process"
)

// processName names the log files and log entries of the child.
const processName = "liteserv"

// probeBackoff spaces the HTTP probes that follow the listening line. The
// listener is normally up by the time the line is written, so the first
// retries are short. Past Cap the probes repeat every Cap until ctx ends.
var probeBackoff = wait.Backoff{
	Duration: 5 * time.Millisecond,
	Factor:   2,
	Jitter:   0.1,
	Steps:    math.MaxInt32,
	Cap:      500 * time.Millisecond,
}

// defaultProbeTimeout applies to Probe calls whose context has no deadline.
const defaultProbeTimeout = 30 * time.Second

var _ process.Stoppable = (*Process)(nil)

// Config holds the configuration of one LiteServ child.
type Config struct {
	Binary string   // path to the LiteServ executable
	Port   int      // port passed as --port
	Dir    string   // optional; passed as --dir when set
	LogDir string   // optional; stdout and stderr are mirrored to files here
	Env    []string // extra KEY=VALUE entries added to the inherited environment

	// Stderr, when set, receives a copy of everything the child writes to
	// stderr.
	Stderr io.Writer

	// StopTimeout is used when Close has to stop a running child; zero
	// means process.DefaultStopTimeout.
	StopTimeout time.Duration

	Logger *slog.Logger // defaults to slog.Default()
}

func (c Config) validate() error {
	var errs []error
	if c.Binary == "" {
		errs = append(errs, errors.New("binary path must not be empty"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}
	return errors.Join(errs...)
}

// Args returns the LiteServ command line for port and dir: --port first,
// then --dir only when dir is non-empty.
func Args(port int, dir string) []string {
	args := []string{"--port", strconv.Itoa(port)}
	if dir != "" {
		args = append(args, "--dir", dir)
	}
	return args
}

// Process is one LiteServ child. A Process starts at most once.
//
// Ready, Exited, ExitErr, PID, Port and URL are safe for concurrent use.
// Start, Stop and Close are serialized internally.
type Process struct {
	config  Config
	watcher *logwatch.Watcher
	log     *slog.Logger

	mu         sync.Mutex
	base       process.BaseProcess
	stderrPath string // set before started
	started    atomic.Bool
	stopping   atomic.Bool
}

// New validates cfg and returns an unstarted Process. New performs no I/O.
func New(cfg Config) (*Process, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid liteserv config: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("port", cfg.Port)
	return &Process{
		config:  cfg,
		watcher: logwatch.New(logwatch.Marker(cfg.Port)),
		log:     log,
		base:    process.NewBaseProcess(processName, log, cfg.StopTimeout),
	}, nil
}

// Start spawns the child and returns as soon as it is running; it does not
// wait for readiness. A binary that cannot be started yields a *LaunchError.
//
// ctx bounds the life of the child: canceling it kills the process.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started.Load() {
		return process.ErrAlreadyStarted
	}

	cmd := exec.CommandContext(ctx, p.config.Binary, Args(p.config.Port, p.config.Dir)...)
	if len(p.config.Env) > 0 {
		cmd.Env = append(os.Environ(), p.config.Env...)
	}

	sinks := []io.Writer{p.watcher}
	if p.config.Stderr != nil {
		sinks = append(sinks, p.config.Stderr)
	}

	launched := time.Now()
	if err := p.base.SetupAndStart(cmd, p.config.LogDir, sinks...); err != nil {
		launchErrorsTotal.Inc()
		return &LaunchError{Path: p.config.Binary, Err: err}
	}
	p.stderrPath = p.base.LogFiles().StderrPath()
	p.started.Store(true)
	launchesTotal.Inc()

	go p.observe(launched, p.base.Exited())
	return nil
}

// observe records how long the child took to report readiness and whether it
// exited without being asked to.
func (p *Process) observe(launched time.Time, exited <-chan struct{}) {
	select {
	case <-p.watcher.Ready():
		readyDuration.UpdateDuration(launched)
		p.log.Debug("liteserv reported listening", "elapsed", time.Since(launched))
		<-exited
	case <-exited:
	}
	if !p.stopping.Load() {
		exitsTotal.Inc()
		p.log.Warn("liteserv exited unexpectedly", "error", p.ExitErr())
	}
}

// Ready returns a channel closed exactly once, when the child writes its
// listening line to stderr.
func (p *Process) Ready() <-chan struct{} {
	return p.watcher.Ready()
}

// Exited returns a channel closed when the child exits, or nil before Start.
func (p *Process) Exited() <-chan struct{} {
	if !p.started.Load() {
		return nil
	}
	return p.base.Exited()
}

// ExitErr returns the child's wait result after it exited, nil otherwise.
func (p *Process) ExitErr() error {
	if !p.started.Load() {
		return nil
	}
	return p.base.ExitErr()
}

// PID returns the child's process id, or 0 before Start.
func (p *Process) PID() int {
	if !p.started.Load() {
		return 0
	}
	return p.base.PID()
}

// Port returns the port LiteServ was told to listen on.
func (p *Process) Port() int {
	return p.config.Port
}

// URL returns the base URL of the LiteServ REST listener.
func (p *Process) URL() string {
	u := url.URL{Scheme: "http", Host: net.JoinHostPort("127.0.0.1", strconv.Itoa(p.config.Port)), Path: "/"}
	return u.String()
}

// StderrPath returns the stderr log file, or "" when LogDir is unset or the
// child was never started.
func (p *Process) StderrPath() string {
	if !p.started.Load() {
		return ""
	}
	return p.stderrPath
}

// WaitLogReady blocks until the listening line has been seen, the child
// exits, or ctx is done.
func (p *Process) WaitLogReady(ctx context.Context) error {
	if !p.started.Load() {
		return ErrNotStarted
	}
	select {
	case <-p.watcher.Ready():
		return nil
	case <-p.base.Exited():
		// The line may have been the child's last words.
		if p.watcher.Matched() {
			return nil
		}
		return fmt.Errorf("port %d: %w: %w", p.config.Port, ErrProcessExited, p.base.ExitErr())
	case <-ctx.Done():
		return fmt.Errorf("port %d: %w: %w", p.config.Port, ErrNotReady, ctx.Err())
	}
}

// WaitReady waits for the listening line and then for GET / to answer 200,
// both within timeout.
func (p *Process) WaitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.WaitLogReady(ctx); err != nil {
		return err
	}
	return p.Probe(ctx)
}

// Probe polls GET / until it answers 200 or ctx is done.
func (p *Process) Probe(ctx context.Context) error {
	if !p.started.Load() {
		return ErrNotStarted
	}
	timeout := defaultProbeTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return fmt.Errorf("port %d: %w: %w", p.config.Port, ErrNotReady, context.DeadlineExceeded)
	}

	client := NewClient(p.URL())
	defer client.CloseIdleConnections()

	err := process.WaitReady(ctx, process.WaitReadyConfig{
		Backoff:       &probeBackoff,
		Timeout:       timeout,
		Name:          processName,
		Port:          p.config.Port,
		Logger:        p.log,
		ProcessExited: p.base.Exited(),
	}, func(checkCtx context.Context, attempt int) (bool, error) {
		if err := client.Ping(checkCtx); err != nil {
			if p.log.Enabled(checkCtx, slog.LevelDebug) {
				p.log.Debug("liteserv probe attempt", "attempt", attempt, "error", err)
			}
			return false, nil
		}
		return true, nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, process.ErrProcessExited):
		return fmt.Errorf("port %d: %w: %w", p.config.Port, ErrProcessExited, p.base.ExitErr())
	default:
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
}

// Stop terminates the child, waiting at most timeout for it to exit.
// Stop before Start, or after a previous Stop, is a no-op.
func (p *Process) Stop(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopping.Store(true)
	return p.base.Stop(timeout)
}

// Close stops a still-running child and releases its log files.
func (p *Process) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopping.Store(true)
	p.base.Close()
}
