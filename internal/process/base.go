package process

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/giantswarm/liteservenv/internal/sentinel"
)

// ErrAlreadyStarted is returned when SetupAndStart is called on a process
// that is still running.
const ErrAlreadyStarted = sentinel.Error("process already started")

// ErrNilCmd is returned when SetupAndStart is called with a nil *exec.Cmd.
const ErrNilCmd = sentinel.Error("cmd must not be nil")

// ErrEmptyCmdPath is returned when SetupAndStart is called with an empty cmd.Path.
const ErrEmptyCmdPath = sentinel.Error("cmd.Path must not be empty")

// waitDelay bounds how long cmd.Wait keeps copying stderr after the child
// exits. A grandchild holding the pipe open would otherwise block Wait.
const waitDelay = 2 * time.Second

// run is the state of one started child. It outlives Stop so that Exited
// and ExitErr keep answering after the process is gone.
type run struct {
	pid    int
	done   chan error    // receives the cmd.Wait result once; consumed by Stop
	exited chan struct{} // closed after err is set
	err    error
}

// BaseProcess provides the start and stop lifecycle shared by process
// wrappers.
//
// SetupAndStart, Stop and Close must be serialized by the caller. Exited,
// ExitErr and PID may be called from any goroutine once SetupAndStart has
// returned.
type BaseProcess struct {
	cmd         *exec.Cmd
	run         *run
	logFiles    LogFiles
	name        string
	log         *slog.Logger
	stopTimeout time.Duration // used by Close; zero means DefaultStopTimeout
}

// NewBaseProcess returns a BaseProcess for the named binary. A nil logger
// falls back to slog.Default(). Panics if name is empty.
func NewBaseProcess(name string, logger *slog.Logger, stopTimeout time.Duration) BaseProcess {
	if name == "" {
		panic("liteservenv: process name must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return BaseProcess{name: name, log: logger, stopTimeout: stopTimeout}
}

// SetupAndStart wires the child's output and starts it.
//
// When logDir is non-empty, stdout and stderr are written to
// <name>-stdout.log and <name>-stderr.log inside it. Stderr is additionally
// copied into every sink, in order, as the child produces it. The returned
// error wraps the exec error unchanged when the binary cannot be started.
func (b *BaseProcess) SetupAndStart(cmd *exec.Cmd, logDir string, stderrSinks ...io.Writer) error {
	if cmd == nil {
		return ErrNilCmd
	}
	if cmd.Path == "" {
		return ErrEmptyCmdPath
	}
	if b.cmd != nil {
		return ErrAlreadyStarted
	}

	configureSysProcAttr(cmd)
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = waitDelay
	}

	logFiles, err := StartCmd(cmd, logDir, b.name, stderrSinks...)
	if err != nil {
		return err
	}
	b.cmd = cmd
	b.logFiles = logFiles

	// cmd.Wait must be called exactly once per started process.
	r := &run{
		pid:    cmd.Process.Pid,
		done:   make(chan error, 1),
		exited: make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		r.err = err
		close(r.exited)
		r.done <- err
	}()
	b.run = r

	b.log.Debug("process started", "process", b.name, "pid", r.pid, "args", cmd.Args[1:])
	return nil
}

// Stop terminates the process, waiting at most timeout (plus a short drain)
// for it to exit. After Stop, IsStarted reports false even if Stop failed.
// Stop on a process that was never started returns nil.
func (b *BaseProcess) Stop(timeout time.Duration) error {
	if b.cmd == nil || b.cmd.Process == nil || b.run == nil {
		b.cmd = nil
		return nil
	}
	err := stopWithDone(b.cmd, b.run.done, timeout, b.name)
	if err != nil {
		b.log.Warn("process stop failed; process may be orphaned",
			"process", b.name, "pid", b.run.pid, "error", err)
	}
	b.cmd = nil
	return err
}

// Close releases the log files. A process that is still running is stopped
// first with the configured stop timeout.
func (b *BaseProcess) Close() {
	if b.cmd != nil {
		b.log.Warn("process.Close called without Stop; stopping automatically",
			"process", b.name)
		timeout := b.stopTimeout
		if timeout <= 0 {
			timeout = DefaultStopTimeout
		}
		if err := b.Stop(timeout); err != nil {
			b.log.Warn("auto-stop during Close failed",
				"process", b.name, "error", err)
		}
	}
	b.logFiles.Close()
}

// Logger returns the logger used by this process.
func (b *BaseProcess) Logger() *slog.Logger {
	return b.log
}

// Exited returns a channel closed when the child exits, or nil if the
// process was never started.
func (b *BaseProcess) Exited() <-chan struct{} {
	if b.run == nil {
		return nil
	}
	return b.run.exited
}

// ExitErr returns the cmd.Wait result once the child has exited, and nil
// while it is running. A child stopped by Stop reports the signal it died
// from.
func (b *BaseProcess) ExitErr() error {
	if b.run == nil {
		return nil
	}
	select {
	case <-b.run.exited:
		return b.run.err
	default:
		return nil
	}
}

// PID returns the child's process id, or 0 if it was never started.
func (b *BaseProcess) PID() int {
	if b.run == nil {
		return 0
	}
	return b.run.pid
}

// IsStarted reports whether the process has been started and not yet stopped.
func (b *BaseProcess) IsStarted() bool {
	return b.cmd != nil
}

// LogFiles returns the log files of the current run. Paths are empty when
// the process was started without a log directory.
func (b *BaseProcess) LogFiles() *LogFiles {
	return &b.logFiles
}

// Name returns the process name given to NewBaseProcess.
func (b *BaseProcess) Name() string {
	return b.name
}

func (b *BaseProcess) String() string {
	return fmt.Sprintf("%s[pid=%d]", b.name, b.PID())
}
