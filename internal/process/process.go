package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// LogFiles holds the stdout and stderr files of one process run. The zero
// value represents a run without log files.
type LogFiles struct {
	stdoutFile *os.File
	stderrFile *os.File
	dir        string
	stdoutName string // e.g. "liteserv-stdout.log"
	stderrName string // e.g. "liteserv-stderr.log"
}

func (l *LogFiles) create() error {
	stdoutFile, err := os.Create(l.StdoutPath())
	if err != nil {
		return fmt.Errorf("create stdout log: %w", err)
	}
	stderrFile, err := os.Create(l.StderrPath())
	if err != nil {
		_ = stdoutFile.Close()
		return fmt.Errorf("create stderr log: %w", err)
	}
	l.stdoutFile = stdoutFile
	l.stderrFile = stderrFile
	return nil
}

// Close closes both files. It is safe to call more than once.
func (l *LogFiles) Close() {
	if l.stdoutFile != nil {
		_ = l.stdoutFile.Close()
		l.stdoutFile = nil
	}
	if l.stderrFile != nil {
		_ = l.stderrFile.Close()
		l.stderrFile = nil
	}
}

// StdoutPath returns the stdout log path, or "" without a log directory.
func (l *LogFiles) StdoutPath() string {
	if l.dir == "" {
		return ""
	}
	return filepath.Join(l.dir, l.stdoutName)
}

// StderrPath returns the stderr log path, or "" without a log directory.
func (l *LogFiles) StderrPath() string {
	if l.dir == "" {
		return ""
	}
	return filepath.Join(l.dir, l.stderrName)
}

// NewLogFiles creates <processName>-stdout.log and <processName>-stderr.log
// in dir, truncating earlier runs.
func NewLogFiles(dir, processName string) (LogFiles, error) {
	l := LogFiles{
		dir:        dir,
		stdoutName: processName + "-stdout.log",
		stderrName: processName + "-stderr.log",
	}
	if err := l.create(); err != nil {
		return LogFiles{}, err
	}
	return l, nil
}

// DefaultStopTimeout is the stop timeout used when none is configured.
const DefaultStopTimeout = 10 * time.Second

// termGracePeriod is how long a process gets after SIGTERM before SIGKILL.
// It is capped at the overall stop timeout.
const termGracePeriod = 5 * time.Second

// killDrainTimeout bounds the wait for cmd.Wait after SIGKILL or after a
// failed signal.
const killDrainTimeout = 10 * time.Second

// drainDone reads from done within timeout. It reports false if nothing
// arrived in time.
func drainDone(done <-chan error, timeout time.Duration) (bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case err := <-done:
		return true, err
	case <-t.C:
		return false, nil
	}
}

// stopWithDone sends SIGTERM, schedules SIGKILL after the grace period and
// waits on done, which must carry the result of the one cmd.Wait call.
//
// Worst case it blocks for timeout + killDrainTimeout.
func stopWithDone(cmd *exec.Cmd, done <-chan error, timeout time.Duration, name string) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if done == nil {
		return fmt.Errorf("%s: done channel must not be nil", name)
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already exited.
		ok, waitErr := drainDone(done, killDrainTimeout)
		if !ok {
			return fmt.Errorf("%s: timed out draining process after signal failure", name)
		}
		return expectStopExit(waitErr, name)
	}

	grace := min(termGracePeriod, timeout)
	killTimer := time.AfterFunc(grace, func() {
		_ = cmd.Process.Kill()
	})
	defer killTimer.Stop()

	totalTimer := time.NewTimer(timeout)
	defer totalTimer.Stop()

	select {
	case err := <-done:
		return expectStopExit(err, name)
	case <-totalTimer.C:
		ok, waitErr := drainDone(done, killDrainTimeout)
		if !ok {
			return fmt.Errorf("%s: timed out waiting for process to exit after SIGKILL", name)
		}
		if err := expectStopExit(waitErr, name); err != nil {
			return fmt.Errorf("%s stop timeout: %w", name, err)
		}
		return nil
	}
}

// expectStopExit interprets the cmd.Wait result of a process we asked to
// stop. Death by SIGTERM or SIGKILL is a clean stop. So is a plain exit
// status, because LiteServ may trap SIGTERM and exit on its own, or may have
// exited before the signal arrived.
func expectStopExit(err error, name string) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		status, ok := exitErr.Sys().(syscall.WaitStatus)
		if !ok {
			return nil
		}
		if !status.Signaled() {
			return nil
		}
		if sig := status.Signal(); sig == syscall.SIGTERM || sig == syscall.SIGKILL {
			return nil
		}
	}
	return fmt.Errorf("%s: %w", name, err)
}

// StartCmd attaches output to cmd and starts it. When logDir is empty no log
// files are created and stdout is discarded. On failure any created log
// files are closed.
func StartCmd(cmd *exec.Cmd, logDir, processName string, stderrSinks ...io.Writer) (LogFiles, error) {
	var logFiles LogFiles
	if logDir != "" {
		var err error
		logFiles, err = NewLogFiles(logDir, processName)
		if err != nil {
			return LogFiles{}, fmt.Errorf("create %s logs: %w", processName, err)
		}
		cmd.Stdout = logFiles.stdoutFile
	}

	var stderr []io.Writer
	if logFiles.stderrFile != nil {
		stderr = append(stderr, logFiles.stderrFile)
	}
	for _, w := range stderrSinks {
		if w != nil {
			stderr = append(stderr, w)
		}
	}
	switch len(stderr) {
	case 0:
	case 1:
		cmd.Stderr = stderr[0]
	default:
		cmd.Stderr = io.MultiWriter(stderr...)
	}

	if err := cmd.Start(); err != nil {
		logFiles.Close()
		return LogFiles{}, fmt.Errorf("start %s process: %w", processName, err)
	}

	return logFiles, nil
}
