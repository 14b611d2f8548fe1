package process

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/giantswarm/liteservenv/internal/sentinel"
)

const (
	// ErrIntervalNotPositive indicates a non-positive poll interval.
	ErrIntervalNotPositive = sentinel.Error("interval must be positive")

	// ErrTimeoutNotPositive indicates a non-positive timeout.
	ErrTimeoutNotPositive = sentinel.Error("timeout must be positive")

	// ErrProcessExited indicates the process exited before becoming ready.
	ErrProcessExited = sentinel.Error("process exited before becoming ready")

	// ErrEmptyName indicates a WaitReadyConfig without a name.
	ErrEmptyName = sentinel.Error("name must not be empty")
)

// ReadinessCheck reports whether a process is ready. attempt starts at 1.
// A non-nil error aborts the wait.
type ReadinessCheck func(ctx context.Context, attempt int) (ready bool, err error)

// WaitReadyConfig configures WaitReady.
type WaitReadyConfig struct {
	Interval      time.Duration   // fixed poll interval; ignored when Backoff is set
	Backoff       *wait.Backoff   // optional growing delay between checks; holds its last value
	Timeout       time.Duration   // overall timeout
	Name          string          // for errors and logs, e.g. "liteserv"
	Port          int             // for errors and logs
	Logger        *slog.Logger    // defaults to slog.Default()
	ProcessExited <-chan struct{} // abort as soon as this is closed
}

// WaitReady calls check until it reports ready, returns an error, the
// process exits, or the timeout elapses. The first check runs immediately.
func WaitReady(ctx context.Context, cfg WaitReadyConfig, check ReadinessCheck) error {
	if cfg.Name == "" {
		return fmt.Errorf("wait ready: %w", ErrEmptyName)
	}
	if cfg.Backoff == nil && cfg.Interval <= 0 {
		return fmt.Errorf("wait for %s: %w", cfg.Name, ErrIntervalNotPositive)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("wait for %s: %w", cfg.Name, ErrTimeoutNotPositive)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	// The condition is never invoked concurrently with itself.
	attempt := 0
	condition := func(pollCtx context.Context) (bool, error) {
		if cfg.ProcessExited != nil {
			select {
			case <-cfg.ProcessExited:
				return false, fmt.Errorf("process %s: %w", cfg.Name, ErrProcessExited)
			default:
			}
		}

		attempt++
		ready, err := check(pollCtx, attempt)
		if err != nil {
			return false, err
		}
		if ready {
			log.Debug("wait succeeded", "name", cfg.Name, "port", cfg.Port, "attempt", attempt)
		}
		return ready, nil
	}

	var err error
	if cfg.Backoff != nil {
		// Once Steps run out or Cap is reached the delay holds, so only the
		// timeout or ctx ends the wait.
		waitCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		err = cfg.Backoff.DelayFunc().Until(waitCtx, true, true, condition)
	} else {
		err = wait.PollUntilContextTimeout(ctx, cfg.Interval, cfg.Timeout, true, condition)
	}
	if err != nil {
		return fmt.Errorf("wait for %s readiness on port %d: %w", cfg.Name, cfg.Port, err)
	}
	return nil
}
