package liteserv

import (
	"fmt"

	"github.com/giantswarm/liteservenv/internal/sentinel"
)

const (
	// ErrNotReady is returned when LiteServ did not report readiness in time.
	ErrNotReady = sentinel.Error("liteserv not ready")

	// ErrProcessExited is returned when LiteServ exited while being waited on.
	ErrProcessExited = sentinel.Error("liteserv process exited")

	// ErrNotStarted is returned by wait methods called before Start.
	ErrNotStarted = sentinel.Error("liteserv not started")

	// ErrDatabaseNotFound is returned when a database does not exist.
	ErrDatabaseNotFound = sentinel.Error("database not found")

	// ErrDatabaseExists is returned when creating a database that exists.
	ErrDatabaseExists = sentinel.Error("database already exists")
)

// LaunchError reports that the LiteServ executable could not be started.
type LaunchError struct {
	Path string // executable that failed to start
	Err  error  // underlying exec error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch liteserv %q: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// StatusError reports an unexpected HTTP status from LiteServ.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.Code)
}
