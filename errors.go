package liteservenv

import (
	"github.com/giantswarm/liteservenv/internal/core"
	"github.com/giantswarm/liteservenv/internal/liteserv"
)

// Sentinel errors for use with errors.Is.
const (
	// ErrShuttingDown is returned by Acquire when the manager is shutting down.
	ErrShuttingDown = core.ErrShuttingDown

	// ErrNotInitialized is returned by Acquire when Initialize has not been called.
	ErrNotInitialized = core.ErrNotInitialized

	// ErrPoolClosed is returned when Acquire is called on a pool that has
	// been closed during shutdown.
	ErrPoolClosed = core.ErrPoolClosed

	// ErrInstanceReleased is returned by Instance.URL after Release.
	ErrInstanceReleased = core.ErrInstanceReleased

	// ErrNotStarted is returned by Instance.URL when the instance's LiteServ
	// has not been launched yet.
	ErrNotStarted = core.ErrNotStarted

	// ErrNoSeedDatabases is returned by Initialize when the seed directory
	// holds no .cblite or .cblite2 databases.
	ErrNoSeedDatabases = core.ErrNoSeedDatabases

	// ErrCorruptSeed is returned by Initialize when a seed database fails
	// its SQLite integrity check.
	ErrCorruptSeed = core.ErrCorruptSeed

	// ErrProcessExited is returned by Handle.WaitReady and Handle.Probe when
	// LiteServ exits before it is ready.
	ErrProcessExited = liteserv.ErrProcessExited

	// ErrNotReady is returned by Handle.WaitReady and Handle.Probe when the
	// context ends before LiteServ is ready.
	ErrNotReady = liteserv.ErrNotReady
)

// LaunchError reports that the LiteServ executable could not be started.
// Use errors.As to obtain it; Unwrap yields the underlying exec error.
type LaunchError = liteserv.LaunchError
