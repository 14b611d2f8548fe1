package liteservenv

import (
	"context"

	"github.com/giantswarm/liteservenv/internal/core"
)

// PoolStats is a point-in-time view of the manager's pool.
type PoolStats = core.PoolStats

// Manager coordinates a pool of LiteServ instances for testing.
//
// Callers must follow this lifecycle ordering:
//
//	NewManager → Initialize → Acquire/Release (repeatable) → Shutdown
//
// Shutdown is safe to call at any point, including before Initialize.
type Manager interface {
	// Initialize prepares the base data directory and, when a seed directory
	// is configured, the seed cache. Safe to call more than once: after a
	// success further calls return nil, after a failure they retry.
	Initialize(ctx context.Context) error

	// Acquire hands out an instance, creating one when none is free and
	// starting its LiteServ on first use. With a pool size limit Acquire
	// blocks while every instance is in use.
	//
	// The acquire timeout (WithAcquireTimeout) covers both the wait for a
	// free instance and the start.
	//
	// Returns ErrNotInitialized before Initialize and ErrShuttingDown once
	// Shutdown has begun.
	Acquire(ctx context.Context) (Instance, error)

	// Stats reports the current pool occupancy.
	Stats() PoolStats

	// Shutdown stops every instance. Returns an error if any fails to stop.
	Shutdown() error
}

// Instance is an acquired LiteServ server.
type Instance interface {
	// URL returns the base URL of the instance's REST listener, for example
	// "http://127.0.0.1:59840/". Returns ErrInstanceReleased after Release.
	URL() (string, error)

	// Port returns the port LiteServ listens on, or 0 after Release.
	Port() int

	// DataDir returns the directory LiteServ was started with as --dir.
	// Seed databases are copied here before each start.
	DataDir() string

	// Release returns the instance to the pool. What happens next depends
	// on the ReleaseStrategy:
	//
	//   - ReleaseRestart (default): LiteServ is stopped; the next Acquire
	//     starts it again from a freshly seeded directory.
	//   - ReleaseClean: every database that is neither seeded nor a system
	//     database is deleted over REST; LiteServ keeps running.
	//   - ReleaseNone: nothing is cleaned.
	//
	// Returns nil on success, so defer inst.Release() is safe. On error the
	// instance has already been removed from the pool; the error is
	// informational.
	Release() error

	// ID returns a unique identifier for this instance.
	ID() string
}
