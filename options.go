package liteservenv

import (
	"fmt"
	"strings"
	"time"
)

func requirePositive[T int | time.Duration](name string, v T) {
	if v <= 0 {
		panic(fmt.Sprintf("liteservenv: %s must be greater than 0, got %v", name, v))
	}
}

func requireNonEmpty(name, s string) {
	if s == "" {
		panic(fmt.Sprintf("liteservenv: %s must not be empty", name))
	}
}

// ManagerOption configures a Manager built by NewManager.
//
// With* functions panic on invalid input such as negative sizes, empty paths
// or non-positive durations. Option values are almost always constants, so a
// bad one is a programmer error and fails at construction, the same way
// regexp.MustCompile does.
type ManagerOption func(*managerConfig)

// WithPoolSize caps the number of instances the pool creates. Acquire blocks
// while all of them are in use. 0 means unlimited.
//
// Default: 4.
//
// Panics if size < 0.
func WithPoolSize(size int) ManagerOption {
	if size < 0 {
		panic(fmt.Sprintf("liteservenv: pool size must not be negative, got %d", size))
	}
	return func(c *managerConfig) {
		c.PoolSize = size
	}
}

// WithLiteServBinary sets the LiteServ executable. A bare name is looked up
// in PATH.
//
// Default: "LiteServ".
//
// Panics if binPath is empty.
func WithLiteServBinary(binPath string) ManagerOption {
	requireNonEmpty("liteserv binary path", binPath)
	return func(c *managerConfig) {
		c.LiteServBinary = binPath
	}
}

// WithLiteServEnv adds KEY=VALUE entries to the environment every LiteServ
// child inherits. Repeated options accumulate.
//
// Panics if an entry has no "=" or an empty key.
func WithLiteServEnv(env ...string) ManagerOption {
	for _, kv := range env {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			panic(fmt.Sprintf("liteservenv: liteserv env entry %q must have the form KEY=VALUE", kv))
		}
	}
	env = append([]string(nil), env...)
	return func(c *managerConfig) {
		c.LiteServEnv = append(c.LiteServEnv, env...)
	}
}

// WithAcquireTimeout bounds Acquire, covering both the wait for a free
// instance and its start.
//
// Default: 30 seconds.
//
// Panics if d <= 0.
func WithAcquireTimeout(d time.Duration) ManagerOption {
	requirePositive("acquire timeout", d)
	return func(c *managerConfig) {
		c.AcquireTimeout = d
	}
}

// WithSeedDir sets a directory whose .cblite and .cblite2 databases are
// copied into every instance before it starts. Initialize snapshots the
// directory into a cache keyed by a hash of its contents, so editing the
// seeds produces a new cache.
//
// Panics if dirPath is empty.
func WithSeedDir(dirPath string) ManagerOption {
	requireNonEmpty("seed directory path", dirPath)
	return func(c *managerConfig) {
		c.SeedDir = dirPath
	}
}

// WithSeedCacheTimeout bounds building the seed cache, including the wait
// for another process holding the cache lock.
//
// Default: 5 minutes.
//
// Panics if d <= 0.
func WithSeedCacheTimeout(d time.Duration) ManagerOption {
	requirePositive("seed cache timeout", d)
	return func(c *managerConfig) {
		c.SeedCacheTimeout = d
	}
}

// WithBaseDataDir sets the directory holding instance data and the seed
// cache. Useful in CI where several projects share one machine.
//
// Default: $TMPDIR/liteservenv.
//
// Panics if dir is empty.
func WithBaseDataDir(dir string) ManagerOption {
	requireNonEmpty("base data directory", dir)
	return func(c *managerConfig) {
		c.BaseDataDir = dir
	}
}

// WithInstanceStartTimeout bounds one start attempt: the listening line on
// stderr followed by a successful GET /.
//
// Default: 1 minute.
//
// Panics if d <= 0.
func WithInstanceStartTimeout(d time.Duration) ManagerOption {
	requirePositive("instance start timeout", d)
	return func(c *managerConfig) {
		c.InstanceStartTimeout = d
	}
}

// WithInstanceStopTimeout bounds the graceful stop of one instance before it
// is killed.
//
// Default: 10 seconds.
//
// Panics if d <= 0.
func WithInstanceStopTimeout(d time.Duration) ManagerOption {
	requirePositive("instance stop timeout", d)
	return func(c *managerConfig) {
		c.InstanceStopTimeout = d
	}
}

// WithCleanupTimeout bounds database deletion under ReleaseClean.
//
// Default: 30 seconds.
//
// Panics if d <= 0.
func WithCleanupTimeout(d time.Duration) ManagerOption {
	requirePositive("cleanup timeout", d)
	return func(c *managerConfig) {
		c.CleanupTimeout = d
	}
}

// WithShutdownDrainTimeout sets how long Shutdown waits for releases that
// are still running.
//
// Default: 30 seconds.
//
// Panics if d <= 0.
func WithShutdownDrainTimeout(d time.Duration) ManagerOption {
	requirePositive("shutdown drain timeout", d)
	return func(c *managerConfig) {
		c.ShutdownDrainTimeout = d
	}
}

// WithReleaseStrategy selects what Release does. See ReleaseStrategy.
//
// Default: ReleaseRestart.
//
// Panics if s is not a known strategy.
func WithReleaseStrategy(s ReleaseStrategy) ManagerOption {
	if !s.IsValid() {
		panic(fmt.Sprintf("liteservenv: invalid release strategy: %s", s))
	}
	return func(c *managerConfig) {
		c.ReleaseStrategy = s
	}
}
