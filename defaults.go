package liteservenv

import "time"

// Default configuration values for NewManager.
const (
	// DefaultPoolSize caps the number of pooled instances. 0 would mean
	// unlimited.
	DefaultPoolSize = 4

	// DefaultLiteServBinary is looked up in PATH.
	DefaultLiteServBinary = "LiteServ"

	// DefaultAcquireTimeout covers waiting for a free instance and starting
	// it.
	DefaultAcquireTimeout = 30 * time.Second

	// DefaultBaseDataDirName is the directory under os.TempDir() that holds
	// instance data and the seed cache.
	DefaultBaseDataDirName = "liteservenv"

	// DefaultSeedCacheTimeout bounds building the seed cache, including the
	// wait for another process that holds the cache lock.
	DefaultSeedCacheTimeout = 5 * time.Minute

	// DefaultInstanceStartTimeout bounds one start attempt: the listening
	// line and the HTTP probe.
	DefaultInstanceStartTimeout = time.Minute

	// DefaultInstanceStopTimeout bounds the graceful stop of one instance.
	DefaultInstanceStopTimeout = 10 * time.Second

	// DefaultCleanupTimeout bounds database deletion under ReleaseClean.
	DefaultCleanupTimeout = 30 * time.Second

	// DefaultShutdownDrainTimeout is how long Shutdown waits for in-flight
	// releases. Keep it above InstanceStopTimeout when ReleaseRestart is
	// used, or a release may still be stopping when Shutdown proceeds.
	DefaultShutdownDrainTimeout = 30 * time.Second

	// DefaultReleaseStrategy is used when WithReleaseStrategy is not given.
	DefaultReleaseStrategy = ReleaseRestart
)
