package liteservenv

import "time"

// ResetForTesting makes the next NewManager call build a fresh manager.
func ResetForTesting() { resetForTesting() }

// ConfigSnapshot copies managerConfig for assertions in liteservenv_test.
type ConfigSnapshot struct {
	PoolSize             int
	ReleaseStrategy      ReleaseStrategy
	LiteServBinary       string
	LiteServEnv          []string
	AcquireTimeout       time.Duration
	SeedDir              string
	BaseDataDir          string
	SeedCacheTimeout     time.Duration
	InstanceStartTimeout time.Duration
	InstanceStopTimeout  time.Duration
	CleanupTimeout       time.Duration
	ShutdownDrainTimeout time.Duration
}

// ApplyOptionsForTesting applies opts to the defaults without touching the
// singleton.
func ApplyOptionsForTesting(opts ...ManagerOption) ConfigSnapshot {
	cfg := defaultManagerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return ConfigSnapshot{
		PoolSize:             cfg.PoolSize,
		ReleaseStrategy:      cfg.ReleaseStrategy,
		LiteServBinary:       cfg.LiteServBinary,
		LiteServEnv:          cfg.LiteServEnv,
		AcquireTimeout:       cfg.AcquireTimeout,
		SeedDir:              cfg.SeedDir,
		BaseDataDir:          cfg.BaseDataDir,
		SeedCacheTimeout:     cfg.SeedCacheTimeout,
		InstanceStartTimeout: cfg.InstanceStartTimeout,
		InstanceStopTimeout:  cfg.InstanceStopTimeout,
		CleanupTimeout:       cfg.CleanupTimeout,
		ShutdownDrainTimeout: cfg.ShutdownDrainTimeout,
	}
}
