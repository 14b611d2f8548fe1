package core

import (
	"errors"
	"fmt"
	"time"
)

// ReleaseStrategy controls what happens when an Instance is released back to the pool.
type ReleaseStrategy int

const (
	// ReleaseRestart stops the instance. The next Acquire starts a fresh
	// LiteServ whose data directory is reset and re-seeded from the seed
	// cache. This is the default strategy.
	ReleaseRestart ReleaseStrategy = iota

	// ReleaseClean deletes every database that was not part of the seed
	// through the REST API and keeps the instance running. Seeded databases
	// are preserved as they are; tests that write into them must use
	// ReleaseRestart.
	ReleaseClean

	// ReleaseNone returns the instance to the pool as-is. The next consumer
	// sees every database created by the previous one.
	ReleaseNone
)

// IsValid reports whether s is a recognized ReleaseStrategy value.
func (s ReleaseStrategy) IsValid() bool {
	switch s {
	case ReleaseRestart, ReleaseClean, ReleaseNone:
		return true
	default:
		return false
	}
}

// String returns the name of the strategy.
func (s ReleaseStrategy) String() string {
	switch s {
	case ReleaseRestart:
		return "ReleaseRestart"
	case ReleaseClean:
		return "ReleaseClean"
	case ReleaseNone:
		return "ReleaseNone"
	default:
		return fmt.Sprintf("ReleaseStrategy(%d)", int(s))
	}
}

// ManagerConfig holds configuration for Manager instances.
//
// All fields are immutable after NewManagerWithConfig. The seed cache path
// found during Initialize is runtime state and lives on the Manager.
type ManagerConfig struct {
	LiteServBinary string
	AcquireTimeout time.Duration
	BaseDataDir    string

	// LiteServEnv holds extra KEY=VALUE entries for every LiteServ child,
	// on top of the inherited environment.
	LiteServEnv []string

	// SeedDir holds *.cblite and *.cblite2 databases copied into every
	// instance before it starts. Empty means instances start with no
	// databases.
	SeedDir string

	// PoolSize caps the number of instances. 0 means unlimited.
	PoolSize int

	ReleaseStrategy ReleaseStrategy

	// SeedCacheTimeout bounds seed collection, validation and copying
	// during Initialize, including the wait for another process holding
	// the cache lock.
	SeedCacheTimeout time.Duration

	// InstanceStartTimeout bounds one start attempt: the listening line
	// plus the HTTP probe.
	InstanceStartTimeout time.Duration

	// InstanceStopTimeout bounds the SIGTERM/SIGKILL sequence of one
	// instance.
	InstanceStopTimeout time.Duration

	// CleanupTimeout bounds the database deletion of ReleaseClean. Validate
	// requires it regardless of strategy.
	CleanupTimeout time.Duration

	// ShutdownDrainTimeout is how long Shutdown waits for in-flight releases
	// before stopping instances.
	ShutdownDrainTimeout time.Duration
}

// Validate checks all ManagerConfig invariants and returns every violation
// joined with errors.Join.
//
// NewManagerWithConfig panics on a non-nil result; Initialize returns it.
func (c ManagerConfig) Validate() error {
	var errs []error

	if c.LiteServBinary == "" {
		errs = append(errs, errors.New("liteserv binary path must not be empty"))
	}
	if c.AcquireTimeout <= 0 {
		errs = append(errs, fmt.Errorf("acquire timeout must be greater than 0, got %s", c.AcquireTimeout))
	}
	if c.BaseDataDir == "" {
		errs = append(errs, errors.New("base data directory must not be empty"))
	}
	if c.InstanceStartTimeout <= 0 {
		errs = append(errs, fmt.Errorf("instance start timeout must be greater than 0, got %s", c.InstanceStartTimeout))
	}
	if c.InstanceStopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("instance stop timeout must be greater than 0, got %s", c.InstanceStopTimeout))
	}
	if c.CleanupTimeout <= 0 {
		errs = append(errs, fmt.Errorf("cleanup timeout must be greater than 0, got %s", c.CleanupTimeout))
	}
	if c.SeedCacheTimeout <= 0 {
		errs = append(errs, fmt.Errorf("seed cache timeout must be greater than 0, got %s", c.SeedCacheTimeout))
	}
	if c.ShutdownDrainTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown drain timeout must be greater than 0, got %s", c.ShutdownDrainTimeout))
	}
	if c.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("pool size must not be negative, got %d", c.PoolSize))
	}
	if !c.ReleaseStrategy.IsValid() {
		errs = append(errs, fmt.Errorf("invalid release strategy: %v", c.ReleaseStrategy))
	}

	return errors.Join(errs...)
}

// InstanceConfig holds configuration for Instance objects.
// All fields are immutable after NewInstance.
type InstanceConfig struct {
	// StartTimeout bounds one start attempt.
	StartTimeout time.Duration
	// StopTimeout bounds the SIGTERM/SIGKILL sequence.
	StopTimeout time.Duration
	// CleanupTimeout bounds the database deletion of ReleaseClean.
	CleanupTimeout time.Duration
	// MaxStartRetries is the number of start attempts before giving up.
	MaxStartRetries int
	// SeedPath is the seed cache directory copied into the data directory
	// before every start. Empty means no seed.
	SeedPath string
	// SeedDatabases names the databases in SeedPath. ReleaseClean never
	// deletes them.
	SeedDatabases   []string
	LiteServBinary  string
	LiteServEnv     []string
	ReleaseStrategy ReleaseStrategy
}

// Validate checks all InstanceConfig invariants and returns every violation
// joined with errors.Join. NewInstance panics on a non-nil result.
func (c InstanceConfig) Validate() error {
	var errs []error

	if c.StartTimeout <= 0 {
		errs = append(errs, fmt.Errorf("start timeout must be greater than 0, got %s", c.StartTimeout))
	}
	if c.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("stop timeout must be greater than 0, got %s", c.StopTimeout))
	}
	if c.CleanupTimeout <= 0 {
		errs = append(errs, fmt.Errorf("cleanup timeout must be greater than 0, got %s", c.CleanupTimeout))
	}
	if c.MaxStartRetries <= 0 {
		errs = append(errs, fmt.Errorf("max start retries must be greater than 0, got %d", c.MaxStartRetries))
	}
	if c.LiteServBinary == "" {
		errs = append(errs, errors.New("liteserv binary path must not be empty"))
	}
	if c.SeedPath == "" && len(c.SeedDatabases) > 0 {
		errs = append(errs, errors.New("seed databases given without a seed path"))
	}
	if !c.ReleaseStrategy.IsValid() {
		errs = append(errs, fmt.Errorf("invalid release strategy: %v", c.ReleaseStrategy))
	}

	return errors.Join(errs...)
}
