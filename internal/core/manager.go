package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/liteservenv/internal/fileutil"
	"github.com/giantswarm/liteservenv/internal/netutil"
	"github.com/giantswarm/liteservenv/internal/seedcache"
	"github.com/giantswarm/liteservenv/internal/sentinel"
)

// managerState is the lifecycle state of a Manager.
type managerState uint32

const (
	managerCreated      managerState = iota // zero value; NewManagerWithConfig returns in this state
	managerInitializing                     // Initialize in progress
	managerReady                            // Acquire allowed
	managerShuttingDown                     // Shutdown called
)

// ErrShuttingDown is returned by Acquire when the Manager is shutting down.
const ErrShuttingDown = sentinel.Error("manager is shutting down")

// ErrNotInitialized is returned by Acquire when Initialize has not been called.
const ErrNotInitialized = sentinel.Error("manager not initialized")

// Seed cache errors, re-exported so the root package only imports core.
const (
	ErrNoSeedDatabases = seedcache.ErrNoSeedDatabases
	ErrCorruptSeed     = seedcache.ErrCorruptSeed
)

var _ InstanceReleaser = (*Manager)(nil)

// Manager coordinates a Pool of LiteServ instances. It is safe for concurrent
// use.
//
// cfg is immutable after construction. The seed cache found during
// Initialize reaches instances through their InstanceConfig.
//
// Synchronization:
//   - state is an atomic managerState (created, initializing, ready,
//     shuttingDown); Acquire's fast path is a single load.
//   - pool is set once during Initialize and read lock-free.
//   - initMu serializes Initialize.
//   - inflight counts goroutines inside tryReleaseToPool's check-and-release
//     window. Shutdown sets shuttingDown and then waits on inflightDone,
//     which the last release closes.
type Manager struct {
	cfg ManagerConfig

	ports *netutil.PortRegistry

	pool atomic.Pointer[Pool]

	state atomic.Uint32

	inflight         atomic.Int64
	inflightDone     chan struct{}
	inflightDoneOnce sync.Once

	initMu sync.Mutex
}

func (m *Manager) loadState() managerState {
	return managerState(m.state.Load())
}

func (m *Manager) storeState(s managerState) {
	m.state.Store(uint32(s))
}

// NewManagerWithConfig creates a Manager without doing any I/O. Call
// Initialize before Acquire.
//
// Panics if cfg.Validate reports any errors.
func NewManagerWithConfig(cfg ManagerConfig) *Manager {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("liteservenv: invalid manager config: %v", err))
	}
	return &Manager{
		cfg:          cfg,
		ports:        netutil.NewPortRegistry(Logger()),
		inflightDone: make(chan struct{}),
	}
}

// Config returns the manager's configuration.
func (m *Manager) Config() ManagerConfig {
	return m.cfg
}

// Initialize builds the seed cache and the pool. It must be called before
// Acquire. After a success further calls return nil; after a failure the
// next call retries from scratch.
func (m *Manager) Initialize(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	switch m.loadState() {
	case managerReady:
		return nil
	case managerShuttingDown:
		return ErrShuttingDown
	case managerCreated, managerInitializing:
	}

	m.storeState(managerInitializing)

	// Catches a Manager built as a struct literal.
	if err := m.cfg.Validate(); err != nil {
		m.storeState(managerCreated)
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := m.doInitialize(ctx); err != nil {
		if p := m.pool.Load(); p != nil {
			// ctx may be the reason for the failure, so stops use their own.
			if stopErr := m.stopAll(p.Instances()); stopErr != nil { //nolint:contextcheck // rollback must outlive a canceled caller context
				Logger().Warn("failed to stop instances during rollback", "error", stopErr)
			}
		}
		m.pool.Store(nil)
		m.storeState(managerCreated)
		return fmt.Errorf("initialize: %w", err)
	}

	m.storeState(managerReady)
	return nil
}

func (m *Manager) doInitialize(ctx context.Context) error {
	if err := fileutil.EnsureDir(m.cfg.BaseDataDir); err != nil {
		return fmt.Errorf("init base dir: %w", err)
	}

	instCfg := InstanceConfig{
		StartTimeout:    m.cfg.InstanceStartTimeout,
		StopTimeout:     m.cfg.InstanceStopTimeout,
		CleanupTimeout:  m.cfg.CleanupTimeout,
		MaxStartRetries: defaultMaxStartRetries,
		LiteServBinary:  m.cfg.LiteServBinary,
		LiteServEnv:     m.cfg.LiteServEnv,
		ReleaseStrategy: m.cfg.ReleaseStrategy,
	}

	if m.cfg.SeedDir != "" {
		result, err := seedcache.EnsureCache(ctx, seedcache.Config{
			SeedDir:  m.cfg.SeedDir,
			CacheDir: m.cfg.BaseDataDir,
			Timeout:  m.cfg.SeedCacheTimeout,
			Logger:   Logger(),
		})
		if err != nil {
			return fmt.Errorf("ensure seed cache: %w", err)
		}
		instCfg.SeedPath = result.CachePath
		instCfg.SeedDatabases = result.Databases
	}

	factory := m.instanceFactory(m.cfg.BaseDataDir, instCfg)
	m.pool.Store(NewPool(factory, m.cfg.PoolSize))

	return nil
}

// genID returns a random 8-character hex ID.
func genID() string {
	return fmt.Sprintf(
		"%08x",
		rand.Uint32(), //nolint:gosec // instance IDs need uniqueness, not cryptographic strength
	)
}

// instanceFactory returns an InstanceFactory that places each instance in its
// own directory under baseDataDir.
func (m *Manager) instanceFactory(baseDataDir string, cfg InstanceConfig) InstanceFactory {
	return func(index int) (*Instance, error) {
		instID := fmt.Sprintf("inst-%d-%s", index, genID())
		return NewInstance(NewInstanceParams{
			ID:       instID,
			DataDir:  filepath.Join(baseDataDir, instID),
			Releaser: m,
			Ports:    m.ports,
			Config:   cfg,
		}), nil
	}
}

// Acquire returns an Instance with a running LiteServ, starting one if
// needed. AcquireTimeout covers waiting for a free slot and startup.
//
// Returns ErrNotInitialized before Initialize and ErrShuttingDown after
// Shutdown.
func (m *Manager) Acquire(ctx context.Context) (*Instance, uint64, error) {
	switch m.loadState() {
	case managerShuttingDown:
		return nil, 0, ErrShuttingDown
	case managerReady:
	case managerCreated, managerInitializing:
		return nil, 0, ErrNotInitialized
	}

	pool := m.pool.Load()
	if pool == nil {
		return nil, 0, ErrNotInitialized
	}

	started := time.Now()
	acquireCtx, cancel := context.WithTimeout(ctx, m.cfg.AcquireTimeout)
	defer cancel()

	inst, token, err := pool.Acquire(acquireCtx)
	if err != nil {
		acquireErrorsTotal.Inc()
		return nil, 0, fmt.Errorf("acquire instance from pool: %w", err)
	}

	// Shutdown may have started while we waited, and its sweep over
	// pool.Instances may already have passed this one.
	if m.loadState() == managerShuttingDown {
		m.stopInstanceDuringShutdown(acquireCtx, inst, token)
		return nil, 0, ErrShuttingDown
	}

	if !inst.IsStarted() || inst.hasExited() {
		if err := inst.Start(acquireCtx); err != nil {
			inst.setErr(err)
			pool.ReleaseFailed(inst, token) //nolint:contextcheck // ReleaseFailed bounds its own stop
			acquireErrorsTotal.Inc()
			return nil, 0, fmt.Errorf("start instance: %w", err)
		}
	}

	acquiresTotal.Inc()
	acquireDuration.UpdateDuration(started)
	return inst, token, nil
}

// IsShuttingDown reports whether Shutdown has been called.
func (m *Manager) IsShuttingDown() bool {
	return m.loadState() == managerShuttingDown
}

// Stats returns a snapshot of the pool, or the zero value before Initialize.
func (m *Manager) Stats() PoolStats {
	pool := m.pool.Load()
	if pool == nil {
		return PoolStats{MaxSize: m.cfg.PoolSize}
	}
	return pool.Stats()
}

// ReleaseToPool returns the instance to the pool, or stops it when the
// manager is shutting down. It reports whether the instance was pooled.
//
// The inflight counter makes this safe against a concurrent Shutdown:
//
//   - Release first: tryReleaseToPool holds inflight while it puts the
//     instance back, and Shutdown waits for inflight to drain before it
//     sweeps pool.Instances.
//   - Shutdown first: tryReleaseToPool sees shuttingDown and returns false,
//     and the instance is stopped here.
//
// Either way every instance is stopped exactly once.
func (m *Manager) ReleaseToPool(i *Instance, token uint64) bool {
	if m.tryReleaseToPool(i, token) {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.InstanceStopTimeout)
	defer cancel()
	m.stopInstanceDuringShutdown(ctx, i, token)
	return false
}

// stopInstanceDuringShutdown frees the instance and stops it. A stale token
// panics.
func (m *Manager) stopInstanceDuringShutdown(ctx context.Context, i *Instance, token uint64) {
	if !i.tryRelease(token) {
		panic("liteservenv: double-release of instance " + i.ID())
	}
	if err := i.Stop(ctx); err != nil {
		i.log.Warn("failed to stop instance during shutdown", "error", err)
	}
}

// tryReleaseToPool brackets the state check and pool.Release with the
// inflight counter. The deferred decrement also runs if pool.Release panics
// on a double release.
func (m *Manager) tryReleaseToPool(i *Instance, token uint64) bool {
	m.inflight.Add(1)
	defer func() {
		if m.inflight.Add(-1) == 0 && m.loadState() == managerShuttingDown {
			m.inflightDoneOnce.Do(func() { close(m.inflightDone) })
		}
	}()

	if m.loadState() == managerShuttingDown {
		return false
	}

	pool := m.pool.Load()
	if pool == nil {
		return false
	}

	pool.Release(i, token)
	return true
}

// ReleaseFailed removes the instance from the pool and stops it.
func (m *Manager) ReleaseFailed(i *Instance, token uint64) {
	pool := m.pool.Load()
	if pool == nil {
		return
	}

	pool.ReleaseFailed(i, token)
}

// Shutdown stops every instance. It is safe to call before Initialize and
// more than once; later calls find a closed, drained pool. The errors of
// all failed stops are joined.
//
// Shutdown waits up to ShutdownDrainTimeout for in-flight releases, then
// closes the pool (which also unblocks Acquire calls waiting for a slot) and
// stops all instances in parallel.
func (m *Manager) Shutdown() error {
	// Linearization point: after this store no tryReleaseToPool can see
	// managerReady.
	m.storeState(managerShuttingDown)

	drainTimeout := m.cfg.ShutdownDrainTimeout
	if m.inflight.Load() == 0 {
		m.inflightDoneOnce.Do(func() { close(m.inflightDone) })
	}
	drainTimer := time.NewTimer(drainTimeout)
	select {
	case <-m.inflightDone:
		drainTimer.Stop()
	case <-drainTimer.C:
		Logger().Warn("shutdown: timed out waiting for inflight operations to drain; proceeding",
			slog.Int64("inflight", m.inflight.Load()),
			slog.Duration("timeout", drainTimeout))
	}

	pool := m.pool.Load()
	if pool == nil {
		return nil
	}

	pool.Close()

	instances := pool.Instances()
	for _, i := range instances {
		if i != nil && i.IsBusy() {
			i.log.Warn("stopping instance that is still in use; " +
				"ensure all instances are released before calling Shutdown")
		}
	}
	return m.stopAll(instances)
}

// stopAll stops instances in parallel, each bounded by InstanceStopTimeout,
// and joins their errors. Stop is idempotent, so already stopped instances
// are cheap.
func (m *Manager) stopAll(instances []*Instance) error {
	stopErrs := make([]error, len(instances))
	var g errgroup.Group
	for idx, inst := range instances {
		if inst == nil {
			continue
		}
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.InstanceStopTimeout)
			defer cancel()
			if err := inst.Stop(ctx); err != nil {
				stopErrs[idx] = fmt.Errorf("stop instance %s: %w", inst.ID(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(stopErrs...)
}
