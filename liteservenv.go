package liteservenv

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/giantswarm/liteservenv/internal/core"
)

// Singleton state for NewManager. singletonMu guards both fields so
// resetForTesting can run alongside NewManager.
var (
	singletonMu   sync.Mutex
	singletonMgr  Manager
	singletonOnce sync.Once
)

var (
	_ Manager  = (*managerWrapper)(nil)
	_ Instance = (*instanceWrapper)(nil)
)

// managerWrapper adapts core.Manager to Manager. The core manager is a named
// field so type assertions cannot reach ReleaseToPool and friends.
type managerWrapper struct {
	mgr *core.Manager
}

func (w *managerWrapper) Initialize(ctx context.Context) error {
	return w.mgr.Initialize(ctx)
}

//nolint:ireturn // Instance is an interface so tests can mock it.
func (w *managerWrapper) Acquire(ctx context.Context) (Instance, error) {
	inst, token, err := w.mgr.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &instanceWrapper{inst: inst, token: token}, nil
}

func (w *managerWrapper) Stats() PoolStats {
	return w.mgr.Stats()
}

func (w *managerWrapper) Shutdown() error {
	return w.mgr.Shutdown()
}

// instanceWrapper adapts core.Instance to Instance for one acquisition.
//
// released is per wrapper: after Release the core instance may already be
// acquired again by someone else, so its own generation check is not enough.
type instanceWrapper struct {
	inst     *core.Instance
	token    uint64
	released atomic.Bool
}

func (w *instanceWrapper) URL() (string, error) {
	if w.released.Load() {
		return "", ErrInstanceReleased
	}
	return w.inst.URL()
}

func (w *instanceWrapper) Port() int {
	if w.released.Load() {
		return 0
	}
	return w.inst.Port()
}

func (w *instanceWrapper) DataDir() string {
	return w.inst.DataDir()
}

func (w *instanceWrapper) Release() error {
	w.released.Store(true)
	return w.inst.Release(w.token)
}

func (w *instanceWrapper) ID() string {
	return w.inst.ID()
}

// defaultManagerConfig returns a managerConfig holding every default.
func defaultManagerConfig() managerConfig {
	return managerConfig{core.ManagerConfig{
		PoolSize:             DefaultPoolSize,
		ReleaseStrategy:      DefaultReleaseStrategy,
		LiteServBinary:       DefaultLiteServBinary,
		AcquireTimeout:       DefaultAcquireTimeout,
		BaseDataDir:          filepath.Join(os.TempDir(), DefaultBaseDataDirName),
		SeedCacheTimeout:     DefaultSeedCacheTimeout,
		InstanceStartTimeout: DefaultInstanceStartTimeout,
		InstanceStopTimeout:  DefaultInstanceStopTimeout,
		CleanupTimeout:       DefaultCleanupTimeout,
		ShutdownDrainTimeout: DefaultShutdownDrainTimeout,
	}}
}

// resetForTesting makes the next NewManager call create a fresh manager.
// Tests only.
func resetForTesting() {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	singletonMgr = nil
	singletonOnce = sync.Once{}
}

// NewManager returns the process-wide Manager.
//
// The first call builds it from opts. Later calls return the same manager,
// ignore their options and log a warning. NewManager does no I/O; call
// Initialize before Acquire.
//
// The singleton survives Shutdown. A fresh manager needs a fresh process.
//
// Panics if an option receives an invalid value.
//
//nolint:ireturn // Manager is an interface so tests can mock it.
func NewManager(opts ...ManagerOption) Manager {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	created := false
	singletonOnce.Do(func() {
		cfg := defaultManagerConfig()
		for _, opt := range opts {
			opt(&cfg)
		}
		singletonMgr = &managerWrapper{mgr: core.NewManagerWithConfig(cfg.toCoreConfig())}
		created = true
	})
	if !created {
		core.Logger().Warn("NewManager called more than once; returning existing manager (options ignored)")
	}
	return singletonMgr
}
