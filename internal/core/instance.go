package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giantswarm/liteservenv/internal/fileutil"
	"github.com/giantswarm/liteservenv/internal/liteserv"
	"github.com/giantswarm/liteservenv/internal/netutil"
	"github.com/giantswarm/liteservenv/internal/sentinel"
)

// defaultMaxStartRetries is the number of start attempts for transient
// failures such as a port taken between allocation and bind, or a child that
// exits before listening.
const defaultMaxStartRetries = 5

// ErrInstanceReleased is returned by URL when called on an instance that has
// been released back to the pool.
const ErrInstanceReleased = sentinel.Error("instance has been released")

// ErrNotStarted is returned by URL when the instance's LiteServ has not been
// launched yet.
const ErrNotStarted = sentinel.Error("instance not started")

// InstanceReleaser returns an instance to the pool or marks it as failed. It
// lets an Instance release itself without knowing the Manager and Pool types.
//
// Implementations must be safe for concurrent use: ReleaseToPool may run
// concurrently with Shutdown and every instance must be cleaned up exactly
// once regardless of ordering.
type InstanceReleaser interface {
	// ReleaseToPool returns the instance to the pool for reuse. token is the
	// generation value from markAcquired. Returns false when the manager was
	// shutting down and the instance was stopped instead.
	ReleaseToPool(i *Instance, token uint64) bool

	// ReleaseFailed removes the instance from the pool and stops it.
	ReleaseFailed(i *Instance, token uint64)
}

// Instance is one pooled LiteServ server. It carries the consumer-facing
// methods (URL, Port, DataDir, Release, ID) behind the public Instance
// interface and the lifecycle methods (Start, Stop, IsStarted, IsBusy, Err)
// used by Manager and Pool.
//
// gen, started, port and lastErr are atomics for lock-free reads. proc and
// cancel are only touched under startMu; started.Store(true) after setting
// them publishes them to readers that observe started.
type Instance struct {
	cfg InstanceConfig

	id      string
	dataDir string // logs live here
	dbDir   string // passed to LiteServ as --dir

	releaser InstanceReleaser
	ports    *netutil.PortRegistry

	// gen: odd = acquired, even = free.
	gen     atomic.Uint64
	started atomic.Bool
	lastErr atomic.Pointer[error]
	// url and client are set by doStart and cleared by Stop.
	url    atomic.Pointer[string]
	client atomic.Pointer[liteserv.Client]

	// port is 0 while stopped.
	port atomic.Int64

	startMu sync.Mutex
	cancel  context.CancelFunc
	proc    *liteserv.Process

	log *slog.Logger
}

// IsStarted reports whether the instance's LiteServ has been launched and
// reported ready.
func (i *Instance) IsStarted() bool {
	return i.started.Load()
}

// IsBusy reports whether the instance is currently acquired by a consumer.
func (i *Instance) IsBusy() bool {
	return i.gen.Load()%2 == 1
}

// markAcquired advances the generation to the next odd value and returns it
// as the release token. Tokens are never reused, so a stale token from an
// earlier acquisition can never match the current generation.
func (i *Instance) markAcquired() uint64 {
	return i.gen.Add(1)
}

// tryRelease advances the generation from token to token+1. It returns false
// if token is stale.
func (i *Instance) tryRelease(token uint64) bool {
	return i.gen.CompareAndSwap(token, token+1)
}

// isCurrentToken is the non-consuming form of tryRelease, used before side
// effects such as database cleanup.
func (i *Instance) isCurrentToken(token uint64) bool {
	return i.gen.Load() == token
}

// Err returns the last error recorded on this instance.
func (i *Instance) Err() error {
	if p := i.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// ID returns the instance's unique identifier.
func (i *Instance) ID() string {
	return i.id
}

// DataDir returns the directory LiteServ stores its databases in.
func (i *Instance) DataDir() string {
	return i.dbDir
}

func (i *Instance) setErr(e error) {
	i.lastErr.Store(&e)
}

// NewInstanceParams holds the parameters for creating a new Instance.
// All fields are required.
type NewInstanceParams struct {
	ID       string
	DataDir  string
	Releaser InstanceReleaser
	Ports    *netutil.PortRegistry
	Config   InstanceConfig
}

// NewInstance creates an unstarted Instance. It panics on an empty ID or
// DataDir, a nil Releaser or Ports, or a Config that fails Validate.
func NewInstance(params NewInstanceParams) *Instance {
	if params.ID == "" {
		panic("liteservenv: instance id must not be empty")
	}
	if params.DataDir == "" {
		panic("liteservenv: instance data dir must not be empty")
	}
	if params.Releaser == nil {
		panic("liteservenv: instance releaser must not be nil")
	}
	if params.Ports == nil {
		panic("liteservenv: instance port registry must not be nil")
	}
	if err := params.Config.Validate(); err != nil {
		panic(fmt.Sprintf("liteservenv: invalid instance config: %v", err))
	}
	return &Instance{
		cfg:      params.Config,
		id:       params.ID,
		dataDir:  params.DataDir,
		dbDir:    filepath.Join(params.DataDir, "db"),
		releaser: params.Releaser,
		ports:    params.Ports,
		log:      Logger().With("id", params.ID),
	}
}

// hasExited reports whether a started instance's LiteServ has exited on its
// own.
func (i *Instance) hasExited() bool {
	i.startMu.Lock()
	defer i.startMu.Unlock()
	if i.proc == nil {
		return false
	}
	select {
	case <-i.proc.Exited():
		return true
	default:
		return false
	}
}

// Start launches LiteServ and waits until it is ready. A started instance
// whose child has since exited is torn down and started again.
//
// startMu serializes callers, so only one of them launches a process.
func (i *Instance) Start(ctx context.Context) error {
	i.startMu.Lock()
	defer i.startMu.Unlock()

	if i.IsStarted() {
		select {
		case <-i.proc.Exited():
			i.log.Warn("liteserv exited while pooled, restarting", "error", i.proc.ExitErr())
			if err := i.teardownLocked(i.cfg.StopTimeout); err != nil {
				i.log.Debug("teardown of exited liteserv", "error", err)
			}
		default:
			return nil
		}
	}

	return i.doStart(ctx)
}

// doStart runs up to MaxStartRetries attempts. Every attempt re-seeds the
// data directory and uses a fresh port. A *liteserv.LaunchError is not
// retried: the binary will not become startable by trying again.
func (i *Instance) doStart(ctx context.Context) error {
	startTime := time.Now()
	i.log.Debug("starting instance", "time", startTime.Format("15:04:05.000"))

	if err := fileutil.EnsureDir(i.dataDir); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= i.cfg.MaxStartRetries; attempt++ {
		if attempt > 1 {
			instanceStartRetriesTotal.Inc()
		}
		err := i.startAttempt(ctx)
		if err == nil {
			instanceStartsTotal.Inc()
			instanceStartDuration.UpdateDuration(startTime)
			if attempt > 1 {
				i.log.Info("instance started after retry", "attempt", attempt)
			}
			i.log.Debug("instance started successfully", "port", i.Port(), "total_elapsed", time.Since(startTime))
			return nil
		}

		lastErr = err
		var launchErr *liteserv.LaunchError
		if errors.As(err, &launchErr) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("start instance: %w", err)
		}
		if attempt < i.cfg.MaxStartRetries {
			i.log.Warn("instance start failed, retrying",
				"attempt", attempt,
				"max_retries", i.cfg.MaxStartRetries,
				"error", err,
			)
		}
	}

	return fmt.Errorf("start instance after %d attempts: %w", i.cfg.MaxStartRetries, lastErr)
}

// startAttempt seeds the data directory, launches LiteServ on a newly
// allocated port and waits for it. On success the process handles are
// installed and started is published.
func (i *Instance) startAttempt(ctx context.Context) error {
	if err := i.seedDataDir(); err != nil {
		return err
	}

	port, err := i.ports.AllocatePort()
	if err != nil {
		return fmt.Errorf("allocate port: %w", err)
	}

	// The process outlives the Acquire call, so its context is not ctx.
	processCtx, cancel := context.WithCancel(context.Background())

	proc, err := liteserv.New(liteserv.Config{
		Binary:      i.cfg.LiteServBinary,
		Port:        port,
		Dir:         i.dbDir,
		LogDir:      i.dataDir,
		Env:         i.cfg.LiteServEnv,
		StopTimeout: i.cfg.StopTimeout,
		Logger:      i.log,
	})
	if err != nil {
		cancel()
		i.ports.Release(port)
		return err
	}
	if err := proc.Start(processCtx); err != nil {
		cancel()
		i.ports.Release(port)
		return err
	}
	if err := proc.WaitReady(ctx, i.cfg.StartTimeout); err != nil {
		if stopErr := proc.Stop(i.cfg.StopTimeout); stopErr != nil {
			i.log.Debug("stop liteserv after failed start", "error", stopErr)
		}
		proc.Close()
		cancel()
		i.ports.Release(port)
		return fmt.Errorf("wait for liteserv on port %d: %w", port, err)
	}

	url := proc.URL()
	i.cancel = cancel
	i.proc = proc
	i.port.Store(int64(port))
	i.url.Store(&url)
	i.started.Store(true)
	return nil
}

// seedDataDir empties the database directory and copies the seed cache into
// it.
func (i *Instance) seedDataDir() error {
	if err := fileutil.ResetDir(i.dbDir); err != nil {
		return fmt.Errorf("reset db dir: %w", err)
	}
	if i.cfg.SeedPath == "" {
		return nil
	}
	if err := fileutil.CopyDir(i.cfg.SeedPath, i.dbDir); err != nil {
		return fmt.Errorf("copy seed databases: %w", err)
	}
	return nil
}

// URL returns the base URL of this instance's LiteServ. It must be called
// while the instance is acquired.
//
// Returns ErrInstanceReleased after Release and ErrNotStarted before the
// instance has been started. Both checks guard against misuse; callers hold
// the instance between Acquire and Release, so the result does not race with
// Stop.
func (i *Instance) URL() (string, error) {
	if i.gen.Load()%2 == 0 {
		return "", ErrInstanceReleased
	}
	u := i.url.Load()
	if !i.started.Load() || u == nil {
		return "", ErrNotStarted
	}
	return *u, nil
}

// Port returns the port of the running LiteServ, or 0 when not started.
func (i *Instance) Port() int {
	return int(i.port.Load())
}

// restClient returns the cached REST client for the running LiteServ.
func (i *Instance) restClient() (*liteserv.Client, error) {
	if c := i.client.Load(); c != nil {
		return c, nil
	}
	u := i.url.Load()
	if u == nil {
		return nil, ErrNotStarted
	}
	c := liteserv.NewClient(*u)
	if i.client.CompareAndSwap(nil, c) {
		return c, nil
	}
	return i.client.Load(), nil
}

// Stop terminates LiteServ. If ctx has a deadline the effective timeout is
// the smaller of its remaining time and StopTimeout.
//
// startMu serializes Stop with Start.
func (i *Instance) Stop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("stop instance: %w", err)
	}

	i.startMu.Lock()
	defer i.startMu.Unlock()

	return i.teardownLocked(i.effectiveStopTimeout(ctx))
}

// teardownLocked stops the child and clears the process state. startMu must
// be held.
func (i *Instance) teardownLocked(timeout time.Duration) error {
	proc := i.proc
	cancel := i.cancel
	port := int(i.port.Swap(0))
	i.proc = nil
	i.cancel = nil
	i.url.Store(nil)
	if c := i.client.Swap(nil); c != nil {
		c.CloseIdleConnections()
	}
	i.started.Store(false)

	if proc == nil {
		return nil
	}

	err := proc.Stop(timeout)
	proc.Close()
	if cancel != nil {
		cancel()
	}
	i.ports.Release(port)
	if err != nil {
		return fmt.Errorf("stop liteserv: %w", err)
	}
	return nil
}

// effectiveStopTimeout returns the smaller of ctx's remaining time and
// StopTimeout, never less than a millisecond.
func (i *Instance) effectiveStopTimeout(ctx context.Context) time.Duration {
	timeout := i.cfg.StopTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	return timeout
}

// Release marks the Instance as free and returns it to the pool.
//
// What happens first depends on the ReleaseStrategy:
//
//   - ReleaseRestart: stop the instance. The next Acquire starts it again
//     from the seed.
//   - ReleaseClean: delete every database that was not seeded and keep the
//     instance running.
//   - ReleaseNone: nothing.
//
// If cleanup or stop fails, the instance is marked as failed through
// ReleaseFailed and the error is returned; defer inst.Release() is safe.
// A stale token panics.
func (i *Instance) Release(token uint64) error {
	if i.releaser == nil {
		panic("liteservenv: Release called on instance with nil releaser")
	}

	// Reject a stale token before any cleanup touches the current holder's
	// databases.
	if !i.isCurrentToken(token) {
		panic("liteservenv: double-release of instance " + i.id)
	}

	switch i.cfg.ReleaseStrategy {
	case ReleaseNone:

	case ReleaseClean:
		if i.started.Load() {
			cleanCtx, cleanCancel := context.WithTimeout(context.Background(), i.cfg.CleanupTimeout)
			err := i.cleanDatabases(cleanCtx)
			cleanCancel()
			if err != nil {
				cleanupErr := fmt.Errorf("database cleanup during release: %w", err)
				i.setErr(cleanupErr)
				i.releaser.ReleaseFailed(i, token)
				return cleanupErr
			}
		}

	case ReleaseRestart:
		ctx, cancel := context.WithTimeout(context.Background(), i.cfg.StopTimeout)
		defer cancel()
		if err := i.Stop(ctx); err != nil {
			stopErr := fmt.Errorf("stop during release: %w", err)
			i.setErr(stopErr)
			i.releaser.ReleaseFailed(i, token)
			return stopErr
		}

	default:
		// Unreachable: Validate rejects unknown strategies.
		panic(fmt.Sprintf("liteservenv: unknown release strategy: %v", i.cfg.ReleaseStrategy))
	}

	i.releaser.ReleaseToPool(i, token)
	return nil
}
