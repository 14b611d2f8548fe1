package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/giantswarm/liteservenv/internal/sentinel"
)

// ErrPoolClosed is returned when Acquire is called on a closed pool.
const ErrPoolClosed = sentinel.Error("pool is closed")

// Pool is a bounded or unbounded set of LiteServ instances created on demand.
// When Acquire finds no free instance it asks the factory for one, up to
// maxSize when bounded. A bounded pool with every instance in use blocks
// Acquire until a release, Close or the context ends.
//
// It is safe for concurrent use by multiple goroutines.
type Pool struct {
	// mu protects free, all, nextIdx and closed.
	mu sync.Mutex

	// free is a LIFO stack, so the most recently released (and warmest)
	// instance is handed out first.
	free []*Instance

	// all holds every instance ever created, failed ones included, so
	// Shutdown can stop them.
	all []*Instance

	// nextIdx feeds the factory; indices of failed creations are skipped.
	nextIdx int

	closed bool

	factory InstanceFactory

	// maxSize caps the pool; 0 means unlimited.
	maxSize int

	// sem is a counting semaphore pre-filled with maxSize tokens. nil when
	// unbounded.
	sem chan struct{}

	// closeCh unblocks Acquire calls waiting on sem. nil when unbounded.
	closeCh   chan struct{}
	closeOnce sync.Once
}

// InstanceFactory creates an Instance for the given pool index.
type InstanceFactory func(index int) (*Instance, error)

// PoolStats is a point-in-time view of a Pool.
type PoolStats struct {
	Created int // instances ever created
	Free    int // instances waiting in the free stack
	Busy    int // instances currently acquired
	Started int // instances with a running LiteServ
	MaxSize int // 0 means unlimited
}

// NewPool creates a Pool backed by factory. maxSize 0 means unlimited.
// Panics if factory is nil or maxSize < 0.
func NewPool(factory InstanceFactory, maxSize int) *Pool {
	if factory == nil {
		panic("liteservenv: NewPool factory must not be nil")
	}
	if maxSize < 0 {
		panic(fmt.Sprintf("liteservenv: NewPool maxSize must not be negative, got %d", maxSize))
	}

	p := &Pool{
		factory: factory,
		maxSize: maxSize,
	}

	if maxSize > 0 {
		p.free = make([]*Instance, 0, maxSize)
		p.all = make([]*Instance, 0, maxSize)
		p.sem = make(chan struct{}, maxSize)
		for range maxSize {
			p.sem <- struct{}{}
		}
		p.closeCh = make(chan struct{})
	}

	return p
}

// Instances returns a copy of every instance ever created by this Pool.
func (p *Pool) Instances() []*Instance {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]*Instance, len(p.all))
	copy(cp, p.all)
	return cp
}

// Stats returns a snapshot of the pool's occupancy.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := PoolStats{
		Created: len(p.all),
		Free:    len(p.free),
		MaxSize: p.maxSize,
	}
	for _, inst := range p.all {
		if inst.IsBusy() {
			s.Busy++
		}
		if inst.IsStarted() {
			s.Started++
		}
	}
	return s
}

// Acquire pops a free Instance or creates a new one. It returns ErrPoolClosed
// once the pool is closed and the context error if ctx ends first.
func (p *Pool) Acquire(ctx context.Context) (*Instance, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, fmt.Errorf("context done while waiting for instance: %w", err)
	}

	if p.sem != nil {
		select {
		case <-p.sem:
		case <-p.closeCh:
			return nil, 0, ErrPoolClosed
		case <-ctx.Done():
			return nil, 0, fmt.Errorf("context done while waiting for instance: %w", ctx.Err())
		}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.returnSlot()
		return nil, 0, ErrPoolClosed
	}

	if n := len(p.free); n > 0 {
		inst := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		token := inst.markAcquired()
		return inst, token, nil
	}

	idx := p.nextIdx
	p.nextIdx++
	p.mu.Unlock()

	// The factory does no process I/O, but keep it outside the lock anyway.
	inst, err := p.factory(idx)
	if err != nil {
		p.returnSlot()
		return nil, 0, fmt.Errorf("creating instance: %w", err)
	}

	p.mu.Lock()
	p.all = append(p.all, inst)
	if p.closed {
		p.mu.Unlock()
		p.returnSlot()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), inst.cfg.StopTimeout)
		defer stopCancel()
		if stopErr := inst.Stop(stopCtx); stopErr != nil { //nolint:contextcheck // caller's context is unrelated to cleanup
			Logger().Warn("failed to stop instance created after pool close",
				"id", inst.ID(), "error", stopErr)
		}
		return nil, 0, ErrPoolClosed
	}
	p.mu.Unlock()

	token := inst.markAcquired()
	return inst, token, nil
}

// Release puts an Instance back on the free stack. A stale token panics.
// After Close the instance is stopped instead.
func (p *Pool) Release(i *Instance, token uint64) {
	if !i.tryRelease(token) {
		panic("liteservenv: double-release of instance " + i.ID())
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), i.cfg.StopTimeout)
		defer stopCancel()
		if err := i.Stop(stopCtx); err != nil {
			Logger().Warn("failed to stop released instance after pool close",
				"id", i.ID(), "error", err)
		}
		p.returnSlot()
		return
	}
	p.free = append(p.free, i)
	p.mu.Unlock()

	p.returnSlot()
}

// ReleaseFailed stops an Instance and keeps it out of the free stack. It
// stays in Instances for Shutdown. A stale token panics.
func (p *Pool) ReleaseFailed(i *Instance, token uint64) {
	if !i.tryRelease(token) {
		panic("liteservenv: double-release of instance " + i.ID())
	}
	releaseFailuresTotal.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), i.cfg.StopTimeout)
	defer cancel()
	if err := i.Stop(ctx); err != nil {
		Logger().Warn("failed to stop instance during cleanup", "id", i.ID(), "error", err)
	}

	p.returnSlot()
}

// Close marks the pool as closed and unblocks waiting Acquire calls.
// Idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.free = nil
	p.mu.Unlock()

	if p.closeCh != nil {
		p.closeOnce.Do(func() { close(p.closeCh) })
	}
}

// returnSlot gives a semaphore token back. After Close nothing drains sem, so
// the send is non-blocking; a full sem before Close means more releases than
// acquires.
func (p *Pool) returnSlot() {
	if p.sem == nil {
		return
	}
	select {
	case p.sem <- struct{}{}:
	default:
		select {
		case <-p.closeCh:
			Logger().Debug("returnSlot: semaphore full after pool close, token dropped")
		default:
			panic(fmt.Sprintf("liteservenv: returnSlot: semaphore full during normal operation (maxSize=%d)", p.maxSize))
		}
	}
}
