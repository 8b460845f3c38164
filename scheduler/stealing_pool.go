// Package scheduler provides StealingPool, a work-stealing pool whose worker
// goroutines are never started by the pool itself. DeclareThreads hands every
// worker's run loop to a spawn handler as a core.EntryTask, and whoever
// receives the entry task lends its goroutine to the pool by calling Run.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-attach-pool/core"
)

// StealingPool schedules tasks across declared workers.
// Each worker owns a deque; idle workers fall back to the shared injector and
// then steal from their peers.
type StealingPool struct {
	id       string
	workers  []*worker
	injector *core.FIFOTaskQueue
	signal   chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	declared  bool
	running   bool
	closed    bool
	runningMu sync.RWMutex

	metricQueued int32 // Waiting in injector or deques
	metricActive int32 // Executing in Worker
	live         int32
	stolen       int64
	stealSeq     uint64

	panicHandler core.PanicHandler
	metrics      core.Metrics
	logger       core.Logger
}

var _ core.ThreadDeclarer = (*StealingPool)(nil)

// NewStealingPool creates a pool with default handlers.
func NewStealingPool(id string) *StealingPool {
	return NewStealingPoolWithConfig(id, core.DefaultPoolConfig())
}

// NewStealingPoolWithConfig creates a pool; nil handlers in config fall back to defaults.
func NewStealingPoolWithConfig(id string, config *core.PoolConfig) *StealingPool {
	cfg := config.WithDefaults()
	return &StealingPool{
		id:           id,
		injector:     core.NewFIFOTaskQueue(),
		panicHandler: cfg.PanicHandler,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}
}

// DeclareThreads creates n workers and passes each one's run loop to spawn.
// It does not start any goroutine. If spawn fails the pool is stopped, so
// entry tasks already handed out return as soon as they are run.
func (p *StealingPool) DeclareThreads(n int, spawn core.SpawnHandler) error {
	if n < 1 {
		return core.ErrInvalidThreadCount
	}

	p.runningMu.Lock()
	if p.closed {
		p.runningMu.Unlock()
		return core.ErrPoolClosed
	}
	if p.declared {
		p.runningMu.Unlock()
		return core.ErrAlreadyDeclared
	}
	p.declared = true
	p.workers = make([]*worker, n)
	for i := range p.workers {
		p.workers[i] = &worker{index: i, pool: p, deque: core.NewDeque()}
	}
	p.signal = make(chan struct{}, n*2)
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.running = true
	p.runningMu.Unlock()

	for i, w := range p.workers {
		if err := spawn(w); err != nil {
			p.logger.Error("spawn handler failed, stopping pool",
				core.F("pool", p.id), core.F("thread", i), core.F("threads", n), core.F("error", err))
			p.Stop()
			return fmt.Errorf("spawn thread %d of %d: %w", i, n, err)
		}
	}

	p.metrics.RecordThreadsDeclared(p.id, n)
	p.logger.Debug("threads declared", core.F("pool", p.id), core.F("threads", n))
	return nil
}

// PostTask submits task to the shared injector queue.
func (p *StealingPool) PostTask(task core.Task) error {
	p.runningMu.RLock()
	closed := p.closed
	sig := p.signal
	p.runningMu.RUnlock()

	if closed {
		p.metrics.RecordTaskRejected(p.id, "closed")
		return core.ErrPoolClosed
	}

	p.injector.Push(task)
	atomic.AddInt32(&p.metricQueued, 1)
	p.metrics.RecordQueueDepth(p.id, p.injector.Len())
	wake(sig)
	return nil
}

// Spawn submits task from inside a running task. When ctx belongs to one of
// this pool's workers the task lands on that worker's deque, where it is
// either popped by the owner or stolen by an idle peer.
func (p *StealingPool) Spawn(ctx context.Context, task core.Task) error {
	ref, ok := core.CurrentWorker(ctx)
	if !ok || ref.PoolID != p.id {
		return p.PostTask(task)
	}

	p.runningMu.RLock()
	closed := p.closed
	sig := p.signal
	p.runningMu.RUnlock()
	if closed {
		p.metrics.RecordTaskRejected(p.id, "closed")
		return core.ErrPoolClosed
	}

	p.workers[ref.Index].deque.PushBottom(task)
	atomic.AddInt32(&p.metricQueued, 1)
	wake(sig)
	return nil
}

func wake(sig chan struct{}) {
	select {
	case sig <- struct{}{}:
	default:
		// Either undeclared (nil) or enough wakeups pending already
	}
}

// Stop rejects new tasks, drops queued ones and waits for every running
// worker loop to return. Must not be called from inside a task.
func (p *StealingPool) Stop() {
	p.runningMu.Lock()
	p.closed = true
	p.running = false
	cancel := p.cancel
	workers := p.workers
	p.runningMu.Unlock()

	// Release all task references
	dropped := p.injector.Clear()
	for _, w := range workers {
		dropped += w.deque.Clear()
	}
	atomic.AddInt32(&p.metricQueued, -int32(dropped))

	if cancel != nil {
		cancel()
	}
	p.Join()
}

// StopGraceful waits for queued and active tasks to finish before stopping.
// Returns error if timeout is exceeded; the pool is stopped either way.
func (p *StealingPool) StopGraceful(timeout time.Duration) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if p.QueuedTaskCount() == 0 && p.ActiveTaskCount() == 0 {
			p.Stop()
			return nil
		}
		select {
		case <-deadline:
			p.Stop()
			return fmt.Errorf("stop graceful timeout after %v, forced clearing", timeout)
		case <-ticker.C:
		}
	}
}

// Join waits for all worker loops that have started to return.
func (p *StealingPool) Join() {
	p.wg.Wait()
}

// ID returns the ID of the pool
func (p *StealingPool) ID() string {
	return p.id
}

// IsRunning reports whether threads are declared and the pool is not stopped.
func (p *StealingPool) IsRunning() bool {
	p.runningMu.RLock()
	defer p.runningMu.RUnlock()
	return p.running
}

// WorkerCount returns the number of declared threads.
func (p *StealingPool) WorkerCount() int {
	p.runningMu.RLock()
	defer p.runningMu.RUnlock()
	return len(p.workers)
}

// LiveWorkers returns the number of workers currently inside their run loop.
func (p *StealingPool) LiveWorkers() int {
	return int(atomic.LoadInt32(&p.live))
}

func (p *StealingPool) QueuedTaskCount() int { return int(atomic.LoadInt32(&p.metricQueued)) }
func (p *StealingPool) ActiveTaskCount() int { return int(atomic.LoadInt32(&p.metricActive)) }

// Stats returns a snapshot for observability.
func (p *StealingPool) Stats() core.PoolStats {
	return core.PoolStats{
		ID:      p.id,
		Workers: p.WorkerCount(),
		Live:    p.LiveWorkers(),
		Queued:  p.QueuedTaskCount(),
		Active:  p.ActiveTaskCount(),
		Stolen:  atomic.LoadInt64(&p.stolen),
		Running: p.IsRunning(),
	}
}

// =============================================================================
// worker: one logical thread, doubling as its own EntryTask
// =============================================================================

type worker struct {
	index   int
	pool    *StealingPool
	deque   *core.Deque
	started atomic.Bool
}

var _ core.EntryTask = (*worker)(nil)

func (w *worker) Index() int { return w.index }

// Run lends the calling goroutine to the pool until Stop.
// A second Run on the same entry task returns immediately.
func (w *worker) Run() {
	p := w.pool
	if !w.started.CompareAndSwap(false, true) {
		p.logger.Warn("entry task already running", core.F("pool", p.id), core.F("worker", w.index))
		return
	}

	p.runningMu.Lock()
	if !p.running {
		p.runningMu.Unlock()
		return
	}
	ctx := p.ctx
	p.wg.Add(1)
	p.runningMu.Unlock()

	defer p.wg.Done()
	atomic.AddInt32(&p.live, 1)
	defer atomic.AddInt32(&p.live, -1)

	p.logger.Debug("worker loop started", core.F("pool", p.id), core.F("worker", w.index))
	p.workerLoop(core.WithWorker(ctx, core.WorkerRef{PoolID: p.id, Index: w.index}), w)
	p.logger.Debug("worker loop exited", core.F("pool", p.id), core.F("worker", w.index))
}

// workerLoop is the main loop for each worker
func (p *StealingPool) workerLoop(ctx context.Context, w *worker) {
	for {
		if ctx.Err() != nil {
			return
		}

		if task, ok := p.findWork(w); ok {
			atomic.AddInt32(&p.metricQueued, -1)
			p.runTask(ctx, w, task)
			continue
		}

		select {
		case <-p.signal:
		case <-ctx.Done():
			return
		}
	}
}

// findWork tries the local deque, then the injector, then every peer.
func (p *StealingPool) findWork(w *worker) (core.Task, bool) {
	if task, ok := w.deque.PopBottom(); ok {
		return task, true
	}
	if task, ok := p.injector.Pop(); ok {
		return task, true
	}

	n := len(p.workers)
	start := int(atomic.AddUint64(&p.stealSeq, 1) % uint64(n))
	for i := 0; i < n; i++ {
		victim := p.workers[(start+i)%n]
		if victim == w {
			continue
		}
		if task, ok := victim.deque.Steal(); ok {
			atomic.AddInt64(&p.stolen, 1)
			p.metrics.RecordTaskStolen(p.id)
			return task, true
		}
	}
	return nil, false
}

// runTask executes task and captures panic
func (p *StealingPool) runTask(ctx context.Context, w *worker, task core.Task) {
	atomic.AddInt32(&p.metricActive, 1)
	start := time.Now()
	defer func() {
		atomic.AddInt32(&p.metricActive, -1)
		p.metrics.RecordTaskDuration(p.id, time.Since(start))
		if r := recover(); r != nil {
			p.metrics.RecordTaskPanic(p.id, r)
			p.panicHandler.HandlePanic(ctx, p.id, w.index, r, debug.Stack())
		}
	}()
	task(ctx)
}
