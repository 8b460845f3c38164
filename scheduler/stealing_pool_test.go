package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Swind/go-attach-pool/core"
)

// goSpawn runs every entry task on a fresh goroutine, the way a host would.
func goSpawn(task core.EntryTask) error {
	go task.Run()
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStealingPool_Lifecycle(t *testing.T) {
	pool := NewStealingPool("test-pool")

	if pool.ID() != "test-pool" {
		t.Errorf("expected ID 'test-pool', got %s", pool.ID())
	}
	if pool.IsRunning() {
		t.Error("pool should not be running before DeclareThreads")
	}

	if err := pool.DeclareThreads(2, goSpawn); err != nil {
		t.Fatalf("DeclareThreads failed: %v", err)
	}
	if !pool.IsRunning() {
		t.Error("pool should be running after DeclareThreads")
	}
	if pool.WorkerCount() != 2 {
		t.Errorf("expected 2 workers, got %d", pool.WorkerCount())
	}
	waitFor(t, "2 live workers", func() bool { return pool.LiveWorkers() == 2 })

	pool.Stop()

	if pool.IsRunning() {
		t.Error("pool should not be running after Stop()")
	}
	if pool.LiveWorkers() != 0 {
		t.Errorf("live workers after Stop = %d, want 0", pool.LiveWorkers())
	}
}

// TestStealingPool_DeclareCreatesNoGoroutines verifies the pool only hands out entry tasks
// Given: A spawn handler that collects entry tasks without running them
// When: 4 threads are declared
// Then: 4 distinct entry tasks arrive and no worker is live until someone runs them
func TestStealingPool_DeclareCreatesNoGoroutines(t *testing.T) {
	pool := NewStealingPool("collect")
	var tasks []core.EntryTask
	err := pool.DeclareThreads(4, func(task core.EntryTask) error {
		tasks = append(tasks, task)
		return nil
	})
	if err != nil {
		t.Fatalf("DeclareThreads failed: %v", err)
	}

	if len(tasks) != 4 {
		t.Fatalf("got %d entry tasks, want 4", len(tasks))
	}
	seen := make(map[int]bool)
	for _, task := range tasks {
		if seen[task.Index()] {
			t.Errorf("index %d handed out twice", task.Index())
		}
		seen[task.Index()] = true
	}
	time.Sleep(20 * time.Millisecond)
	if pool.LiveWorkers() != 0 {
		t.Errorf("live workers = %d before any Run, want 0", pool.LiveWorkers())
	}

	for _, task := range tasks {
		go task.Run()
	}
	waitFor(t, "4 live workers", func() bool { return pool.LiveWorkers() == 4 })
	pool.Stop()
}

func TestStealingPool_TaskExecution(t *testing.T) {
	pool := NewStealingPool("exec-pool")
	if err := pool.DeclareThreads(4, goSpawn); err != nil {
		t.Fatalf("DeclareThreads failed: %v", err)
	}
	defer pool.Stop()

	var counter int32
	var wg sync.WaitGroup
	taskCount := 10
	wg.Add(taskCount)

	for i := 0; i < taskCount; i++ {
		err := pool.PostTask(func(ctx context.Context) {
			defer wg.Done()
			atomic.AddInt32(&counter, 1)
		})
		if err != nil {
			t.Fatalf("PostTask failed: %v", err)
		}
	}

	wg.Wait()
	if val := atomic.LoadInt32(&counter); val != int32(taskCount) {
		t.Errorf("expected %d executed tasks, got %d", taskCount, val)
	}
}

func TestStealingPool_TasksPostedBeforeWorkersRun(t *testing.T) {
	pool := NewStealingPool("early")
	var tasks []core.EntryTask
	if err := pool.DeclareThreads(2, func(task core.EntryTask) error {
		tasks = append(tasks, task)
		return nil
	}); err != nil {
		t.Fatalf("DeclareThreads failed: %v", err)
	}

	done := make(chan struct{})
	if err := pool.PostTask(func(ctx context.Context) { close(done) }); err != nil {
		t.Fatalf("PostTask failed: %v", err)
	}

	for _, task := range tasks {
		go task.Run()
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queued task never ran after workers attached")
	}
	pool.Stop()
}

// TestStealingPool_SpawnedTasksGetStolen verifies idle workers take work from a busy peer
// Given: One task that fans out 32 sub-tasks onto its own worker's deque and then blocks
// When: The sub-tasks are processed
// Then: They all complete while the parent is still blocked, so peers must have stolen them
func TestStealingPool_SpawnedTasksGetStolen(t *testing.T) {
	pool := NewStealingPool("steal")
	if err := pool.DeclareThreads(4, goSpawn); err != nil {
		t.Fatalf("DeclareThreads failed: %v", err)
	}
	defer pool.Stop()

	const children = 32
	var wg sync.WaitGroup
	wg.Add(children)
	release := make(chan struct{})
	parentDone := make(chan struct{})

	err := pool.PostTask(func(ctx context.Context) {
		defer close(parentDone)
		for i := 0; i < children; i++ {
			if err := pool.Spawn(ctx, func(ctx context.Context) { wg.Done() }); err != nil {
				t.Errorf("Spawn failed: %v", err)
			}
		}
		<-release
	})
	if err != nil {
		t.Fatalf("PostTask failed: %v", err)
	}

	childrenDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(childrenDone)
	}()

	select {
	case <-childrenDone:
	case <-time.After(2 * time.Second):
		t.Fatal("spawned children did not complete while parent was blocked")
	}
	close(release)
	<-parentDone

	if stolen := pool.Stats().Stolen; stolen != children {
		t.Errorf("stolen = %d, want %d", stolen, children)
	}
}

func TestStealingPool_SpawnFromOutsideUsesInjector(t *testing.T) {
	pool := NewStealingPool("outside")
	if err := pool.DeclareThreads(1, goSpawn); err != nil {
		t.Fatalf("DeclareThreads failed: %v", err)
	}
	defer pool.Stop()

	done := make(chan core.WorkerRef, 1)
	err := pool.Spawn(context.Background(), func(ctx context.Context) {
		ref, _ := core.CurrentWorker(ctx)
		done <- ref
	})
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	select {
	case ref := <-done:
		if ref.PoolID != "outside" || ref.Index != 0 {
			t.Errorf("task ran on %+v, want outside/0", ref)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
}

func TestStealingPool_DeclareTwiceRejected(t *testing.T) {
	pool := NewStealingPool("twice")
	if err := pool.DeclareThreads(1, goSpawn); err != nil {
		t.Fatalf("DeclareThreads failed: %v", err)
	}
	defer pool.Stop()

	if err := pool.DeclareThreads(1, goSpawn); !errors.Is(err, core.ErrAlreadyDeclared) {
		t.Errorf("second DeclareThreads = %v, want ErrAlreadyDeclared", err)
	}
	if err := NewStealingPool("zero").DeclareThreads(0, goSpawn); !errors.Is(err, core.ErrInvalidThreadCount) {
		t.Errorf("DeclareThreads(0) = %v, want ErrInvalidThreadCount", err)
	}
}

// TestStealingPool_SpawnFailureStopsPool verifies a failed declaration leaves no partial pool
// Given: A spawn handler that runs the first entry task and fails on the second
// When: 3 threads are declared
// Then: DeclareThreads fails, the pool is stopped and the first worker returns
func TestStealingPool_SpawnFailureStopsPool(t *testing.T) {
	pool := NewStealingPool("fail")
	boom := errors.New("no consumer")
	firstExited := make(chan struct{})

	calls := 0
	err := pool.DeclareThreads(3, func(task core.EntryTask) error {
		calls++
		if calls == 1 {
			go func() {
				task.Run()
				close(firstExited)
			}()
			return nil
		}
		return boom
	})

	if !errors.Is(err, boom) {
		t.Fatalf("DeclareThreads = %v, want wrapped spawn error", err)
	}
	if calls != 2 {
		t.Errorf("spawn called %d times, want 2", calls)
	}
	if pool.IsRunning() {
		t.Error("pool should be stopped after spawn failure")
	}
	select {
	case <-firstExited:
	case <-time.After(2 * time.Second):
		t.Fatal("worker from the failed declaration did not exit")
	}
	if err := pool.PostTask(func(ctx context.Context) {}); !errors.Is(err, core.ErrPoolClosed) {
		t.Errorf("PostTask after failure = %v, want ErrPoolClosed", err)
	}
}

func TestStealingPool_EntryTaskRunsOnce(t *testing.T) {
	pool := NewStealingPool("once")
	var entry core.EntryTask
	if err := pool.DeclareThreads(1, func(task core.EntryTask) error {
		entry = task
		return nil
	}); err != nil {
		t.Fatalf("DeclareThreads failed: %v", err)
	}

	go entry.Run()
	waitFor(t, "live worker", func() bool { return pool.LiveWorkers() == 1 })

	returned := make(chan struct{})
	go func() {
		entry.Run()
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("second Run should return immediately")
	}
	if pool.LiveWorkers() != 1 {
		t.Errorf("live workers = %d, want 1", pool.LiveWorkers())
	}
	pool.Stop()
}

type countingPanicHandler struct {
	calls int32
}

func (h *countingPanicHandler) HandlePanic(ctx context.Context, poolID string, workerID int, panicInfo any, stackTrace []byte) {
	atomic.AddInt32(&h.calls, 1)
}

func TestStealingPool_PanicRecovery(t *testing.T) {
	ph := &countingPanicHandler{}
	pool := NewStealingPoolWithConfig("panic", &core.PoolConfig{PanicHandler: ph})
	if err := pool.DeclareThreads(1, goSpawn); err != nil {
		t.Fatalf("DeclareThreads failed: %v", err)
	}
	defer pool.Stop()

	pool.PostTask(func(ctx context.Context) { panic("boom") })

	done := make(chan struct{})
	pool.PostTask(func(ctx context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
	if atomic.LoadInt32(&ph.calls) != 1 {
		t.Errorf("panic handler called %d times, want 1", ph.calls)
	}
}

func TestStealingPool_StopGraceful(t *testing.T) {
	pool := NewStealingPool("graceful")
	if err := pool.DeclareThreads(2, goSpawn); err != nil {
		t.Fatalf("DeclareThreads failed: %v", err)
	}

	var ran int32
	for i := 0; i < 5; i++ {
		pool.PostTask(func(ctx context.Context) {
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&ran, 1)
		})
	}

	if err := pool.StopGraceful(2 * time.Second); err != nil {
		t.Fatalf("StopGraceful failed: %v", err)
	}
	if atomic.LoadInt32(&ran) != 5 {
		t.Errorf("ran = %d, want 5", ran)
	}

	block := NewStealingPool("graceful-timeout")
	if err := block.DeclareThreads(1, goSpawn); err != nil {
		t.Fatalf("DeclareThreads failed: %v", err)
	}
	release := make(chan struct{})
	block.PostTask(func(ctx context.Context) {
		select {
		case <-release:
		case <-ctx.Done():
		}
	})
	waitFor(t, "active task", func() bool { return block.ActiveTaskCount() == 1 })
	if err := block.StopGraceful(20 * time.Millisecond); err == nil {
		t.Error("StopGraceful should time out while a task is blocked")
	}
	close(release)
}

func TestStealingPool_RunAfterStopReturns(t *testing.T) {
	pool := NewStealingPool("late")
	var entry core.EntryTask
	pool.DeclareThreads(1, func(task core.EntryTask) error {
		entry = task
		return nil
	})
	pool.Stop()

	done := make(chan struct{})
	go func() {
		entry.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run after Stop should return immediately")
	}
}
