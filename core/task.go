package core

import "context"

// Task is the unit of work (Closure)
type Task func(ctx context.Context)

// =============================================================================
// EntryTask: the permanent run loop of one logical pool thread
// =============================================================================

// EntryTask is produced by a ThreadDeclarer once per logical thread.
// Running it hands the calling goroutine over to the scheduler's worker loop;
// Run returns only when the pool is torn down.
//
// An EntryTask is delivered to exactly one worker and is not re-runnable.
type EntryTask interface {
	// Index is the logical thread slot this task belongs to, in [0, n).
	Index() int

	// Run executes the worker loop in place.
	Run()
}

// SpawnHandler receives each EntryTask during DeclareThreads.
// A non-nil error aborts the declaration.
type SpawnHandler func(task EntryTask) error

// ThreadDeclarer is the scheduler-side capability the pool builder relies on:
// declare n logical threads and hand every thread's run loop to spawn,
// synchronously, without creating any goroutine for it.
type ThreadDeclarer interface {
	DeclareThreads(n int, spawn SpawnHandler) error
}

// =============================================================================
// Context Helper
// =============================================================================
type workerKeyType struct{}

var workerKey workerKeyType

// WorkerRef identifies the pool worker a task is executing on.
type WorkerRef struct {
	PoolID string
	Index  int
}

// WithWorker returns a context tagged with the worker executing the task.
func WithWorker(ctx context.Context, ref WorkerRef) context.Context {
	return context.WithValue(ctx, workerKey, ref)
}

// CurrentWorker returns the worker that is running ctx's task, if any.
func CurrentWorker(ctx context.Context) (WorkerRef, bool) {
	if ctx == nil {
		return WorkerRef{}, false
	}
	ref, ok := ctx.Value(workerKey).(WorkerRef)
	return ref, ok
}
