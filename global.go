package attachpool

import (
	"context"
	"sync"

	"github.com/Swind/go-attach-pool/scheduler"
)

// =============================================================================
// Global Pool Helper (Singleton)
// =============================================================================

var (
	globalPool *scheduler.StealingPool
	globalMu   sync.Mutex
)

// InitGlobalPool bootstraps the global pool with threads workers spawned by
// spawner. Calling it again while a global pool exists is a no-op.
func InitGlobalPool(ctx context.Context, threads int, spawner Spawner, opts ...Option) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPool != nil {
		return nil // Already initialized
	}

	pool, err := Bootstrap(ctx, threads, spawner, opts...)
	if err != nil {
		return err
	}
	globalPool = pool
	return nil
}

// GlobalPool returns the global pool instance.
// It panics if InitGlobalPool has not succeeded.
func GlobalPool() *scheduler.StealingPool {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPool == nil {
		panic("global pool not initialized. Call InitGlobalPool() first.")
	}
	return globalPool
}

// ShutdownGlobalPool stops the global pool; its workers' StartWorker calls return.
func ShutdownGlobalPool() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPool != nil {
		globalPool.Stop()
		globalPool = nil
	}
}
