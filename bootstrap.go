package attachpool

import (
	"context"

	"github.com/Swind/go-attach-pool/core"
	"github.com/Swind/go-attach-pool/scheduler"
	"go.uber.org/multierr"
)

// Bootstrap runs the whole protocol and returns a pool whose threads workers
// are all running:
//
//	new pool → builder → init message → spawn × threads → AwaitWorkers → Build → Close
//
// On any failure the pool is stopped, the builder closed and a
// *core.BootstrapError naming the failed phase is returned. There is no
// partial pool; retry with a fresh Bootstrap if desired.
func Bootstrap(ctx context.Context, threads int, spawner Spawner, opts ...Option) (*scheduler.StealingPool, error) {
	o := loadOptions(opts...)
	defer core.Measure(o.logger, "Bootstrap", core.F("pool", o.poolID), core.F("threads", threads))()

	pool := scheduler.NewStealingPoolWithConfig(o.poolID.String(), o.poolConfig())
	b, err := newPoolBuilder(threads, pool, o)
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*scheduler.StealingPool, error) {
		b.Close(ctx)
		pool.Stop()
		return nil, err
	}

	msg := NewInitMessage(o.image, o.memory, b)
	var spawnErr error
	for i := 0; i < threads; i++ {
		spawnErr = multierr.Append(spawnErr, spawner.Spawn(ctx, msg))
	}
	if spawnErr != nil {
		o.metrics.RecordBootstrapFailure(o.poolID.String(), core.PhaseSpawn)
		o.logger.Error("host failed to spawn workers",
			core.F("pool", o.poolID), core.F("failures", len(multierr.Errors(spawnErr))), core.F("error", spawnErr))
		return fail(core.NewBootstrapError(core.PhaseSpawn, o.poolID, spawnErr))
	}

	if err := b.AwaitWorkers(ctx); err != nil {
		return fail(err)
	}
	if err := b.Build(); err != nil {
		return fail(err)
	}
	if err := b.Close(ctx); err != nil {
		pool.Stop()
		return nil, err
	}
	return pool, nil
}
