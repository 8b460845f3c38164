package attachpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-attach-pool/core"
	"github.com/Swind/go-attach-pool/handle"
	"github.com/Swind/go-attach-pool/handoff"
	"github.com/google/uuid"
)

type builderState int32

const (
	stateIdle builderState = iota
	stateBuilding
	stateBuilt
	stateFailed
	stateClosed
)

func (s builderState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateBuilding:
		return "building"
	case stateBuilt:
		return "built"
	case stateFailed:
		return "failed"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PoolBuilder owns both ends of the handoff channel for one pool bootstrap.
//
// Protocol:
//  1. NewPoolBuilder, then NewInitMessage; the host spawns ThreadCount
//     contexts with the message and each calls StartWorker.
//  2. AwaitWorkers returns once every context is parked on the channel.
//  3. Build declares the threads; each entry task goes to one parked worker.
//  4. Close waits until every entry task was taken, then releases the handle.
//
// A PoolBuilder must not be copied.
type PoolBuilder struct {
	id          uuid.UUID
	threadCount int
	declarer    core.ThreadDeclarer

	sender   *handoff.Sender[core.EntryTask]
	receiver *handoff.Receiver[core.EntryTask]
	handle   handle.Handle

	state     atomic.Int32
	buildTime atomic.Int64
	closeOnce sync.Once
	closeErr  error

	logger  core.Logger
	metrics core.Metrics
}

// NewPoolBuilder creates a builder for threadCount workers backed by declarer.
// threadCount must be at least 1; nothing is allocated otherwise.
func NewPoolBuilder(threadCount int, declarer core.ThreadDeclarer, opts ...Option) (*PoolBuilder, error) {
	return newPoolBuilder(threadCount, declarer, loadOptions(opts...))
}

func newPoolBuilder(threadCount int, declarer core.ThreadDeclarer, o *options) (*PoolBuilder, error) {
	if threadCount < 1 {
		o.metrics.RecordBootstrapFailure(o.poolID.String(), core.PhaseConfig)
		return nil, core.NewBootstrapError(core.PhaseConfig, o.poolID, core.ErrInvalidThreadCount)
	}
	if declarer == nil {
		o.metrics.RecordBootstrapFailure(o.poolID.String(), core.PhaseConfig)
		return nil, core.NewBootstrapError(core.PhaseConfig, o.poolID, core.ErrNilDeclarer)
	}

	defer core.Measure(o.logger, "PoolBuilder.new", core.F("pool", o.poolID), core.F("threads", threadCount))()

	sender, receiver := handoff.New[core.EntryTask]()
	b := &PoolBuilder{
		id:          o.poolID,
		threadCount: threadCount,
		declarer:    declarer,
		sender:      sender,
		receiver:    receiver,
		logger:      o.logger,
		metrics:     o.metrics,
	}
	b.handle = endpoints.Register(&endpoint{
		receiver: receiver,
		poolID:   b.id,
		logger:   o.logger,
		metrics:  o.metrics,
	})
	return b, nil
}

// ID returns the bootstrap id.
func (b *PoolBuilder) ID() uuid.UUID { return b.id }

// ThreadCount returns the number of logical threads this builder declares.
func (b *PoolBuilder) ThreadCount() int { return b.threadCount }

// ReceiverHandle returns the handle workers pass to StartWorker.
// It stays resolvable until Close.
func (b *PoolBuilder) ReceiverHandle() handle.Handle { return b.handle }

// AwaitWorkers blocks until ThreadCount workers are parked waiting for an
// entry task. This is the "all workers spawned" signal that gates Build.
func (b *PoolBuilder) AwaitWorkers(ctx context.Context) error {
	defer core.Measure(b.logger, "PoolBuilder.AwaitWorkers", core.F("pool", b.id))()

	if err := b.receiver.AwaitWaiting(ctx, b.threadCount); err != nil {
		b.metrics.RecordBootstrapFailure(b.id.String(), core.PhaseSpawn)
		b.logger.Error("workers did not attach",
			core.F("pool", b.id), core.F("want", b.threadCount), core.F("waiting", b.receiver.Waiting()), core.F("error", err))
		return core.NewBootstrapError(core.PhaseSpawn, b.id, err)
	}
	return nil
}

// Build asks the declarer for ThreadCount threads and hands every entry task
// to a parked worker. All workers must already be parked (see AwaitWorkers);
// a thread with no worker to take it fails the whole build with
// handoff.ErrNoReceiver. A builder builds at most once.
func (b *PoolBuilder) Build() error {
	defer core.Measure(b.logger, "PoolBuilder.Build", core.F("pool", b.id), core.F("threads", b.threadCount))()

	if !b.state.CompareAndSwap(int32(stateIdle), int32(stateBuilding)) {
		err := core.ErrAlreadyBuilt
		if builderState(b.state.Load()) == stateClosed {
			err = core.ErrBuilderClosed
		}
		return core.NewBootstrapError(core.PhaseDeclare, b.id, err)
	}

	start := time.Now()
	label := b.id.String()
	err := b.declarer.DeclareThreads(b.threadCount, func(task core.EntryTask) error {
		if err := b.sender.Send(task); err != nil {
			return err
		}
		b.metrics.RecordEntryTaskDelivered(label)
		return nil
	})
	if err != nil {
		b.state.CompareAndSwap(int32(stateBuilding), int32(stateFailed))
		b.metrics.RecordBootstrapFailure(label, core.PhaseDeclare)
		b.logger.Error("build failed", core.F("pool", b.id), core.F("error", err))
		return core.NewBootstrapError(core.PhaseDeclare, b.id, err)
	}

	b.buildTime.Store(int64(time.Since(start)))
	b.state.CompareAndSwap(int32(stateBuilding), int32(stateBuilt))
	b.logger.Info("pool built", core.F("pool", b.id), core.F("threads", b.threadCount))
	return nil
}

// MustBuild is like Build but panics on failure.
func (b *PoolBuilder) MustBuild() {
	if err := b.Build(); err != nil {
		panic(err)
	}
}

// Close is the barrier that keeps the builder alive for its workers. After
// a successful Build it waits until every entry task was taken (or ctx ends);
// then it closes the channel, waking any surplus workers with
// handoff.ErrClosed, and releases the receiver handle. Repeated calls return
// the first result.
func (b *PoolBuilder) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		defer core.Measure(b.logger, "PoolBuilder.Close", core.F("pool", b.id))()

		if builderState(b.state.Load()) == stateBuilt {
			if err := b.sender.AwaitReceived(ctx, b.threadCount); err != nil {
				b.metrics.RecordBootstrapFailure(b.id.String(), core.PhaseAttach)
				b.closeErr = core.NewBootstrapError(core.PhaseAttach, b.id, err)
			}
		}
		b.state.Store(int32(stateClosed))
		b.sender.Close()
		endpoints.Release(b.handle)
	})
	return b.closeErr
}

// Stats returns a snapshot of the bootstrap.
func (b *PoolBuilder) Stats() core.BootstrapStats {
	st := b.sender.Stats()
	return core.BootstrapStats{
		PoolID:      b.id.String(),
		ThreadCount: b.threadCount,
		Waiting:     st.Waiting,
		Delivered:   st.Received,
		State:       builderState(b.state.Load()).String(),
		BuildTime:   time.Duration(b.buildTime.Load()),
	}
}
