package attachpool

import (
	"fmt"
	"time"

	"github.com/Swind/go-attach-pool/core"
	"github.com/Swind/go-attach-pool/handle"
	"github.com/Swind/go-attach-pool/handoff"
	"github.com/google/uuid"
)

// endpoint is what a receiver handle resolves to.
type endpoint struct {
	receiver *handoff.Receiver[core.EntryTask]
	poolID   uuid.UUID
	logger   core.Logger
	metrics  core.Metrics
}

// endpoints holds the receiver of every live PoolBuilder.
var endpoints handle.Table[*endpoint]

// StartWorker is the worker-side entry point. It resolves h (taken from an
// InitMessage), blocks until this worker is handed an entry task and then
// runs the pool's worker loop on the calling goroutine. It returns nil once
// the pool is torn down.
//
// Errors are *core.BootstrapError with phase attach: an unknown or released
// handle, or a builder that closed without handing this worker a task.
func StartWorker(h handle.Handle) error {
	ep, ok := endpoints.Resolve(h)
	if !ok {
		return core.NewBootstrapError(core.PhaseAttach, uuid.Nil, fmt.Errorf("%w: %s", core.ErrUnknownHandle, h))
	}
	return ep.attach()
}

// Attach is StartWorker for callers that already hold the receiver.
func Attach(r *handoff.Receiver[core.EntryTask]) error {
	ep := &endpoint{
		receiver: r,
		logger:   core.NewNoOpLogger(),
		metrics:  &core.NilMetrics{},
	}
	return ep.attach()
}

func (ep *endpoint) attach() error {
	label := ep.poolID.String()
	exit := core.Measure(ep.logger, "attach: waiting for entry task", core.F("pool", ep.poolID))
	start := time.Now()
	task, err := ep.receiver.Recv()
	exit()
	if err != nil {
		ep.metrics.RecordBootstrapFailure(label, core.PhaseAttach)
		ep.logger.Error("worker failed to attach", core.F("pool", ep.poolID), core.F("error", err))
		return core.NewBootstrapError(core.PhaseAttach, ep.poolID, err)
	}
	ep.metrics.RecordAttach(label, time.Since(start))

	// From here on this goroutine belongs to the scheduler.
	ep.logger.Debug("attach: running entry task", core.F("pool", ep.poolID), core.F("thread", task.Index()))
	task.Run()
	return nil
}
