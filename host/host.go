// Package host provides GoroutineHost, an attachpool.Spawner that plays the
// part of an out-of-band host: every worker context it creates is a fresh
// goroutine locked to its own OS thread, started on the host's schedule and
// known to the pool only through the init message it was given.
package host

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	attachpool "github.com/Swind/go-attach-pool"
	"github.com/Swind/go-attach-pool/core"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// EventKind says what happened to a worker context.
type EventKind string

const (
	// EventReady is emitted once a context has loaded the image and is about to attach.
	EventReady EventKind = "ready"
	// EventPanic is emitted when a context fails before or while attaching.
	EventPanic EventKind = "panic"
	// EventExited is emitted when a context's worker loop returned normally.
	EventExited EventKind = "exited"
)

// Event reports a worker context's progress back to whoever drives the host.
type Event struct {
	Kind    EventKind
	PoolID  uuid.UUID
	Context int // spawn sequence number within this host
	CPU     int // -1 when not pinned
	Err     error
	Time    time.Time
}

func (e Event) String() string {
	if e.Err != nil {
		return fmt.Sprintf("context %d of pool %s: %s: %v", e.Context, e.PoolID, e.Kind, e.Err)
	}
	return fmt.Sprintf("context %d of pool %s: %s", e.Context, e.PoolID, e.Kind)
}

// Option configures a GoroutineHost.
type Option func(*GoroutineHost)

// WithPinning pins each context's OS thread to a CPU, round-robin.
func WithPinning(enabled bool) Option {
	return func(h *GoroutineHost) { h.pin = enabled }
}

// WithLogger sets the host's logger.
func WithLogger(logger core.Logger) Option {
	return func(h *GoroutineHost) { h.logger = logger }
}

// WithEventBuffer sets the capacity of the Events channel. Events that do
// not fit are dropped.
func WithEventBuffer(n int) Option {
	return func(h *GoroutineHost) { h.eventBuffer = n }
}

// WithImage sets the code image this host can run. Messages naming another
// image are refused.
func WithImage(image attachpool.ImageRef) Option {
	return func(h *GoroutineHost) { h.image = image }
}

// WithMemory sets the address space this host shares.
func WithMemory(memory attachpool.MemoryRef) Option {
	return func(h *GoroutineHost) { h.memory = memory }
}

// GoroutineHost spawns worker contexts as OS-thread-locked goroutines.
type GoroutineHost struct {
	image       attachpool.ImageRef
	memory      attachpool.MemoryRef
	pin         bool
	eventBuffer int
	logger      core.Logger

	events  chan Event
	wg      sync.WaitGroup
	spawned atomic.Int32
	dropped atomic.Int32

	errMu sync.Mutex
	errs  error
}

var _ attachpool.Spawner = (*GoroutineHost)(nil)

// New creates a host for the running executable and this process's memory.
func New(opts ...Option) *GoroutineHost {
	h := &GoroutineHost{
		image:       attachpool.DefaultImage(),
		memory:      attachpool.DefaultMemory(),
		eventBuffer: 64,
		logger:      core.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.eventBuffer < 0 {
		h.eventBuffer = 0
	}
	h.events = make(chan Event, h.eventBuffer)
	return h
}

// Spawn starts one worker context for msg. It returns as soon as the context
// is requested; the context reports back through Events.
func (h *GoroutineHost) Spawn(ctx context.Context, msg attachpool.InitMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	seq := int(h.spawned.Add(1)) - 1
	cpu := -1
	if h.pin {
		cpu = seq % runtime.NumCPU()
	}

	h.wg.Add(1)
	go h.run(seq, cpu, msg)
	return nil
}

func (h *GoroutineHost) run(seq, cpu int, msg attachpool.InitMessage) {
	defer h.wg.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer func() {
		if r := recover(); r != nil {
			h.fail(seq, cpu, msg.PoolID, fmt.Errorf("worker context panicked: %v", r))
		}
	}()

	if cpu >= 0 {
		if err := pinCurrentThread(cpu); err != nil {
			h.logger.Warn("could not pin worker context",
				core.F("pool", msg.PoolID), core.F("context", seq), core.F("cpu", cpu), core.F("error", err))
			cpu = -1
		}
	}

	if msg.Image != h.image || msg.Memory != h.memory {
		h.fail(seq, cpu, msg.PoolID, fmt.Errorf("%w: got %s/%s, host runs %s/%s",
			core.ErrImageMismatch, msg.Image, msg.Memory, h.image, h.memory))
		return
	}

	h.emit(Event{Kind: EventReady, PoolID: msg.PoolID, Context: seq, CPU: cpu})
	if err := attachpool.StartWorker(msg.Receiver); err != nil {
		h.fail(seq, cpu, msg.PoolID, err)
		return
	}
	h.emit(Event{Kind: EventExited, PoolID: msg.PoolID, Context: seq, CPU: cpu})
}

func (h *GoroutineHost) fail(seq, cpu int, poolID uuid.UUID, err error) {
	h.errMu.Lock()
	h.errs = multierr.Append(h.errs, fmt.Errorf("context %d: %w", seq, err))
	h.errMu.Unlock()

	h.logger.Error("worker context failed", core.F("pool", poolID), core.F("context", seq), core.F("error", err))
	h.emit(Event{Kind: EventPanic, PoolID: poolID, Context: seq, CPU: cpu, Err: err})
}

func (h *GoroutineHost) emit(ev Event) {
	ev.Time = time.Now()
	select {
	case h.events <- ev:
	default:
		h.dropped.Add(1)
	}
}

// Events delivers ready, panic and exited events. The channel is never closed.
func (h *GoroutineHost) Events() <-chan Event {
	return h.events
}

// Wait blocks until every spawned context has returned and reports all of
// their failures combined.
func (h *GoroutineHost) Wait() error {
	h.wg.Wait()
	h.errMu.Lock()
	defer h.errMu.Unlock()
	return h.errs
}

// Spawned returns the number of contexts requested so far.
func (h *GoroutineHost) Spawned() int {
	return int(h.spawned.Load())
}

// DroppedEvents returns how many events did not fit in the Events buffer.
func (h *GoroutineHost) DroppedEvents() int {
	return int(h.dropped.Load())
}
