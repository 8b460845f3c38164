package attachpool

import (
	"github.com/Swind/go-attach-pool/core"
	"github.com/google/uuid"
)

// Option configures a PoolBuilder or a Bootstrap call.
type Option func(*options)

type options struct {
	poolID       uuid.UUID
	logger       core.Logger
	metrics      core.Metrics
	panicHandler core.PanicHandler
	image        ImageRef
	memory       MemoryRef
}

func loadOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.poolID == uuid.Nil {
		o.poolID = uuid.New()
	}
	if o.logger == nil {
		o.logger = core.NewNoOpLogger()
	}
	if o.metrics == nil {
		o.metrics = &core.NilMetrics{}
	}
	if o.image == "" {
		o.image = DefaultImage()
	}
	if o.memory == "" {
		o.memory = DefaultMemory()
	}
	return o
}

func (o *options) poolConfig() *core.PoolConfig {
	return &core.PoolConfig{
		PanicHandler: o.panicHandler,
		Metrics:      o.metrics,
		Logger:       o.logger,
	}
}

// WithPoolID fixes the bootstrap id instead of generating one.
func WithPoolID(id uuid.UUID) Option {
	return func(o *options) { o.poolID = id }
}

// WithLogger sets the logger for the builder, the attach step and the pool.
func WithLogger(logger core.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the metrics sink for the builder, the attach step and the pool.
func WithMetrics(metrics core.Metrics) Option {
	return func(o *options) { o.metrics = metrics }
}

// WithPanicHandler sets the handler for tasks that panic on the pool.
func WithPanicHandler(h core.PanicHandler) Option {
	return func(o *options) { o.panicHandler = h }
}

// WithImage overrides the code image reference placed in init messages.
func WithImage(image ImageRef) Option {
	return func(o *options) { o.image = image }
}

// WithMemory overrides the shared-memory reference placed in init messages.
func WithMemory(memory MemoryRef) Option {
	return func(o *options) { o.memory = memory }
}
