package core

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Common errors used across the module.
var (
	ErrInvalidThreadCount = errors.New("thread count must be at least 1")
	ErrNilDeclarer        = errors.New("thread declarer is nil")
	ErrAlreadyBuilt       = errors.New("pool builder already built")
	ErrBuilderClosed      = errors.New("pool builder closed")
	ErrAlreadyDeclared    = errors.New("threads already declared for this pool")
	ErrPoolClosed         = errors.New("pool is closed")
	ErrUnknownHandle      = errors.New("unknown or released receiver handle")
	ErrInvalidInitMessage = errors.New("invalid worker init message")
	ErrImageMismatch      = errors.New("worker cannot load the coordinator's code image")
	ErrNotSupported       = errors.New("operation not supported on this platform")
)

// Phase names the bootstrap step an error came from.
type Phase string

const (
	PhaseConfig  Phase = "config"
	PhaseSpawn   Phase = "spawn"
	PhaseDeclare Phase = "declare"
	PhaseAttach  Phase = "attach"
)

// BootstrapError reports a failed pool bootstrap.
// A failed bootstrap has no degraded mode: discard the pool and start over
// with a fresh builder.
type BootstrapError struct {
	Phase  Phase
	PoolID uuid.UUID
	Err    error
}

func (e *BootstrapError) Error() string {
	var what string
	switch e.Phase {
	case PhaseConfig:
		what = "invalid pool configuration"
	case PhaseSpawn:
		what = "host could not spawn worker contexts"
	case PhaseDeclare:
		what = "could not declare threads with scheduler"
	case PhaseAttach:
		what = "worker failed to attach"
	default:
		what = "bootstrap failed"
	}
	if e.PoolID == uuid.Nil {
		return fmt.Sprintf("attachpool: %s: %v", what, e.Err)
	}
	return fmt.Sprintf("attachpool: %s (pool %s): %v", what, e.PoolID, e.Err)
}

func (e *BootstrapError) Unwrap() error {
	return e.Err
}

// NewBootstrapError wraps err for the given phase.
func NewBootstrapError(phase Phase, poolID uuid.UUID, err error) *BootstrapError {
	return &BootstrapError{Phase: phase, PoolID: poolID, Err: err}
}

// PhaseOf returns the phase of the first BootstrapError in err's chain.
func PhaseOf(err error) (Phase, bool) {
	var be *BootstrapError
	if errors.As(err, &be) {
		return be.Phase, true
	}
	return "", false
}
