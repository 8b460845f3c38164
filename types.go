package attachpool

import (
	"github.com/Swind/go-attach-pool/core"
	"github.com/Swind/go-attach-pool/handle"
)

// Re-export commonly used types from core for convenience.
// This allows users to import only the attachpool package for most use cases.

// Task is the unit of work (Closure)
type Task = core.Task

// EntryTask is the run loop of one logical pool thread
type EntryTask = core.EntryTask

// ThreadDeclarer is the scheduler capability a PoolBuilder drives
type ThreadDeclarer = core.ThreadDeclarer

// Handle is the opaque receiver reference carried by an InitMessage
type Handle = handle.Handle

// BootstrapError reports which phase of a bootstrap failed
type BootstrapError = core.BootstrapError

// Bootstrap phases
const (
	PhaseConfig  = core.PhaseConfig
	PhaseSpawn   = core.PhaseSpawn
	PhaseDeclare = core.PhaseDeclare
	PhaseAttach  = core.PhaseAttach
)
