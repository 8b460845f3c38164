package core

import "time"

// PoolStats represents runtime observability state for a work-stealing pool.
type PoolStats struct {
	ID      string
	Workers int // declared logical threads
	Live    int // workers currently inside their run loop
	Queued  int // tasks in the injector and all local deques
	Active  int // tasks executing right now
	Stolen  int64
	Running bool
}

// BootstrapStats represents the state of one pool bootstrap.
type BootstrapStats struct {
	PoolID      string
	ThreadCount int
	Waiting     int // workers parked on the handoff channel
	Delivered   int // entry tasks received by workers
	State       string
	BuildTime   time.Duration
}
