package core

import "sync"

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// =============================================================================
// FIFOTaskQueue: global injector queue shared by all workers
// =============================================================================

type FIFOTaskQueue struct {
	mu    sync.Mutex
	tasks []Task
}

func NewFIFOTaskQueue() *FIFOTaskQueue {
	return &FIFOTaskQueue{
		tasks: make([]Task, 0, defaultQueueCap),
	}
}

func (q *FIFOTaskQueue) Push(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
}

func (q *FIFOTaskQueue) Pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}

	t := q.tasks[0]
	// Zero out the slot so the closure can be collected
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	q.maybeCompactLocked()

	return t, true
}

func (q *FIFOTaskQueue) maybeCompactLocked() {
	n := len(q.tasks)
	c := cap(q.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.tasks = make([]Task, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]Task, n, newCap)
	copy(newSlice, q.tasks)
	q.tasks = newSlice
}

func (q *FIFOTaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *FIFOTaskQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Clear removes all tasks from the queue, releases references and
// returns how many were dropped
func (q *FIFOTaskQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.tasks)
	q.tasks = make([]Task, 0, defaultQueueCap)
	return n
}

// =============================================================================
// Deque: per-worker work-stealing deque
// =============================================================================

// Deque is a worker-local double-ended task queue.
// The owner pushes and pops at the bottom (LIFO); thieves steal from the top (FIFO).
type Deque struct {
	mu    sync.Mutex
	tasks []Task
	head  int
}

func NewDeque() *Deque {
	return &Deque{tasks: make([]Task, 0, defaultQueueCap)}
}

// PushBottom is called by the owning worker.
func (d *Deque) PushBottom(t Task) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, t)
}

// PopBottom is called by the owning worker and returns the newest task.
func (d *Deque) PopBottom() (Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.tasks)
	if n == d.head {
		return nil, false
	}
	t := d.tasks[n-1]
	d.tasks[n-1] = nil
	d.tasks = d.tasks[:n-1]
	d.resetIfEmptyLocked()
	return t, true
}

// Steal is called by other workers and returns the oldest task.
func (d *Deque) Steal() (Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.tasks) == d.head {
		return nil, false
	}
	t := d.tasks[d.head]
	d.tasks[d.head] = nil
	d.head++
	d.resetIfEmptyLocked()
	return t, true
}

func (d *Deque) resetIfEmptyLocked() {
	if len(d.tasks) != d.head {
		return
	}
	if cap(d.tasks) >= compactMinCap {
		d.tasks = make([]Task, 0, defaultQueueCap)
	} else {
		d.tasks = d.tasks[:0]
	}
	d.head = 0
}

func (d *Deque) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks) - d.head
}

// Clear drops every queued task and returns how many were dropped.
func (d *Deque) Clear() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.tasks) - d.head
	d.tasks = make([]Task, 0, defaultQueueCap)
	d.head = 0
	return n
}
