// Package handle publishes Go values under opaque numeric handles so they can
// be named from inside a message that crosses an execution-context boundary.
//
// A Handle is not a pointer. The value stays reachable through the Table
// until Release, so the garbage collector never sees a dangling reference,
// and resolving a released or forged handle fails instead of reading memory.
package handle

import (
	"strconv"
	"sync"
)

// Handle names a value registered in a Table. The zero Handle is never issued.
type Handle uintptr

func (h Handle) String() string {
	return "0x" + strconv.FormatUint(uint64(h), 16)
}

// Valid reports whether h could have been issued by a Table.
func (h Handle) Valid() bool { return h != 0 }

// Table maps handles to values. The zero value is ready to use.
type Table[T any] struct {
	mu      sync.RWMutex
	next    uintptr
	entries map[Handle]T
}

// Register stores v and returns a fresh handle for it.
func (t *Table[T]) Register(v T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.entries == nil {
		t.entries = make(map[Handle]T)
	}
	t.next++
	h := Handle(t.next)
	t.entries[h] = v
	return h
}

// Resolve returns the value registered under h.
// This is the only place a handle is turned back into a reference.
func (t *Table[T]) Resolve(h Handle) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.entries[h]
	return v, ok
}

// Release forgets h. Releasing an unknown handle is a no-op.
func (t *Table[T]) Release(h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, h)
}

// Len returns the number of live handles.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
