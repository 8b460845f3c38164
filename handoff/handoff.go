// Package handoff implements a single-producer, multi-consumer rendezvous
// channel that delivers each item to exactly one parked receiver.
//
// Unlike a buffered Go channel, Send never stores an item: it succeeds only
// if a receiver is already blocked in Recv, and otherwise fails with
// ErrNoReceiver. A producer that pushes more items than there are waiting
// receivers therefore sees an error instead of silently losing an item.
package handoff

import (
	"context"
	"errors"
	"sync"

	"github.com/eapache/queue"
)

var (
	// ErrNoReceiver is returned by Send when no receiver is parked in Recv.
	ErrNoReceiver = errors.New("handoff: no receiver waiting")

	// ErrClosed is returned by Send and Recv once the channel is closed.
	ErrClosed = errors.New("handoff: channel closed")
)

// Stats is a point-in-time snapshot of a channel.
type Stats struct {
	Waiting  int
	Sent     int
	Received int
	Closed   bool
}

type waiter[T any] struct {
	ch chan T
}

type channel[T any] struct {
	mu       sync.Mutex
	waiters  *queue.Queue // *waiter[T], FIFO
	sent     int
	received int
	closed   bool
	changed  chan struct{}
}

// Sender is the producing endpoint. It is meant to be owned by one goroutine.
type Sender[T any] struct {
	c *channel[T]
}

// Receiver is the consuming endpoint. It is safe for concurrent use.
type Receiver[T any] struct {
	c *channel[T]
}

// New creates a channel and returns both of its endpoints.
func New[T any]() (*Sender[T], *Receiver[T]) {
	c := &channel[T]{
		waiters: queue.New(),
		changed: make(chan struct{}),
	}
	return &Sender[T]{c: c}, &Receiver[T]{c: c}
}

// notifyLocked wakes everything blocked in await. c.mu must be held.
func (c *channel[T]) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *channel[T]) stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statsLocked()
}

func (c *channel[T]) statsLocked() Stats {
	return Stats{
		Waiting:  c.waiters.Length(),
		Sent:     c.sent,
		Received: c.received,
		Closed:   c.closed,
	}
}

// await blocks until cond holds for the current stats or ctx ends.
func (c *channel[T]) await(ctx context.Context, cond func(Stats) bool) error {
	for {
		c.mu.Lock()
		if cond(c.statsLocked()) {
			c.mu.Unlock()
			return nil
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Send hands v to the longest-waiting receiver.
func (s *Sender[T]) Send(v T) error {
	c := s.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.waiters.Length() == 0 {
		return ErrNoReceiver
	}
	w := c.waiters.Remove().(*waiter[T])
	w.ch <- v // capacity 1, never blocks
	c.sent++
	c.notifyLocked()
	return nil
}

// Close wakes every parked receiver with ErrClosed. Repeated calls are no-ops.
func (s *Sender[T]) Close() {
	c := s.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for c.waiters.Length() > 0 {
		close(c.waiters.Remove().(*waiter[T]).ch)
	}
	c.notifyLocked()
}

// AwaitReceived blocks until n items have been taken by receivers.
// It returns ErrClosed if the channel closes first.
func (s *Sender[T]) AwaitReceived(ctx context.Context, n int) error {
	var closed bool
	err := s.c.await(ctx, func(st Stats) bool {
		closed = st.Closed
		return st.Received >= n || st.Closed
	})
	if err != nil {
		return err
	}
	if closed && s.c.stats().Received < n {
		return ErrClosed
	}
	return nil
}

// Stats returns a snapshot of the channel.
func (s *Sender[T]) Stats() Stats { return s.c.stats() }

// Recv parks the caller until an item is handed to it or the channel closes.
// There is no timeout.
func (r *Receiver[T]) Recv() (T, error) {
	var zero T
	c := r.c

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return zero, ErrClosed
	}
	w := &waiter[T]{ch: make(chan T, 1)}
	c.waiters.Add(w)
	c.notifyLocked()
	c.mu.Unlock()

	v, ok := <-w.ch
	if !ok {
		return zero, ErrClosed
	}

	c.mu.Lock()
	c.received++
	c.notifyLocked()
	c.mu.Unlock()
	return v, nil
}

// Waiting returns the number of receivers parked in Recv.
func (r *Receiver[T]) Waiting() int {
	c := r.c
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiters.Length()
}

// AwaitWaiting blocks until at least n receivers are parked in Recv.
// It returns ErrClosed if the channel closes first.
func (r *Receiver[T]) AwaitWaiting(ctx context.Context, n int) error {
	var closed bool
	err := r.c.await(ctx, func(st Stats) bool {
		closed = st.Closed
		return st.Waiting >= n || st.Closed
	})
	if err != nil {
		return err
	}
	if closed {
		return ErrClosed
	}
	return nil
}

// Stats returns a snapshot of the channel.
func (r *Receiver[T]) Stats() Stats { return r.c.stats() }
