package core

import (
	"context"
	"testing"
)

func tagged(log *[]int, id int) Task {
	return func(ctx context.Context) { *log = append(*log, id) }
}

// TestFIFOTaskQueue_Order verifies injector ordering
// Given: Tasks pushed 0..4
// When: Popped until empty
// Then: They come out in push order and the queue reports empty
func TestFIFOTaskQueue_Order(t *testing.T) {
	q := NewFIFOTaskQueue()
	var got []int
	for i := 0; i < 5; i++ {
		q.Push(tagged(&got, i))
	}
	if q.Len() != 5 {
		t.Fatalf("Len = %d, want 5", q.Len())
	}

	for {
		task, ok := q.Pop()
		if !ok {
			break
		}
		task(context.Background())
	}

	for i, v := range got {
		if v != i {
			t.Errorf("position %d = %d, want %d", i, v, i)
		}
	}
	if !q.IsEmpty() {
		t.Error("queue should be empty")
	}
}

// TestFIFOTaskQueue_CompactsAfterDrain verifies large queues shrink once drained
func TestFIFOTaskQueue_CompactsAfterDrain(t *testing.T) {
	q := NewFIFOTaskQueue()
	noop := func(ctx context.Context) {}
	for i := 0; i < 1000; i++ {
		q.Push(noop)
	}
	for i := 0; i < 1000; i++ {
		if _, ok := q.Pop(); !ok {
			t.Fatalf("Pop %d failed", i)
		}
	}

	q.mu.Lock()
	c := cap(q.tasks)
	q.mu.Unlock()
	if c > compactMinCap {
		t.Errorf("cap after drain = %d, want <= %d", c, compactMinCap)
	}
}

func TestFIFOTaskQueue_Clear(t *testing.T) {
	q := NewFIFOTaskQueue()
	q.Push(func(ctx context.Context) {})
	q.Push(func(ctx context.Context) {})
	q.Clear()
	if _, ok := q.Pop(); ok {
		t.Error("Pop after Clear should fail")
	}
}

// TestDeque_OwnerLIFOThiefFIFO verifies the two ends of the deque
// Given: A deque holding tasks 0,1,2
// When: The owner pops and a thief steals
// Then: The owner gets the newest (2), the thief gets the oldest (0)
func TestDeque_OwnerLIFOThiefFIFO(t *testing.T) {
	d := NewDeque()
	var got []int
	for i := 0; i < 3; i++ {
		d.PushBottom(tagged(&got, i))
	}

	own, ok := d.PopBottom()
	if !ok {
		t.Fatal("PopBottom failed")
	}
	stolen, ok := d.Steal()
	if !ok {
		t.Fatal("Steal failed")
	}
	own(context.Background())
	stolen(context.Background())

	if len(got) != 2 || got[0] != 2 || got[1] != 0 {
		t.Fatalf("got %v, want [2 0]", got)
	}
	if d.Len() != 1 {
		t.Errorf("Len = %d, want 1", d.Len())
	}
}

func TestDeque_EmptyAndReuse(t *testing.T) {
	d := NewDeque()
	if _, ok := d.PopBottom(); ok {
		t.Error("PopBottom on empty deque should fail")
	}
	if _, ok := d.Steal(); ok {
		t.Error("Steal on empty deque should fail")
	}

	noop := func(ctx context.Context) {}
	d.PushBottom(noop)
	d.Steal()
	d.PushBottom(noop)
	if d.Len() != 1 {
		t.Errorf("Len after steal/push = %d, want 1", d.Len())
	}
	d.Clear()
	if d.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", d.Len())
	}
}
