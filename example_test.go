package attachpool_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	attachpool "github.com/Swind/go-attach-pool"
	"github.com/Swind/go-attach-pool/scheduler"
)

// ExampleBootstrap starts a pool on goroutines created by a host callback.
func ExampleBootstrap() {
	host := attachpool.SpawnerFunc(func(ctx context.Context, msg attachpool.InitMessage) error {
		go attachpool.StartWorker(msg.Receiver)
		return nil
	})

	pool, err := attachpool.Bootstrap(context.Background(), 4, host)
	if err != nil {
		fmt.Println("bootstrap failed:", err)
		return
	}
	defer pool.Stop()

	var sum atomic.Int64
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		n := int64(i)
		pool.PostTask(func(ctx context.Context) {
			defer wg.Done()
			sum.Add(n)
		})
	}
	wg.Wait()

	fmt.Println("workers:", pool.WorkerCount())
	fmt.Println("sum:", sum.Load())

	// Output:
	// workers: 4
	// sum: 5050
}

// ExamplePoolBuilder walks through the protocol step by step.
func ExamplePoolBuilder() {
	ctx := context.Background()
	pool := scheduler.NewStealingPool("manual")
	defer pool.Stop()

	b, err := attachpool.NewPoolBuilder(2, pool)
	if err != nil {
		fmt.Println(err)
		return
	}
	msg := attachpool.NewInitMessage("self", "self", b)

	// The host side: each context only ever sees the message.
	for i := 0; i < msg.ThreadCount; i++ {
		go attachpool.StartWorker(msg.Receiver)
	}

	if err := b.AwaitWorkers(ctx); err != nil {
		fmt.Println(err)
		return
	}
	if err := b.Build(); err != nil {
		fmt.Println(err)
		return
	}
	if err := b.Close(ctx); err != nil {
		fmt.Println(err)
		return
	}

	done := make(chan string)
	pool.PostTask(func(ctx context.Context) { done <- "hello from an attached worker" })
	fmt.Println(<-done)
	fmt.Println("delivered:", b.Stats().Delivered)

	// Output:
	// hello from an attached worker
	// delivered: 2
}
