package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	attachpool "github.com/Swind/go-attach-pool"
	"github.com/Swind/go-attach-pool/core"
	"github.com/Swind/go-attach-pool/scheduler"
)

// A host that only understands serialized messages, like a worker that
// receives its init message over postMessage or a pipe.
func spawnFromWire(wire []byte) {
	go func() {
		var msg attachpool.InitMessage
		if err := json.Unmarshal(wire, &msg); err != nil {
			log.Printf("bad init message: %v", err)
			return
		}
		if err := msg.Validate(); err != nil {
			log.Printf("bad init message: %v", err)
			return
		}
		fmt.Printf("Worker for pool %s attaching via handle %s\n", msg.PoolID, msg.Receiver)
		if err := attachpool.StartWorker(msg.Receiver); err != nil {
			log.Printf("worker failed: %v", err)
		}
	}()
}

func main() {
	ctx := context.Background()
	fmt.Println("=== Step-by-step Bootstrap Example ===")

	// 1. The pool declares threads but never starts goroutines itself.
	pool := scheduler.NewStealingPool("basic")
	defer pool.Stop()

	// 2. The builder owns the handoff channel for this bootstrap.
	b, err := attachpool.NewPoolBuilder(3, pool, attachpool.WithLogger(core.NewDefaultLogger()))
	if err != nil {
		log.Fatal(err)
	}

	// 3. One message, shipped to every context the host creates.
	wire, err := json.Marshal(attachpool.NewInitMessage(attachpool.DefaultImage(), attachpool.DefaultMemory(), b))
	if err != nil {
		log.Fatal(err)
	}
	for i := 0; i < b.ThreadCount(); i++ {
		spawnFromWire(wire)
	}

	// 4. Wait for all of them, hand out the entry tasks, release the handle.
	if err := b.AwaitWorkers(ctx); err != nil {
		log.Fatal(err)
	}
	if err := b.Build(); err != nil {
		log.Fatal(err)
	}
	if err := b.Close(ctx); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Bootstrap stats: %+v\n", b.Stats())

	done := make(chan struct{})
	for i := 1; i <= 3; i++ {
		id := i
		pool.PostTask(func(ctx context.Context) {
			ref, _ := core.CurrentWorker(ctx)
			fmt.Printf("Task %d running on worker %d\n", id, ref.Index)
			time.Sleep(100 * time.Millisecond)
			if id == 3 {
				close(done)
			}
		})
	}

	<-done
	fmt.Println("=== Example Finished ===")
}
