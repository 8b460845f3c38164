// Package attachpool bootstraps a work-stealing pool whose worker threads are
// created by someone else.
//
// A pool normally starts its own goroutines. Here the execution contexts come
// from a host that can only create them asynchronously (another OS thread, a
// sandboxed runtime, a process sharing memory) and on its own schedule. The
// package reconciles the two: the pool declares its threads synchronously, and
// each declared thread's run loop is handed to exactly one externally created
// context, which then runs it for the rest of its life.
//
// # Protocol
//
//	b, _ := attachpool.NewPoolBuilder(4, pool)          // coordinator
//	msg := attachpool.NewInitMessage(img, mem, b)
//	host spawns 4 contexts with msg; each calls
//	    attachpool.StartWorker(msg.Receiver)           // worker, blocks
//	b.AwaitWorkers(ctx)                                 // all 4 parked
//	b.Build()                                           // 4 entry tasks handed out
//	b.Close(ctx)                                        // all 4 taken; handle released
//
// Bootstrap runs the same steps in one call.
//
// # Key Concepts
//
// Entry task: the run loop of one logical thread, produced by the scheduler's
// DeclareThreads and delivered to exactly one worker.
//
// Handoff channel: the rendezvous that carries entry tasks. A send succeeds
// only if a worker is already parked, so Build fails loudly instead of losing
// a thread when fewer workers showed up than were declared.
//
// Receiver handle: the number inside the init message that lets a worker find
// the builder's channel. It stays valid until Close, which does not release it
// before every declared worker has taken its entry task.
//
// # Example
//
//	import (
//		"context"
//		attachpool "github.com/Swind/go-attach-pool"
//		"github.com/Swind/go-attach-pool/host"
//	)
//
//	func main() {
//		h := host.New()
//		pool, err := attachpool.Bootstrap(context.Background(), 4, h)
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer pool.Stop()
//
//		pool.PostTask(func(ctx context.Context) {
//			println("running on an attached worker")
//		})
//	}
package attachpool
