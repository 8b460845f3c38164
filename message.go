package attachpool

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/Swind/go-attach-pool/core"
	"github.com/Swind/go-attach-pool/handle"
	"github.com/google/uuid"
)

// InitMessageType tags worker init messages so hosts sharing a message bus
// can tell them apart from their own traffic.
const InitMessageType = "attachpool_worker_init"

// ImageRef names the code image a worker context must load.
type ImageRef string

// MemoryRef names the address space a worker context must share.
type MemoryRef string

// DefaultImage is the running executable.
func DefaultImage() ImageRef {
	exe, err := os.Executable()
	if err != nil {
		return ImageRef(os.Args[0])
	}
	return ImageRef(exe)
}

// DefaultMemory names this process's address space.
func DefaultMemory() MemoryRef {
	return MemoryRef("pid:" + strconv.Itoa(os.Getpid()))
}

// InitMessage is everything a host needs to start one worker context.
// It is built once per bootstrap and handed, unchanged, to every context.
type InitMessage struct {
	Type        string        `json:"type"`
	PoolID      uuid.UUID     `json:"pool_id"`
	Image       ImageRef      `json:"image"`
	Memory      MemoryRef     `json:"memory"`
	Receiver    handle.Handle `json:"receiver"`
	ThreadCount int           `json:"thread_count"`
}

// NewInitMessage packages image, memory and b's receiver handle.
func NewInitMessage(image ImageRef, memory MemoryRef, b *PoolBuilder) InitMessage {
	return InitMessage{
		Type:        InitMessageType,
		PoolID:      b.ID(),
		Image:       image,
		Memory:      memory,
		Receiver:    b.ReceiverHandle(),
		ThreadCount: b.ThreadCount(),
	}
}

// Validate checks the fields a worker relies on.
func (m InitMessage) Validate() error {
	if m.Type != InitMessageType {
		return fmt.Errorf("%w: type %q", core.ErrInvalidInitMessage, m.Type)
	}
	if !m.Receiver.Valid() {
		return fmt.Errorf("%w: zero receiver handle", core.ErrInvalidInitMessage)
	}
	if m.ThreadCount < 1 {
		return fmt.Errorf("%w: thread count %d", core.ErrInvalidInitMessage, m.ThreadCount)
	}
	return nil
}

// Spawner is the host side of the protocol: it creates one execution context
// per call, out of band, and has that context call StartWorker(msg.Receiver).
// Spawn should return once the context has been requested, not when it is done.
type Spawner interface {
	Spawn(ctx context.Context, msg InitMessage) error
}

// SpawnerFunc adapts a function to Spawner.
type SpawnerFunc func(ctx context.Context, msg InitMessage) error

func (f SpawnerFunc) Spawn(ctx context.Context, msg InitMessage) error {
	return f(ctx, msg)
}
