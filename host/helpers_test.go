package host_test

import (
	"github.com/Swind/go-attach-pool/scheduler"
	"github.com/google/uuid"
)

func newPool() *scheduler.StealingPool {
	return scheduler.NewStealingPool(uuid.NewString())
}
