package commit

import (
	"context"
	"sync/atomic"

	"github.com/hugolhafner/streambind/kafka"
)

// ReceiverOffset is a single-use disposition handle bound to exactly one
// consumed record. Acknowledge marks the record's position eligible for
// commit without blocking; Commit additionally requests an immediate durable
// write. The first invocation of each action is authoritative, repeats are
// no-ops.
type ReceiverOffset struct {
	coordinator *Coordinator
	tp          kafka.TopicPartition
	offset      int64
	epoch       int32

	acked     atomic.Bool
	committed atomic.Bool
}

// TopicPartition returns the partition the handle was issued for.
func (o *ReceiverOffset) TopicPartition() kafka.TopicPartition {
	return o.tp
}

// Offset returns the record offset the handle was issued for.
func (o *ReceiverOffset) Offset() int64 {
	return o.offset
}

// Acknowledge marks the record's position eligible for commit. The commit
// itself is issued by the coordinator on its periodic or count trigger.
// Calling Acknowledge again after the first call is a no-op.
func (o *ReceiverOffset) Acknowledge() {
	if !o.acked.CompareAndSwap(false, true) {
		return
	}

	o.coordinator.acknowledge(o.tp, o.offset, o.epoch)
}

// Commit acknowledges the record's position and requests an immediate durable
// commit of the highest contiguous acknowledged offset. Blocks until the
// broker acknowledges or rejects the commit. Acknowledge followed by Commit
// behaves exactly like Commit alone; a second Commit is a no-op.
func (o *ReceiverOffset) Commit(ctx context.Context) error {
	if !o.committed.CompareAndSwap(false, true) {
		return nil
	}

	o.Acknowledge()
	return o.coordinator.Flush(ctx)
}
