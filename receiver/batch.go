package receiver

import (
	"github.com/hugolhafner/streambind/kafka"
)

// PollBatch is the ordered set of records retrieved from one partition in one
// poll cycle. Records are in strictly increasing offset order.
type PollBatch struct {
	Partition kafka.TopicPartition
	Records   []kafka.ConsumerRecord
}

func (b *PollBatch) Len() int {
	return len(b.Records)
}

// FirstOffset returns the offset of the first record in the batch.
func (b *PollBatch) FirstOffset() int64 {
	return b.Records[0].Offset
}

// NextOffset returns the position to resume from once every record in the
// batch is processed: last offset + 1, with the last record's leader epoch.
func (b *PollBatch) NextOffset() kafka.Offset {
	last := b.Records[len(b.Records)-1]
	return kafka.Offset{
		Offset:      last.Offset + 1,
		LeaderEpoch: last.LeaderEpoch,
	}
}

// groupByPartition splits one poll's records into per-partition batches,
// preserving delivery order within each partition and the order in which
// partitions first appear in the poll.
func groupByPartition(records []kafka.ConsumerRecord) []*PollBatch {
	var batches []*PollBatch
	index := make(map[kafka.TopicPartition]int)

	for _, record := range records {
		tp := record.TopicPartition()
		i, ok := index[tp]
		if !ok {
			i = len(batches)
			index[tp] = i
			batches = append(batches, &PollBatch{Partition: tp})
		}
		batches[i].Records = append(batches[i].Records, record)
	}

	return batches
}
