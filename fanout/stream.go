package fanout

import (
	"sync"

	"github.com/hugolhafner/streambind/commit"
	"github.com/hugolhafner/streambind/kafka"
	"github.com/hugolhafner/streambind/receiver"
)

// Message is one consumed record as seen by the application. Offset is the
// record's disposition handle under Manual mode and nil otherwise.
type Message struct {
	Record kafka.ConsumerRecord
	Offset *commit.ReceiverOffset
}

// Batch is a poll batch delivered whole under AutoCommit. The application
// signals completion through Done; a nil error commits the batch's offsets,
// a non-nil error withholds the commit so the batch replays on restart.
type Batch struct {
	records []kafka.ConsumerRecord

	once sync.Once
	done chan error
}

func newBatch(pb *receiver.PollBatch) *Batch {
	return &Batch{
		records: pb.Records,
		done:    make(chan error, 1),
	}
}

func (b *Batch) Records() []kafka.ConsumerRecord {
	return b.records
}

// Done signals that every record in the batch has been processed. The first
// call is authoritative; repeats are no-ops.
func (b *Batch) Done(err error) {
	b.once.Do(func() {
		b.done <- err
	})
}

// Stream is the application-visible output of one receive pipeline. Exactly
// one of Messages or Batches carries data, depending on the commit mode.
type Stream struct {
	mode     commit.Mode
	messages chan Message
	batches  chan *Batch
}

func newStream(mode commit.Mode) *Stream {
	s := &Stream{mode: mode}
	if mode == commit.AutoCommit {
		s.batches = make(chan *Batch)
	} else {
		s.messages = make(chan Message)
	}
	return s
}

func (s *Stream) Mode() commit.Mode {
	return s.mode
}

// Messages yields individual records under Manual and AtMostOnce modes.
// Closed when the pipeline stops. Nil under AutoCommit.
func (s *Stream) Messages() <-chan Message {
	return s.messages
}

// Batches yields whole poll batches under AutoCommit mode. Closed when the
// pipeline stops. Nil under other modes.
func (s *Stream) Batches() <-chan *Batch {
	return s.batches
}

func (s *Stream) close() {
	if s.messages != nil {
		close(s.messages)
	}
	if s.batches != nil {
		close(s.batches)
	}
}
