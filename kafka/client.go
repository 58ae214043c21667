package kafka

import (
	"context"
	"regexp"
)

type Client interface {
	Producer
	Consumer

	Ping(ctx context.Context) error
}

type Producer interface {
	// SendAsync submits the record without blocking. The promise is invoked
	// exactly once, from the client's completion goroutine, when the broker
	// acknowledges or rejects the send.
	SendAsync(ctx context.Context, rec ProducerRecord, promise func(Ack, error))
	Flush(ctx context.Context) error
	Close()
}

type Consumer interface {
	Subscribe(sub Subscription, rebalanceCb RebalanceCallback) error
	Poll(ctx context.Context) ([]ConsumerRecord, error)
	// CommitOffsets durably records the given next-offset-to-consume per
	// partition. Blocks until the broker acknowledges or rejects the commit.
	CommitOffsets(ctx context.Context, offsets map[TopicPartition]Offset) error
	PausePartitions(partitions ...TopicPartition)
	ResumePartitions(partitions ...TopicPartition)
	Close()
}

type RebalanceCallback interface {
	OnAssigned(partitions []TopicPartition)
	OnRevoked(partitions []TopicPartition)
}

// Subscription is the concrete target a Consumer subscribes to: either an
// explicit topic list or a compiled pattern matched against topic names,
// never both.
type Subscription struct {
	Topics  []string
	Pattern *regexp.Regexp
}

func (s Subscription) IsPattern() bool {
	return s.Pattern != nil
}

// Matches reports whether the subscription covers the given topic name.
// Pattern subscriptions match the full topic name, broker-style.
func (s Subscription) Matches(topic string) bool {
	if s.Pattern != nil {
		loc := s.Pattern.FindStringIndex(topic)
		return loc != nil && loc[0] == 0 && loc[1] == len(topic)
	}

	for _, t := range s.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

func (s Subscription) String() string {
	if s.Pattern != nil {
		return "pattern:" + s.Pattern.String()
	}

	out := ""
	for i, t := range s.Topics {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out
}
