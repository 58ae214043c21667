package mockkafka

import (
	"context"
	"sync"
	"time"

	"github.com/hugolhafner/streambind/kafka"
)

var _ kafka.Client = (*Client)(nil)

// ProducedRecord represents a record that was sent via the mock producer.
type ProducedRecord struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   []kafka.Header
}

type Client struct {
	mu sync.RWMutex

	recordQueues   map[kafka.TopicPartition][]kafka.ConsumerRecord
	queuePositions map[kafka.TopicPartition]int

	producedRecords  []ProducedRecord
	produceOffsets   map[kafka.TopicPartition]int64
	committedOffsets map[kafka.TopicPartition]kafka.Offset
	commitHistory    map[kafka.TopicPartition][]int64

	sub                kafka.Subscription
	rebalanceCb        kafka.RebalanceCallback
	assignedPartitions []kafka.TopicPartition
	pausedPartitions   map[kafka.TopicPartition]struct{}

	maxPollRecords int
	pollDelay      time.Duration

	sendErr   func(topic string, key, value []byte) error
	pollErr   func() error
	commitErr func() error
	pingErr   error

	closed     bool
	subscribed bool
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		recordQueues:     make(map[kafka.TopicPartition][]kafka.ConsumerRecord),
		queuePositions:   make(map[kafka.TopicPartition]int),
		producedRecords:  make([]ProducedRecord, 0),
		produceOffsets:   make(map[kafka.TopicPartition]int64),
		committedOffsets: make(map[kafka.TopicPartition]kafka.Offset),
		commitHistory:    make(map[kafka.TopicPartition][]int64),
		pausedPartitions: make(map[kafka.TopicPartition]struct{}),
		maxPollRecords:   10,
		pollDelay:        0,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Subscribe registers the client against the given subscription. Partitions
// holding records for matching topics are auto-assigned and the rebalance
// callback is invoked, unless partitions were assigned explicitly beforehand.
func (c *Client) Subscribe(sub kafka.Subscription, rebalanceCb kafka.RebalanceCallback) error {
	c.mu.Lock()

	if c.subscribed {
		c.mu.Unlock()
		return nil // Already subscribed, idempotent
	}

	c.sub = sub
	c.rebalanceCb = rebalanceCb
	c.subscribed = true

	var partitions []kafka.TopicPartition
	if len(c.assignedPartitions) == 0 {
		for tp := range c.recordQueues {
			if sub.Matches(tp.Topic) {
				partitions = append(partitions, tp)
			}
		}
		c.assignedPartitions = partitions
	}
	c.mu.Unlock()

	if len(partitions) > 0 && rebalanceCb != nil {
		rebalanceCb.OnAssigned(partitions)
	}

	return nil
}

// AssignPartitions pins the set of partitions this client consumes from,
// simulating a broker-side group assignment. Invokes the rebalance callback
// if the client is already subscribed.
func (c *Client) AssignPartitions(partitions ...kafka.TopicPartition) {
	c.mu.Lock()
	c.assignedPartitions = partitions
	cb := c.rebalanceCb
	c.mu.Unlock()

	if cb != nil {
		cb.OnAssigned(partitions)
	}
}

// RevokePartitions removes partitions from the assignment, invoking the
// rebalance callback first so in-progress work can be committed.
func (c *Client) RevokePartitions(partitions ...kafka.TopicPartition) {
	c.mu.RLock()
	cb := c.rebalanceCb
	c.mu.RUnlock()

	if cb != nil {
		cb.OnRevoked(partitions)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := c.assignedPartitions[:0]
	for _, tp := range c.assignedPartitions {
		revoked := false
		for _, r := range partitions {
			if tp == r {
				revoked = true
				break
			}
		}
		if !revoked {
			remaining = append(remaining, tp)
		}
	}
	c.assignedPartitions = remaining
}

// Poll retrieves records from the assigned, unpaused partitions in
// round-robin fashion, up to maxPollRecords per call.
func (c *Client) Poll(ctx context.Context) ([]kafka.ConsumerRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pollDelay > 0 {
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			c.mu.Lock()
			return nil, ctx.Err()
		case <-time.After(c.pollDelay):
		}
		c.mu.Lock()
	}

	if c.pollErr != nil {
		if err := c.pollErr(); err != nil {
			return nil, err
		}
	}

	var records []kafka.ConsumerRecord
	recordCount := 0

	for recordCount < c.maxPollRecords {
		progressMade := false

		for _, tp := range c.assignedPartitions {
			if _, paused := c.pausedPartitions[tp]; paused {
				continue
			}

			queue, exists := c.recordQueues[tp]
			if !exists {
				continue
			}

			pos := c.queuePositions[tp]
			if pos >= len(queue) {
				continue
			}

			records = append(records, queue[pos])
			c.queuePositions[tp]++
			recordCount++
			progressMade = true

			if recordCount >= c.maxPollRecords {
				break
			}
		}

		if !progressMade {
			break
		}
	}

	return records, nil
}

// CommitOffsets records the given offsets as durably committed.
func (c *Client) CommitOffsets(ctx context.Context, offsets map[kafka.TopicPartition]kafka.Offset) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if c.commitErr != nil {
		if err := c.commitErr(); err != nil {
			return err
		}
	}

	for tp, offset := range offsets {
		c.committedOffsets[tp] = offset
		c.commitHistory[tp] = append(c.commitHistory[tp], offset.Offset)
	}

	return nil
}

// Restart simulates a crash and restart: poll positions rewind to the last
// committed offset per partition, so uncommitted records are redelivered.
func (c *Client) Restart() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for tp := range c.queuePositions {
		committed, ok := c.committedOffsets[tp]
		if !ok {
			c.queuePositions[tp] = 0
			continue
		}
		c.queuePositions[tp] = int(committed.Offset)
	}
	c.closed = false
}

// SendAsync appends the record to the produced log and invokes the promise
// synchronously with the assigned offset, or with the configured send error.
func (c *Client) SendAsync(ctx context.Context, rec kafka.ProducerRecord, promise func(kafka.Ack, error)) {
	c.mu.Lock()

	if c.sendErr != nil {
		if err := c.sendErr(rec.Topic, rec.Key, rec.Value); err != nil {
			c.mu.Unlock()
			if promise != nil {
				promise(kafka.Ack{}, err)
			}
			return
		}
	}

	partition := rec.Partition
	if partition < 0 {
		partition = 0
	}

	tp := kafka.TopicPartition{Topic: rec.Topic, Partition: partition}
	offset := c.produceOffsets[tp]
	c.produceOffsets[tp] = offset + 1

	c.producedRecords = append(c.producedRecords, ProducedRecord{
		Topic:     rec.Topic,
		Partition: partition,
		Offset:    offset,
		Key:       rec.Key,
		Value:     rec.Value,
		Headers:   rec.Headers,
	})
	c.mu.Unlock()

	if promise != nil {
		promise(kafka.Ack{Topic: rec.Topic, Partition: partition, Offset: offset}, nil)
	}
}

func (c *Client) Flush(ctx context.Context) error {
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.pingErr
}

func (c *Client) PausePartitions(partitions ...kafka.TopicPartition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, tp := range partitions {
		c.pausedPartitions[tp] = struct{}{}
	}
}

func (c *Client) ResumePartitions(partitions ...kafka.TopicPartition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, tp := range partitions {
		delete(c.pausedPartitions, tp)
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Client) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// CommittedOffset returns the last committed offset for the partition.
func (c *Client) CommittedOffset(tp kafka.TopicPartition) (kafka.Offset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	offset, ok := c.committedOffsets[tp]
	return offset, ok
}

// CommitHistory returns every offset ever committed for the partition, in
// the order the commits were issued.
func (c *Client) CommitHistory(tp kafka.TopicPartition) []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	history := make([]int64, len(c.commitHistory[tp]))
	copy(history, c.commitHistory[tp])
	return history
}

// ProducedRecords returns a copy of all records sent via the mock producer.
func (c *Client) ProducedRecords() []ProducedRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	records := make([]ProducedRecord, len(c.producedRecords))
	copy(records, c.producedRecords)
	return records
}

// AssignedPartitions returns the partitions currently assigned to the client.
func (c *Client) AssignedPartitions() []kafka.TopicPartition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	partitions := make([]kafka.TopicPartition, len(c.assignedPartitions))
	copy(partitions, c.assignedPartitions)
	return partitions
}

// PausedPartitions returns the partitions currently paused via PausePartitions.
func (c *Client) PausedPartitions() []kafka.TopicPartition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	partitions := make([]kafka.TopicPartition, 0, len(c.pausedPartitions))
	for tp := range c.pausedPartitions {
		partitions = append(partitions, tp)
	}
	return partitions
}
