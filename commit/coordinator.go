// Package commit implements the offset-commit state machine that decides,
// per record or per poll batch, when a partition's durable read position
// advances, according to the binding's delivery-semantics mode.
package commit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/streambind/kafka"
	"github.com/hugolhafner/streambind/logger"
	streamotel "github.com/hugolhafner/streambind/otel"
	"github.com/hugolhafner/streambind/receiver"
	"go.opentelemetry.io/otel/metric"
)

// ErrCommitRetriesExhausted is returned when a broker keeps rejecting a
// commit past the bounded attempt count. Continuing would risk unbounded
// offset drift, so the owner must treat this as fatal.
var ErrCommitRetriesExhausted = errors.New("commit retries exhausted")

var _ kafka.RebalanceCallback = (*Coordinator)(nil)

type Config struct {
	MaxCommitAttempts int
	CommitBackoff     backoff.Backoff
	Trigger           *Trigger
	TriggerOptions    []TriggerOption
	Logger            logger.Logger
	Telemetry         *streamotel.Telemetry
}

func defaultCoordinatorConfig() Config {
	return Config{
		MaxCommitAttempts: 5,
		CommitBackoff:     backoff.NewFixed(500 * time.Millisecond),
		Logger:            logger.NewNoopLogger(),
		Telemetry:         streamotel.Noop(),
	}
}

type Option func(*Config)

func WithMaxCommitAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxCommitAttempts = n
		}
	}
}

func WithCommitBackoff(b backoff.Backoff) Option {
	return func(c *Config) {
		if b != nil {
			c.CommitBackoff = b
		}
	}
}

func WithTrigger(t *Trigger) Option {
	return func(c *Config) {
		if t != nil {
			c.Trigger = t
		}
	}
}

// WithTriggerOptions configures the coordinator's own trigger. Ignored when
// a shared trigger is injected via WithTrigger.
func WithTriggerOptions(opts ...TriggerOption) Option {
	return func(c *Config) {
		c.TriggerOptions = append(c.TriggerOptions, opts...)
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

func WithTelemetry(t *streamotel.Telemetry) Option {
	return func(c *Config) {
		if t != nil {
			c.Telemetry = t
		}
	}
}

// progress tracks one partition's acknowledgment state. Mutated only under
// the coordinator's lock; one coordinator owns a partition at a time,
// enforced by the broker's assignment protocol.
type progress struct {
	// next is the lowest offset not yet acknowledged; everything below it is
	// contiguously acknowledged.
	next  int64
	epoch int32

	// pending holds offsets acknowledged out of order, keyed by offset,
	// until the gap below them closes.
	pending map[int64]int32

	// lastCommitted is the next-offset value most recently flushed to the
	// broker, -1 before any commit. Commits never go below it.
	lastCommitted int64

	dirty bool
}

// Coordinator advances durable read positions for the partitions consumed by
// one receive pipeline. Commit granularity is always the highest contiguous
// acknowledged offset (Manual) or a whole batch (AtMostOnce, AutoCommit);
// partial-batch commits are never issued.
type Coordinator struct {
	consumer kafka.Consumer
	mode     Mode
	config   Config
	trigger  *Trigger
	logger   logger.Logger

	mu         sync.Mutex
	partitions map[kafka.TopicPartition]*progress
}

func NewCoordinator(consumer kafka.Consumer, mode Mode, opts ...Option) *Coordinator {
	config := defaultCoordinatorConfig()
	for _, opt := range opts {
		opt(&config)
	}

	trigger := config.Trigger
	if trigger == nil {
		trigger = NewTrigger(config.TriggerOptions...)
	}

	return &Coordinator{
		consumer:   consumer,
		mode:       mode,
		config:     config,
		trigger:    trigger,
		logger:     config.Logger.With("component", "commit-coordinator", "mode", mode.String()),
		partitions: make(map[kafka.TopicPartition]*progress),
	}
}

func (c *Coordinator) Mode() Mode {
	return c.mode
}

// CommitRequests signals when the trigger has decided acknowledged positions
// should be flushed. The pipeline loop services it by calling Flush.
func (c *Coordinator) CommitRequests() <-chan struct{} {
	return c.trigger.C()
}

// Track registers a Manual-mode batch and returns one ReceiverOffset handle
// per record, in record order. Returns nil for any other mode.
func (c *Coordinator) Track(batch *receiver.PollBatch) []*ReceiverOffset {
	if c.mode != Manual || batch.Len() == 0 {
		return nil
	}

	c.mu.Lock()
	c.ensure(batch.Partition, batch.FirstOffset())
	c.mu.Unlock()

	handles := make([]*ReceiverOffset, len(batch.Records))
	for i, record := range batch.Records {
		handles[i] = &ReceiverOffset{
			coordinator: c,
			tp:          batch.Partition,
			offset:      record.Offset,
			epoch:       record.LeaderEpoch,
		}
	}

	return handles
}

// PreCommit durably advances the batch's offsets before delivery
// (AtMostOnce). A crash after this point cannot redeliver the batch.
func (c *Coordinator) PreCommit(ctx context.Context, batch *receiver.PollBatch) error {
	return c.commitBatch(ctx, batch)
}

// CompleteBatch durably advances the batch's offsets after the application
// has fully processed it (AutoCommit).
func (c *Coordinator) CompleteBatch(ctx context.Context, batch *receiver.PollBatch) error {
	return c.commitBatch(ctx, batch)
}

func (c *Coordinator) commitBatch(ctx context.Context, batch *receiver.PollBatch) error {
	if batch.Len() == 0 {
		return nil
	}

	next := batch.NextOffset()

	c.mu.Lock()
	p := c.ensure(batch.Partition, batch.FirstOffset())
	if next.Offset <= p.lastCommitted {
		// already covered by an earlier commit, keep the sequence non-decreasing
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	offsets := map[kafka.TopicPartition]kafka.Offset{batch.Partition: next}
	if err := c.commitWithRetry(ctx, offsets); err != nil {
		return err
	}

	c.mu.Lock()
	p.lastCommitted = next.Offset
	if p.next < next.Offset {
		p.next = next.Offset
		p.epoch = next.LeaderEpoch
	}
	p.dirty = false
	c.mu.Unlock()

	return nil
}

// acknowledge advances the partition's contiguous marker. Out-of-order
// acknowledgments are held until the gap below them closes.
func (c *Coordinator) acknowledge(tp kafka.TopicPartition, offset int64, epoch int32) {
	c.mu.Lock()

	p := c.ensure(tp, offset)

	advanced := 0
	switch {
	case offset < p.next:
		// already acknowledged
	case offset == p.next:
		p.next = offset + 1
		p.epoch = epoch
		advanced = 1

		for {
			e, ok := p.pending[p.next]
			if !ok {
				break
			}
			delete(p.pending, p.next)
			p.epoch = e
			p.next++
			advanced++
		}

		p.dirty = true
	default:
		p.pending[offset] = epoch
	}

	c.mu.Unlock()

	if advanced > 0 {
		c.trigger.RecordAcked(advanced)
	}
}

// Flush commits the highest contiguous acknowledged offset of every dirty
// partition. Safe to call from any goroutine.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	offsets := make(map[kafka.TopicPartition]kafka.Offset)
	for tp, p := range c.partitions {
		if p.dirty && p.next > p.lastCommitted {
			offsets[tp] = kafka.Offset{Offset: p.next, LeaderEpoch: p.epoch}
		}
	}
	c.mu.Unlock()

	if len(offsets) == 0 {
		return nil
	}

	if err := c.commitWithRetry(ctx, offsets); err != nil {
		return err
	}

	c.mu.Lock()
	for tp, offset := range offsets {
		p, ok := c.partitions[tp]
		if !ok {
			continue
		}
		p.lastCommitted = offset.Offset
		if p.next == offset.Offset {
			p.dirty = false
		}
	}
	c.mu.Unlock()

	c.trigger.Reset()

	return nil
}

func (c *Coordinator) commitWithRetry(ctx context.Context, offsets map[kafka.TopicPartition]kafka.Offset) error {
	tel := c.config.Telemetry

	var attempt uint = 0
	for {
		start := time.Now()
		err := c.consumer.CommitOffsets(ctx, offsets)
		tel.CommitDuration.Record(ctx, time.Since(start).Seconds())

		if err == nil {
			tel.CommitsIssued.Add(
				ctx, 1, metric.WithAttributes(
					streamotel.AttrOutcome.String(streamotel.OutcomeSuccess),
				),
			)
			return nil
		}

		attempt++
		if attempt >= uint(c.config.MaxCommitAttempts) {
			tel.CommitsIssued.Add(
				ctx, 1, metric.WithAttributes(
					streamotel.AttrOutcome.String(streamotel.OutcomeError),
				),
			)
			return fmt.Errorf("%w after %d attempts: %w", ErrCommitRetriesExhausted, attempt, err)
		}

		tel.CommitRetries.Add(ctx, 1)
		c.logger.Warn("Commit rejected, retrying", "error", err, "attempt", attempt)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.config.CommitBackoff.Next(attempt)):
		}
	}
}

func (c *Coordinator) OnAssigned(partitions []kafka.TopicPartition) {
	c.logger.Debug("Partitions assigned", "partitions", partitions)
}

// OnRevoked flushes acknowledged progress for the revoked partitions, then
// abandons their state. Uncommitted progress is replayed by the next owner.
func (c *Coordinator) OnRevoked(partitions []kafka.TopicPartition) {
	c.logger.Info("Partitions revoked, flushing acknowledged progress", "partitions", partitions)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.Flush(ctx); err != nil {
		c.logger.Error("Failed to commit offsets on revoke", "error", err)
	}

	c.mu.Lock()
	for _, tp := range partitions {
		delete(c.partitions, tp)
	}
	c.mu.Unlock()
}

// ensure returns the progress entry for the partition, creating it with the
// given starting offset when the partition is first seen.
func (c *Coordinator) ensure(tp kafka.TopicPartition, firstOffset int64) *progress {
	p, ok := c.partitions[tp]
	if !ok {
		p = &progress{
			next:          firstOffset,
			pending:       make(map[int64]int32),
			lastCommitted: -1,
		}
		c.partitions[tp] = p
	}
	return p
}
