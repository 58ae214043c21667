// Package receiver turns one broker subscription into a lazy,
// backpressure-respecting stream of per-partition record batches.
package receiver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/streambind/kafka"
	"github.com/hugolhafner/streambind/logger"
	streamotel "github.com/hugolhafner/streambind/otel"
	"go.opentelemetry.io/otel/metric"
)

type Config struct {
	// MaxPollAttempts bounds consecutive poll failures before the stream
	// terminates with a fatal error.
	MaxPollAttempts int
	PollBackoff     backoff.Backoff
	Logger          logger.Logger
	Telemetry       *streamotel.Telemetry
}

func defaultConfig() Config {
	return Config{
		MaxPollAttempts: 10,
		PollBackoff:     backoff.NewFixed(time.Second),
		Logger:          logger.NewNoopLogger(),
		Telemetry:       streamotel.Noop(),
	}
}

type Option func(*Config)

func WithMaxPollAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxPollAttempts = n
		}
	}
}

func WithPollBackoff(b backoff.Backoff) Option {
	return func(c *Config) {
		if b != nil {
			c.PollBackoff = b
		}
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

// Receiver wraps one consumer subscription and produces PollBatches over a
// capacity-one channel: the poll loop blocks until the downstream has taken
// the previous batch, so no unconsumed batch ever buffers up internally.
type Receiver struct {
	consumer kafka.Consumer
	sub      kafka.Subscription
	config   Config
	logger   logger.Logger

	batches chan *PollBatch
	stopCh  chan struct{}
	doneCh  chan struct{}

	mu     sync.Mutex
	opened bool
	err    error

	closeOnce sync.Once
}

func New(consumer kafka.Consumer, sub kafka.Subscription, opts ...Option) *Receiver {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &Receiver{
		consumer: consumer,
		sub:      sub,
		config:   config,
		logger:   config.Logger.With("component", "receiver", "subscription", sub.String()),
		batches:  make(chan *PollBatch, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Open subscribes the consumer and starts the poll loop. The rebalance
// callback is forwarded to the broker client so the owner can react to
// partition assignment changes.
func (r *Receiver) Open(ctx context.Context, rebalanceCb kafka.RebalanceCallback) error {
	r.mu.Lock()
	if r.opened {
		r.mu.Unlock()
		return fmt.Errorf("receiver already open")
	}
	r.opened = true
	r.mu.Unlock()

	if err := r.consumer.Subscribe(r.sub, rebalanceCb); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.sub, err)
	}

	go r.run(ctx)

	r.logger.Debug("Receiver opened")
	return nil
}

// Batches returns the stream of per-partition batches. The channel closes
// when the receiver terminates; Err reports whether it closed fatally.
func (r *Receiver) Batches() <-chan *PollBatch {
	return r.batches
}

// Err returns the fatal error that terminated the stream, if any.
func (r *Receiver) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done is closed once the poll loop has exited.
func (r *Receiver) Done() <-chan struct{} {
	return r.doneCh
}

// Close stops the poll loop and releases the broker subscription. Idempotent.
func (r *Receiver) Close() {
	r.closeOnce.Do(func() {
		close(r.stopCh)
		r.consumer.Close()
	})
}

func (r *Receiver) run(ctx context.Context) {
	defer close(r.doneCh)
	defer close(r.batches)

	tel := r.config.Telemetry

	var attempts uint = 0
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("Context cancelled, stopping poll loop")
			return
		case <-r.stopCh:
			r.logger.Debug("Receiver closed, stopping poll loop")
			return
		default:
		}

		pollStart := time.Now()
		records, err := r.consumer.Poll(ctx)

		if err != nil {
			tel.PollDuration.Record(
				ctx, time.Since(pollStart).Seconds(), metric.WithAttributes(
					streamotel.AttrOutcome.String(streamotel.OutcomeError),
				),
			)

			attempts++
			if attempts >= uint(r.config.MaxPollAttempts) {
				r.fail(fmt.Errorf("poll failed %d consecutive times: %w", attempts, err))
				return
			}

			r.logger.Warn("Poll error, backing off", "error", err, "attempt", attempts)
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-time.After(r.config.PollBackoff.Next(attempts)):
			}
			continue
		}

		attempts = 0

		tel.PollDuration.Record(
			ctx, time.Since(pollStart).Seconds(), metric.WithAttributes(
				streamotel.AttrOutcome.String(streamotel.OutcomeSuccess),
			),
		)

		if len(records) == 0 {
			continue
		}

		r.logger.Debug("Polled records", "count", len(records))

		for _, batch := range groupByPartition(records) {
			tel.RecordsReceived.Add(
				ctx, int64(batch.Len()), metric.WithAttributes(
					streamotel.AttrTopic.String(batch.Partition.Topic),
				),
			)

			select {
			case r.batches <- batch:
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			}
		}
	}
}

func (r *Receiver) fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()

	r.logger.Error("Receiver terminating", "error", err)
}
