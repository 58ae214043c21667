// Package sender turns outgoing record streams into acknowledged sends,
// correlating each asynchronous broker result back to a caller-supplied
// token.
package sender

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hugolhafner/streambind/kafka"
	"github.com/hugolhafner/streambind/logger"
	streamotel "github.com/hugolhafner/streambind/otel"
	"go.opentelemetry.io/otel/metric"
)

// DefaultCorrelationHeader is the record header consulted for a correlation
// token when the caller does not supply one explicitly.
const DefaultCorrelationHeader = "correlationId"

// ErrClosed is returned by Send after the pipeline has been closed.
var ErrClosed = errors.New("sender pipeline is closed")

type Config struct {
	// Results receives one Result per send. Nil discards results.
	Results chan<- Result

	// CorrelationHeader names the header holding the correlation token when
	// none is passed to Send.
	CorrelationHeader string

	Logger    logger.Logger
	Telemetry *streamotel.Telemetry
}

func defaultConfig() Config {
	return Config{
		CorrelationHeader: DefaultCorrelationHeader,
		Logger:            logger.NewNoopLogger(),
		Telemetry:         streamotel.Noop(),
	}
}

type Option func(*Config)

// WithResultChannel routes every send's Result to the given sink.
func WithResultChannel(ch chan<- Result) Option {
	return func(c *Config) {
		c.Results = ch
	}
}

func WithCorrelationHeader(name string) Option {
	return func(c *Config) {
		if name != "" {
			c.CorrelationHeader = name
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

// Pipeline submits records to the broker producer without blocking the
// caller and surfaces each send's outcome as a correlated Result. Token
// uniqueness for in-flight sends is the caller's responsibility; the
// pipeline never deduplicates.
type Pipeline struct {
	producer kafka.Producer
	config   Config
	logger   logger.Logger

	inflight sync.WaitGroup

	mu     sync.Mutex
	closed bool
	stopCh chan struct{}
}

func New(producer kafka.Producer, opts ...Option) *Pipeline {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &Pipeline{
		producer: producer,
		config:   config,
		logger:   config.Logger.With("component", "sender"),
		stopCh:   make(chan struct{}),
	}
}

// Send submits the record asynchronously. The correlation token is resolved
// in order: the token argument, the record's correlation header, then a
// generated id (correlation is best-effort at that point). Trace context is
// injected into the outgoing headers.
func (p *Pipeline) Send(ctx context.Context, rec kafka.ProducerRecord, token any) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.inflight.Add(1)
	p.mu.Unlock()

	tel := p.config.Telemetry

	if token == nil {
		if v, ok := kafka.HeaderValue(rec.Headers, p.config.CorrelationHeader); ok {
			token = string(v)
		} else {
			token = uuid.NewString()
		}
	}

	tel.Propagator.Inject(ctx, streamotel.NewKafkaHeadersCarrier(&rec.Headers))

	start := time.Now()
	p.producer.SendAsync(ctx, rec, func(ack kafka.Ack, err error) {
		defer p.inflight.Done()

		tel.SendDuration.Record(ctx, time.Since(start).Seconds())

		result := Result{Token: token}
		if err != nil {
			result.Err = err
			tel.RecordsSent.Add(
				ctx, 1, metric.WithAttributes(
					streamotel.AttrTopic.String(rec.Topic),
					streamotel.AttrOutcome.String(streamotel.OutcomeError),
				),
			)
			p.logger.Warn("Send failed", "topic", rec.Topic, "token", token, "error", err)
		} else {
			result.Ack = ack
			tel.RecordsSent.Add(
				ctx, 1, metric.WithAttributes(
					streamotel.AttrTopic.String(rec.Topic),
					streamotel.AttrOutcome.String(streamotel.OutcomeSuccess),
				),
			)
			p.logger.Debug(
				"Send acknowledged",
				"topic", ack.Topic, "partition", ack.Partition, "offset", ack.Offset, "token", token,
			)
		}

		p.deliver(result)
	})

	return nil
}

// deliver routes the result to the configured sink. With no sink, results
// are discarded. Delivery never blocks the producer's completion goroutine:
// a full sink is serviced from a separate goroutine until close.
func (p *Pipeline) deliver(result Result) {
	if p.config.Results == nil {
		return
	}

	select {
	case p.config.Results <- result:
		return
	default:
	}

	go func() {
		select {
		case p.config.Results <- result:
		case <-p.stopCh:
			p.logger.Debug("Dropping result on close", "token", result.Token)
		}
	}()
}

// Flush blocks until every in-flight send has completed and the producer has
// flushed its buffers.
func (p *Pipeline) Flush(ctx context.Context) error {
	if err := p.producer.Flush(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects further sends and releases undeliverable results. Idempotent.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.stopCh)
}
