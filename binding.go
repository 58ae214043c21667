package streambind

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hugolhafner/streambind/commit"
	"github.com/hugolhafner/streambind/fanout"
	"github.com/hugolhafner/streambind/kafka"
	"github.com/hugolhafner/streambind/logger"
	"github.com/hugolhafner/streambind/receiver"
	"github.com/hugolhafner/streambind/router"
	"github.com/hugolhafner/streambind/sender"
)

const Version = "v0.1.0" // x-release-please-version

var (
	ErrAlreadyRunning = errors.New("binding is already running")
	ErrClosed         = errors.New("binding is closed")
)

// Binding connects one destination to the application: it resolves the
// destination into a subscription, spawns the configured number of receive
// pipelines, and exposes their streams plus a correlated sender for outputs.
type Binding struct {
	destination string
	sub         kafka.Subscription
	config      Config

	group  *fanout.Group
	sender *sender.Pipeline
	logger logger.Logger

	mu        sync.Mutex
	running   bool
	closeOnce sync.Once
	closedCh  chan struct{}
}

// NewBinding validates the configuration and builds the binding's pipelines.
// Configuration errors (invalid pattern, unmultiplexed topic list,
// conflicting commit modes) are reported here, before any record flows. Use
// router.Split to create one binding per topic when multiplexing is off.
func NewBinding(
	destination string,
	consumers fanout.ConsumerFactory,
	producer kafka.Producer,
	opts ...Option,
) (*Binding, error) {
	config := defaultBindingConfig()
	for _, opt := range opts {
		opt(&config)
	}

	mode, err := config.mode()
	if err != nil {
		return nil, err
	}

	sub, err := router.Resolve(destination, router.Options{
		Multiplex: config.Multiplex,
		Pattern:   config.DestinationIsPattern,
	})
	if err != nil {
		return nil, err
	}

	l := config.Logger.With("binding", destination)

	receiverOpts := []receiver.Option{
		receiver.WithMaxPollAttempts(config.MaxPollAttempts),
	}
	if config.PollBackoff != nil {
		receiverOpts = append(receiverOpts, receiver.WithPollBackoff(config.PollBackoff))
	}

	commitOpts := []commit.Option{
		commit.WithMaxCommitAttempts(config.MaxCommitAttempts),
		commit.WithTriggerOptions(
			commit.WithMaxInterval(config.CommitInterval),
			commit.WithMaxCount(config.CommitCount),
		),
	}
	if config.CommitBackoff != nil {
		commitOpts = append(commitOpts, commit.WithCommitBackoff(config.CommitBackoff))
	}

	group, err := fanout.Spawn(
		consumers, sub,
		fanout.WithConcurrency(config.Concurrency),
		fanout.WithMode(mode),
		fanout.WithLogger(l),
		fanout.WithTelemetry(config.Telemetry),
		fanout.WithReceiverOptions(receiverOpts...),
		fanout.WithCommitOptions(commitOpts...),
	)
	if err != nil {
		return nil, fmt.Errorf("spawn pipelines: %w", err)
	}

	var snd *sender.Pipeline
	if producer != nil {
		snd = sender.New(
			producer,
			sender.WithResultChannel(config.Results),
			sender.WithCorrelationHeader(config.CorrelationHeader),
			sender.WithLogger(l),
			sender.WithTelemetry(config.Telemetry),
		)
	}

	return &Binding{
		destination: destination,
		sub:         sub,
		config:      config,
		group:       group,
		sender:      snd,
		logger:      l,
		closedCh:    make(chan struct{}),
	}, nil
}

// Destination returns the destination specification the binding was created
// with.
func (b *Binding) Destination() string {
	return b.destination
}

// Subscription returns the resolved subscription target.
func (b *Binding) Subscription() kafka.Subscription {
	return b.sub
}

// Streams returns the binding's receive streams, one per pipeline. Streams
// are never merged; downstream parallelism matches the concurrency setting.
func (b *Binding) Streams() []*fanout.Stream {
	return b.group.Streams()
}

// Sender returns the binding's output pipeline, nil when the binding was
// created without a producer.
func (b *Binding) Sender() *sender.Pipeline {
	return b.sender
}

// Run opens the broker subscriptions and blocks until the binding stops. A
// fatal error on any pipeline stops all of them and is returned, so the host
// can surface it through its own lifecycle reporting.
func (b *Binding) Run(ctx context.Context) error {
	if err := b.startRunning(); err != nil {
		return err
	}
	defer b.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-b.closedCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	err := b.group.Run(runCtx)

	if b.sender != nil {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer flushCancel()

		if flushErr := b.sender.Flush(flushCtx); flushErr != nil {
			b.logger.Error("Failed to flush sender during shutdown", "error", flushErr)
		}
	}

	return err
}

func (b *Binding) startRunning() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.closedCh:
		return ErrClosed
	default:
	}

	if b.running {
		return ErrAlreadyRunning
	}
	b.running = true

	return nil
}

// Close stops every pipeline and the sender. Idempotent.
func (b *Binding) Close() {
	b.closeOnce.Do(func() {
		close(b.closedCh)
		b.group.Close()
		if b.sender != nil {
			b.sender.Close()
		}

		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	})
}
