// Package fanout spawns N independent receive pipelines for one binding and
// manages them as a single fail-fast lifecycle unit. Partition assignment
// across pipelines is delegated to the broker's consumer-group rebalancing;
// pipeline outputs stay separate so downstream parallelism is preserved.
package fanout

import (
	"context"
	"fmt"
	"sync"

	"github.com/hugolhafner/streambind/commit"
	"github.com/hugolhafner/streambind/kafka"
	"github.com/hugolhafner/streambind/logger"
	streamotel "github.com/hugolhafner/streambind/otel"
	"github.com/hugolhafner/streambind/receiver"
	"golang.org/x/sync/errgroup"
)

// ConsumerFactory creates one consumer-group member per pipeline. Each
// pipeline needs its own broker client so the group protocol can assign it a
// disjoint partition subset.
type ConsumerFactory func() (kafka.Consumer, error)

type GroupConfig struct {
	Concurrency     int
	Mode            commit.Mode
	ReceiverOptions []receiver.Option
	CommitOptions   []commit.Option
	Logger          logger.Logger
	Telemetry       *streamotel.Telemetry
}

func defaultGroupConfig() GroupConfig {
	return GroupConfig{
		Concurrency: 1,
		Mode:        commit.Manual,
		Logger:      logger.NewNoopLogger(),
		Telemetry:   streamotel.Noop(),
	}
}

type GroupOption func(*GroupConfig)

func WithConcurrency(n int) GroupOption {
	return func(c *GroupConfig) {
		if n > 0 {
			c.Concurrency = n
		}
	}
}

func WithMode(m commit.Mode) GroupOption {
	return func(c *GroupConfig) {
		c.Mode = m
	}
}

func WithReceiverOptions(opts ...receiver.Option) GroupOption {
	return func(c *GroupConfig) {
		c.ReceiverOptions = append(c.ReceiverOptions, opts...)
	}
}

func WithCommitOptions(opts ...commit.Option) GroupOption {
	return func(c *GroupConfig) {
		c.CommitOptions = append(c.CommitOptions, opts...)
	}
}

func WithLogger(l logger.Logger) GroupOption {
	return func(c *GroupConfig) {
		c.Logger = l
	}
}

func WithTelemetry(t *streamotel.Telemetry) GroupOption {
	return func(c *GroupConfig) {
		if t != nil {
			c.Telemetry = t
		}
	}
}

// Group is the set of N independent (receiver, coordinator) pipelines spawned
// for one binding. All pipelines start and stop together; a fatal error on
// any one cancels the rest. N is fixed at spawn; changing it requires a
// restart.
type Group struct {
	config    GroupConfig
	sub       kafka.Subscription
	pipelines []*Pipeline
	logger    logger.Logger

	mu      sync.Mutex
	running bool

	stopCh    chan struct{}
	closeOnce sync.Once
}

// Spawn builds the group's pipelines, creating one consumer per pipeline.
// No broker subscription is opened until Run.
func Spawn(factory ConsumerFactory, sub kafka.Subscription, opts ...GroupOption) (*Group, error) {
	config := defaultGroupConfig()
	for _, opt := range opts {
		opt(&config)
	}

	l := config.Logger.With("component", "fanout", "mode", config.Mode.String())

	g := &Group{
		config:    config,
		sub:       sub,
		pipelines: make([]*Pipeline, 0, config.Concurrency),
		logger:    l,
		stopCh:    make(chan struct{}),
	}

	for i := 0; i < config.Concurrency; i++ {
		consumer, err := factory()
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("create consumer for pipeline %d: %w", i, err)
		}

		coordinator := commit.NewCoordinator(
			consumer, config.Mode,
			append([]commit.Option{
				commit.WithLogger(l),
				commit.WithTelemetry(config.Telemetry),
			}, config.CommitOptions...)...,
		)

		rcv := receiver.New(
			consumer, sub,
			append([]receiver.Option{
				receiver.WithLogger(l),
				receiver.WithTelemetry(config.Telemetry),
			}, config.ReceiverOptions...)...,
		)

		g.pipelines = append(g.pipelines, newPipeline(rcv, coordinator, i, l))
	}

	return g, nil
}

// Streams returns the N externally-visible output streams, one per pipeline,
// never merged.
func (g *Group) Streams() []*Stream {
	streams := make([]*Stream, len(g.pipelines))
	for i, p := range g.pipelines {
		streams[i] = p.Stream()
	}
	return streams
}

// Run opens every pipeline's subscription and blocks until all pipelines
// stop. The first fatal pipeline error cancels the whole group and is
// returned.
func (g *Group) Run(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return fmt.Errorf("group already running")
	}
	g.running = true
	g.mu.Unlock()

	defer g.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Close unblocks pipelines stuck delivering to an abandoned stream
	go func() {
		select {
		case <-g.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	eg, runCtx := errgroup.WithContext(ctx)

	tel := g.config.Telemetry
	tel.PipelinesActive.Add(ctx, int64(len(g.pipelines)))
	defer tel.PipelinesActive.Add(context.Background(), -int64(len(g.pipelines)))

	for _, p := range g.pipelines {
		// the coordinator doubles as the rebalance callback so revoked
		// partitions are flushed before reassignment
		if err := p.receiver.Open(runCtx, p.coordinator); err != nil {
			return fmt.Errorf("open pipeline: %w", err)
		}
	}

	g.logger.Info("Fanout group started", "pipelines", len(g.pipelines), "subscription", g.sub.String())

	for _, p := range g.pipelines {
		eg.Go(func() error {
			return p.run(runCtx)
		})
	}

	err := eg.Wait()
	if err != nil {
		g.logger.Error("Fanout group stopped with fatal error", "error", err)
		return err
	}

	g.logger.Info("Fanout group stopped")
	return nil
}

// Close stops every pipeline and releases their broker subscriptions.
// Idempotent.
func (g *Group) Close() {
	g.closeOnce.Do(func() {
		close(g.stopCh)
		for _, p := range g.pipelines {
			p.receiver.Close()
		}
	})
}
