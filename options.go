package streambind

import (
	"errors"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/streambind/commit"
	"github.com/hugolhafner/streambind/logger"
	streamotel "github.com/hugolhafner/streambind/otel"
	"github.com/hugolhafner/streambind/sender"
)

// ErrConflictingModes is returned when a binding enables both at-most-once
// and auto-commit delivery.
var ErrConflictingModes = errors.New("at-most-once and auto-commit modes are mutually exclusive")

type Config struct {
	// Concurrency is the number of parallel receive pipelines. Fixed for the
	// binding's lifetime.
	Concurrency int

	// Multiplex combines a comma-delimited destination into one subscription.
	Multiplex bool

	// DestinationIsPattern treats the destination as a regular expression.
	DestinationIsPattern bool

	// AtMostOnce commits offsets before records reach the application.
	AtMostOnce bool

	// AutoCommit commits a batch's offsets after the application has
	// processed the whole batch.
	AutoCommit bool

	CommitInterval    time.Duration
	CommitCount       int
	MaxCommitAttempts int
	CommitBackoff     backoff.Backoff

	MaxPollAttempts int
	PollBackoff     backoff.Backoff

	// Results receives a sender.Result per outgoing send. Nil discards them.
	Results chan<- sender.Result

	CorrelationHeader string

	Logger    logger.Logger
	Telemetry *streamotel.Telemetry
}

func defaultBindingConfig() Config {
	return Config{
		Concurrency:       1,
		CommitInterval:    5 * time.Second,
		CommitCount:       100,
		MaxCommitAttempts: 5,
		MaxPollAttempts:   10,
		CorrelationHeader: sender.DefaultCorrelationHeader,
		Logger:            logger.NewNoopLogger(),
		Telemetry:         streamotel.Noop(),
	}
}

// mode resolves the binding's commit mode from the two flags. Both set is a
// configuration error, reported before any record flows.
func (c Config) mode() (commit.Mode, error) {
	switch {
	case c.AtMostOnce && c.AutoCommit:
		return 0, ErrConflictingModes
	case c.AtMostOnce:
		return commit.AtMostOnce, nil
	case c.AutoCommit:
		return commit.AutoCommit, nil
	default:
		return commit.Manual, nil
	}
}

type Option func(*Config)

func WithConcurrency(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Concurrency = n
		}
	}
}

func WithMultiplex() Option {
	return func(c *Config) {
		c.Multiplex = true
	}
}

func WithPatternDestination() Option {
	return func(c *Config) {
		c.DestinationIsPattern = true
	}
}

func WithAtMostOnce() Option {
	return func(c *Config) {
		c.AtMostOnce = true
	}
}

func WithAutoCommit() Option {
	return func(c *Config) {
		c.AutoCommit = true
	}
}

func WithCommitInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.CommitInterval = d
		}
	}
}

func WithCommitCount(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.CommitCount = n
		}
	}
}

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

// WithResultChannel routes sender results to the given sink.
func WithResultChannel(ch chan<- sender.Result) Option {
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
