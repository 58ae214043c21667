// Package config loads binding configuration from a yaml file merged with
// environment variables (prefix STREAMBIND__, delimiter __).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/hugolhafner/streambind"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "STREAMBIND__"

type CommitConfig struct {
	Interval    time.Duration `koanf:"interval"`
	Count       int           `koanf:"count"`
	MaxAttempts int           `koanf:"max_attempts"`
}

type Binding struct {
	Destination string   `koanf:"destination"`
	Group       string   `koanf:"group"`
	Brokers     []string `koanf:"brokers"`

	Concurrency          int  `koanf:"concurrency"`
	Multiplex            bool `koanf:"multiplex"`
	DestinationIsPattern bool `koanf:"destination_is_pattern"`
	ReactiveAtmostOnce   bool `koanf:"reactive_atmost_once"`
	ReactiveAutoCommit   bool `koanf:"reactive_auto_commit"`

	CorrelationHeader string       `koanf:"correlation_header"`
	Commit            CommitConfig `koanf:"commit"`
}

// Load merges the yaml file at path (if present) with STREAMBIND__ env vars.
func Load(path string) (Binding, error) {
	k := koanf.New(".")

	// a missing file is fine, env vars alone can configure a binding
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Binding{}, fmt.Errorf("load config file %q: %w", path, err)
		}
	}

	_ = k.Load(env.Provider(envPrefix, "__", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)

	var cfg Binding
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func applyDefaults(c *Binding) {
	if c.Concurrency == 0 {
		c.Concurrency = 1
	}
	if len(c.Brokers) == 0 {
		c.Brokers = []string{"localhost:9092"}
	}
	if c.Commit.Interval == 0 {
		c.Commit.Interval = 5 * time.Second
	}
	if c.Commit.Count == 0 {
		c.Commit.Count = 100
	}
	if c.Commit.MaxAttempts == 0 {
		c.Commit.MaxAttempts = 5
	}
}

func (c Binding) Validate() error {
	if strings.TrimSpace(c.Destination) == "" {
		return errors.New("destination is required")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.ReactiveAtmostOnce && c.ReactiveAutoCommit {
		return streambind.ErrConflictingModes
	}
	return nil
}

// Options translates the loaded configuration into binding options.
func (c Binding) Options() []streambind.Option {
	opts := []streambind.Option{
		streambind.WithConcurrency(c.Concurrency),
		streambind.WithCommitInterval(c.Commit.Interval),
		streambind.WithCommitCount(c.Commit.Count),
		streambind.WithMaxCommitAttempts(c.Commit.MaxAttempts),
	}

	if c.Multiplex {
		opts = append(opts, streambind.WithMultiplex())
	}
	if c.DestinationIsPattern {
		opts = append(opts, streambind.WithPatternDestination())
	}
	if c.ReactiveAtmostOnce {
		opts = append(opts, streambind.WithAtMostOnce())
	}
	if c.ReactiveAutoCommit {
		opts = append(opts, streambind.WithAutoCommit())
	}
	if c.CorrelationHeader != "" {
		opts = append(opts, streambind.WithCorrelationHeader(c.CorrelationHeader))
	}

	return opts
}
