package commit

import (
	"sync"
	"time"
)

type TriggerConfig struct {
	MaxInterval time.Duration
	MaxCount    int
}

type TriggerOption func(*TriggerConfig)

func WithMaxInterval(d time.Duration) TriggerOption {
	return func(cfg *TriggerConfig) {
		cfg.MaxInterval = d
	}
}

func WithMaxCount(c int) TriggerOption {
	return func(cfg *TriggerConfig) {
		cfg.MaxCount = c
	}
}

// Trigger decides when acknowledged positions are flushed to the broker:
// after MaxCount acknowledgments or once MaxInterval has elapsed since the
// last flush, whichever comes first. The signal channel has capacity one so
// an unserviced request is never duplicated.
type Trigger struct {
	c          TriggerConfig
	mu         sync.Mutex
	count      int
	lastCommit time.Time
	channel    chan struct{}
}

func NewTrigger(opts ...TriggerOption) *Trigger {
	cfg := TriggerConfig{
		MaxInterval: 5 * time.Second,
		MaxCount:    100,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return &Trigger{
		c:          cfg,
		count:      0,
		lastCommit: time.Now(),
		channel:    make(chan struct{}, 1),
	}
}

// RecordAcked notes count newly acknowledged records and fires the trigger
// when a threshold is crossed.
func (t *Trigger) RecordAcked(count int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.count += count
	if t.count > 0 && (t.count >= t.c.MaxCount || time.Since(t.lastCommit) >= t.c.MaxInterval) {
		select {
		case t.channel <- struct{}{}:
		default:
		}

		t.count = 0
		t.lastCommit = time.Now()
	}
}

// Reset clears the pending count, marking a flush that happened for another
// reason (explicit commit, revoke, shutdown).
func (t *Trigger) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.count = 0
	t.lastCommit = time.Now()
}

func (t *Trigger) C() chan struct{} {
	return t.channel
}
