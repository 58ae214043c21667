package mockkafka

import (
	"time"
)

// Option is a functional option for configuring a mock Client.
type Option func(*Client)

// WithMaxPollRecords sets the maximum number of records returned per Poll call.
// Default is 10.
func WithMaxPollRecords(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPollRecords = n
		}
	}
}

// WithPollDelay adds an artificial delay to Poll calls.
// This can be useful for testing timeout behavior or rate limiting.
func WithPollDelay(d time.Duration) Option {
	return func(c *Client) {
		c.pollDelay = d
	}
}

// WithSendError configures an error to be returned by all SendAsync calls.
func WithSendError(err error) Option {
	return func(c *Client) {
		c.sendErr = func(string, []byte, []byte) error { return err }
	}
}

// WithSendErrorFunc configures a per-record error hook for SendAsync.
func WithSendErrorFunc(fn func(topic string, key, value []byte) error) Option {
	return func(c *Client) {
		c.sendErr = fn
	}
}

// WithPollError configures an error to be returned by all Poll calls.
func WithPollError(err error) Option {
	return func(c *Client) {
		c.pollErr = func() error { return err }
	}
}

// WithPollErrorFunc configures a per-call error hook for Poll, letting tests
// fail a bounded number of polls before recovering.
func WithPollErrorFunc(fn func() error) Option {
	return func(c *Client) {
		c.pollErr = fn
	}
}

// WithCommitError configures an error to be returned by all CommitOffsets calls.
func WithCommitError(err error) Option {
	return func(c *Client) {
		c.commitErr = func() error { return err }
	}
}

// WithCommitErrorFunc configures a per-call error hook for CommitOffsets.
func WithCommitErrorFunc(fn func() error) Option {
	return func(c *Client) {
		c.commitErr = fn
	}
}

// WithPingError configures an error to be returned by Ping.
func WithPingError(err error) Option {
	return func(c *Client) {
		c.pingErr = err
	}
}
