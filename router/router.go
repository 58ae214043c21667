// Package router resolves a binding's destination specification into the
// concrete subscription a consumer opens: a literal topic, a comma-delimited
// set, or a pattern matched against topic names.
package router

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hugolhafner/streambind/kafka"
)

var (
	// ErrEmptyDestination is returned when the destination string contains no topics.
	ErrEmptyDestination = errors.New("destination is empty")

	// ErrMultiplexDisabled is returned when a comma-delimited destination is
	// resolved without multiplexing. The caller must create one binding per
	// topic; Split returns the individual topics.
	ErrMultiplexDisabled = errors.New("multiple destinations require multiplex or one binding per topic")
)

type Options struct {
	// Multiplex combines a comma-delimited destination into one subscription
	// covering all listed topics.
	Multiplex bool

	// Pattern treats the destination string as a regular expression matched
	// against topic names, at subscribe time and as new topics appear.
	Pattern bool
}

// Resolve turns a destination specification into a Subscription. An invalid
// pattern or an unmultiplexed topic list is a configuration error, reported
// before any record flows.
func Resolve(destination string, opts Options) (kafka.Subscription, error) {
	if opts.Pattern {
		if strings.TrimSpace(destination) == "" {
			return kafka.Subscription{}, ErrEmptyDestination
		}

		pattern, err := regexp.Compile(destination)
		if err != nil {
			return kafka.Subscription{}, fmt.Errorf("invalid destination pattern %q: %w", destination, err)
		}

		return kafka.Subscription{Pattern: pattern}, nil
	}

	topics := Split(destination)
	if len(topics) == 0 {
		return kafka.Subscription{}, ErrEmptyDestination
	}

	if len(topics) > 1 && !opts.Multiplex {
		return kafka.Subscription{}, fmt.Errorf("destination %q: %w", destination, ErrMultiplexDisabled)
	}

	return kafka.Subscription{Topics: topics}, nil
}

// Split returns the individual topics of a comma-delimited destination,
// trimmed, with empty entries dropped.
func Split(destination string) []string {
	parts := strings.Split(destination, ",")

	topics := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			topics = append(topics, p)
		}
	}
	return topics
}
