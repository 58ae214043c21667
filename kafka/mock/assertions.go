package mockkafka

import (
	"bytes"
	"testing"

	"github.com/hugolhafner/streambind/kafka"
	"github.com/stretchr/testify/require"
)

// AssertProducedCount verifies that exactly n records were produced.
func (c *Client) AssertProducedCount(tb testing.TB, expected int) {
	tb.Helper()

	actual := len(c.ProducedRecords())
	require.Equal(tb, expected, actual, "expected %d records, got %d", expected, actual)
}

// AssertProduced verifies that a record with the given key and value was produced to the topic.
func (c *Client) AssertProduced(tb testing.TB, topic string, key, value []byte) {
	tb.Helper()

	for _, r := range c.ProducedRecordsForTopic(topic) {
		if bytes.Equal(r.Key, key) && bytes.Equal(r.Value, value) {
			return
		}
	}

	tb.Errorf(
		"expected record with key=%q value=%q to be produced to topic %q, but it was not found",
		string(key), string(value), topic,
	)
}

// AssertProducedString is a convenience method for string keys and values.
func (c *Client) AssertProducedString(tb testing.TB, topic, key, value string) {
	tb.Helper()
	c.AssertProduced(tb, topic, []byte(key), []byte(value))
}

// ProducedRecordsForTopic returns all records produced to the given topic.
func (c *Client) ProducedRecordsForTopic(topic string) []ProducedRecord {
	var records []ProducedRecord
	for _, r := range c.ProducedRecords() {
		if r.Topic == topic {
			records = append(records, r)
		}
	}
	return records
}

// AssertCommitted verifies that the partition's committed position equals the
// given next-offset-to-consume.
func (c *Client) AssertCommitted(tb testing.TB, tp kafka.TopicPartition, offset int64) {
	tb.Helper()

	committed, ok := c.CommittedOffset(tp)
	require.True(tb, ok, "expected an offset to be committed for %s", tp)
	require.Equal(tb, offset, committed.Offset, "committed offset mismatch for %s", tp)
}

// AssertNothingCommitted verifies that no offset was ever committed for the partition.
func (c *Client) AssertNothingCommitted(tb testing.TB, tp kafka.TopicPartition) {
	tb.Helper()

	committed, ok := c.CommittedOffset(tp)
	require.False(tb, ok, "expected no commit for %s, found offset %d", tp, committed.Offset)
}

// AssertCommitsNonDecreasing verifies that the sequence of offsets committed
// for the partition never went backwards.
func (c *Client) AssertCommitsNonDecreasing(tb testing.TB, tp kafka.TopicPartition) {
	tb.Helper()

	history := c.CommitHistory(tp)
	for i := 1; i < len(history); i++ {
		require.LessOrEqual(
			tb, history[i-1], history[i],
			"commit sequence for %s decreased at index %d: %v", tp, i, history,
		)
	}
}
