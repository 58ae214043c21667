//go:build unit

package commit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/streambind/commit"
	"github.com/hugolhafner/streambind/kafka"
	mockkafka "github.com/hugolhafner/streambind/kafka/mock"
	"github.com/hugolhafner/streambind/receiver"
	"github.com/stretchr/testify/require"
)

func batchOf(topic string, partition int32, firstOffset int64, count int) *receiver.PollBatch {
	tp := kafka.TopicPartition{Topic: topic, Partition: partition}

	records := make([]kafka.ConsumerRecord, count)
	for i := range records {
		records[i] = kafka.ConsumerRecord{
			Topic:     topic,
			Partition: partition,
			Offset:    firstOffset + int64(i),
			Timestamp: time.Now(),
		}
	}

	return &receiver.PollBatch{Partition: tp, Records: records}
}

func TestTrackReturnsHandlesInManualMode(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	c := commit.NewCoordinator(client, commit.Manual)

	batch := batchOf("orders", 0, 0, 3)
	handles := c.Track(batch)

	require.Len(t, handles, 3)
	for i, h := range handles {
		require.Equal(t, int64(i), h.Offset())
		require.Equal(t, batch.Partition, h.TopicPartition())
	}
}

func TestTrackReturnsNilOutsideManualMode(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()

	require.Nil(t, commit.NewCoordinator(client, commit.AtMostOnce).Track(batchOf("orders", 0, 0, 3)))
	require.Nil(t, commit.NewCoordinator(client, commit.AutoCommit).Track(batchOf("orders", 0, 0, 3)))
}

func TestFlushCommitsContiguousAcknowledgments(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	c := commit.NewCoordinator(client, commit.Manual)
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	handles := c.Track(batchOf("orders", 0, 0, 3))
	for _, h := range handles {
		h.Acknowledge()
	}

	require.NoError(t, c.Flush(context.Background()))
	client.AssertCommitted(t, tp, 3)
}

func TestFlushSkipsPastOutOfOrderGap(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	c := commit.NewCoordinator(client, commit.Manual)
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	handles := c.Track(batchOf("orders", 0, 0, 3))

	// offset 2 acknowledged first, gap at 0..1 keeps it pending
	handles[2].Acknowledge()
	require.NoError(t, c.Flush(context.Background()))
	client.AssertNothingCommitted(t, tp)

	handles[0].Acknowledge()
	require.NoError(t, c.Flush(context.Background()))
	client.AssertCommitted(t, tp, 1)

	// closing the gap releases the pending acknowledgment too
	handles[1].Acknowledge()
	require.NoError(t, c.Flush(context.Background()))
	client.AssertCommitted(t, tp, 3)

	client.AssertCommitsNonDecreasing(t, tp)
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	c := commit.NewCoordinator(client, commit.Manual)
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	handles := c.Track(batchOf("orders", 0, 0, 2))
	handles[0].Acknowledge()
	handles[0].Acknowledge()
	handles[0].Acknowledge()

	require.NoError(t, c.Flush(context.Background()))
	client.AssertCommitted(t, tp, 1)
}

func TestCommitEqualsAcknowledgeThenCommit(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	c := commit.NewCoordinator(client, commit.Manual)
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	handles := c.Track(batchOf("orders", 0, 0, 2))

	handles[0].Acknowledge()
	require.NoError(t, handles[0].Commit(context.Background()))
	client.AssertCommitted(t, tp, 1)
	require.Len(t, client.CommitHistory(tp), 1)

	// a second Commit on the same handle is a no-op
	require.NoError(t, handles[0].Commit(context.Background()))
	require.Len(t, client.CommitHistory(tp), 1)

	require.NoError(t, handles[1].Commit(context.Background()))
	client.AssertCommitted(t, tp, 2)
}

func TestCommitFlushesOtherAcknowledgedPartitions(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	c := commit.NewCoordinator(client, commit.Manual)

	orders := c.Track(batchOf("orders", 0, 0, 1))
	invoices := c.Track(batchOf("invoices", 2, 0, 1))

	invoices[0].Acknowledge()
	require.NoError(t, orders[0].Commit(context.Background()))

	client.AssertCommitted(t, kafka.TopicPartition{Topic: "orders", Partition: 0}, 1)
	client.AssertCommitted(t, kafka.TopicPartition{Topic: "invoices", Partition: 2}, 1)
}

func TestPreCommitAdvancesWholeBatch(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	c := commit.NewCoordinator(client, commit.AtMostOnce)
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	require.NoError(t, c.PreCommit(context.Background(), batchOf("orders", 0, 5, 4)))
	client.AssertCommitted(t, tp, 9)
}

func TestCompleteBatchNeverRegresses(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	c := commit.NewCoordinator(client, commit.AutoCommit)
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	require.NoError(t, c.CompleteBatch(context.Background(), batchOf("orders", 0, 0, 10)))
	client.AssertCommitted(t, tp, 10)

	// a replayed earlier batch must not move the position backwards
	require.NoError(t, c.CompleteBatch(context.Background(), batchOf("orders", 0, 0, 5)))
	client.AssertCommitted(t, tp, 10)
	require.Len(t, client.CommitHistory(tp), 1)
}

func TestCommitRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	failures := 2
	client := mockkafka.NewClient(
		mockkafka.WithCommitErrorFunc(
			func() error {
				if failures > 0 {
					failures--
					return errors.New("broker unavailable")
				}
				return nil
			},
		),
	)

	c := commit.NewCoordinator(
		client, commit.AtMostOnce,
		commit.WithMaxCommitAttempts(5),
		commit.WithCommitBackoff(backoff.NewFixed(time.Millisecond)),
	)
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	require.NoError(t, c.PreCommit(context.Background(), batchOf("orders", 0, 0, 1)))
	client.AssertCommitted(t, tp, 1)
}

func TestCommitRetriesExhausted(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient(mockkafka.WithCommitError(errors.New("broker unavailable")))

	c := commit.NewCoordinator(
		client, commit.AtMostOnce,
		commit.WithMaxCommitAttempts(3),
		commit.WithCommitBackoff(backoff.NewFixed(time.Millisecond)),
	)

	err := c.PreCommit(context.Background(), batchOf("orders", 0, 0, 1))
	require.ErrorIs(t, err, commit.ErrCommitRetriesExhausted)
}

func TestOnRevokedFlushesAcknowledgedProgress(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	c := commit.NewCoordinator(client, commit.Manual)
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	handles := c.Track(batchOf("orders", 0, 0, 3))
	handles[0].Acknowledge()
	handles[1].Acknowledge()

	c.OnRevoked([]kafka.TopicPartition{tp})
	client.AssertCommitted(t, tp, 2)
}

func TestCommitRequestsFiresOnCountThreshold(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	c := commit.NewCoordinator(
		client, commit.Manual,
		commit.WithTriggerOptions(commit.WithMaxCount(3), commit.WithMaxInterval(time.Hour)),
	)

	handles := c.Track(batchOf("orders", 0, 0, 5))

	handles[0].Acknowledge()
	handles[1].Acknowledge()
	select {
	case <-c.CommitRequests():
		t.Fatal("trigger fired below the count threshold")
	default:
	}

	handles[2].Acknowledge()
	select {
	case <-c.CommitRequests():
	case <-time.After(time.Second):
		t.Fatal("trigger did not fire at the count threshold")
	}
}
