//go:build unit

package streambind_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/streambind"
	"github.com/hugolhafner/streambind/errorhandler"
	"github.com/hugolhafner/streambind/kafka"
	mockkafka "github.com/hugolhafner/streambind/kafka/mock"
	mocklogger "github.com/hugolhafner/streambind/logger/mock"
	"github.com/stretchr/testify/require"
)

func TestHandleAcknowledgesProcessedRecords(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient(mockkafka.WithPollDelay(time.Millisecond))
	client.AddRecords("orders", 0, mockkafka.SimpleRecords("a", "1", "b", "2", "c", "3")...)
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	b, err := streambind.NewBinding("orders", singleClientFactory(client), nil)
	require.NoError(t, err)

	runDone := make(chan error, 1)
	go func() { runDone <- b.Run(context.Background()) }()

	var processed atomic.Int32
	handleDone := make(chan error, 1)
	go func() {
		handleDone <- b.Handle(
			context.Background(),
			func(ctx context.Context, record kafka.ConsumerRecord) error {
				processed.Add(1)
				return nil
			},
			nil,
		)
	}()

	require.Eventually(
		t, func() bool { return processed.Load() == 3 },
		2*time.Second, 5*time.Millisecond,
	)

	b.Close()
	require.NoError(t, <-runDone)
	require.NoError(t, <-handleDone)

	client.AssertCommitted(t, tp, 3)
}

func TestHandleSkipsFailedRecordOnContinue(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient(mockkafka.WithPollDelay(time.Millisecond))
	client.AddRecords("orders", 0, mockkafka.SimpleRecords("a", "1", "poison", "2", "c", "3")...)
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	b, err := streambind.NewBinding("orders", singleClientFactory(client), nil)
	require.NoError(t, err)

	runDone := make(chan error, 1)
	go func() { runDone <- b.Run(context.Background()) }()

	var processed atomic.Int32
	handleDone := make(chan error, 1)
	go func() {
		handleDone <- b.Handle(
			context.Background(),
			func(ctx context.Context, record kafka.ConsumerRecord) error {
				processed.Add(1)
				if string(record.Key) == "poison" {
					return errors.New("cannot decode")
				}
				return nil
			},
			errorhandler.LogAndContinue(mocklogger.New()),
		)
	}()

	require.Eventually(
		t, func() bool { return processed.Load() == 3 },
		2*time.Second, 5*time.Millisecond,
	)

	b.Close()
	require.NoError(t, <-runDone)
	require.NoError(t, <-handleDone)

	// the skipped record's position still advanced
	client.AssertCommitted(t, tp, 3)
}

func TestHandleFailsTerminallyByDefault(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient(mockkafka.WithPollDelay(time.Millisecond))
	client.AddRecords("orders", 0, mockkafka.SimpleRecord("poison", "1"))

	b, err := streambind.NewBinding("orders", singleClientFactory(client), nil)
	require.NoError(t, err)
	defer b.Close()

	runDone := make(chan error, 1)
	go func() { runDone <- b.Run(context.Background()) }()

	handlerErr := errors.New("cannot decode")
	err = b.Handle(
		context.Background(),
		func(ctx context.Context, record kafka.ConsumerRecord) error {
			return handlerErr
		},
		nil,
	)
	require.ErrorIs(t, err, handlerErr)

	b.Close()
	require.NoError(t, <-runDone)
}

func TestHandleRetriesBeforeGivingUp(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient(mockkafka.WithPollDelay(time.Millisecond))
	client.AddRecords("orders", 0, mockkafka.SimpleRecord("a", "1"))
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	b, err := streambind.NewBinding("orders", singleClientFactory(client), nil)
	require.NoError(t, err)

	runDone := make(chan error, 1)
	go func() { runDone <- b.Run(context.Background()) }()

	var attempts atomic.Int32
	handleDone := make(chan error, 1)
	go func() {
		handleDone <- b.Handle(
			context.Background(),
			func(ctx context.Context, record kafka.ConsumerRecord) error {
				if attempts.Add(1) < 3 {
					return errors.New("transient")
				}
				return nil
			},
			errorhandler.WithMaxAttempts(
				5, backoff.NewFixed(time.Millisecond),
				errorhandler.LogAndFail(mocklogger.New()),
			),
		)
	}()

	require.Eventually(
		t, func() bool { return attempts.Load() == 3 },
		2*time.Second, 5*time.Millisecond,
	)

	b.Close()
	require.NoError(t, <-runDone)
	require.NoError(t, <-handleDone)

	client.AssertCommitted(t, tp, 1)
}

func TestHandleCompletesBatchesUnderAutoCommit(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient(mockkafka.WithPollDelay(time.Millisecond))
	client.AddRecords("orders", 0, mockkafka.SimpleRecords("a", "1", "b", "2")...)
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	b, err := streambind.NewBinding(
		"orders", singleClientFactory(client), nil,
		streambind.WithAutoCommit(),
	)
	require.NoError(t, err)

	runDone := make(chan error, 1)
	go func() { runDone <- b.Run(context.Background()) }()

	var processed atomic.Int32
	handleDone := make(chan error, 1)
	go func() {
		handleDone <- b.Handle(
			context.Background(),
			func(ctx context.Context, record kafka.ConsumerRecord) error {
				processed.Add(1)
				return nil
			},
			nil,
		)
	}()

	require.Eventually(
		t, func() bool {
			committed, ok := client.CommittedOffset(tp)
			return ok && committed.Offset == 2
		}, 2*time.Second, 5*time.Millisecond,
	)
	require.Equal(t, int32(2), processed.Load())

	b.Close()
	require.NoError(t, <-runDone)
	require.NoError(t, <-handleDone)
}

func TestHandleWithholdsBatchCommitOnFailure(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient(mockkafka.WithPollDelay(time.Millisecond))
	client.AddRecords("orders", 0, mockkafka.SimpleRecords("a", "1", "b", "2")...)
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	b, err := streambind.NewBinding(
		"orders", singleClientFactory(client), nil,
		streambind.WithAutoCommit(),
	)
	require.NoError(t, err)

	runDone := make(chan error, 1)
	go func() { runDone <- b.Run(context.Background()) }()

	handlerErr := errors.New("downstream unavailable")
	err = b.Handle(
		context.Background(),
		func(ctx context.Context, record kafka.ConsumerRecord) error {
			return handlerErr
		},
		nil,
	)
	require.ErrorIs(t, err, handlerErr)

	b.Close()
	require.NoError(t, <-runDone)

	client.AssertNothingCommitted(t, tp)
}
