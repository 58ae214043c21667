//go:build unit

package commit_test

import (
	"testing"
	"time"

	"github.com/hugolhafner/streambind/commit"
	"github.com/stretchr/testify/require"
)

func TestTriggerFiresOnCount(t *testing.T) {
	t.Parallel()

	trigger := commit.NewTrigger(commit.WithMaxCount(2), commit.WithMaxInterval(time.Hour))

	trigger.RecordAcked(1)
	require.Empty(t, trigger.C())

	trigger.RecordAcked(1)
	require.Len(t, trigger.C(), 1)
}

func TestTriggerFiresOnInterval(t *testing.T) {
	t.Parallel()

	trigger := commit.NewTrigger(commit.WithMaxCount(1000), commit.WithMaxInterval(10*time.Millisecond))

	trigger.RecordAcked(1)
	require.Empty(t, trigger.C())

	time.Sleep(20 * time.Millisecond)
	trigger.RecordAcked(1)
	require.Len(t, trigger.C(), 1)
}

func TestTriggerNeverFiresWithoutAcknowledgments(t *testing.T) {
	t.Parallel()

	trigger := commit.NewTrigger(commit.WithMaxCount(1000), commit.WithMaxInterval(time.Millisecond))

	time.Sleep(5 * time.Millisecond)
	trigger.RecordAcked(0)
	require.Empty(t, trigger.C())
}

func TestTriggerSignalNeverDuplicates(t *testing.T) {
	t.Parallel()

	trigger := commit.NewTrigger(commit.WithMaxCount(1), commit.WithMaxInterval(time.Hour))

	trigger.RecordAcked(1)
	trigger.RecordAcked(1)
	trigger.RecordAcked(1)

	require.Len(t, trigger.C(), 1)
}

func TestTriggerReset(t *testing.T) {
	t.Parallel()

	trigger := commit.NewTrigger(commit.WithMaxCount(2), commit.WithMaxInterval(time.Hour))

	trigger.RecordAcked(1)
	trigger.Reset()

	// the reset cleared the pending count, one more ack stays below threshold
	trigger.RecordAcked(1)
	require.Empty(t, trigger.C())
}
