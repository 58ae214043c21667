//go:build unit

package otel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTelemetry_NilProviders(t *testing.T) {
	t.Parallel()
	tel, err := NewTelemetry(nil, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, tel.Tracer)
	require.NotNil(t, tel.Propagator)
	require.NotNil(t, tel.RecordsReceived)
	require.NotNil(t, tel.PollDuration)
	require.NotNil(t, tel.CommitsIssued)
	require.NotNil(t, tel.CommitDuration)
	require.NotNil(t, tel.CommitRetries)
	require.NotNil(t, tel.RecordsSent)
	require.NotNil(t, tel.SendDuration)
	require.NotNil(t, tel.PipelinesActive)
}

func TestNoop(t *testing.T) {
	t.Parallel()
	tel := Noop()
	require.NotNil(t, tel)
	require.NotNil(t, tel.Tracer)
}
