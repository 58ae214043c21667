//go:build unit

package logger_test

import (
	"testing"

	"github.com/hugolhafner/streambind/logger"
	"github.com/stretchr/testify/require"
)

type capturingBase struct {
	level   logger.LogLevel
	entries []capturedEntry
}

type capturedEntry struct {
	level logger.LogLevel
	msg   string
	kv    []any
}

func (c *capturingBase) Level() logger.LogLevel {
	return c.level
}

func (c *capturingBase) Log(level logger.LogLevel, msg string, kv ...any) {
	c.entries = append(c.entries, capturedEntry{level: level, msg: msg, kv: kv})
}

func TestWrapLoggerForwardsLevels(t *testing.T) {
	t.Parallel()

	base := &capturingBase{level: logger.DebugLevel}
	l := logger.WrapLogger(base)

	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")

	require.Len(t, base.entries, 4)
	require.Equal(t, logger.DebugLevel, base.entries[0].level)
	require.Equal(t, logger.InfoLevel, base.entries[1].level)
	require.Equal(t, logger.WarnLevel, base.entries[2].level)
	require.Equal(t, logger.ErrorLevel, base.entries[3].level)
}

func TestWithPrependsContextFields(t *testing.T) {
	t.Parallel()

	base := &capturingBase{}
	l := logger.WrapLogger(base).With("component", "receiver")

	l.Info("polled", "count", 3)

	require.Len(t, base.entries, 1)
	require.Equal(t, []any{"component", "receiver", "count", 3}, base.entries[0].kv)
}

func TestWithChainsAccumulate(t *testing.T) {
	t.Parallel()

	base := &capturingBase{}
	l := logger.WrapLogger(base).With("a", 1).With("b", 2)

	l.Error("boom")

	require.Equal(t, []any{"a", 1, "b", 2}, base.entries[0].kv)
}

func TestWithDoesNotMutateParent(t *testing.T) {
	t.Parallel()

	base := &capturingBase{}
	parent := logger.WrapLogger(base).With("a", 1)
	_ = parent.With("b", 2)

	parent.Info("msg")

	require.Equal(t, []any{"a", 1}, base.entries[0].kv)
}

func TestLogLevelString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "debug", logger.DebugLevel.String())
	require.Equal(t, "info", logger.InfoLevel.String())
	require.Equal(t, "warn", logger.WarnLevel.String())
	require.Equal(t, "error", logger.ErrorLevel.String())
}
