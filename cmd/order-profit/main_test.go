package main

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestProgressReporterLogsPercentAtInfo(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	report := progressReporter(zap.New(core))
	report(1, 4)
	report(4, 4)

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, int64(25), entries[0].ContextMap()["percent"])
	require.Equal(t, int64(100), entries[1].ContextMap()["percent"])
}
