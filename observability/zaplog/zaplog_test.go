package zaplog_test

import (
	"errors"
	"testing"

	"github.com/Swind/go-attach-pool/core"
	"github.com/Swind/go-attach-pool/observability/zaplog"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_ForwardsLevelsAndFields(t *testing.T) {
	zc, logs := observer.New(zapcore.DebugLevel)
	l := zaplog.New(zap.New(zc))

	l.Debug("d", core.F("threads", 4))
	l.Info("i", core.F("pool", "p1"))
	l.Warn("w")
	l.Error("e", core.F("error", errors.New("boom")))

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)

	require.Equal(t, zapcore.DebugLevel, entries[0].Level)
	require.EqualValues(t, 4, entries[0].ContextMap()["threads"])
	require.Equal(t, "p1", entries[1].ContextMap()["pool"])
	require.Equal(t, zapcore.WarnLevel, entries[2].Level)

	require.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	require.Equal(t, "boom", entries[3].ContextMap()["error"])
}

func TestLogger_MeasureSpan(t *testing.T) {
	zc, logs := observer.New(zapcore.DebugLevel)
	l := zaplog.New(zap.New(zc))

	core.Measure(l, "PoolBuilder.Build", core.F("threads", 2))()

	entries := logs.FilterMessageSnippet("PoolBuilder.Build").AllUntimed()
	require.NotEmpty(t, entries)
	require.Contains(t, entries[len(entries)-1].ContextMap(), "elapsed")
}

func TestNew_NilIsNoop(t *testing.T) {
	l := zaplog.New(nil)
	l.Info("dropped")
	require.NotNil(t, l.Zap())
}

func TestNewProduction_BadLevel(t *testing.T) {
	_, err := zaplog.NewProduction("loud")
	require.Error(t, err)
}
