package logsvc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/liamAduDonkor/adesua-sub000/core"
)

func TestZapLogger_fields(t *testing.T) {
	core_, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLoggerFrom(zap.New(core_))

	logger.Info("report generated", core.Fields{"instance_id": "i-1"}, errors.New("boom"), 42)
	logger.Debug("tick")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)

	ctx := entries[0].ContextMap()
	assert.Equal(t, "report generated", entries[0].Message)
	assert.Equal(t, "i-1", ctx["instance_id"])
	assert.Equal(t, "boom", ctx["error"])
	assert.EqualValues(t, 42, ctx["arg2"])
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestRollbarLogger_forwardsToSink(t *testing.T) {
	core_, logs := observer.New(zapcore.DebugLevel)
	logger := NewRollbarLogger(NewZapLoggerFrom(zap.New(core_)), &core.Config{Env: "TEST"})
	logger.Enable(false)

	logger.Warn("scope denied", core.Fields{"path": "/v1/analytics/summary"})

	entries := logs.AllUntimed()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "/v1/analytics/summary", entries[0].ContextMap()["path"])
}

func TestZapLogger_Named(t *testing.T) {
	core_, logs := observer.New(zapcore.InfoLevel)
	logger := NewZapLoggerFrom(zap.New(core_)).Named("db")

	logger.Info("connected")

	entries := logs.AllUntimed()
	require.Len(t, entries, 1)
	assert.Equal(t, "db", entries[0].LoggerName)
}
