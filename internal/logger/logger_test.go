package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return &Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestLogger_RedactsSecretKeys(t *testing.T) {
	log, logs := observed()

	log.Info("calling agent", "endpoint", "http://agent", "api_key", "sk-123", "redis_password", "hunter2")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "http://agent", fields["endpoint"])
	assert.Equal(t, "[REDACTED]", fields["api_key"])
	assert.Equal(t, "[REDACTED]", fields["redis_password"])
}

func TestLogger_WithCarriesFields(t *testing.T) {
	log, logs := observed()

	log.With("component", "reaper").Warn("swept", "count", 2)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "swept", entry.Message)
	assert.Equal(t, "reaper", entry.ContextMap()["component"])
	assert.EqualValues(t, 2, entry.ContextMap()["count"])
}

func TestLogger_OddKeyValuesKeepTrailingKey(t *testing.T) {
	out := sanitizeKVs([]any{"a", 1, "dangling"})
	assert.Equal(t, []any{"a", 1, "dangling"}, out)
}

func TestNew_Modes(t *testing.T) {
	for _, mode := range []string{"development", "production", ""} {
		l, err := New(mode)
		require.NoError(t, err, mode)
		require.NotNil(t, l)
	}
	assert.NotNil(t, OrNop(nil))
}
