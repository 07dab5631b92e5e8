package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestNewDefaults(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestFromContextAddsOperationFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	ctx := WithOperation(context.Background(), "users", "select", "op-1")
	FromContext(ctx, base).Info("query done")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "users", fields["table"])
	assert.Equal(t, "select", fields["operation"])
	assert.Equal(t, "op-1", fields["operation_id"])
}

func TestSetReplacesGlobal(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := Get()
	t.Cleanup(func() { Set(prev) })

	Set(zap.New(core))
	Warn("pool exhausted", zap.Int("waiting", 2))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "pool exhausted", logs.All()[0].Message)
}
