package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	lg, err := New("debug", "json")
	require.NoError(t, err)
	assert.True(t, lg.Core().Enabled(zap.DebugLevel))

	lg, err = New("WARN", "console")
	require.NoError(t, err)
	assert.False(t, lg.Core().Enabled(zap.InfoLevel))

	_, err = New("loud", "json")
	assert.Error(t, err)
}

func TestFromContext_AddsRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := WithRequestID(context.Background(), "req-42")
	FromContext(ctx, base).Info("loan issued")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-42", logs.All()[0].ContextMap()["request_id"])
}

func TestFromContext_WithoutRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	FromContext(context.Background(), zap.New(core)).Info("no id")

	require.Equal(t, 1, logs.Len())
	_, ok := logs.All()[0].ContextMap()["request_id"]
	assert.False(t, ok)
	assert.NotNil(t, FromContext(context.Background(), nil))
}
