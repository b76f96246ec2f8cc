package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	logger, sync, err := New("debug", FormatDevelopment)
	require.NoError(t, err)
	require.NotNil(t, logger)
	require.NotNil(t, sync)

	_, _, err = New("loud", FormatProduction)
	assert.Error(t, err)

	_, _, err = New("info", "xml")
	assert.Error(t, err)
}

func TestNewFromCore_RoutesAttributes(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := NewFromCore(core)

	logger.Debug("dropped")
	logger.Info("session ready", "endpoint", "127.0.0.1:11113", "subscribed", 100)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "session ready", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "127.0.0.1:11113", ctx["endpoint"])
	assert.EqualValues(t, 100, ctx["subscribed"])
}
