package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	log := NewLogger()
	require.NotNil(t, log)

	// All levels should be callable without panicking
	log.Debug("debug message")
	log.Info("info message")
	log.Warn("warn message")
	log.Error("error message")
}

func TestNewLoggerWithLevel(t *testing.T) {
	t.Run("valid level", func(t *testing.T) {
		log := NewLoggerWithLevel("debug")
		require.NotNil(t, log)
		log.Debug("should not panic")
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		log := NewLoggerWithLevel("verbose")
		require.NotNil(t, log)
		log.Info("should not panic")
	})
}

func TestWithField(t *testing.T) {
	log := NewLogger()

	child := log.WithField("message_id", "msg-123")
	require.NotNil(t, child)
	assert.NotSame(t, log, child)
	child.Info("with field")
}

func TestWithFields(t *testing.T) {
	log := NewLogger()

	child := log.WithFields(map[string]interface{}{
		"tenant":   "key-1",
		"attempts": 2,
	})
	require.NotNil(t, child)
	assert.NotSame(t, log, child)
	child.Info("with fields")
}

func TestTestLogger(t *testing.T) {
	log := NewTestLogger(t)
	log.Debug("debug")
	log.Info("info")
	log.Warn("warn")
	log.Error("error")

	child := log.WithField("message_id", "msg-1").WithFields(map[string]interface{}{
		"attempts": 2,
	})
	require.NotNil(t, child)
	assert.NotSame(t, log, child)
	child.Info("with accumulated fields")
}
