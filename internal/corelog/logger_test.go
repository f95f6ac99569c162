package corelog

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger(level string) (*JSONLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := NewJSONLogger("intelcore", level)
	logger.output = buf
	return logger, buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestJSONLogger_InfoWritesStructuredFields(t *testing.T) {
	logger, buf := newBufferedLogger("info")
	logger.Info("hello", map[string]interface{}{"key": "value"})

	entry := decodeLine(t, buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "intelcore", entry["service"])
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "value", entry["key"])
}

func TestJSONLogger_DebugSuppressedUnlessDebugLevel(t *testing.T) {
	logger, buf := newBufferedLogger("info")
	logger.Debug("suppressed", nil)
	assert.Empty(t, buf.String())

	debugLogger, debugBuf := newBufferedLogger("debug")
	debugLogger.Debug("shown", nil)
	assert.NotEmpty(t, debugBuf.String())
}

func TestJSONLogger_WithComponentTagsSubsequentLines(t *testing.T) {
	logger, _ := newBufferedLogger("info")
	buf := &bytes.Buffer{}
	logger.output = buf

	tagged := logger.WithComponent("intel/orchestrator").(*JSONLogger)
	tagged.output = buf
	tagged.Info("scoped", nil)

	entry := decodeLine(t, buf)
	assert.Equal(t, "intel/orchestrator", entry["component"])
}

func TestJSONLogger_WithComponentDoesNotMutateOriginal(t *testing.T) {
	logger, buf := newBufferedLogger("info")
	_ = logger.WithComponent("other")
	logger.Info("unscoped", nil)

	entry := decodeLine(t, buf)
	_, hasComponent := entry["component"]
	assert.False(t, hasComponent)
}

func TestJSONLogger_ContextVariantsDelegateToBase(t *testing.T) {
	logger, buf := newBufferedLogger("info")
	logger.WarnWithContext(context.Background(), "ctx warn", nil)

	entry := decodeLine(t, buf)
	assert.Equal(t, "warn", entry["level"])
}

func TestJSONLogger_EachLogCallProducesExactlyOneLine(t *testing.T) {
	logger, buf := newBufferedLogger("info")
	logger.Info("one", nil)
	logger.Warn("two", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
}

func TestNoOpLogger_NeverPanics(t *testing.T) {
	var l NoOpLogger
	assert.NotPanics(t, func() {
		l.Info("x", nil)
		l.Error("x", nil)
		l.Warn("x", nil)
		l.Debug("x", nil)
		l.InfoWithContext(context.Background(), "x", nil)
	})
}
