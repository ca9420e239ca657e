package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(level LogLevel) (Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := NewLogger(&Config{Level: level, Format: "json", Output: buf})
	return logger, buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("warn"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("info"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestLogger_FieldsAndComponent(t *testing.T) {
	logger, buf := jsonLogger(LevelDebug)

	logger.WithComponent("registry").Info(context.Background(), "project added", "project", "/p")

	entry := decodeLine(t, buf)
	assert.Equal(t, "project added", entry["msg"])
	assert.Equal(t, "registry", entry["component"])
	assert.Equal(t, "/p", entry["project"])
}

func TestLogger_WithPersistsFields(t *testing.T) {
	logger, buf := jsonLogger(LevelDebug)

	scoped := logger.With("project", "/p")
	scoped.Debug(context.Background(), "reconciling")

	entry := decodeLine(t, buf)
	assert.Equal(t, "/p", entry["project"])
}

func TestLogger_ErrorField(t *testing.T) {
	logger, buf := jsonLogger(LevelDebug)

	logger.Warn(context.Background(), errors.New("disk gone"), "load failed")

	entry := decodeLine(t, buf)
	assert.Equal(t, "disk gone", entry["error"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	logger, buf := jsonLogger(LevelWarn)

	logger.Debug(context.Background(), "dropped")
	logger.Info(context.Background(), "dropped")
	assert.Zero(t, buf.Len())

	logger.Warn(context.Background(), nil, "kept")
	assert.NotZero(t, buf.Len())
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	// Must be safe to use everywhere a real logger is.
	logger.WithComponent("x").With("k", "v").Info(context.Background(), "ignored")
	logger.Error(context.Background(), errors.New("ignored"), "ignored")
}
