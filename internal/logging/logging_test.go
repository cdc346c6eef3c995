package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestBuildJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := build(Config{Level: "warn"}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept")
	require.NoError(t, logger.Sync())

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "warn", line["level"])
	assert.Contains(t, line, "ts")
}

func TestBuildConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := build(Config{Format: "console", Level: "DEBUG"}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Debug("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestBuildRejectsUnknownSettings(t *testing.T) {
	_, err := build(Config{Level: "loud"}, zapcore.AddSync(&bytes.Buffer{}))
	require.Error(t, err)

	_, err = build(Config{Format: "xml"}, zapcore.AddSync(&bytes.Buffer{}))
	require.Error(t, err)
}
