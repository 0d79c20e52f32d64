package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONToWriterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Config{Level: "warn", Format: "JSON", Output: &buf})
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("job failed", "job_id", "job1")

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record))
	assert.Equal(t, "job failed", record["msg"])
	assert.Equal(t, "job1", record["job_id"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "koa.log")
	logger, closer, err := New(Config{Level: "debug", File: path})
	require.NoError(t, err)

	logger.Debug("polling", "phase", "EXECUTING")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "level=DEBUG")
	assert.Contains(t, string(data), "phase=EXECUTING")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel(" Debug "))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
