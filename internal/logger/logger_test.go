package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesToFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "deskpilot.log")

	l, err := New(Config{Level: "debug", File: logFile})
	require.NoError(t, err)
	defer l.Close()

	l.Info().Str("component", "test").Msg("hello from test")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "test", entry["component"])
	assert.NotEmpty(t, entry["time"])
}

func TestNew_RespectsLevel(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "deskpilot.log")

	l, err := New(Config{Level: "warn", File: logFile})
	require.NoError(t, err)
	defer l.Close()

	l.Debug().Msg("too quiet")
	l.Info().Msg("also too quiet")
	l.Warn().Msg("loud enough")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "too quiet")
	assert.Contains(t, string(data), "loud enough")
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "deskpilot.log")

	l, err := New(Config{Level: "shouty", File: logFile})
	require.NoError(t, err)
	defer l.Close()

	l.Info().Msg("still logged")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "still logged")
}

func TestNew_RedactionInPipeline(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "deskpilot.log")

	l, err := New(Config{Level: "info", File: logFile, Redaction: true})
	require.NoError(t, err)
	defer l.Close()

	l.Info().Str("env", "MACOS_PASSWORD=hunter2").Msg("spawning")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
	assert.Contains(t, string(data), "[REDACTED]")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Redaction)
}
