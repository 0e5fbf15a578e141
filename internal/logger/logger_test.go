package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew_DefaultLevel tests that an unknown level falls back to info
func TestNew_DefaultLevel(t *testing.T) {
	l, err := New(Config{Level: "bogus", Console: true})
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, zerolog.InfoLevel, l.Zerolog().GetLevel())
}

// TestNew_FileOutput tests that log output is written to the configured file
func TestNew_FileOutput(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "nested", "kestrel.log")

	l, err := New(Config{Level: "debug", File: logFile})
	require.NoError(t, err)

	zl := l.Zerolog()
	zl.Info().Str("component", "test").Msg("hello")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "component")
}
