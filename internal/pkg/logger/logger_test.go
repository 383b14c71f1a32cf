package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(" INFO "))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("bogus"))
}

func TestSetupWritesJSONToStderrWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, closer, err := Setup(Config{Level: slog.LevelInfo, Format: "json", Stderr: &buf})
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer() })

	log.Debug("hidden")
	log.Info("refresh succeeded", "token", TokenHint("eyJhbGciOiJIUzI1NiJ9.payload.abcd"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"refresh succeeded"`)
	assert.Contains(t, out, `"token":"***abcd"`)
}

func TestSetupAppendsToLogFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "dm.log")
	log, closer, err := Setup(Config{Level: slog.LevelWarn, LogFile: path})
	require.NoError(t, err)

	log.Warn("queue timeout")
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "queue timeout")
}

func TestSetupWithoutWritersDiscards(t *testing.T) {
	t.Parallel()

	log, closer, err := Setup(Config{})
	require.NoError(t, err)
	require.NoError(t, closer())
	assert.False(t, log.Enabled(t.Context(), slog.LevelError))
}

func TestTokenHint(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "<none>", TokenHint(""))
	assert.Equal(t, "***", TokenHint("T1"))
	assert.Equal(t, "***wxyz", TokenHint("abcdefghijwxyz"))
}
