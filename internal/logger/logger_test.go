package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildLevels(t *testing.T) {
	var buf bytes.Buffer
	l, err := build(Config{Level: "warn", Production: true}, &buf)
	require.NoError(t, err)

	l.Info("hidden")
	l.Warn("shown", zap.String("module", "test"))
	require.NoError(t, l.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "test", entry["module"])
}

func TestBuildInvalidLevel(t *testing.T) {
	_, err := build(Config{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestBuildFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admin.log")

	var console bytes.Buffer
	l, err := build(Config{File: path}, &console)
	require.NoError(t, err)

	l.Info("to both", zap.Int("n", 1))
	require.NoError(t, l.Sync())

	assert.Contains(t, console.String(), "to both")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
	assert.Equal(t, "to both", entry["message"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Contains(t, entry, "timestamp")
}
