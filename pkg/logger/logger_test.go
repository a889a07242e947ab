package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"":      zapcore.InfoLevel,
		"loud":  zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "warn", Console: &buf})

	log.Info("hidden")
	log.Named("assembly").Warn("edge dropped", zap.String("parent", "car"))
	require.NoError(t, log.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "assembly")
	assert.Contains(t, out, "edge dropped")
	assert.Contains(t, out, `"parent": "car"`)
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gstep.log")
	cfg := DefaultFileConfig(path)
	cfg.Compress = false
	log := New(Options{Level: "debug", File: cfg})

	log.Debug("converted", zap.String("object", "wheel"), zap.Int("faces", 3))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "converted", entry["msg"])
	assert.Equal(t, "wheel", entry["object"])
	assert.EqualValues(t, 3, entry["faces"])
}

func TestNoOutputsIsNop(t *testing.T) {
	log := New(Options{})
	assert.NotPanics(t, func() { log.Error("nowhere") })
}
