package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zap.DebugLevel, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zap.InfoLevel, lvl)

	lvl, err = ParseLevel("loud")
	assert.Error(t, err)
	assert.Equal(t, zap.InfoLevel, lvl)
}

func TestNewWritesServiceField(t *testing.T) {
	out := filepath.Join(t.TempDir(), "log.json")
	l, err := New(Config{Level: "info", Encoding: "json", OutputPath: out, Service: "gateway"})
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("visible", zap.String("k", "v"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "visible", entry["msg"])
	assert.Equal(t, "gateway", entry["service"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Contains(t, entry, "timestamp")
}
