package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/deadsy/cmdpkt/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("bogus"))
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	log.Debug("hidden")
	log.Info("crc", zap.Uint8("crc", 0xee))
	require.NoError(t, log.Sync())

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "crc", m["msg"])
	assert.Equal(t, "info", m["level"])
	assert.EqualValues(t, 0xee, m["crc"])
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crccalc.log")
	var buf bytes.Buffer
	cfg := config.LoggingConfig{Level: "debug", Format: "console"}
	cfg.File.Filename = path
	cfg.File.MaxSizeMB = 1
	log := New(cfg, &buf)
	log.Debug("to both")
	require.NoError(t, log.Sync())

	assert.Contains(t, buf.String(), "to both")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "to both")
}
