package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithOptions_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nlweb.log")

	zl := NewWithOptions(Options{Level: "debug", Format: "json", Output: path})
	log := NewZapAdapter(zl)
	log.Info("query started", map[string]interface{}{"queryId": "q-1"})
	log.WithError(errors.New("boom")).Error("query failed", nil)
	require.NoError(t, zl.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "query started")
	assert.Contains(t, string(data), "q-1")
	assert.Contains(t, string(data), "boom")
}

func TestNewWithOptions_LevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nlweb.log")

	zl := NewWithOptions(Options{Level: "warn", Format: "console", Output: path})
	log := NewZapAdapter(zl)
	log.Info("hidden", nil)
	log.Warn("visible", nil)
	require.NoError(t, zl.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "visible")
}

func TestMapToZapFields(t *testing.T) {
	assert.Nil(t, mapToZapFields(nil))
	fields := mapToZapFields(map[string]interface{}{"a": 1, "err": errors.New("x")})
	assert.Len(t, fields, 2)
}

func TestForComponent(t *testing.T) {
	log := ForComponent(NewTestLogger(t), "ranking")
	assert.NotNil(t, log)
	log.Debug("tagged", map[string]interface{}{"k": "v"})
}
