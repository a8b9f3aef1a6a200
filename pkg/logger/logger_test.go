package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"turing_arena/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestResolveLevel(t *testing.T) {
	cases := []struct {
		mode, configured string
		want             zapcore.Level
	}{
		{"debug", "", zap.DebugLevel},
		{"release", "", zap.InfoLevel},
		{"debug", "warn", zap.WarnLevel},
		{"release", "ERROR", zap.ErrorLevel},
		{"release", "loud", zap.InfoLevel},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, resolveLevel(tc.mode, tc.configured), "%s/%s", tc.mode, tc.configured)
	}
}

func TestNewWritesJSONFileAndConsole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	var console bytes.Buffer

	log := New("release", config.LogConfig{Level: "warn", File: path, MaxSizeMB: 1}, &console)
	log.Info("allocation skipped")
	log.Warn("allocation busy", zap.Uint("user_id", 7))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"allocation busy"`)
	assert.Contains(t, string(data), `"user_id":7`)
	assert.Contains(t, string(data), `"service":"turing-arena"`)
	assert.NotContains(t, string(data), "allocation skipped")

	assert.Contains(t, console.String(), "allocation busy")
	assert.NotContains(t, console.String(), "allocation skipped")
}
