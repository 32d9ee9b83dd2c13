package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name string
		json bool
	}{
		{name: "JSON output mode", json: true},
		{name: "Console output mode", json: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Initialize(Options{JSON: tt.json, Verbosity: VerbosityInfo, Output: &buf}))
			t.Cleanup(func() { Logger = nil; Initialize(Options{Output: &bytes.Buffer{}}) })

			Infow("project resolved", FieldProjectRoot, "/novel")
			Cleanup()

			out := buf.String()
			assert.Contains(t, out, "project resolved")
			assert.Contains(t, out, "/novel")
			if tt.json {
				var line map[string]interface{}
				require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &line))
				assert.Equal(t, "/novel", line[FieldProjectRoot])
			}
		})
	}
}

func TestInitializeRespectsVerbosity(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Initialize(Options{Verbosity: VerbosityUser, Output: &buf}))

	Infow("hidden")
	Warnw("shown")
	Cleanup()

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNilLoggerIsSafe(t *testing.T) {
	saved := Logger
	Logger = nil
	defer func() { Logger = saved }()

	assert.NotPanics(t, func() {
		Infow("x")
		Warnw("x")
		Errorw("x")
		Debugw("x")
		Cleanup()
	})
}

func TestVerbosityToLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{-1, zapcore.WarnLevel},
		{0, zapcore.WarnLevel},
		{1, zapcore.InfoLevel},
		{2, zapcore.DebugLevel},
		{5, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, VerbosityToLevel(tt.verbosity), "verbosity %d", tt.verbosity)
	}
}

func TestOrGlobal(t *testing.T) {
	assert.NotNil(t, OrGlobal(nil, "lsp"))

	own := ComponentLogger("own")
	assert.Same(t, own, OrGlobal(own, "lsp"))
}
