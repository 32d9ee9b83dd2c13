package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/storyline/errors"
)

// isolate points HOME and the system path at empty temp dirs so no real
// config file leaks into a test.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	prev := SystemConfigPath
	SystemConfigPath = filepath.Join(t.TempDir(), "config.toml")
	t.Cleanup(func() {
		SystemConfigPath = prev
		Reset()
	})
	Reset()
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, ".storyline.toml", cfg.Project.MarkerFile)
	assert.Equal(t, ".", cfg.Project.FallbackRoot)
	assert.Equal(t, 20, cfg.Project.MaxSearchDepth)
	assert.True(t, cfg.Linter.Enabled)
	assert.Equal(t, "npx textlint", cfg.Linter.Command)
	assert.Equal(t, 500*time.Millisecond, cfg.Linter.Debounce())
	assert.Equal(t, 30*time.Second, cfg.Linter.Timeout())
	assert.Contains(t, cfg.Linter.ConfigFiles, ".textlintrc.json")
	assert.Equal(t, 100, cfg.LSP.MaxDocuments)
	assert.NotEmpty(t, cfg.LSP.AllowedOrigins)
	assert.True(t, cfg.Watch.Enabled)
	assert.Equal(t, 300*time.Millisecond, cfg.Watch.Debounce())
	assert.Equal(t, 60, cfg.Watch.MaxReloadsPerMinute)
	assert.False(t, cfg.Log.JSON)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FilePrecedence(t *testing.T) {
	home := isolate(t)

	writeFile(t, SystemConfigPath, "[linter]\ncommand = \"system-lint\"\ntimeout_ms = 1000\n")
	writeFile(t, filepath.Join(home, ".storyline", "config.toml"), "[linter]\ncommand = \"user-lint\"\n")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "user-lint", cfg.Linter.Command, "user file beats system file")
	assert.Equal(t, 1000, cfg.Linter.TimeoutMS, "system value survives when user file is silent")
	assert.Equal(t, 500, cfg.Linter.DebounceMS, "defaults fill the rest")
}

func TestLoad_EnvBeatsFiles(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, ".storyline", "config.toml"), "[lsp]\nmax_documents = 5\n")
	t.Setenv("STORYLINE_LSP_MAX_DOCUMENTS", "7")
	t.Setenv("STORYLINE_WATCH_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.LSP.MaxDocuments)
	assert.False(t, cfg.Watch.Enabled)
}

func TestLoad_ExplicitFile(t *testing.T) {
	isolate(t)
	explicit := filepath.Join(t.TempDir(), "custom.toml")
	writeFile(t, explicit, "[project]\nmarker_file = \".novel.toml\"\n")

	SetConfigFile(explicit)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ".novel.toml", cfg.Project.MarkerFile)

	SetConfigFile(filepath.Join(t.TempDir(), "missing.toml"))
	_, err = Load()
	assert.Error(t, err)
}

func TestSources(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, ".storyline", "config.toml"), "[watch]\nenabled = false\n")

	sources := Sources()
	require.Len(t, sources, 2)
	assert.Equal(t, "system", sources[0].Name)
	assert.False(t, sources[0].Exists)
	assert.Equal(t, "user", sources[1].Name)
	assert.True(t, sources[1].Exists)

	SetConfigFile(filepath.Join(t.TempDir(), "custom.toml"))
	sources = Sources()
	require.Len(t, sources, 3)
	assert.Equal(t, "explicit", sources[2].Name)
	assert.False(t, sources[2].Exists)
}

func TestLoad_Cached(t *testing.T) {
	isolate(t)

	first, err := Load()
	require.NoError(t, err)
	second, err := Load()
	require.NoError(t, err)
	assert.Same(t, first, second)

	Reset()
	third, err := Load()
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestLoad_InvalidFile(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, ".storyline", "config.toml"), "[project]\nmax_search_depth = 0\n")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty marker", func(c *Config) { c.Project.MarkerFile = "" }, true},
		{"zero depth", func(c *Config) { c.Project.MaxSearchDepth = 0 }, true},
		{"zero debounce is valid", func(c *Config) { c.Linter.DebounceMS = 0 }, false},
		{"negative debounce", func(c *Config) { c.Linter.DebounceMS = -1 }, true},
		{"zero timeout", func(c *Config) { c.Linter.TimeoutMS = 0 }, true},
		{"zero timeout with linter off", func(c *Config) { c.Linter.Enabled = false; c.Linter.TimeoutMS = 0 }, false},
		{"zero documents", func(c *Config) { c.LSP.MaxDocuments = 0 }, true},
		{"negative watch debounce", func(c *Config) { c.Watch.DebounceMS = -5 }, true},
		{"zero reload rate", func(c *Config) { c.Watch.MaxReloadsPerMinute = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWriteDefault(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	require.NoError(t, WriteDefault(path, false))

	SetConfigFile(path)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg, "written defaults read back unchanged")

	err = WriteDefault(path, false)
	require.Error(t, err)
	assert.NotEmpty(t, errors.GetAllHints(err))

	writeFile(t, path, "[log]\njson = true\n")
	require.NoError(t, WriteDefault(path, true))
	backup, err := os.ReadFile(path + ".back1")
	require.NoError(t, err)
	assert.Contains(t, string(backup), "json = true")

	require.NoError(t, WriteDefault(path, true))
	_, err = os.Stat(path + ".back2")
	assert.NoError(t, err, "previous backup rotated")
}
