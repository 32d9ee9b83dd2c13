// Package config holds storyline's global settings. Values come from
// defaults, then /etc/storyline/config.toml, then ~/.storyline/config.toml,
// then an explicit --config file, then STORYLINE_* environment variables.
//
// Per-project settings live in the project marker file and are read by the
// project package, not here.
package config

import (
	"fmt"
	"time"
)

// Config represents the global storyline configuration
type Config struct {
	Project ProjectConfig `mapstructure:"project" toml:"project"`
	Linter  LinterConfig  `mapstructure:"linter" toml:"linter"`
	LSP     LSPConfig     `mapstructure:"lsp" toml:"lsp"`
	Watch   WatchConfig   `mapstructure:"watch" toml:"watch"`
	Log     LogConfig     `mapstructure:"log" toml:"log"`
}

// ProjectConfig configures project root detection
type ProjectConfig struct {
	MarkerFile     string `mapstructure:"marker_file" toml:"marker_file"`
	FallbackRoot   string `mapstructure:"fallback_root" toml:"fallback_root"`       // returned when no marker is found
	MaxSearchDepth int    `mapstructure:"max_search_depth" toml:"max_search_depth"` // directories checked, including the start
}

// LinterConfig configures the external prose linter
type LinterConfig struct {
	Enabled     bool     `mapstructure:"enabled" toml:"enabled"`
	Command     string   `mapstructure:"command" toml:"command"` // shell-quoted, overridable per project
	DebounceMS  int      `mapstructure:"debounce_ms" toml:"debounce_ms"`
	TimeoutMS   int      `mapstructure:"timeout_ms" toml:"timeout_ms"`
	ConfigFiles []string `mapstructure:"config_files" toml:"config_files"` // any of these in the project root enables linting
}

// Debounce returns the quiet period before a lint run.
func (c LinterConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// Timeout returns the maximum duration of one lint run.
func (c LinterConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// LSPConfig configures the language server
type LSPConfig struct {
	MaxDocuments   int      `mapstructure:"max_documents" toml:"max_documents"`
	WSAddr         string   `mapstructure:"ws_addr" toml:"ws_addr"` // listen address of `storyline lsp --ws`
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins"`
}

// WatchConfig configures definition file watching
type WatchConfig struct {
	Enabled             bool `mapstructure:"enabled" toml:"enabled"`
	DebounceMS          int  `mapstructure:"debounce_ms" toml:"debounce_ms"`
	MaxReloadsPerMinute int  `mapstructure:"max_reloads_per_minute" toml:"max_reloads_per_minute"`
}

// Debounce returns the quiet period before caches are cleared.
func (c WatchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// LogConfig configures logging output
type LogConfig struct {
	JSON bool `mapstructure:"json" toml:"json"`
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Project: {Marker: %s, Depth: %d}, Linter: {Enabled: %t, Command: %q}, Watch: %t}",
		c.Project.MarkerFile, c.Project.MaxSearchDepth, c.Linter.Enabled, c.Linter.Command, c.Watch.Enabled)
}
