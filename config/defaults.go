package config

import (
	"github.com/spf13/viper"

	"github.com/teranos/storyline/diagnostics"
	"github.com/teranos/storyline/linter"
	"github.com/teranos/storyline/lsp"
	"github.com/teranos/storyline/project"
	"github.com/teranos/storyline/watch"
)

// DefaultWSAddr is where `storyline lsp --ws` listens unless configured.
const DefaultWSAddr = "127.0.0.1:7870"

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Project detection defaults
	v.SetDefault("project.marker_file", project.DefaultMarkerFile)
	v.SetDefault("project.fallback_root", ".")
	v.SetDefault("project.max_search_depth", project.DefaultMaxSearchDepth)

	// Linter defaults
	v.SetDefault("linter.enabled", true)
	v.SetDefault("linter.command", linter.DefaultCommand)
	v.SetDefault("linter.debounce_ms", int(linter.DefaultDebounce.Milliseconds()))
	v.SetDefault("linter.timeout_ms", int(linter.DefaultTimeout.Milliseconds()))
	v.SetDefault("linter.config_files", diagnostics.DefaultLinterConfigFiles)

	// LSP defaults
	v.SetDefault("lsp.max_documents", lsp.DefaultMaxDocuments)
	v.SetDefault("lsp.ws_addr", DefaultWSAddr)
	v.SetDefault("lsp.allowed_origins", lsp.DefaultAllowedOrigins)

	// Watcher defaults
	v.SetDefault("watch.enabled", true)
	v.SetDefault("watch.debounce_ms", int(watch.DefaultDebounce.Milliseconds()))
	v.SetDefault("watch.max_reloads_per_minute", watch.DefaultMaxReloadsPerMinute)

	v.SetDefault("log.json", false)
}

// Defaults returns the configuration with nothing but defaults applied.
func Defaults() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	if err != nil {
		// defaults always decode
		panic(err)
	}
	return cfg
}
