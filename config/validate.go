package config

import "github.com/teranos/storyline/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Project.MarkerFile == "" {
		return errors.New("project.marker_file cannot be empty")
	}
	// 0 would mean "never look", which is what fallback_root is for
	if c.Project.MaxSearchDepth <= 0 {
		return errors.Newf("project.max_search_depth must be > 0, got %d", c.Project.MaxSearchDepth)
	}

	// Linter settings only matter when the linter can run
	if c.Linter.Enabled {
		if c.Linter.DebounceMS < 0 {
			return errors.Newf("linter.debounce_ms must be >= 0, got %d", c.Linter.DebounceMS)
		}
		if c.Linter.TimeoutMS <= 0 {
			return errors.Newf("linter.timeout_ms must be > 0, got %d", c.Linter.TimeoutMS)
		}
	}

	if c.LSP.MaxDocuments <= 0 {
		return errors.Newf("lsp.max_documents must be > 0, got %d", c.LSP.MaxDocuments)
	}

	if c.Watch.DebounceMS < 0 {
		return errors.Newf("watch.debounce_ms must be >= 0, got %d", c.Watch.DebounceMS)
	}
	if c.Watch.MaxReloadsPerMinute <= 0 {
		return errors.Newf("watch.max_reloads_per_minute must be > 0, got %d", c.Watch.MaxReloadsPerMinute)
	}

	return nil
}
