package project

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/teranos/storyline/entity"
	"github.com/teranos/storyline/errors"
)

// DefaultMarkerFile is the sentinel file that makes a directory a project root.
const DefaultMarkerFile = ".storyline.toml"

// MarkerConfig is the per-project configuration stored in the marker file.
// An empty marker file is valid and yields all defaults.
type MarkerConfig struct {
	// Name is a human-readable project name, defaulting to the root directory name
	Name string `toml:"name"`

	// Entities overrides the definition directory per kind, e.g.
	// characters = "cast". Keys are frontmatter keys or kind names.
	Entities map[string]string `toml:"entities"`

	Linter MarkerLinterConfig `toml:"linter"`
}

// MarkerLinterConfig overrides global linter settings for one project.
type MarkerLinterConfig struct {
	// Command replaces the global linter command when non-empty
	Command string `toml:"command"`
}

// LoadMarker reads the marker file at root/markerFile. A missing file yields
// an ErrNotFound-marked error.
func LoadMarker(root, markerFile string) (*MarkerConfig, error) {
	if markerFile == "" {
		markerFile = DefaultMarkerFile
	}
	path := filepath.Join(root, markerFile)
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "marker file %s", path), errors.ErrNotFound)
	}

	var cfg MarkerConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to decode marker file %s", path)
	}
	if cfg.Name == "" {
		cfg.Name = filepath.Base(root)
	}
	return &cfg, nil
}

// EntityDirs converts the [entities] table to a per-kind directory map.
// Unknown keys are ignored.
func (c *MarkerConfig) EntityDirs() map[entity.Kind]string {
	if c == nil || len(c.Entities) == 0 {
		return nil
	}
	dirs := make(map[entity.Kind]string, len(c.Entities))
	for key, dir := range c.Entities {
		kind, ok := entity.KindForFrontmatterKey(key)
		if !ok {
			kind, ok = entity.ParseKind(key)
		}
		if ok {
			dirs[kind] = dir
		}
	}
	return dirs
}
