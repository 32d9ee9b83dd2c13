package entity

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/teranos/storyline/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultDirs maps each kind to the directory, relative to the project root,
// that holds its definition files.
var DefaultDirs = map[Kind]string{
	KindCharacter:     "characters",
	KindSetting:       "settings",
	KindForeshadowing: "foreshadowings",
	KindTimeline:      "timelines",
}

// definition is the on-disk shape of one entity file
type definition struct {
	ID           string   `json:"id" yaml:"id" toml:"id"`
	Name         string   `json:"name" yaml:"name" toml:"name"`
	DisplayNames []string `json:"displayNames" yaml:"displayNames" toml:"displayNames"`
	Aliases      []string `json:"aliases" yaml:"aliases" toml:"aliases"`
	Summary      string   `json:"summary" yaml:"summary" toml:"summary"`
	Role         string   `json:"role" yaml:"role" toml:"role"`
	Status       string   `json:"status" yaml:"status" toml:"status"`
}

// FileLoader loads one entity per definition file from per-kind directories.
type FileLoader struct {
	// Dirs overrides DefaultDirs per kind; relative paths resolve against the project root
	Dirs   map[Kind]string
	Logger *zap.SugaredLogger
}

// NewFileLoader creates a loader using dirs, falling back to DefaultDirs for missing kinds.
func NewFileLoader(dirs map[Kind]string, log *zap.SugaredLogger) *FileLoader {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	merged := make(map[Kind]string, len(DefaultDirs))
	for k, d := range DefaultDirs {
		merged[k] = d
	}
	for k, d := range dirs {
		if d != "" {
			merged[k] = d
		}
	}
	return &FileLoader{Dirs: merged, Logger: log}
}

// DirFor returns the absolute definition directory of kind under projectRoot.
func (l *FileLoader) DirFor(projectRoot string, kind Kind) string {
	dir := l.Dirs[kind]
	if dir == "" {
		dir = DefaultDirs[kind]
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(projectRoot, dir)
}

// Load walks every kind directory under projectRoot. Missing directories are
// skipped and malformed files are logged and skipped, so a project without
// definitions yields an empty list.
func (l *FileLoader) Load(ctx context.Context, projectRoot string) ([]DetectableEntity, error) {
	var out []DetectableEntity

	for _, kind := range Kinds {
		dir := l.DirFor(projectRoot, kind)
		files, err := definitionFiles(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			l.Logger.Warnw("Cannot list entity directory", "path", dir, "error", err)
			continue
		}

		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrap(err, "entity load canceled")
			}
			ent, err := l.loadFile(path, kind)
			if err != nil {
				l.Logger.Warnw("Skipping malformed entity file", "path", path, "error", err)
				continue
			}
			out = append(out, ent)
		}
	}

	l.Logger.Debugw("Entities loaded", "project_root", projectRoot, "count", len(out))
	return out, nil
}

func definitionFiles(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsDefinitionFile(path) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// IsDefinitionFile reports whether path has an extension the loader decodes.
func IsDefinitionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json", ".toml":
		return true
	}
	return false
}

func (l *FileLoader) loadFile(path string, kind Kind) (DetectableEntity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DetectableEntity{}, errors.Wrapf(err, "failed to read %s", path)
	}

	var def definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &def)
	case ".json":
		err = json.Unmarshal(data, &def)
	case ".toml":
		err = toml.Unmarshal(data, &def)
	}
	if err != nil {
		return DetectableEntity{}, errors.Wrapf(err, "failed to decode %s", path)
	}

	if def.ID == "" {
		base := filepath.Base(path)
		def.ID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if def.Name == "" {
		def.Name = def.ID
	}

	ent := DetectableEntity{
		Kind:          kind,
		ID:            def.ID,
		CanonicalName: def.Name,
		DisplayNames:  def.DisplayNames,
		Aliases:       def.Aliases,
		SourcePath:    path,
		Summary:       def.Summary,
		Role:          def.Role,
	}
	if kind == KindForeshadowing {
		ent.Status = Status(def.Status)
		if ent.Status == "" {
			ent.Status = StatusPlanted
		}
	}
	return ent, nil
}
