package project

import (
	"context"
	"path/filepath"
	"time"

	"github.com/teranos/storyline/detect"
	"github.com/teranos/storyline/entity"
	"github.com/teranos/storyline/errors"
	"github.com/teranos/storyline/flight"
	"github.com/teranos/storyline/logger"
	"go.uber.org/zap"
)

// EntityInfo is the display information hover and completion need for one
// entity, looked up by id.
type EntityInfo struct {
	ID         string        `json:"id"`
	Kind       entity.Kind   `json:"kind"`
	Name       string        `json:"name"`
	Summary    string        `json:"summary,omitempty"`
	Role       string        `json:"role,omitempty"`
	Status     entity.Status `json:"status,omitempty"`
	SourcePath string        `json:"sourcePath,omitempty"`
}

// ProjectContext is an immutable snapshot of one project's entities. It is
// replaced wholesale on reload, never mutated.
type ProjectContext struct {
	ProjectRoot   string                    `json:"projectRoot"`
	Name          string                    `json:"name"`
	Entities      []entity.DetectableEntity `json:"entities"`
	EntityInfoMap map[string]EntityInfo     `json:"entityInfoMap"`
	LoadedAt      time.Time                 `json:"loadedAt"`

	// Marker is nil for the fallback root or when the marker is unreadable
	Marker   *MarkerConfig    `json:"-"`
	Index    *entity.Index    `json:"-"`
	Detector *detect.Detector `json:"-"`
}

// Info returns the display info for id.
func (pc *ProjectContext) Info(id string) (EntityInfo, bool) {
	info, ok := pc.EntityInfoMap[id]
	return info, ok
}

// LoaderFactory builds the entity loader for one project root. The marker
// may be nil.
type LoaderFactory func(root string, marker *MarkerConfig) entity.Loader

// ManagerConfig configures a ContextManager.
type ManagerConfig struct {
	// MarkerFile is read for per-project settings (default DefaultMarkerFile)
	MarkerFile string

	// Loader, when set, is used for every project regardless of marker settings
	Loader entity.Loader

	// LoaderFactory builds a loader per project when Loader is nil
	// (default: entity.FileLoader honouring the marker's [entities] table)
	LoaderFactory LoaderFactory

	Logger *zap.SugaredLogger
}

// ContextManager loads and caches one ProjectContext per project root. At
// most one load runs per root; concurrent requests share its result.
type ContextManager struct {
	markerFile string
	loader     entity.Loader
	factory    LoaderFactory
	cache      *flight.Cache[*ProjectContext]
	logger     *zap.SugaredLogger
}

// NewContextManager creates a context manager.
func NewContextManager(cfg ManagerConfig) *ContextManager {
	log := logger.OrGlobal(cfg.Logger, "project.context")
	if cfg.MarkerFile == "" {
		cfg.MarkerFile = DefaultMarkerFile
	}
	factory := cfg.LoaderFactory
	if factory == nil {
		factory = func(root string, marker *MarkerConfig) entity.Loader {
			return entity.NewFileLoader(marker.EntityDirs(), log)
		}
	}
	return &ContextManager{
		markerFile: cfg.MarkerFile,
		loader:     cfg.Loader,
		factory:    factory,
		cache:      flight.New[*ProjectContext](),
		logger:     log,
	}
}

// GetContext returns the cached context for projectRoot, loading it on the
// first request. A root without definitions yields an empty context.
func (m *ContextManager) GetContext(ctx context.Context, projectRoot string) (*ProjectContext, error) {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid project root %s", projectRoot)
	}
	return m.cache.GetOrLoad(ctx, root, m.load)
}

// Cached returns the context for projectRoot without loading it.
func (m *ContextManager) Cached(projectRoot string) (*ProjectContext, bool) {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, false
	}
	return m.cache.Get(root)
}

// Invalidate drops the cached context of one root.
func (m *ContextManager) Invalidate(projectRoot string) {
	if root, err := filepath.Abs(projectRoot); err == nil {
		m.cache.Delete(root)
	}
}

// ClearCache drops every cached context. Loads in flight finish for their
// waiting callers but are not stored.
func (m *ContextManager) ClearCache() {
	m.cache.Clear()
}

func (m *ContextManager) load(ctx context.Context, root string) (*ProjectContext, error) {
	start := time.Now()

	marker, err := LoadMarker(root, m.markerFile)
	if err != nil {
		if !errors.IsNotFoundError(err) {
			m.logger.Warnw("Ignoring unreadable marker file",
				logger.FieldProjectRoot, root,
				logger.FieldError, err)
		}
		marker = nil
	}

	loader := m.loader
	if loader == nil {
		loader = m.factory(root, marker)
	}

	entities, err := loader.Load(ctx, root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load entities for %s", root)
	}

	pc := NewProjectContext(root, entities, m.logger)
	pc.Marker = marker
	if marker != nil {
		pc.Name = marker.Name
	}

	m.logger.Infow("Loaded project context",
		logger.FieldProjectRoot, root,
		logger.FieldCount, len(pc.Entities),
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return pc, nil
}

// NewProjectContext builds the derived index, detector and info map for a
// list of entities.
func NewProjectContext(root string, entities []entity.DetectableEntity, log *zap.SugaredLogger) *ProjectContext {
	idx := entity.NewIndex(entities, log)

	kept := make([]entity.DetectableEntity, 0, idx.Len())
	infos := make(map[string]EntityInfo, idx.Len())
	for _, e := range idx.Entities() {
		kept = append(kept, *e)
		infos[e.ID] = EntityInfo{
			ID:         e.ID,
			Kind:       e.Kind,
			Name:       e.DisplayName(),
			Summary:    e.Summary,
			Role:       e.Role,
			Status:     e.Status,
			SourcePath: e.SourcePath,
		}
	}

	return &ProjectContext{
		ProjectRoot:   root,
		Name:          filepath.Base(root),
		Entities:      kept,
		EntityInfoMap: infos,
		LoadedAt:      time.Now(),
		Index:         idx,
		Detector:      detect.NewDetector(idx),
	}
}
