// Package watch invalidates cached project state when entity definitions or
// the project marker change on disk.
package watch

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/storyline/entity"
	"github.com/teranos/storyline/errors"
	"github.com/teranos/storyline/logger"
	"github.com/teranos/storyline/project"
)

// DefaultDebounce coalesces bursts of events, e.g. an editor's
// write-rename-chmod sequence on save.
const DefaultDebounce = 300 * time.Millisecond

// Reload rate limits. A branch switch can rewrite definitions for many
// seconds; every reload re-reads the whole project.
const (
	DefaultMaxReloadsPerMinute = 60
	DefaultReloadBurst         = 5
)

// Invalidator is a cache that can be dropped wholesale. Both
// project.Detector and project.ContextManager satisfy it.
type Invalidator interface {
	ClearCache()
}

// Config configures a Watcher.
type Config struct {
	Root string

	// MarkerFile is the project marker name (default project.DefaultMarkerFile)
	MarkerFile string

	// Debounce is the quiet period before invalidating; zero invalidates on
	// the first relevant event. Configuration defaults it to DefaultDebounce.
	Debounce time.Duration

	// MaxReloadsPerMinute and ReloadBurst bound how often caches are
	// cleared (defaults DefaultMaxReloadsPerMinute, DefaultReloadBurst).
	// Invalidations over the limit are deferred, not dropped.
	MaxReloadsPerMinute int
	ReloadBurst         int

	Logger *zap.SugaredLogger
}

// Watcher watches one project root and its entity directories.
type Watcher struct {
	root       string
	markerFile string
	entityDirs []string
	watcher    *fsnotify.Watcher
	targets    []Invalidator
	logger     *zap.SugaredLogger
	limiter    *rate.Limiter

	mu             sync.Mutex
	callbacks      []func()
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
	stopped        bool
}

// New creates a watcher that clears every target when something relevant
// changes. Entity directories are taken from the marker file, so a project
// with custom directories is watched where its definitions live.
func New(cfg Config, targets ...Invalidator) (*Watcher, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid watch root %s", cfg.Root)
	}
	markerFile := cfg.MarkerFile
	if markerFile == "" {
		markerFile = project.DefaultMarkerFile
	}
	debounce := cfg.Debounce
	if debounce < 0 {
		debounce = 0
	}
	perMinute := cfg.MaxReloadsPerMinute
	if perMinute <= 0 {
		perMinute = DefaultMaxReloadsPerMinute
	}
	burst := cfg.ReloadBurst
	if burst <= 0 {
		burst = DefaultReloadBurst
	}
	log := logger.OrGlobal(cfg.Logger, "watch")

	marker, err := project.LoadMarker(root, markerFile)
	if err != nil && !errors.IsNotFoundError(err) {
		log.Warnw("Watching default entity directories, marker unreadable",
			logger.FieldProjectRoot, root,
			logger.FieldError, err)
	}
	loader := entity.NewFileLoader(marker.EntityDirs(), log)
	dirs := make([]string, 0, len(entity.Kinds))
	for _, k := range entity.Kinds {
		dirs = append(dirs, loader.DirFor(root, k))
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, errors.Wrapf(err, "failed to watch project root %s", root)
	}

	w := &Watcher{
		root:           root,
		markerFile:     markerFile,
		entityDirs:     dirs,
		watcher:        fsw,
		targets:        targets,
		logger:         log,
		limiter:        rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst),
		debouncePeriod: debounce,
	}
	for _, dir := range dirs {
		w.addTree(dir)
	}
	return w, nil
}

// OnInvalidate registers a callback run after the targets are cleared.
func (w *Watcher) OnInvalidate(callback func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins watching in the background.
func (w *Watcher) Start() {
	w.logger.Infow("Watching project for entity changes",
		logger.FieldProjectRoot, w.root,
		"dirs", w.entityDirs)
	go w.watchLoop()
}

// Stop ends watching. Pending invalidations are dropped.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	w.stopped = true
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

// addTree watches dir and its subdirectories, since fsnotify is not recursive.
// A missing directory is skipped; its creation is seen on the parent.
func (w *Watcher) addTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Debugw("Cannot watch directory", logger.FieldPath, path, logger.FieldError, err)
		}
		return nil
	})
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == fsnotify.Create && w.inEntityDir(event.Name) {
				// new subdirectory (or the entity dir itself) needs its own watch
				w.addTree(event.Name)
			}
			if !w.Relevant(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debugw("Project change detected",
				logger.FieldPath, event.Name,
				"op", event.Op.String())
			w.scheduleInvalidate()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("Project watcher error", logger.FieldError, err)
		}
	}
}

// Relevant reports whether a change at path can alter the loaded entities:
// the marker file, a definition file, or a whole entity directory.
func (w *Watcher) Relevant(path string) bool {
	if filepath.Dir(path) == w.root && filepath.Base(path) == w.markerFile {
		return true
	}
	for _, dir := range w.entityDirs {
		if path == dir {
			return true
		}
	}
	return w.inEntityDir(path) && entity.IsDefinitionFile(path)
}

func (w *Watcher) inEntityDir(path string) bool {
	for _, dir := range w.entityDirs {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Watcher) scheduleInvalidate() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debouncePeriod, w.invalidate)
}

func (w *Watcher) invalidate() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	if !w.limiter.Allow() {
		r := w.limiter.Reserve()
		delay := r.Delay()
		r.Cancel()
		if w.debounceTimer != nil {
			w.debounceTimer.Stop()
		}
		w.debounceTimer = time.AfterFunc(delay, w.invalidate)
		w.mu.Unlock()
		w.logger.Debugw("Reload rate limited, deferring",
			logger.FieldProjectRoot, w.root,
			"delay", delay)
		return
	}
	callbacks := make([]func(), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	for _, t := range w.targets {
		t.ClearCache()
	}
	w.logger.Infow("Project caches cleared after change", logger.FieldProjectRoot, w.root)

	for _, cb := range callbacks {
		cb()
	}
}
