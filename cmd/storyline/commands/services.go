package commands

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/teranos/storyline/config"
	"github.com/teranos/storyline/diagnostics"
	"github.com/teranos/storyline/errors"
	"github.com/teranos/storyline/logger"
	"github.com/teranos/storyline/project"
	"github.com/teranos/storyline/watch"
)

// services are the long-lived components every command shares
type services struct {
	cfg      *config.Config
	detector *project.Detector
	contexts *project.ContextManager

	// linterGeneration is bumped by the watcher so linter workers pick up
	// an edited marker command
	linterGeneration atomic.Uint64
}

func newServices() (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}

	detector := project.NewDetector(project.DetectorConfig{
		MarkerFile:     cfg.Project.MarkerFile,
		FallbackRoot:   cfg.Project.FallbackRoot,
		MaxSearchDepth: cfg.Project.MaxSearchDepth,
		Logger:         logger.ComponentLogger("project.detector"),
	})
	contexts := project.NewContextManager(project.ManagerConfig{
		MarkerFile: cfg.Project.MarkerFile,
		Logger:     logger.ComponentLogger("project.context"),
	})
	return &services{cfg: cfg, detector: detector, contexts: contexts}, nil
}

// newGenerator builds a diagnostics pipeline. Each LSP connection gets its
// own, since shutting a connection down disposes its linter workers. Batch
// pipelines lint without the typing debounce.
func (s *services) newGenerator(batch bool) *diagnostics.Generator {
	linterCfg := s.cfg.Linter
	debounce := linterCfg.Debounce()
	if batch {
		debounce = 0
	}
	return diagnostics.NewGenerator(
		logger.ComponentLogger("diagnostics"),
		diagnostics.NewEntitySource(s.contexts),
		diagnostics.NewLinterSource(diagnostics.LinterSourceConfig{
			Enabled:     linterCfg.Enabled,
			Command:     linterCfg.Command,
			ConfigFiles: linterCfg.ConfigFiles,
			MarkerFile:  s.cfg.Project.MarkerFile,
			Debounce:    debounce,
			Timeout:     linterCfg.Timeout(),
			Generation:  s.linterGeneration.Load,
			Logger:      logger.ComponentLogger("diagnostics.textlint"),
		}),
	)
}

// startWatcher watches the project owning dir when watching is enabled.
// The returned stop function is never nil.
func (s *services) startWatcher(dir string, onChange func()) func() {
	if !s.cfg.Watch.Enabled {
		return func() {}
	}
	root := s.detector.DetectProjectRoot(dir)
	w, err := watch.New(watch.Config{
		Root:       root,
		MarkerFile: s.cfg.Project.MarkerFile,
		Debounce:   s.cfg.Watch.Debounce(),
		Logger:     logger.ComponentLogger("watch"),

		MaxReloadsPerMinute: s.cfg.Watch.MaxReloadsPerMinute,
	}, s.detector, s.contexts)
	if err != nil {
		logger.Warnw("Entity changes will not be picked up automatically",
			logger.FieldProjectRoot, root,
			logger.FieldError, err)
		return func() {}
	}
	w.OnInvalidate(s.invalidateLinters)
	if onChange != nil {
		w.OnInvalidate(onChange)
	}
	w.Start()
	return func() { _ = w.Stop() }
}

// invalidateLinters retires every generator's linter workers; the next lint
// builds a backend from the current marker.
func (s *services) invalidateLinters() {
	s.linterGeneration.Add(1)
}

// resolveRoot returns the project root owning path, or the working
// directory's project when path is empty.
func (s *services) resolveRoot(path string) (string, error) {
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", errors.Wrap(err, "failed to get working directory")
		}
		path = wd
	}
	return s.detector.DetectProjectRoot(path), nil
}

func commandLogger(name string) *zap.SugaredLogger {
	return logger.ComponentLogger("cmd." + name)
}
