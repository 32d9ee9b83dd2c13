package diagnostics

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/teranos/storyline/linter"
	"github.com/teranos/storyline/logger"
	"github.com/teranos/storyline/project"
	"github.com/teranos/storyline/textdoc"
	"go.uber.org/zap"
)

// LinterSourceName identifies diagnostics produced by LinterSource.
const LinterSourceName = "textlint"

// DefaultLinterConfigFiles are the config files whose presence in the
// project root enables linting.
var DefaultLinterConfigFiles = []string{
	".textlintrc",
	".textlintrc.json",
	".textlintrc.yml",
	".textlintrc.yaml",
	".textlintrc.js",
}

// BackendFactory builds the linter backend for documents of one project.
type BackendFactory func(projectRoot string) (linter.Backend, error)

// LinterSourceConfig configures a LinterSource.
type LinterSourceConfig struct {
	Enabled bool

	// Command is the global linter command; a project's marker file may override it
	Command string

	// ConfigFiles gate availability (default DefaultLinterConfigFiles)
	ConfigFiles []string

	// MarkerFile is read for the per-project command override
	MarkerFile string

	Debounce time.Duration
	Timeout  time.Duration

	// NewBackend overrides backend construction (default: CommandBackend)
	NewBackend BackendFactory

	// Generation reports a counter bumped whenever project files change.
	// Workers built under an older generation are replaced, so an edited
	// marker command applies to the next lint. Nil means workers live
	// until Forget or Dispose.
	Generation func() uint64

	Logger *zap.SugaredLogger
}

// LinterSource feeds an external linter's findings into the diagnostics
// pipeline. Each document gets its own worker, so rapid edits to one
// document supersede each other while different documents lint independently.
type LinterSource struct {
	cfg    LinterSourceConfig
	logger *zap.SugaredLogger

	mu      sync.Mutex
	workers map[string]*linter.Worker
	builtAt uint64
}

// NewLinterSource creates a linter-backed source.
func NewLinterSource(cfg LinterSourceConfig) *LinterSource {
	if len(cfg.ConfigFiles) == 0 {
		cfg.ConfigFiles = DefaultLinterConfigFiles
	}
	log := logger.OrGlobal(cfg.Logger, "diagnostics.textlint")
	if cfg.NewBackend == nil {
		cfg.NewBackend = func(root string) (linter.Backend, error) {
			command := cfg.Command
			if marker, err := project.LoadMarker(root, cfg.MarkerFile); err == nil && marker.Linter.Command != "" {
				command = marker.Linter.Command
			}
			return linter.NewCommandBackend(command, root)
		}
	}
	return &LinterSource{
		cfg:     cfg,
		logger:  log,
		workers: make(map[string]*linter.Worker),
	}
}

// Name implements Source.
func (s *LinterSource) Name() string { return LinterSourceName }

// IsAvailable implements Source: linting must be enabled and the project
// must carry a linter config file.
func (s *LinterSource) IsAvailable(projectRoot string) bool {
	if !s.cfg.Enabled || projectRoot == "" {
		return false
	}
	for _, name := range s.cfg.ConfigFiles {
		if _, err := os.Stat(filepath.Join(projectRoot, name)); err == nil {
			return true
		}
	}
	return false
}

// Generate implements Source. A superseded request contributes nothing.
func (s *LinterSource) Generate(ctx context.Context, uri, content, projectRoot string) ([]Diagnostic, error) {
	w, err := s.worker(uri, projectRoot)
	if err != nil {
		return nil, err
	}

	path := uri
	if p, err := project.PathFromURI(uri); err == nil {
		path = p
	}

	res := w.Lint(ctx, content, path)
	if res.Canceled() {
		return nil, nil
	}
	return MessagesToDiagnostics(res.Messages), nil
}

func (s *LinterSource) worker(uri, projectRoot string) (*linter.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Generation != nil {
		if gen := s.cfg.Generation(); gen != s.builtAt {
			stale := s.workers
			s.workers = make(map[string]*linter.Worker)
			s.builtAt = gen
			if len(stale) > 0 {
				s.logger.Debugw("Project files changed, rebuilding linter workers",
					logger.FieldCount, len(stale))
				go disposeWorkers(stale)
			}
		}
	}
	if w, ok := s.workers[uri]; ok {
		return w, nil
	}
	backend, err := s.cfg.NewBackend(projectRoot)
	if err != nil {
		return nil, err
	}
	w := linter.NewWorker(linter.Config{
		Debounce: s.cfg.Debounce,
		Timeout:  s.cfg.Timeout,
		Backend:  backend,
		Logger:   s.logger,
	})
	s.workers[uri] = w
	return w, nil
}

// Forget disposes the worker of one document, e.g. when it is closed.
func (s *LinterSource) Forget(uri string) {
	s.mu.Lock()
	w, ok := s.workers[uri]
	delete(s.workers, uri)
	s.mu.Unlock()
	if ok {
		w.Dispose()
	}
}

// Cancel implements Canceler.
func (s *LinterSource) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.workers {
		w.Cancel()
	}
}

// Dispose implements Disposer. Later Generate calls start fresh workers.
func (s *LinterSource) Dispose() {
	s.mu.Lock()
	workers := s.workers
	s.workers = make(map[string]*linter.Worker)
	s.mu.Unlock()
	disposeWorkers(workers)
}

func disposeWorkers(workers map[string]*linter.Worker) {
	for _, w := range workers {
		w.Dispose()
	}
}

// MessagesToDiagnostics converts 1-based linter positions to zero-based
// single-character ranges.
func MessagesToDiagnostics(msgs []linter.Message) []Diagnostic {
	diags := make([]Diagnostic, 0, len(msgs))
	for _, m := range msgs {
		line := max(m.Line-1, 0)
		col := max(m.Column-1, 0)
		diags = append(diags, Diagnostic{
			Range:    textdoc.LineRange(line, col, col+1),
			Message:  m.Message,
			Severity: linterSeverity(m.Severity),
			Source:   LinterSourceName,
			Code:     m.RuleID,
		})
	}
	return diags
}

func linterSeverity(s int) Severity {
	switch s {
	case 2:
		return SeverityError
	case 1:
		return SeverityWarning
	}
	return SeverityInfo
}
