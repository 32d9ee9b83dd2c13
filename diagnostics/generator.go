package diagnostics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/teranos/storyline/logger"
	"go.uber.org/zap"
)

// Generator runs its sources over a document and merges their output in
// source order.
type Generator struct {
	sources []Source
	logger  *zap.SugaredLogger
}

// NewGenerator creates a generator over sources, kept in the given order.
func NewGenerator(log *zap.SugaredLogger, sources ...Source) *Generator {
	return &Generator{
		sources: sources,
		logger:  logger.OrGlobal(log, "diagnostics"),
	}
}

// Sources returns the registered sources.
func (g *Generator) Sources() []Source {
	return g.sources
}

// Generate runs every available source concurrently and concatenates their
// diagnostics. A source that fails or panics contributes nothing; the result
// is never nil.
func (g *Generator) Generate(ctx context.Context, uri, content, projectRoot string) []Diagnostic {
	results := make([][]Diagnostic, len(g.sources))

	var wg sync.WaitGroup
	for i, src := range g.sources {
		if !g.available(src, projectRoot) {
			g.logger.Debugw("Skipping unavailable diagnostic source",
				logger.FieldSource, src.Name(),
				logger.FieldProjectRoot, projectRoot)
			continue
		}
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			results[i] = g.run(ctx, src, uri, content, projectRoot)
		}(i, src)
	}
	wg.Wait()

	merged := []Diagnostic{}
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged
}

func (g *Generator) available(src Source, projectRoot string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Errorw("Diagnostic source panicked in IsAvailable",
				logger.FieldSource, src.Name(),
				"panic", r)
			ok = false
		}
	}()
	return src.IsAvailable(projectRoot)
}

func (g *Generator) run(ctx context.Context, src Source, uri, content, projectRoot string) (diags []Diagnostic) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			g.logger.Errorw("Diagnostic source panicked",
				logger.FieldSource, src.Name(),
				logger.FieldURI, uri,
				"panic", fmt.Sprint(r))
			diags = nil
		}
	}()

	diags, err := src.Generate(ctx, uri, content, projectRoot)
	if err != nil {
		g.logger.Warnw("Diagnostic source failed",
			logger.FieldSource, src.Name(),
			logger.FieldURI, uri,
			logger.FieldError, err)
		return nil
	}

	for i := range diags {
		if diags[i].Source == "" {
			diags[i].Source = src.Name()
		}
	}
	g.logger.Debugw("Diagnostic source finished",
		logger.FieldSource, src.Name(),
		logger.FieldURI, uri,
		logger.FieldCount, len(diags),
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return diags
}

// Cancel stops in-progress work of every source that supports it.
func (g *Generator) Cancel() {
	for _, src := range g.sources {
		if c, ok := src.(Canceler); ok {
			c.Cancel()
		}
	}
}

// Forget drops per-document state of every source, e.g. on close.
func (g *Generator) Forget(uri string) {
	for _, src := range g.sources {
		if f, ok := src.(Forgetter); ok {
			f.Forget(uri)
		}
	}
}

// Dispose releases every source that holds resources.
func (g *Generator) Dispose() {
	for _, src := range g.sources {
		if d, ok := src.(Disposer); ok {
			d.Dispose()
		}
	}
}
