// Package project resolves which story project a document belongs to and
// owns the per-project entity context used by editor features.
package project

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/teranos/storyline/errors"
	"github.com/teranos/storyline/logger"
	"go.uber.org/zap"
)

// DefaultMaxSearchDepth bounds the upward marker search so linked or
// pathological trees always terminate.
const DefaultMaxSearchDepth = 20

// DetectorConfig configures a Detector.
type DetectorConfig struct {
	// MarkerFile is the sentinel file name (default DefaultMarkerFile)
	MarkerFile string

	// FallbackRoot is returned when no marker is found (default: working directory)
	FallbackRoot string

	// MaxSearchDepth is the number of directories checked, starting with the
	// document's own directory (default DefaultMaxSearchDepth)
	MaxSearchDepth int

	// CacheTTL expires cached lookups; zero keeps them until ClearCache
	CacheTTL time.Duration

	Logger *zap.SugaredLogger
}

// Detector maps document URIs to project roots, caching every answer until
// ClearCache.
type Detector struct {
	markerFile   string
	fallbackRoot string
	maxDepth     int
	cache        *gocache.Cache
	logger       *zap.SugaredLogger
}

// NewDetector creates a project root detector.
func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.MarkerFile == "" {
		cfg.MarkerFile = DefaultMarkerFile
	}
	if cfg.MaxSearchDepth <= 0 {
		cfg.MaxSearchDepth = DefaultMaxSearchDepth
	}
	if cfg.FallbackRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.FallbackRoot = wd
		}
	}
	if abs, err := filepath.Abs(cfg.FallbackRoot); err == nil {
		cfg.FallbackRoot = abs
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}

	return &Detector{
		markerFile:   cfg.MarkerFile,
		fallbackRoot: cfg.FallbackRoot,
		maxDepth:     cfg.MaxSearchDepth,
		cache:        gocache.New(ttl, 10*time.Minute),
		logger:       logger.OrGlobal(cfg.Logger, "project.detector"),
	}
}

// MarkerFile returns the sentinel file name this detector looks for.
func (d *Detector) MarkerFile() string {
	return d.markerFile
}

// FallbackRoot returns the root used for documents outside any project.
func (d *Detector) FallbackRoot() string {
	return d.fallbackRoot
}

// DetectProjectRoot returns the nearest directory at or above the document
// that contains the marker file, or the fallback root. It never fails: a
// path that does not exist resolves to the fallback.
func (d *Detector) DetectProjectRoot(fileURI string) string {
	if root, ok := d.cache.Get(fileURI); ok {
		return root.(string)
	}

	path, err := PathFromURI(fileURI)
	if err != nil {
		d.logger.Debugw("Cannot convert URI to path, using fallback root",
			logger.FieldURI, fileURI,
			logger.FieldError, err)
		return d.fallbackRoot
	}

	info, err := os.Stat(path)
	if err != nil {
		// not cached: the file may be created later
		d.logger.Debugw("Document path does not exist, using fallback root",
			logger.FieldPath, path,
			logger.FieldError, err)
		return d.fallbackRoot
	}

	dir := path
	if !info.IsDir() {
		dir = filepath.Dir(path)
	}

	root := d.walkUp(dir)
	d.cache.SetDefault(fileURI, root)
	return root
}

func (d *Detector) walkUp(dir string) string {
	for depth := 0; depth < d.maxDepth; depth++ {
		if _, err := os.Stat(filepath.Join(dir, d.markerFile)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}
	return d.fallbackRoot
}

// ClearCache forgets every cached lookup.
func (d *Detector) ClearCache() {
	d.cache.Flush()
}

// CacheLen returns the number of cached lookups.
func (d *Detector) CacheLen() int {
	return d.cache.ItemCount()
}

// PathFromURI converts a file:// URI to an absolute filesystem path. Plain
// paths are accepted and made absolute.
func PathFromURI(uri string) (string, error) {
	if !strings.Contains(uri, "://") {
		return filepath.Abs(uri)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", errors.Wrapf(err, "invalid URI %s", uri)
	}
	if u.Scheme != "file" {
		return "", errors.Wrapf(errors.ErrUnsupportedScheme, "not a file URI: %s", uri)
	}
	return filepath.Clean(filepath.FromSlash(u.Path)), nil
}

// PathToURI converts an absolute path to a file:// URI.
func PathToURI(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}
