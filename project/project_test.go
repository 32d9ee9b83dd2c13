package project

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/storyline/entity"
	"github.com/teranos/storyline/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDetectProjectRoot(t *testing.T) {
	base := t.TempDir()
	fallback := filepath.Join(base, "fallback")
	require.NoError(t, os.MkdirAll(fallback, 0o755))

	project := filepath.Join(base, "rootA", "sub", "project")
	hero := filepath.Join(project, "src", "characters", "hero.ts")
	writeFile(t, filepath.Join(project, DefaultMarkerFile), "")
	writeFile(t, hero, "export const hero = {}")

	sibling := filepath.Join(base, "rootA", "sub", "other", "villain.ts")
	writeFile(t, sibling, "export const villain = {}")

	d := NewDetector(DetectorConfig{FallbackRoot: fallback, Logger: zap.NewNop().Sugar()})

	t.Run("file URI inside project", func(t *testing.T) {
		assert.Equal(t, project, d.DetectProjectRoot(PathToURI(hero)))
	})

	t.Run("plain path inside project", func(t *testing.T) {
		assert.Equal(t, project, d.DetectProjectRoot(hero))
	})

	t.Run("directory is its own start", func(t *testing.T) {
		assert.Equal(t, project, d.DetectProjectRoot(PathToURI(project)))
	})

	t.Run("no marker above", func(t *testing.T) {
		assert.Equal(t, fallback, d.DetectProjectRoot(PathToURI(sibling)))
	})

	t.Run("nonexistent path", func(t *testing.T) {
		missing := filepath.Join(project, "nope", "gone.md")
		assert.Equal(t, fallback, d.DetectProjectRoot(PathToURI(missing)))
	})

	t.Run("non-file scheme", func(t *testing.T) {
		assert.Equal(t, fallback, d.DetectProjectRoot("untitled:Untitled-1"))
	})
}

func TestDetectProjectRoot_NearestMarkerWins(t *testing.T) {
	base := t.TempDir()
	outer := filepath.Join(base, "series")
	inner := filepath.Join(outer, "book1")
	writeFile(t, filepath.Join(outer, DefaultMarkerFile), "")
	writeFile(t, filepath.Join(inner, DefaultMarkerFile), "")
	chapter := filepath.Join(inner, "chapters", "01.md")
	writeFile(t, chapter, "# 1")

	d := NewDetector(DetectorConfig{FallbackRoot: base})

	assert.Equal(t, inner, d.DetectProjectRoot(PathToURI(chapter)))
}

func TestDetectProjectRoot_DepthBound(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, DefaultMarkerFile), "")
	deep := filepath.Join(base, "a", "b", "c", "d")
	file := filepath.Join(deep, "x.md")
	writeFile(t, file, "")

	fallback := t.TempDir()

	shallow := NewDetector(DetectorConfig{FallbackRoot: fallback, MaxSearchDepth: 3})
	assert.Equal(t, fallback, shallow.DetectProjectRoot(file), "marker is four directories above the start")

	enough := NewDetector(DetectorConfig{FallbackRoot: fallback, MaxSearchDepth: 5})
	assert.Equal(t, base, enough.DetectProjectRoot(file))
}

func TestDetectProjectRoot_CacheAndClear(t *testing.T) {
	base := t.TempDir()
	fallback := t.TempDir()
	file := filepath.Join(base, "draft.md")
	writeFile(t, file, "")

	d := NewDetector(DetectorConfig{FallbackRoot: fallback})
	uri := PathToURI(file)

	assert.Equal(t, fallback, d.DetectProjectRoot(uri))
	assert.Equal(t, 1, d.CacheLen())

	// a marker added later is not seen until the cache is cleared
	writeFile(t, filepath.Join(base, DefaultMarkerFile), "")
	assert.Equal(t, fallback, d.DetectProjectRoot(uri))

	d.ClearCache()
	assert.Equal(t, 0, d.CacheLen())
	assert.Equal(t, base, d.DetectProjectRoot(uri))
}

func TestPathFromURI(t *testing.T) {
	p, err := PathFromURI("file:///tmp/novel/ch%201.md")
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/tmp/novel/ch 1.md"), p)

	_, err = PathFromURI("https://example.com/a.md")
	assert.True(t, errors.Is(err, errors.ErrUnsupportedScheme))
}

func TestLoadMarker(t *testing.T) {
	root := t.TempDir()

	_, err := LoadMarker(root, "")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))

	writeFile(t, filepath.Join(root, DefaultMarkerFile), `
name = "灰かぶり姫"

[entities]
characters = "cast"
timeline = "events"
unknown = "ignored"

[linter]
command = "textlint --cache"
`)
	cfg, err := LoadMarker(root, "")
	require.NoError(t, err)
	assert.Equal(t, "灰かぶり姫", cfg.Name)
	assert.Equal(t, "textlint --cache", cfg.Linter.Command)
	assert.Equal(t, map[entity.Kind]string{
		entity.KindCharacter: "cast",
		entity.KindTimeline:  "events",
	}, cfg.EntityDirs())
}

func TestLoadMarker_EmptyFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, DefaultMarkerFile), "")

	cfg, err := LoadMarker(root, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(root), cfg.Name)
	assert.Nil(t, cfg.EntityDirs())
}

func TestLoadMarker_Malformed(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, DefaultMarkerFile), "name = ")

	_, err := LoadMarker(root, "")
	require.Error(t, err)
	assert.False(t, errors.IsNotFoundError(err))
}

func TestGetContext_SingleFlight(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	loader := entity.LoaderFunc(func(ctx context.Context, root string) ([]entity.DetectableEntity, error) {
		calls.Add(1)
		<-release
		return []entity.DetectableEntity{
			{Kind: entity.KindCharacter, ID: "hero", CanonicalName: "勇者"},
		}, nil
	})

	m := NewContextManager(ManagerConfig{Loader: loader, Logger: zap.NewNop().Sugar()})
	root := t.TempDir()

	var wg sync.WaitGroup
	results := make([]*ProjectContext, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pc, err := m.GetContext(context.Background(), root)
			assert.NoError(t, err)
			results[i] = pc
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	require.NotNil(t, results[0])
	assert.Same(t, results[0], results[1])
}

func TestGetContext_BuildsInfoMap(t *testing.T) {
	loader := entity.LoaderFunc(func(ctx context.Context, root string) ([]entity.DetectableEntity, error) {
		return []entity.DetectableEntity{
			{Kind: entity.KindCharacter, ID: "hero", CanonicalName: "勇者", Role: "protagonist", Summary: "村の少年"},
			{Kind: entity.KindForeshadowing, ID: "sword", CanonicalName: "折れた剣", Status: entity.StatusPlanted},
			{Kind: entity.KindCharacter, ID: "hero", CanonicalName: "偽者"},
		}, nil
	})
	m := NewContextManager(ManagerConfig{Loader: loader})
	root := t.TempDir()

	pc, err := m.GetContext(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, root, pc.ProjectRoot)
	require.Len(t, pc.Entities, 2, "duplicate id dropped")
	assert.Equal(t, EntityInfo{
		ID: "hero", Kind: entity.KindCharacter, Name: "勇者", Role: "protagonist", Summary: "村の少年",
	}, pc.EntityInfoMap["hero"])
	info, ok := pc.Info("sword")
	require.True(t, ok)
	assert.Equal(t, entity.StatusPlanted, info.Status)

	matches := pc.Detector.DetectAll("勇者は折れた剣を抜いた")
	assert.Len(t, matches, 2)
}

func TestGetContext_EmptyProject(t *testing.T) {
	m := NewContextManager(ManagerConfig{})
	root := t.TempDir()

	pc, err := m.GetContext(context.Background(), root)
	require.NoError(t, err)
	assert.NotNil(t, pc.Entities)
	assert.Empty(t, pc.Entities)
	assert.Empty(t, pc.EntityInfoMap)
	assert.Empty(t, pc.Detector.DetectAll("anything"))
}

func TestGetContext_MarkerEntityDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, DefaultMarkerFile), "name = \"saga\"\n[entities]\ncharacters = \"cast\"\n")
	writeFile(t, filepath.Join(root, "cast", "hero.yaml"), "id: hero\nname: 勇者\n")
	writeFile(t, filepath.Join(root, "characters", "ignored.yaml"), "id: ignored\nname: 無視\n")

	m := NewContextManager(ManagerConfig{})
	pc, err := m.GetContext(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, "saga", pc.Name)
	require.NotNil(t, pc.Marker)
	require.Len(t, pc.Entities, 1)
	assert.Equal(t, "hero", pc.Entities[0].ID)
}

func TestGetContext_ClearCacheReloads(t *testing.T) {
	var calls atomic.Int32
	loader := entity.LoaderFunc(func(ctx context.Context, root string) ([]entity.DetectableEntity, error) {
		calls.Add(1)
		return nil, nil
	})
	m := NewContextManager(ManagerConfig{Loader: loader})
	root := t.TempDir()

	first, err := m.GetContext(context.Background(), root)
	require.NoError(t, err)
	again, err := m.GetContext(context.Background(), root)
	require.NoError(t, err)
	assert.Same(t, first, again)

	m.ClearCache()
	_, ok := m.Cached(root)
	assert.False(t, ok)

	reloaded, err := m.GetContext(context.Background(), root)
	require.NoError(t, err)
	assert.NotSame(t, first, reloaded)
	assert.Equal(t, int32(2), calls.Load())

	m.Invalidate(root)
	_, ok = m.Cached(root)
	assert.False(t, ok)
}

func TestGetContext_LoaderErrorNotCached(t *testing.T) {
	var calls atomic.Int32
	loader := entity.LoaderFunc(func(ctx context.Context, root string) ([]entity.DetectableEntity, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("permission denied")
		}
		return nil, nil
	})
	m := NewContextManager(ManagerConfig{Loader: loader})
	root := t.TempDir()

	_, err := m.GetContext(context.Background(), root)
	require.Error(t, err)

	_, err = m.GetContext(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}
