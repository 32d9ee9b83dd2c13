package flight

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/storyline/errors"
)

type snapshot struct {
	root string
}

func TestGetOrLoad_SingleFlight(t *testing.T) {
	c := New[*snapshot]()

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(ctx context.Context, key string) (*snapshot, error) {
		calls.Add(1)
		<-release
		return &snapshot{root: key}, nil
	}

	var wg sync.WaitGroup
	results := make([]*snapshot, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "/novel", load)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	require.Eventually(t, func() bool { return c.Pending("/novel") }, time.Second, time.Millisecond)
	// give the second caller time to attach to the pending load
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	require.NotNil(t, results[0])
	assert.Same(t, results[0], results[1])
	assert.False(t, c.Pending("/novel"))

	cached, ok := c.Get("/novel")
	require.True(t, ok)
	assert.Same(t, results[0], cached)
}

func TestGetOrLoad_CachedValueSkipsLoad(t *testing.T) {
	c := New[*snapshot]()
	var calls atomic.Int32
	load := func(ctx context.Context, key string) (*snapshot, error) {
		calls.Add(1)
		return &snapshot{root: key}, nil
	}

	first, err := c.GetOrLoad(context.Background(), "a", load)
	require.NoError(t, err)
	second, err := c.GetOrLoad(context.Background(), "a", load)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestGetOrLoad_ErrorNotCached(t *testing.T) {
	c := New[*snapshot]()
	var calls atomic.Int32
	boom := errors.New("disk unplugged")
	load := func(ctx context.Context, key string) (*snapshot, error) {
		if calls.Add(1) == 1 {
			return nil, boom
		}
		return &snapshot{root: key}, nil
	}

	_, err := c.GetOrLoad(context.Background(), "a", load)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	v, err := c.GetOrLoad(context.Background(), "a", load)
	require.NoError(t, err)
	assert.Equal(t, "a", v.root)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClear_ForcesReload(t *testing.T) {
	c := New[*snapshot]()
	var calls atomic.Int32
	load := func(ctx context.Context, key string) (*snapshot, error) {
		calls.Add(1)
		return &snapshot{root: key}, nil
	}

	first, err := c.GetOrLoad(context.Background(), "a", load)
	require.NoError(t, err)

	c.Clear()
	assert.Equal(t, 0, c.Len())

	second, err := c.GetOrLoad(context.Background(), "a", load)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClear_DetachesPendingLoad(t *testing.T) {
	c := New[*snapshot]()
	release := make(chan struct{})
	var calls atomic.Int32
	load := func(ctx context.Context, key string) (*snapshot, error) {
		if calls.Add(1) == 1 {
			<-release
		}
		return &snapshot{root: key}, nil
	}

	staleCh := make(chan *snapshot, 1)
	go func() {
		v, _ := c.GetOrLoad(context.Background(), "a", load)
		staleCh <- v
	}()
	require.Eventually(t, func() bool { return c.Pending("a") }, time.Second, time.Millisecond)

	c.Clear()
	assert.False(t, c.Pending("a"))

	// a request after Clear starts its own load rather than joining the stale one
	fresh, err := c.GetOrLoad(context.Background(), "a", load)
	require.NoError(t, err)

	close(release)
	stale := <-staleCh
	require.NotNil(t, stale)
	assert.NotSame(t, fresh, stale)

	cached, ok := c.Get("a")
	require.True(t, ok)
	assert.Same(t, fresh, cached, "stale load must not overwrite the fresh value")
}

func TestGetOrLoad_CallerContextBoundsWait(t *testing.T) {
	c := New[*snapshot]()
	release := make(chan struct{})
	defer close(release)
	load := func(ctx context.Context, key string) (*snapshot, error) {
		<-release
		return &snapshot{root: key}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.GetOrLoad(ctx, "slow", load)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, c.Pending("slow"), "load keeps running for other callers")
}

func TestDelete(t *testing.T) {
	c := New[*snapshot]()
	load := func(ctx context.Context, key string) (*snapshot, error) {
		return &snapshot{root: key}, nil
	}
	_, err := c.GetOrLoad(context.Background(), "a", load)
	require.NoError(t, err)
	_, err = c.GetOrLoad(context.Background(), "b", load)
	require.NoError(t, err)

	c.Delete("a")

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
}
