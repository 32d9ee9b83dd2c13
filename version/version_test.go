package version

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.NotEmpty(t, info.Version)
}

func TestInfoString(t *testing.T) {
	info := Info{Version: "v0.3.0", CommitHash: "0123456789abcdef", BuildTime: "2024-05-01"}
	assert.Equal(t, "storyline v0.3.0 (commit 0123456, built 2024-05-01)", info.String())
	assert.Equal(t, "0123456", info.Short())
	assert.Equal(t, "dev", Info{CommitHash: "dev"}.Short())

	info.Dirty = true
	assert.Equal(t, "storyline v0.3.0 (commit 0123456+dirty, built 2024-05-01)", info.String())
}

func TestFillFrom(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/teranos/storyline", Version: "v0.4.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "fedcba9876543210"},
			{Key: "vcs.time", Value: "2024-06-02T10:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	t.Run("placeholders are filled", func(t *testing.T) {
		info := Info{Version: "dev", CommitHash: "dev", BuildTime: "unknown"}
		info.fillFrom(bi)
		assert.Equal(t, "v0.4.1", info.Version)
		assert.Equal(t, "fedcba9876543210", info.CommitHash)
		assert.Equal(t, "2024-06-02T10:00:00Z", info.BuildTime)
		assert.True(t, info.Dirty)
		assert.Equal(t, "github.com/teranos/storyline", info.Module)
	})

	t.Run("ldflags win", func(t *testing.T) {
		info := Info{Version: "v1.0.0", CommitHash: "abc1234", BuildTime: "release"}
		info.fillFrom(bi)
		assert.Equal(t, "v1.0.0", info.Version)
		assert.Equal(t, "abc1234", info.CommitHash)
		assert.Equal(t, "release", info.BuildTime)
	})

	t.Run("devel module version is ignored", func(t *testing.T) {
		info := Info{Version: "dev", CommitHash: "dev", BuildTime: "unknown"}
		info.fillFrom(&debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
		assert.Equal(t, "dev", info.Version)
		assert.False(t, info.Dirty)
	})
}
