// Package version reports how the storyline binary was built.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Release builds stamp these through ldflags:
//
//	-X github.com/teranos/storyline/version.Version=v0.3.0
//
// Anything left unset is filled from the build info the Go toolchain embeds,
// so `go install` binaries still identify themselves.
var (
	Version    = "dev"
	CommitHash = "dev"
	BuildTime  = "unknown"
)

// Info describes one binary.
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	// Dirty is set when the tree had uncommitted changes at build time
	Dirty     bool   `json:"dirty,omitempty"`
	Module    string `json:"module,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the running binary's build information.
func Get() Info {
	info := Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.fillFrom(bi)
	}
	return info
}

// fillFrom completes fields ldflags left at their placeholders.
func (i *Info) fillFrom(bi *debug.BuildInfo) {
	i.Module = bi.Main.Path
	if i.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		i.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.CommitHash == "dev" {
				i.CommitHash = s.Value
			}
		case "vcs.time":
			if i.BuildTime == "unknown" {
				i.BuildTime = s.Value
			}
		case "vcs.modified":
			i.Dirty = s.Value == "true"
		}
	}
}

// String is the one-line form printed by `storyline version`.
func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "storyline %s (commit %s", i.Version, i.Short())
	if i.Dirty {
		b.WriteString("+dirty")
	}
	fmt.Fprintf(&b, ", built %s)", i.BuildTime)
	return b.String()
}

// Short abbreviates the commit hash to seven characters.
func (i Info) Short() string {
	if len(i.CommitHash) > 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}
