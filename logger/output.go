package logger

// Output controls what categories of CLI output are shown at each verbosity
// level. Log levels filter by severity; categories filter by kind of
// information, e.g. `storyline check` prints per-file timing only at -vv.
//
// Verbosity Levels:
//
//	0 (default) - diagnostics, errors with hints, final summary
//	1 (-v)      - + project resolution, entity counts, sources in use
//	2 (-vv)     - + timing, per-source diagnostic counts, config values

// OutputCategory defines a category of output that can be enabled/disabled
type OutputCategory int

const (
	// Level 0 (default) - Always shown
	OutputResults OutputCategory = iota // Diagnostics, entity listings
	OutputErrors                        // Errors with hints
	OutputSummary                       // Final pass/fail line

	// Level 1 (-v) - Informational
	OutputProject // Resolved project root and entity counts
	OutputSources // Which diagnostic sources are available

	// Level 2 (-vv) - Detailed
	OutputTiming // Per-file generation time
	OutputConfig // Effective config values
)

// categoryLevels maps each output category to its minimum verbosity level
var categoryLevels = map[OutputCategory]int{
	OutputResults: VerbosityUser,
	OutputErrors:  VerbosityUser,
	OutputSummary: VerbosityUser,

	OutputProject: VerbosityInfo,
	OutputSources: VerbosityInfo,

	OutputTiming: VerbosityDebug,
	OutputConfig: VerbosityDebug,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		return verbosity >= VerbosityDebug
	}
	return verbosity >= minLevel
}

// CategoryName returns the human-readable name for an output category
func CategoryName(category OutputCategory) string {
	switch category {
	case OutputResults:
		return "results"
	case OutputErrors:
		return "errors"
	case OutputSummary:
		return "summary"
	case OutputProject:
		return "project"
	case OutputSources:
		return "sources"
	case OutputTiming:
		return "timing"
	case OutputConfig:
		return "config"
	}
	return "unknown"
}
