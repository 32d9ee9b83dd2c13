// Package diagnostics aggregates consistency findings from pluggable sources
// into one list per document. A failing source never hides the results of
// its siblings.
package diagnostics

import (
	"context"

	"github.com/teranos/storyline/textdoc"
)

// Severity of a diagnostic. The numbering is the one consumers of this
// package rely on; the LSP layer maps it to protocol values.
type Severity int

const (
	SeverityInfo    Severity = 0
	SeverityWarning Severity = 1
	SeverityError   Severity = 2
	SeverityHint    Severity = 3
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityHint:
		return "hint"
	}
	return "unknown"
}

// Diagnostic is one finding in a document.
type Diagnostic struct {
	Range    textdoc.Range `json:"range"`
	Message  string        `json:"message"`
	Severity Severity      `json:"severity"`
	// Source is the name of the producing DiagnosticSource
	Source string `json:"source"`
	// Code identifies the rule, e.g. a textlint rule id
	Code string `json:"code,omitempty"`
}

// Source produces diagnostics for a document.
type Source interface {
	Name() string

	// IsAvailable reports whether the source can run for documents in
	// projectRoot. Unavailable sources are skipped.
	IsAvailable(projectRoot string) bool

	Generate(ctx context.Context, uri, content, projectRoot string) ([]Diagnostic, error)
}

// Canceler is implemented by sources with work that can be stopped early.
type Canceler interface {
	Cancel()
}

// Disposer is implemented by sources that hold resources.
type Disposer interface {
	Dispose()
}

// Forgetter is implemented by sources that keep per-document state.
type Forgetter interface {
	Forget(uri string)
}

// HasErrors reports whether any diagnostic is an error.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
