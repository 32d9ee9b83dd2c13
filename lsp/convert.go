package lsp

import (
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/teranos/storyline/diagnostics"
	"github.com/teranos/storyline/internal/util"
	"github.com/teranos/storyline/textdoc"
)

func toPosition(p textdoc.Position) protocol.Position {
	return protocol.Position{
		Line:      protocol.UInteger(max(p.Line, 0)),
		Character: protocol.UInteger(max(p.Character, 0)),
	}
}

func toRange(r textdoc.Range) protocol.Range {
	return protocol.Range{Start: toPosition(r.Start), End: toPosition(r.End)}
}

func fromPosition(p protocol.Position) textdoc.Position {
	return textdoc.Position{Line: int(p.Line), Character: int(p.Character)}
}

// ToProtocolSeverity maps diagnostic severities to LSP values. The numbering
// differs: LSP counts error=1 up to hint=4.
func ToProtocolSeverity(s diagnostics.Severity) protocol.DiagnosticSeverity {
	switch s {
	case diagnostics.SeverityError:
		return protocol.DiagnosticSeverityError
	case diagnostics.SeverityWarning:
		return protocol.DiagnosticSeverityWarning
	case diagnostics.SeverityHint:
		return protocol.DiagnosticSeverityHint
	default:
		return protocol.DiagnosticSeverityInformation
	}
}

// ToProtocolDiagnostics converts diagnostics for publishing. The result is
// never nil, so an empty list clears the client's markers.
func ToProtocolDiagnostics(diags []diagnostics.Diagnostic) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(diags))
	for _, d := range diags {
		pd := protocol.Diagnostic{
			Range:    toRange(d.Range),
			Severity: util.Ptr(ToProtocolSeverity(d.Severity)),
			Source:   stringPtrOrNil(d.Source),
			Message:  d.Message,
		}
		if d.Code != "" {
			pd.Code = &protocol.IntegerOrString{Value: d.Code}
		}
		out = append(out, pd)
	}
	return out
}

func stringPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
