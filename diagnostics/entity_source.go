package diagnostics

import (
	"context"
	"fmt"
	"strings"

	"github.com/teranos/storyline/entity"
	"github.com/teranos/storyline/project"
	"github.com/teranos/storyline/textdoc"
	"gopkg.in/yaml.v3"
)

// EntitySourceName identifies diagnostics produced by EntitySource.
const EntitySourceName = "storyline"

// Diagnostic codes of EntitySource.
const (
	CodeUnknownEntity      = "unknown-entity"
	CodeWrongKind          = "wrong-kind"
	CodeUndeclaredMention  = "undeclared-mention"
	CodeInvalidFrontmatter = "invalid-frontmatter"
)

// ContextProvider supplies the entity context of a project.
type ContextProvider interface {
	GetContext(ctx context.Context, projectRoot string) (*project.ProjectContext, error)
}

// EntitySource checks manuscript frontmatter against the project's
// entities: every referenced id must exist with the right kind, and every
// entity mentioned in the body should be declared under its kind's key when
// that key is present.
type EntitySource struct {
	contexts ContextProvider
}

// NewEntitySource creates the built-in consistency source.
func NewEntitySource(contexts ContextProvider) *EntitySource {
	return &EntitySource{contexts: contexts}
}

// Name implements Source.
func (s *EntitySource) Name() string { return EntitySourceName }

// IsAvailable implements Source; the consistency check always runs.
func (s *EntitySource) IsAvailable(string) bool { return true }

// frontmatterRef is one entity id listed in frontmatter
type frontmatterRef struct {
	kind entity.Kind
	id   string
	rng  textdoc.Range
}

// Generate implements Source.
func (s *EntitySource) Generate(ctx context.Context, uri, content, projectRoot string) ([]Diagnostic, error) {
	if textdoc.SyntaxForPath(uri) != textdoc.SyntaxMarkdown {
		return nil, nil
	}
	lines := textdoc.Lines(content)
	fm, ok := textdoc.FindFrontmatter(lines)
	if !ok {
		return nil, nil
	}

	refs, keys, err := frontmatterRefs(lines, fm)
	if err != nil {
		return []Diagnostic{{
			Range:    textdoc.LineRange(0, 0, textdoc.UTF16Len(lines[0])),
			Message:  fmt.Sprintf("Frontmatter is not valid YAML: %v", err),
			Severity: SeverityWarning,
			Source:   EntitySourceName,
			Code:     CodeInvalidFrontmatter,
		}}, nil
	}

	pc, err := s.contexts.GetContext(ctx, projectRoot)
	if err != nil {
		return nil, err
	}

	var diags []Diagnostic
	declared := make(map[string]bool, len(refs))
	for _, ref := range refs {
		declared[ref.id] = true
		e, found := pc.Index.Get(ref.id)
		switch {
		case !found:
			diags = append(diags, Diagnostic{
				Range:    ref.rng,
				Message:  fmt.Sprintf("Unknown %s %q", ref.kind, ref.id),
				Severity: SeverityWarning,
				Source:   EntitySourceName,
				Code:     CodeUnknownEntity,
			})
		case e.Kind != ref.kind:
			diags = append(diags, Diagnostic{
				Range:    ref.rng,
				Message:  fmt.Sprintf("%q is a %s, not a %s", ref.id, e.Kind, ref.kind),
				Severity: SeverityWarning,
				Source:   EntitySourceName,
				Code:     CodeWrongKind,
			})
		}
	}

	reported := make(map[string]bool)
	for _, m := range pc.Detector.DetectAll(content) {
		if m.InFrontmatter || !keys[m.Entity.Kind] || declared[m.Entity.ID] || reported[m.Entity.ID] {
			continue
		}
		reported[m.Entity.ID] = true
		diags = append(diags, Diagnostic{
			Range: m.Range,
			Message: fmt.Sprintf("%s (%s) is mentioned but not listed in %s",
				m.Entity.DisplayName(), m.Entity.ID, m.Entity.Kind.FrontmatterKey()),
			Severity: SeverityInfo,
			Source:   EntitySourceName,
			Code:     CodeUndeclaredMention,
		})
	}
	return diags, nil
}

// frontmatterRefs parses the frontmatter body and returns every id listed
// under an entity key, plus the set of kinds whose key is present.
func frontmatterRefs(lines []string, fm textdoc.Frontmatter) ([]frontmatterRef, map[entity.Kind]bool, error) {
	body := strings.Join(lines[fm.Start:fm.End], "\n")
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(body), &doc); err != nil {
		return nil, nil, err
	}

	keys := make(map[entity.Kind]bool)
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, keys, nil
	}

	var refs []frontmatterRef
	add := func(kind entity.Kind, n *yaml.Node) {
		if n.Kind != yaml.ScalarNode || n.Tag == "!!null" || n.Value == "" {
			return
		}
		refs = append(refs, frontmatterRef{kind: kind, id: n.Value, rng: nodeRange(lines, fm, n)})
	}

	mapping := doc.Content[0]
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key, val := mapping.Content[i], mapping.Content[i+1]
		kind, ok := entity.KindForFrontmatterKey(key.Value)
		if !ok {
			continue
		}
		keys[kind] = true
		switch val.Kind {
		case yaml.ScalarNode:
			add(kind, val)
		case yaml.SequenceNode:
			for _, item := range val.Content {
				add(kind, item)
			}
		}
	}
	return refs, keys, nil
}

// nodeRange converts a yaml node position (1-based line and rune column
// within the frontmatter body) to a document range.
func nodeRange(lines []string, fm textdoc.Frontmatter, n *yaml.Node) textdoc.Range {
	line := fm.Start + n.Line - 1
	if line < 0 || line >= len(lines) {
		return textdoc.LineRange(fm.Start, 0, 0)
	}
	col := n.Column - 1
	if n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) != 0 {
		col++
	}
	start := textdoc.RuneToUTF16(lines[line], col)
	return textdoc.LineRange(line, start, start+textdoc.UTF16Len(n.Value))
}
