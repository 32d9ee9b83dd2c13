// Package detect finds positioned mentions of indexed entities in manuscript
// text and frontmatter.
package detect

import (
	"regexp"
	"strings"

	"github.com/teranos/storyline/entity"
	"github.com/teranos/storyline/textdoc"
)

// PositionedMatch is one occurrence of an entity term in a document.
type PositionedMatch struct {
	Entity *entity.DetectableEntity `json:"entity"`
	Range  textdoc.Range            `json:"range"`
	// Text is the matched term as it appears in the document
	Text string `json:"text"`
	// InFrontmatter is true when the match lies inside the frontmatter block
	InFrontmatter bool `json:"inFrontmatter,omitempty"`
}

var (
	// frontmatterKey matches `key:` at the start of a YAML line, optionally as a list item
	frontmatterKey  = regexp.MustCompile(`^\s*(?:-\s+)?[^\s#:'"\[\]{},][^:#]*?\s*:(?:\s|$)`)
	frontmatterItem = regexp.MustCompile(`^\s*-(?:\s|$)`)
)

// valueOffset is the byte offset where the value part of a frontmatter line
// begins. Keys never name entities.
func valueOffset(line string) int {
	if loc := frontmatterKey.FindStringIndex(line); loc != nil {
		return loc[1]
	}
	if loc := frontmatterItem.FindStringIndex(line); loc != nil {
		return loc[1]
	}
	return 0
}

// matcher is one compiled alternation over a vocabulary
type matcher struct {
	re    *regexp.Regexp
	owner map[string]*entity.DetectableEntity
	// wholeWord rejects matches glued to identifier characters, for ids
	wholeWord bool
}

func newMatcher(terms []entity.Term) *matcher {
	if len(terms) == 0 {
		return &matcher{}
	}
	parts := make([]string, len(terms))
	owner := make(map[string]*entity.DetectableEntity, len(terms))
	for i, t := range terms {
		parts[i] = regexp.QuoteMeta(t.Text)
		owner[t.Text] = t.Entity
	}
	// RE2 alternation is leftmost-first: at a given start offset the earliest
	// alternative wins, so terms must already be ordered longest first.
	return &matcher{
		re:    regexp.MustCompile(strings.Join(parts, "|")),
		owner: owner,
	}
}

// scanLine returns every non-overlapping match on one line. In frontmatter
// only the value part after the key is scanned.
func (m *matcher) scanLine(line string, lineNo int, inFrontmatter bool) []PositionedMatch {
	if m.re == nil || line == "" {
		return nil
	}
	from := 0
	if inFrontmatter {
		from = valueOffset(line)
	}
	locs := m.re.FindAllStringIndex(line[from:], -1)
	if len(locs) == 0 {
		return nil
	}
	out := make([]PositionedMatch, 0, len(locs))
	for _, loc := range locs {
		loc[0] += from
		loc[1] += from
		text := line[loc[0]:loc[1]]
		ent := m.owner[text]
		if ent == nil {
			continue
		}
		if m.wholeWord && (isIDByteAt(line, loc[0]-1) || isIDByteAt(line, loc[1])) {
			continue
		}
		out = append(out, PositionedMatch{
			Entity:        ent,
			Range:         textdoc.LineRange(lineNo, textdoc.ByteToUTF16(line, loc[0]), textdoc.ByteToUTF16(line, loc[1])),
			Text:          text,
			InFrontmatter: inFrontmatter,
		})
	}
	return out
}

// Detector scans text for entity mentions. It is immutable once built and
// safe for concurrent use; build one per EntityIndex.
type Detector struct {
	index *entity.Index
	body  *matcher
	// front also matches entity ids, so "characters: [hero]" is locatable
	front *matcher
}

// NewDetector compiles matchers for the vocabulary of idx.
func NewDetector(idx *entity.Index) *Detector {
	return &Detector{
		index: idx,
		body:  newMatcher(idx.Vocabulary()),
		front: newIDMatcher(idx.IDVocabulary()),
	}
}

func newIDMatcher(terms []entity.Term) *matcher {
	m := newMatcher(terms)
	m.wholeWord = true
	return m
}

// isIDByteAt reports whether line[i] exists and can be part of an id.
func isIDByteAt(line string, i int) bool {
	if i < 0 || i >= len(line) {
		return false
	}
	c := line[i]
	return c == '_' || c == '-' ||
		(c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
		c >= 0x80
}

// Index returns the entity index the detector was built from.
func (d *Detector) Index() *entity.Index {
	return d.index
}

// DetectAll returns every entity mention in content in document order. The
// result is deterministic for identical content and index. Empty content
// yields an empty result.
func (d *Detector) DetectAll(content string) []PositionedMatch {
	lines := textdoc.Lines(content)
	fm, hasFM := textdoc.FindFrontmatter(lines)

	matches := []PositionedMatch{}
	for i, line := range lines {
		if hasFM && fm.Contains(i) {
			matches = append(matches, d.front.scanLine(line, i, true)...)
			continue
		}
		matches = append(matches, d.body.scanLine(line, i, false)...)
	}
	return matches
}

// ResolveAtPosition returns the mention whose range contains pos. A position
// on the end boundary of a mention also resolves to it when no mention
// starts there, so a cursor placed right after a name still hovers it.
func (d *Detector) ResolveAtPosition(content string, pos textdoc.Position) (*PositionedMatch, bool) {
	lines := textdoc.Lines(content)
	if pos.Line < 0 || pos.Line >= len(lines) || pos.Character < 0 {
		return nil, false
	}

	m := d.body
	inFM := false
	if fm, ok := textdoc.FindFrontmatter(lines); ok && fm.Contains(pos.Line) {
		m = d.front
		inFM = true
	}

	candidates := m.scanLine(lines[pos.Line], pos.Line, inFM)
	for i := range candidates {
		if candidates[i].Range.Contains(pos) {
			return &candidates[i], true
		}
	}
	for i := range candidates {
		if candidates[i].Range.End.Character == pos.Character {
			return &candidates[i], true
		}
	}
	return nil, false
}

// Mentioned returns the distinct entities mentioned in content in first-seen order.
func (d *Detector) Mentioned(content string) []*entity.DetectableEntity {
	var out []*entity.DetectableEntity
	seen := make(map[string]bool)
	for _, m := range d.DetectAll(content) {
		if seen[m.Entity.ID] {
			continue
		}
		seen[m.Entity.ID] = true
		out = append(out, m.Entity)
	}
	return out
}
