// Package textdoc holds the position model shared by detection, lexical
// analysis and diagnostics: zero-based lines, UTF-16 code-unit characters
// (the LSP convention), frontmatter blocks and host syntax.
package textdoc

import (
	"path/filepath"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Position is a zero-based line and UTF-16 character offset.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open span [Start, End).
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Contains reports whether p lies in [Start, End).
func (r Range) Contains(p Position) bool {
	if p.Line < r.Start.Line || p.Line > r.End.Line {
		return false
	}
	if p.Line == r.Start.Line && p.Character < r.Start.Character {
		return false
	}
	if p.Line == r.End.Line && p.Character >= r.End.Character {
		return false
	}
	return true
}

// LineRange is a range on a single line.
func LineRange(line, start, end int) Range {
	return Range{
		Start: Position{Line: line, Character: start},
		End:   Position{Line: line, Character: end},
	}
}

// Lines splits content on "\n" and strips a trailing "\r" from each line.
// Empty content has no lines.
func Lines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// UTF16Len is the length of s in UTF-16 code units.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// ByteToUTF16 converts a byte offset within line to a UTF-16 offset.
func ByteToUTF16(line string, byteOff int) int {
	if byteOff > len(line) {
		byteOff = len(line)
	}
	if byteOff < 0 {
		return 0
	}
	return UTF16Len(line[:byteOff])
}

// UTF16ToByte converts a UTF-16 offset within line to a byte offset.
// Offsets past the end clamp to len(line) and report false. An offset that
// falls inside a surrogate pair resolves to the start of that rune.
func UTF16ToByte(line string, col int) (int, bool) {
	if col < 0 {
		return 0, false
	}
	units := 0
	for i, r := range line {
		if units >= col {
			return i, true
		}
		units += utf16.RuneLen(r)
		if units > col {
			return i, true
		}
	}
	return len(line), units == col
}

// RuneIndex converts a UTF-16 offset within line to a rune index.
func RuneIndex(line string, col int) int {
	b, _ := UTF16ToByte(line, col)
	return utf8.RuneCountInString(line[:b])
}

// RuneToUTF16 converts a rune index within line to a UTF-16 offset. Indexes
// past the end clamp to the line length.
func RuneToUTF16(line string, runeIdx int) int {
	units := 0
	for i, r := range []rune(line) {
		if i >= runeIdx {
			break
		}
		units += utf16.RuneLen(r)
	}
	return units
}

// Frontmatter locates a leading "---" delimited block. Body lines are
// lines[Start:End]; Start is the line after the opening delimiter and End
// is the closing delimiter line.
type Frontmatter struct {
	Start int
	End   int
}

// Contains reports whether line lies inside the frontmatter body.
func (f Frontmatter) Contains(line int) bool {
	return line >= f.Start && line < f.End
}

// FindFrontmatter returns the frontmatter block of lines, if any. The block
// must open on the first line and be closed by "---" or "...".
func FindFrontmatter(lines []string) (Frontmatter, bool) {
	if len(lines) == 0 || strings.TrimRight(lines[0], " \t") != "---" {
		return Frontmatter{}, false
	}
	for i := 1; i < len(lines); i++ {
		trimmed := strings.TrimRight(lines[i], " \t")
		if trimmed == "---" || trimmed == "..." {
			return Frontmatter{Start: 1, End: i}, true
		}
	}
	return Frontmatter{}, false
}

// Syntax is the host syntax of a document.
type Syntax string

const (
	SyntaxCode     Syntax = "code"
	SyntaxYAML     Syntax = "yaml"
	SyntaxJSON     Syntax = "json"
	SyntaxMarkdown Syntax = "markdown"
)

// SyntaxForPath guesses the syntax from a path or URI extension. Unknown
// extensions are treated as prose.
func SyntaxForPath(path string) Syntax {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return SyntaxYAML
	case ".json", ".jsonc":
		return SyntaxJSON
	case ".ts", ".tsx", ".js", ".jsx", ".mjs", ".go", ".py", ".rs":
		return SyntaxCode
	default:
		return SyntaxMarkdown
	}
}
