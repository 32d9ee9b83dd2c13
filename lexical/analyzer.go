// Package lexical classifies the lexical context at a cursor position so
// completion and hover providers know whether the user is typing inside a
// string value and which field that value belongs to.
package lexical

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/teranos/storyline/textdoc"
)

// maxLookbackLines bounds the upward search for an enclosing key
const maxLookbackLines = 50

// Context is the lexical context of one cursor position. StringStart and
// StringEnd are UTF-16 offsets on the cursor line: StringStart is the first
// character of the value and StringEnd the offset of its closing quote (or
// end of a plain YAML scalar). StringEnd is -1 for an unterminated string,
// meaning the user is still typing it. Both are -1 outside a string.
type Context struct {
	InStringLiteral bool           `json:"inStringLiteral"`
	FieldName       string         `json:"fieldName,omitempty"`
	StringStart     int            `json:"stringStart"`
	StringEnd       int            `json:"stringEnd"`
	Syntax          textdoc.Syntax `json:"fileSyntax"`
	InFrontmatter   bool           `json:"inFrontmatter,omitempty"`
}

func outside(syntax textdoc.Syntax) Context {
	return Context{StringStart: -1, StringEnd: -1, Syntax: syntax}
}

var (
	// codeKeyPattern matches `name:` / `"name":` / `'name':`
	codeKeyPattern = regexp.MustCompile(`["']?([\p{L}_$][\p{L}\p{N}_$-]*)["']?\s*:`)
	// yamlKeyPattern matches `key:` at the start of a YAML line, optionally as a list item
	yamlKeyPattern  = regexp.MustCompile(`^(\s*)(?:-\s+)?([^\s#:'"\[\]{},][^:#]*?)\s*(:)(?:\s|$)`)
	yamlItemPattern = regexp.MustCompile(`^(\s*)-(?:\s|$)`)
)

// Analyze classifies the context at (line, character) of content. It never
// panics: a position that cannot be analyzed yields InStringLiteral false.
func Analyze(content string, line, character int, syntax textdoc.Syntax) (result Context) {
	defer func() {
		if r := recover(); r != nil {
			result = outside(syntax)
		}
	}()

	lines := textdoc.Lines(content)
	if line < 0 || line >= len(lines) || character < 0 {
		return outside(syntax)
	}

	switch syntax {
	case textdoc.SyntaxYAML:
		return analyzeYAML(lines, line, character, syntax)
	case textdoc.SyntaxMarkdown:
		fm, ok := textdoc.FindFrontmatter(lines)
		if !ok || !fm.Contains(line) {
			return outside(syntax)
		}
		ctx := analyzeYAML(lines[:fm.End], line, character, syntax)
		ctx.InFrontmatter = true
		return ctx
	case textdoc.SyntaxJSON:
		return analyzeCode(lines, line, character, syntax, `"`)
	default:
		return analyzeCode(lines, line, character, syntax, "\"'`")
	}
}

// quoteState scans runes[:cursor] and reports the unterminated quote, if any.
func quoteState(runes []rune, cursor int, quotes string) (open bool, quote rune, openAt int) {
	for i := 0; i < cursor && i < len(runes); i++ {
		r := runes[i]
		if open {
			if r == '\\' {
				i++
				continue
			}
			if r == quote {
				open = false
			}
			continue
		}
		if strings.ContainsRune(quotes, r) {
			open, quote, openAt = true, r, i
		}
	}
	return open, quote, openAt
}

// closingQuote finds the first unescaped quote at or after from.
func closingQuote(runes []rune, from int, quote rune) int {
	for i := from; i < len(runes); i++ {
		if runes[i] == '\\' {
			i++
			continue
		}
		if runes[i] == quote {
			return i
		}
	}
	return -1
}

// utf16At converts a rune index on runes to a UTF-16 offset.
func utf16At(runes []rune, idx int) int {
	if idx > len(runes) {
		idx = len(runes)
	}
	return textdoc.UTF16Len(string(runes[:idx]))
}

func analyzeCode(lines []string, line, character int, syntax textdoc.Syntax, quotes string) Context {
	text := lines[line]
	runes := []rune(text)
	cursor := textdoc.RuneIndex(text, character)

	ctx := outside(syntax)
	prefixEnd := cursor

	if open, quote, openAt := quoteState(runes, cursor, quotes); open {
		ctx.InStringLiteral = true
		ctx.StringStart = utf16At(runes, openAt+1)
		if end := closingQuote(runes, cursor, quote); end >= 0 {
			ctx.StringEnd = utf16At(runes, end)
		}
		prefixEnd = openAt
	}

	ctx.FieldName = codeFieldName(lines, line, string(runes[:prefixEnd]))
	return ctx
}

// codeFieldName finds the nearest key preceding the cursor: on the same line
// first, otherwise on the line that opened the enclosing array or object.
func codeFieldName(lines []string, line int, prefix string) string {
	if key := lastCodeKey(prefix); key != "" {
		return key
	}

	depth := bracketBalance(prefix)
	for j := line - 1; j >= 0 && line-j <= maxLookbackLines; j-- {
		depth += bracketBalance(lines[j])
		if depth > 0 {
			return lastCodeKey(lines[j])
		}
	}
	return ""
}

func lastCodeKey(s string) string {
	all := codeKeyPattern.FindAllStringSubmatch(s, -1)
	if len(all) == 0 {
		return ""
	}
	return all[len(all)-1][1]
}

// bracketBalance counts opening minus closing brackets outside quotes.
func bracketBalance(s string) int {
	depth := 0
	var quote rune
	escaped := false
	for _, r := range s {
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote:
				quote = 0
			}
			continue
		}
		switch r {
		case '"', '\'', '`':
			quote = r
		case '[', '{':
			depth++
		case ']', '}':
			depth--
		}
	}
	return depth
}

func indentOf(s string) int {
	return len(s) - len(strings.TrimLeftFunc(s, unicode.IsSpace))
}

func analyzeYAML(lines []string, line, character int, syntax textdoc.Syntax) Context {
	text := lines[line]
	runes := []rune(text)
	cursor := textdoc.RuneIndex(text, character)
	ctx := outside(syntax)

	// valueStart is the rune index where the value region begins, -1 when the
	// cursor is on a key
	valueStart := -1

	if m := yamlKeyPattern.FindStringSubmatchIndex(text); m != nil {
		colonEnd := len([]rune(text[:m[7]]))
		if cursor >= colonEnd {
			ctx.FieldName = strings.TrimSpace(text[m[4]:m[5]])
			valueStart = colonEnd
		}
	} else if m := yamlItemPattern.FindStringSubmatchIndex(text); m != nil {
		itemStart := len([]rune(text[:m[1]]))
		if cursor >= itemStart {
			ctx.FieldName = yamlParentKey(lines, line, indentOf(text))
			valueStart = itemStart
		}
	}

	if valueStart < 0 || cursor < valueStart {
		return ctx
	}

	if open, quote, openAt := quoteState(runes[valueStart:], cursor-valueStart, `"'`); open {
		openAt += valueStart
		ctx.InStringLiteral = true
		ctx.StringStart = utf16At(runes, openAt+1)
		if end := closingQuote(runes, cursor, quote); end >= 0 {
			ctx.StringEnd = utf16At(runes, end)
		}
		return ctx
	}

	// plain scalar: the token around the cursor, delimited by flow punctuation
	start := cursor
	for start > valueStart && !isYAMLDelimiter(runes[start-1]) {
		start--
	}
	for start < cursor && runes[start] == ' ' {
		start++
	}
	end := cursor
	for end < len(runes) && !isYAMLDelimiter(runes[end]) && runes[end] != '#' {
		end++
	}
	for end > cursor && runes[end-1] == ' ' {
		end--
	}

	ctx.InStringLiteral = true
	ctx.StringStart = utf16At(runes, start)
	ctx.StringEnd = utf16At(runes, end)
	return ctx
}

func isYAMLDelimiter(r rune) bool {
	switch r {
	case '[', ']', '{', '}', ',':
		return true
	}
	return false
}

// yamlParentKey walks upward to the nearest key line indented less than (or,
// for "key:\n- item" style, equal to) a list item.
func yamlParentKey(lines []string, line, indent int) string {
	for j := line - 1; j >= 0 && line-j <= maxLookbackLines; j-- {
		text := lines[j]
		if strings.TrimSpace(text) == "" {
			continue
		}
		ind := indentOf(text)
		if ind > indent {
			continue
		}
		if m := yamlKeyPattern.FindStringSubmatch(text); m != nil && !yamlItemPattern.MatchString(text) {
			return strings.TrimSpace(m[2])
		}
		if ind < indent {
			return ""
		}
	}
	return ""
}
