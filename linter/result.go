package linter

import (
	"encoding/json"

	"github.com/teranos/storyline/errors"
)

// Fix is an autofix suggested by the linter: replace the byte range with Text.
type Fix struct {
	Range [2]int `json:"range"`
	Text  string `json:"text"`
}

// Message is one linter finding. Line and Column are 1-based as reported by
// textlint.
type Message struct {
	RuleID   string `json:"ruleId"`
	Severity int    `json:"severity"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Message  string `json:"message"`
	Fix      *Fix   `json:"fix,omitempty"`
}

// Result is the outcome of one lint request. An empty FilePath marks a
// request that was canceled or superseded; an empty Messages list with a
// FilePath means the linter found nothing, was unavailable or timed out.
type Result struct {
	FilePath string    `json:"filePath"`
	Messages []Message `json:"messages"`
}

// Canceled reports whether the request was superseded or canceled.
func (r Result) Canceled() bool {
	return r.FilePath == ""
}

func emptyResult(path string) Result {
	return Result{FilePath: path, Messages: []Message{}}
}

// canceledResult is the explicit marker superseded requests resolve to
func canceledResult() Result {
	return emptyResult("")
}

// ParseOutput decodes textlint's JSON formatter output, an array with one
// entry per linted file. Messages of every entry are merged under path.
func ParseOutput(out []byte, path string) (Result, error) {
	var files []Result
	if err := json.Unmarshal(out, &files); err != nil {
		return emptyResult(path), errors.Wrap(err, "malformed linter output")
	}
	res := emptyResult(path)
	for _, f := range files {
		res.Messages = append(res.Messages, f.Messages...)
	}
	return res, nil
}
