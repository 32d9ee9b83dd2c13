package linter

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/teranos/storyline/errors"
)

// DefaultCommand runs textlint through npx so a project-local install is used.
const DefaultCommand = "npx textlint"

// Backend runs the external linter once over content and returns its raw
// JSON output. Implementations must return promptly when ctx is done.
type Backend interface {
	Run(ctx context.Context, content, path string) ([]byte, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, content, path string) ([]byte, error)

// Run calls f.
func (f BackendFunc) Run(ctx context.Context, content, path string) ([]byte, error) {
	return f(ctx, content, path)
}

// CommandBackend pipes the document to a textlint-compatible command on stdin.
type CommandBackend struct {
	argv []string
	// Dir is the working directory, normally the project root so the
	// project's linter config is found
	Dir string
}

// NewCommandBackend splits command with shell quoting rules.
func NewCommandBackend(command, dir string) (*CommandBackend, error) {
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand
	}
	argv, err := shellquote.Split(command)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid linter command %q", command)
	}
	if len(argv) == 0 {
		return nil, errors.Newf("empty linter command %q", command)
	}
	return &CommandBackend{argv: argv, Dir: dir}, nil
}

// Argv returns the full argument vector used for path.
func (b *CommandBackend) Argv(path string) []string {
	args := make([]string, 0, len(b.argv)+6)
	args = append(args, b.argv...)
	return append(args, "--format", "json", "--stdin", "--stdin-filename", path)
}

// Run executes the command. textlint exits 1 when it reports problems; its
// stdout is still valid output in that case.
func (b *CommandBackend) Run(ctx context.Context, content, path string) ([]byte, error) {
	argv := b.Argv(path)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = b.Dir
	cmd.Stdin = strings.NewReader(content)
	// Don't block on inherited pipes after the process is killed
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && stdout.Len() > 0 {
		return stdout.Bytes(), nil
	}
	return nil, errors.Wrapf(err, "linter %s failed: %s", argv[0], strings.TrimSpace(stderr.String()))
}
