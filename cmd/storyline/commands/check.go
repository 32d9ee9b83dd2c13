package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/storyline/diagnostics"
	"github.com/teranos/storyline/errors"
	"github.com/teranos/storyline/logger"
	"github.com/teranos/storyline/project"
)

// ErrCheckFailed is returned when a checked file has error diagnostics.
// The diagnostics themselves have already been printed.
var ErrCheckFailed = errors.New("check found errors")

// CheckCmd prints diagnostics for manuscript files
var CheckCmd = &cobra.Command{
	Use:   "check <file>...",
	Short: "Print diagnostics for manuscript files",
	Long: `Run every diagnostic source over the given files and print the findings,
one per line:

  path:line:col: severity: message [source/code]

Lines and columns are one-based. The command exits with status 1 when any
file has an error diagnostic, which makes it usable as a CI gate.

Examples:
  storyline check chapters/01.md
  storyline check chapters/*.md -v    # also show project and sources
  storyline check chapters/*.md -vv   # plus timing and the effective config`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	svc, err := newServices()
	if err != nil {
		return err
	}
	verbosity, _ := cmd.Flags().GetCount("verbose")

	gen := svc.newGenerator(true)
	defer gen.Dispose()

	c := &checker{svc: svc, gen: gen, out: cmd.OutOrStdout(), verbosity: verbosity}
	report, err := c.run(cmd.Context(), args)
	if err != nil {
		return err
	}

	if logger.ShouldOutput(verbosity, logger.OutputSummary) {
		summary := fmt.Sprintf("%d file(s): %d error(s), %d warning(s), %d other",
			report.Files, report.Errors, report.Warnings, report.Other)
		if report.Errors > 0 {
			pterm.Error.Println(summary)
		} else {
			pterm.Success.Println(summary)
		}
	}
	if report.Errors > 0 {
		return ErrCheckFailed
	}
	return nil
}

type checkReport struct {
	Files    int
	Errors   int
	Warnings int
	Other    int
}

type checker struct {
	svc       *services
	gen       *diagnostics.Generator
	out       io.Writer
	verbosity int

	// roots already announced at -v
	shown map[string]bool
}

func (c *checker) run(ctx context.Context, paths []string) (checkReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger.ShouldOutput(c.verbosity, logger.OutputConfig) && c.svc.cfg != nil {
		fmt.Fprintf(c.out, "%s: %s\n", logger.CategoryName(logger.OutputConfig), c.svc.cfg)
	}

	var report checkReport
	for _, path := range paths {
		diags, err := c.checkFile(ctx, path)
		if err != nil {
			return report, err
		}
		report.Files++
		for _, d := range diags {
			switch d.Severity {
			case diagnostics.SeverityError:
				report.Errors++
			case diagnostics.SeverityWarning:
				report.Warnings++
			default:
				report.Other++
			}
		}
	}
	return report, nil
}

func (c *checker) checkFile(ctx context.Context, path string) ([]diagnostics.Diagnostic, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid path %s", path)
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(err, "failed to read %s", path),
			"check takes manuscript files, not directories")
	}

	root := c.svc.detector.DetectProjectRoot(abs)
	c.announce(ctx, root)

	start := time.Now()
	diags := c.gen.Generate(ctx, project.PathToURI(abs), string(content), root)
	if logger.ShouldOutput(c.verbosity, logger.OutputTiming) {
		fmt.Fprintf(c.out, "%s: %d diagnostic(s) in %s\n", path, len(diags), time.Since(start).Round(time.Millisecond))
	}

	for _, d := range diags {
		fmt.Fprintln(c.out, formatDiagnostic(path, d))
	}
	return diags, nil
}

// announce prints the project and its available sources once per root
func (c *checker) announce(ctx context.Context, root string) {
	if c.shown == nil {
		c.shown = make(map[string]bool)
	}
	if c.shown[root] {
		return
	}
	c.shown[root] = true

	if logger.ShouldOutput(c.verbosity, logger.OutputProject) {
		if pc, err := c.svc.contexts.GetContext(ctx, root); err == nil {
			fmt.Fprintf(c.out, "project %s (%s): %d entities\n", pc.Name, root, len(pc.Entities))
		} else {
			fmt.Fprintf(c.out, "project %s: %v\n", root, err)
		}
	}
	if logger.ShouldOutput(c.verbosity, logger.OutputSources) {
		for _, src := range c.gen.Sources() {
			state := "unavailable"
			if src.IsAvailable(root) {
				state = "available"
			}
			fmt.Fprintf(c.out, "  source %s: %s\n", src.Name(), state)
		}
	}
}

// formatDiagnostic renders d as path:line:col: severity: message [source/code]
func formatDiagnostic(path string, d diagnostics.Diagnostic) string {
	tag := d.Source
	if d.Code != "" {
		tag += "/" + d.Code
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s [%s]",
		path, d.Range.Start.Line+1, d.Range.Start.Character+1,
		severityLabel(d.Severity), d.Message, tag)
}

func severityLabel(s diagnostics.Severity) string {
	switch s {
	case diagnostics.SeverityError:
		return pterm.Red(s.String())
	case diagnostics.SeverityWarning:
		return pterm.Yellow(s.String())
	case diagnostics.SeverityInfo:
		return pterm.Cyan(s.String())
	}
	return pterm.Gray(s.String())
}
