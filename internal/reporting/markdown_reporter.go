// internal/reporting/markdown_reporter.go
package reporting

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/xkilldash9x/flowcheck/api/schemas"
)

// MarkdownReporter writes a summary table followed by the detail of every
// failed instance.
type MarkdownReporter struct {
	single
	writer io.WriteCloser
}

func NewMarkdownReporter(w io.WriteCloser) *MarkdownReporter {
	return &MarkdownReporter{writer: w}
}

func (r *MarkdownReporter) Write(report *schemas.SuiteReport) error {
	return r.set(report)
}

func (r *MarkdownReporter) Close() error {
	if r.report == nil {
		return closeAfter(r.writer, nil)
	}
	_, err := io.WriteString(r.writer, Markdown(r.report))
	return closeAfter(r.writer, err)
}

var statusMark = map[schemas.Status]string{
	schemas.StatusPassed:  "✅ passed",
	schemas.StatusFailed:  "❌ failed",
	schemas.StatusSkipped: "⏭ skipped",
}

// mdEscape keeps cell text from breaking the table.
func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

// Markdown renders report as a GitHub flavored Markdown document.
func Markdown(report *schemas.SuiteReport) string {
	var b strings.Builder
	s := report.Stats

	b.WriteString("# Scenario report\n\n")
	fmt.Fprintf(&b, "Run `%s` started %s, took %s.\n\n",
		report.RunID, report.StartedAt.UTC().Format(time.RFC3339),
		(time.Duration(report.DurationMS) * time.Millisecond).Round(time.Millisecond))
	if report.Config.BaseURL != "" {
		fmt.Fprintf(&b, "Target `%s` with the `%s` driver.\n\n", report.Config.BaseURL, report.Config.Driver)
	}
	if rev := report.Revision; rev != nil {
		dirty := ""
		if rev.Dirty {
			dirty = " (dirty)"
		}
		fmt.Fprintf(&b, "Scenario revision `%s` on `%s`%s.\n\n", shortCommit(rev.Commit), rev.Branch, dirty)
	}

	b.WriteString("| Total | Passed | Failed | Skipped | Flaky |\n")
	b.WriteString("|---:|---:|---:|---:|---:|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d |\n\n", s.Total, s.Passed, s.Failed, s.Skipped, s.Flaky)

	b.WriteString("## Scenarios\n\n")
	b.WriteString("| Feature | Scenario | Status | Attempts | Duration |\n")
	b.WriteString("|---|---|---|---:|---:|\n")
	for _, res := range report.Results {
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %.0f ms |\n",
			mdEscape(res.Feature), mdEscape(res.Title), statusMark[res.Status], res.Attempts, res.DurationMS)
	}

	failed := report.Failed()
	if len(failed) == 0 {
		return b.String()
	}

	b.WriteString("\n## Failures\n")
	for _, res := range failed {
		fmt.Fprintf(&b, "\n### %s\n\n", res.Title)
		if res.File != "" {
			fmt.Fprintf(&b, "File: `%s`\n\n", res.File)
		}
		if len(res.Row) > 0 {
			fmt.Fprintf(&b, "Example: `%s`\n\n", rowString(res.Row))
		}
		if f := res.Failure; f != nil {
			fmt.Fprintf(&b, "**%s**", f.ErrorType)
			if f.StepIndex >= 0 {
				fmt.Fprintf(&b, " at step %d (`%s %s`)", f.StepIndex+1, f.StepKind, f.Target)
			}
			b.WriteString("\n\n```\n")
			b.WriteString(f.Message)
			b.WriteString("\n```\n")
			if f.Expected != "" || f.Actual != "" {
				fmt.Fprintf(&b, "\n- expected: `%s`\n- actual: `%s`\n", f.Expected, f.Actual)
			}
		}
		if len(res.Artifacts) > 0 {
			b.WriteString("\nArtifacts:\n\n")
			for _, a := range res.Artifacts {
				fmt.Fprintf(&b, "- %s: [%s](%s)\n", a.Kind, a.Path, a.Path)
			}
		}
	}
	return b.String()
}

func shortCommit(c string) string {
	if len(c) > 12 {
		return c[:12]
	}
	return c
}

func rowString(row map[string]string) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + row[k]
	}
	return strings.Join(parts, ", ")
}
