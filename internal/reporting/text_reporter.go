// internal/reporting/text_reporter.go
package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/xkilldash9x/flowcheck/api/schemas"
)

// TextReporter prints one line per instance and a closing tally, the way a
// test runner's list reporter does.
type TextReporter struct {
	single
	writer io.WriteCloser
}

func NewTextReporter(w io.WriteCloser) *TextReporter {
	return &TextReporter{writer: w}
}

func (r *TextReporter) Write(report *schemas.SuiteReport) error {
	return r.set(report)
}

func (r *TextReporter) Close() error {
	if r.report == nil {
		return closeAfter(r.writer, nil)
	}
	_, err := io.WriteString(r.writer, Text(r.report))
	return closeAfter(r.writer, err)
}

// Line renders one result as a single console line.
func Line(res schemas.ScenarioResult) string {
	mark := "✓"
	switch res.Status {
	case schemas.StatusFailed:
		mark = "✘"
	case schemas.StatusSkipped:
		mark = "-"
	}
	line := fmt.Sprintf("  %s %s › %s (%.0fms)", mark, res.Feature, res.Title, res.DurationMS)
	if res.Flaky() {
		line += fmt.Sprintf(" [flaky, %d attempts]", res.Attempts)
	}
	return line
}

// Text renders the full console list.
func Text(report *schemas.SuiteReport) string {
	var b strings.Builder
	for _, res := range report.Results {
		b.WriteString(Line(res))
		b.WriteByte('\n')
	}
	b.WriteString(Summary(report))
	return b.String()
}

// Summary renders the failure details and the closing tally without the
// per-instance lines, for callers that already streamed them.
func Summary(report *schemas.SuiteReport) string {
	var b strings.Builder
	failed := report.Failed()
	for i, res := range failed {
		if i == 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "  %d) %s › %s\n", i+1, res.Feature, res.Title)
		if res.Failure != nil {
			for _, l := range strings.Split(failureDetail(res.Failure), "\n") {
				fmt.Fprintf(&b, "     %s\n", l)
			}
		}
		for _, a := range res.Artifacts {
			fmt.Fprintf(&b, "     %s: %s\n", a.Kind, a.Path)
		}
		b.WriteByte('\n')
	}

	s := report.Stats
	fmt.Fprintf(&b, "\n  %d passed, %d failed, %d skipped, %d flaky (%d total)\n", s.Passed, s.Failed, s.Skipped, s.Flaky, s.Total)
	return b.String()
}
