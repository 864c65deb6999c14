// internal/reporting/junit_reporter.go
package reporting

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/flowcheck/api/schemas"
)

// JUnitReporter writes JUnit XML: one testsuite per feature, one testcase
// per scenario instance.
type JUnitReporter struct {
	single
	writer io.WriteCloser
}

func NewJUnitReporter(w io.WriteCloser) *JUnitReporter {
	return &JUnitReporter{writer: w}
}

func (r *JUnitReporter) Write(report *schemas.SuiteReport) error {
	return r.set(report)
}

func (r *JUnitReporter) Close() error {
	if r.report == nil {
		return closeAfter(r.writer, nil)
	}
	doc := junitDocument(r.report)
	doc.Indent(2)
	var err error
	if _, wErr := doc.WriteTo(r.writer); wErr != nil {
		err = fmt.Errorf("failed to write JUnit report: %w", wErr)
	}
	return closeAfter(r.writer, err)
}

func seconds(ms float64) string {
	return strconv.FormatFloat(ms/1000, 'f', 3, 64)
}

func junitDocument(report *schemas.SuiteReport) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("testsuites")
	root.CreateAttr("name", "flowcheck")
	root.CreateAttr("tests", strconv.Itoa(report.Stats.Total))
	root.CreateAttr("failures", strconv.Itoa(report.Stats.Failed))
	root.CreateAttr("skipped", strconv.Itoa(report.Stats.Skipped))
	root.CreateAttr("time", seconds(report.DurationMS))

	suites := map[string]*etree.Element{}
	counts := map[string]*schemas.Stats{}
	for _, res := range report.Results {
		feature := res.Feature
		if feature == "" {
			feature = "scenarios"
		}
		suite, ok := suites[feature]
		if !ok {
			suite = root.CreateElement("testsuite")
			suite.CreateAttr("name", feature)
			suite.CreateAttr("timestamp", report.StartedAt.UTC().Format("2006-01-02T15:04:05"))
			suites[feature] = suite
			counts[feature] = &schemas.Stats{}
		}
		c := counts[feature]
		c.Total++

		tc := suite.CreateElement("testcase")
		tc.CreateAttr("name", res.Title)
		tc.CreateAttr("classname", strings.TrimSuffix(res.ID, "#"+lastSegment(res.ID)))
		tc.CreateAttr("time", seconds(res.DurationMS))
		if res.File != "" {
			tc.CreateAttr("file", res.File)
		}

		switch res.Status {
		case schemas.StatusFailed:
			c.Failed++
			f := tc.CreateElement("failure")
			if res.Failure != nil {
				f.CreateAttr("message", res.Failure.Message)
				f.CreateAttr("type", res.Failure.ErrorType)
				f.SetText(failureDetail(res.Failure))
			}
		case schemas.StatusSkipped:
			c.Skipped++
			s := tc.CreateElement("skipped")
			if res.Failure != nil {
				s.CreateAttr("message", res.Failure.Message)
			}
		}

		var out []string
		if res.Attempts > 1 {
			out = append(out, fmt.Sprintf("attempts: %d", res.Attempts))
		}
		for _, a := range res.Artifacts {
			// Jenkins and GitLab pick attachments up from this form.
			out = append(out, fmt.Sprintf("[[ATTACHMENT|%s]]", a.Path))
		}
		if len(out) > 0 {
			tc.CreateElement("system-out").SetText(strings.Join(out, "\n"))
		}
	}

	for name, suite := range suites {
		c := counts[name]
		suite.CreateAttr("tests", strconv.Itoa(c.Total))
		suite.CreateAttr("failures", strconv.Itoa(c.Failed))
		suite.CreateAttr("skipped", strconv.Itoa(c.Skipped))
	}
	return doc
}

func lastSegment(id string) string {
	if i := strings.LastIndex(id, "#"); i >= 0 {
		return id[i+1:]
	}
	return ""
}

// failureDetail renders the first failing step.
func failureDetail(f *schemas.Failure) string {
	var b strings.Builder
	if f.StepIndex >= 0 {
		fmt.Fprintf(&b, "step %d (%s %s)\n", f.StepIndex+1, f.StepKind, f.Target)
	}
	b.WriteString(f.Message)
	if f.Expected != "" || f.Actual != "" {
		fmt.Fprintf(&b, "\nexpected: %s\nactual:   %s", f.Expected, f.Actual)
	}
	return b.String()
}
