// internal/reporting/reporter_test.go
package reporting_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/reporting"
)

const testToolVersion = "v1.0.0-test"

// bufferCloser records Close so tests can check reporters release writers.
type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func sampleReport() *schemas.SuiteReport {
	started := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	r := &schemas.SuiteReport{
		RunID:      "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(4 * time.Second),
		DurationMS: 4000,
		Config:     schemas.RunConfig{BaseURL: "http://bank.test/parabank", Driver: "http", Concurrency: 2},
		Revision:   &schemas.Revision{Commit: "0123456789abcdef0123", Branch: "main"},
		Results: []schemas.ScenarioResult{
			{
				ID: "login/valid-login#1", Title: "Valid login", Feature: "Login", File: "suites/demobank/login.yaml",
				Status: schemas.StatusPassed, Attempts: 1, DurationMS: 812,
			},
			{
				ID: "loans/loan-request-for-amount#2", Title: "Loan request for 5000 | big", Feature: "Loans",
				File: "suites/demobank/loan.yaml", Row: map[string]string{"amount": "5000", "status": "Approved"},
				Status: schemas.StatusFailed, Attempts: 2, DurationMS: 1500,
				Failure: &schemas.Failure{
					Message: `assertion failed on #loanStatus: expected "Approved", got "Denied"`, ErrorType: "AssertionFailure",
					StepIndex: 6, StepKind: "assert", Target: "#loanStatus", Expected: "Approved", Actual: "Denied",
				},
				Artifacts: []schemas.ArtifactRef{{Kind: schemas.ArtifactDOM, Path: "test-results/loans-2/dom.html", ContentType: "text/html"}},
			},
			{
				ID: "transfer/retry#1", Title: "Transfer", Feature: "Transfer",
				Status: schemas.StatusPassed, Attempts: 2, DurationMS: 300,
			},
			{
				ID: "profile/update#1", Title: "Update profile", Feature: "Profile",
				Status:  schemas.StatusSkipped,
				Failure: &schemas.Failure{Message: "not started: context deadline exceeded", ErrorType: "Skipped", StepIndex: -1},
			},
		},
	}
	r.Tally()
	return r
}

func render(t *testing.T, format string) string {
	t.Helper()
	buf := &bufferCloser{}
	r, err := reporting.NewWriter(format, buf, testToolVersion)
	require.NoError(t, err)
	require.NoError(t, r.Write(sampleReport()))
	require.NoError(t, r.Close())
	assert.True(t, buf.closed, "reporter must close its writer")
	return buf.String()
}

func TestNew_Success_Stdout(t *testing.T) {
	for _, format := range reporting.Formats {
		r, err := reporting.New(format, "stdout", testToolVersion)
		require.NoError(t, err, format)
		assert.NotNil(t, r)
	}
}

func TestNew_Failure_UnsupportedFormat(t *testing.T) {
	r, err := reporting.New("invalid-format", "stdout", testToolVersion)
	assert.Nil(t, r)
	assert.ErrorContains(t, err, "unsupported output format: invalid-format")

	tmpFile := filepath.Join(t.TempDir(), "output.txt")
	r, err = reporting.New("invalid-format", tmpFile, testToolVersion)
	assert.Error(t, err)
	assert.Nil(t, r)

	info, err := os.Stat(tmpFile)
	require.NoError(t, err, "File should still exist after failure")
	assert.Equal(t, int64(0), info.Size())
}

func TestNew_Failure_FileCreation(t *testing.T) {
	r, err := reporting.New("json", t.TempDir(), testToolVersion)
	assert.Nil(t, r)
	assert.ErrorContains(t, err, "failed to create output file")
}

func TestWriteFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "report.json")
	require.NoError(t, reporting.WriteFile("json", path, testToolVersion, sampleReport()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := reporting.ReadJSON(f)
	require.NoError(t, err)

	want := sampleReport()
	assert.Equal(t, want.RunID, got.RunID)
	assert.Equal(t, want.Stats, got.Stats)
	require.Len(t, got.Results, 4)
	assert.Equal(t, "Denied", got.Results[1].Failure.Actual)
	assert.True(t, got.Results[2].Flaky())
}

func TestReporterAcceptsOneReport(t *testing.T) {
	r := reporting.NewJSONReporter(&bufferCloser{})
	require.NoError(t, r.Write(sampleReport()))
	assert.ErrorContains(t, r.Write(sampleReport()), "already written")
	assert.Error(t, reporting.NewTextReporter(&bufferCloser{}).Write(nil))
}

func TestJSONUsesSchemaFieldNames(t *testing.T) {
	out := render(t, "json")
	assert.Contains(t, out, `"runId": "run-1"`)
	assert.Contains(t, out, `"errorType": "AssertionFailure"`)
	assert.Contains(t, out, `"flaky": 1`)
}

func TestJUnit(t *testing.T) {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(render(t, "junit")))

	root := doc.SelectElement("testsuites")
	require.NotNil(t, root)
	assert.Equal(t, "4", root.SelectAttrValue("tests", ""))
	assert.Equal(t, "1", root.SelectAttrValue("failures", ""))
	assert.Equal(t, "1", root.SelectAttrValue("skipped", ""))
	assert.Len(t, root.SelectElements("testsuite"), 4)

	tc := testcase(doc, "Loan request for 5000 | big")
	require.NotNil(t, tc)
	failure := tc.SelectElement("failure")
	require.NotNil(t, failure)
	assert.Equal(t, "AssertionFailure", failure.SelectAttrValue("type", ""))
	assert.Contains(t, failure.Text(), "step 7 (assert #loanStatus)")
	assert.Contains(t, failure.Text(), "actual:   Denied")

	assert.Equal(t, "loans/loan-request-for-amount", tc.SelectAttrValue("classname", ""))
	assert.Equal(t, "1.500", tc.SelectAttrValue("time", ""))
	out := tc.SelectElement("system-out")
	require.NotNil(t, out)
	assert.Contains(t, out.Text(), "[[ATTACHMENT|test-results/loans-2/dom.html]]")

	skipped := testcase(doc, "Update profile")
	require.NotNil(t, skipped)
	assert.NotNil(t, skipped.SelectElement("skipped"))
}

func testcase(doc *etree.Document, name string) *etree.Element {
	for _, tc := range doc.FindElements("//testcase") {
		if tc.SelectAttrValue("name", "") == name {
			return tc
		}
	}
	return nil
}

func TestMarkdown(t *testing.T) {
	out := reporting.Markdown(sampleReport())
	assert.Contains(t, out, "| 4 | 2 | 1 | 1 | 1 |")
	assert.Contains(t, out, `Loan request for 5000 \| big`, "pipes are escaped in table cells")
	assert.Contains(t, out, "Scenario revision `0123456789ab` on `main`.")
	assert.Contains(t, out, "## Failures")
	assert.Contains(t, out, "**AssertionFailure** at step 7 (`assert #loanStatus`)")
	assert.Contains(t, out, "Example: `amount=5000, status=Approved`")
	assert.Contains(t, out, "- dom: [test-results/loans-2/dom.html](test-results/loans-2/dom.html)")
}

func TestMarkdownWithoutFailures(t *testing.T) {
	r := sampleReport()
	r.Results = r.Results[:1]
	r.Tally()
	assert.NotContains(t, reporting.Markdown(r), "## Failures")
}

func TestHTML(t *testing.T) {
	out := render(t, "html")
	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "<title>Scenario report run-1</title>")
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, `<h2 id="failures">Failures</h2>`)
	assert.Contains(t, out, `<a href="test-results/loans-2/dom.html">`)
}

func TestText(t *testing.T) {
	out := render(t, "text")
	lines := strings.Split(out, "\n")
	assert.Equal(t, "  ✓ Login › Valid login (812ms)", lines[0])
	assert.Equal(t, "  ✓ Transfer › Transfer (300ms) [flaky, 2 attempts]", lines[2])
	assert.Contains(t, out, "  1) Loans › Loan request for 5000 | big\n")
	assert.Contains(t, out, "     dom: test-results/loans-2/dom.html\n")
	assert.Contains(t, out, "2 passed, 1 failed, 1 skipped, 1 flaky (4 total)")
}

func TestFailureLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "erros.txt")
	log := reporting.NewFailureLog(path)

	for _, res := range sampleReport().Results {
		require.NoError(t, log.Record(res))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Equal(t, 1, strings.Count(text, " falhou\n"), "only failed instances are logged")
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z - Loan request for 5000 \| big falhou\n`, text)
	assert.True(t, strings.HasSuffix(text, "got \"Denied\"\n\n"))
}

func TestSARIF(t *testing.T) {
	out := render(t, "sarif")
	assert.Contains(t, out, `"version": "2.1.0"`)
	assert.Contains(t, out, `"ruleId": "FLOWCHECK-AssertionFailure"`)
	assert.Contains(t, out, `"uri": "suites/demobank/loan.yaml"`)
	assert.Contains(t, out, `"fullyQualifiedName": "loans/loan-request-for-amount#2"`)
	assert.Contains(t, out, `"executionSuccessful": false`)
	assert.Equal(t, 1, strings.Count(out, `"ruleId"`), "only failed instances become results")
}
