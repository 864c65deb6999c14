// internal/analysis/context.go
package analysis

import (
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/llmutil"
)

// maxPageText bounds the page excerpt sent per failure.
const maxPageText = 1500

// FailureContext is what the model sees of one failed instance.
type FailureContext struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Feature   string            `json:"feature"`
	File      string            `json:"file,omitempty"`
	Row       map[string]string `json:"row,omitempty"`
	Attempts  int               `json:"attempts"`
	Step      int               `json:"step,omitempty"`
	StepKind  string            `json:"stepKind,omitempty"`
	Target    string            `json:"target,omitempty"`
	ErrorType string            `json:"errorType"`
	Message   string            `json:"message"`
	Expected  string            `json:"expected,omitempty"`
	Actual    string            `json:"actual,omitempty"`
	Artifacts []string          `json:"artifacts,omitempty"`
	// PageTitle and PageText come from the DOM snapshot of the failing page.
	PageTitle string `json:"pageTitle,omitempty"`
	PageText  string `json:"pageText,omitempty"`
}

// BuildContexts collects the failure contexts of report in result order.
// Unreadable snapshots are skipped.
func BuildContexts(report *schemas.SuiteReport) []FailureContext {
	var out []FailureContext
	for _, res := range report.Failed() {
		fc := FailureContext{
			ID:       res.ID,
			Title:    res.Title,
			Feature:  res.Feature,
			File:     res.File,
			Row:      res.Row,
			Attempts: res.Attempts,
		}
		if f := res.Failure; f != nil {
			fc.ErrorType = f.ErrorType
			fc.Message = f.Message
			fc.StepKind = f.StepKind
			fc.Target = f.Target
			fc.Expected = f.Expected
			fc.Actual = f.Actual
			if f.StepIndex >= 0 {
				fc.Step = f.StepIndex + 1
			}
		}
		for _, a := range res.Artifacts {
			fc.Artifacts = append(fc.Artifacts, a.Path)
			if a.Kind == schemas.ArtifactDOM && fc.PageText == "" {
				fc.PageTitle, fc.PageText = pageExcerpt(a.Path)
			}
		}
		out = append(out, fc)
	}
	return out
}

// pageExcerpt reads a DOM snapshot and returns its title and visible body
// text with scripts and styles removed.
func pageExcerpt(path string) (string, string) {
	f, err := os.Open(path)
	if err != nil {
		return "", ""
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", ""
	}
	doc.Find("script, style, noscript").Remove()
	title := strings.TrimSpace(doc.Find("title").First().Text())
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	return title, llmutil.Truncate(text, maxPageText)
}
