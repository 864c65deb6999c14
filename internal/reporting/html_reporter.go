// internal/reporting/html_reporter.go
package reporting

import (
	"bytes"
	"fmt"
	"html"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/xkilldash9x/flowcheck/api/schemas"
)

const htmlHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 72rem; color: #222; }
table { border-collapse: collapse; margin: 1rem 0; }
th, td { border: 1px solid #ccc; padding: .3rem .6rem; }
th { background: #f3f3f3; }
pre { background: #f7f7f7; padding: .8rem; overflow-x: auto; }
</style>
</head>
<body>
`

const htmlFoot = "</body>\n</html>\n"

// HTMLReporter renders the Markdown report to a standalone HTML page.
type HTMLReporter struct {
	single
	writer io.WriteCloser
	md     goldmark.Markdown
}

func NewHTMLReporter(w io.WriteCloser) *HTMLReporter {
	return &HTMLReporter{
		writer: w,
		md: goldmark.New(
			goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
	}
}

func (r *HTMLReporter) Write(report *schemas.SuiteReport) error {
	return r.set(report)
}

func (r *HTMLReporter) Close() error {
	if r.report == nil {
		return closeAfter(r.writer, nil)
	}
	var body bytes.Buffer
	if err := r.md.Convert([]byte(Markdown(r.report)), &body); err != nil {
		return closeAfter(r.writer, fmt.Errorf("failed to render HTML report: %w", err))
	}

	var page bytes.Buffer
	fmt.Fprintf(&page, htmlHead, html.EscapeString("Scenario report "+r.report.RunID))
	page.Write(body.Bytes())
	page.WriteString(htmlFoot)

	_, err := r.writer.Write(page.Bytes())
	return closeAfter(r.writer, err)
}
