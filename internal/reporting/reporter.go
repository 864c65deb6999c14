// -- internal/reporting/reporter.go --
package reporting

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xkilldash9x/flowcheck/api/schemas"
)

// Reporter renders a suite report to an output.
type Reporter interface {
	// Write renders one suite report. Reporters accept a single report.
	Write(report *schemas.SuiteReport) error
	// Close flushes buffered output and closes any underlying file.
	Close() error
}

// Formats lists the names accepted by New.
var Formats = []string{"json", "junit", "markdown", "html", "text", "sarif"}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format writing to outputPath. An empty path or
// "stdout" writes to standard output.
func New(format, outputPath, toolVersion string) (Reporter, error) {
	var writer io.WriteCloser
	isStdOut := outputPath == "" || outputPath == "stdout"

	if isStdOut {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		if dir := filepath.Dir(outputPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
			}
		}
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	r, err := NewWriter(format, writer, toolVersion)
	if err != nil {
		if !isStdOut {
			writer.Close()
		}
		return nil, err
	}
	return r, nil
}

// NewWriter creates a reporter for format that takes ownership of w.
func NewWriter(format string, w io.WriteCloser, toolVersion string) (Reporter, error) {
	switch format {
	case "json":
		return NewJSONReporter(w), nil
	case "junit":
		return NewJUnitReporter(w), nil
	case "markdown", "md":
		return NewMarkdownReporter(w), nil
	case "html":
		return NewHTMLReporter(w), nil
	case "text":
		return NewTextReporter(w), nil
	case "sarif":
		return NewSARIFReporter(w, toolVersion), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteFile renders report in format to path in one call.
func WriteFile(format, path, toolVersion string, report *schemas.SuiteReport) error {
	r, err := New(format, path, toolVersion)
	if err != nil {
		return err
	}
	if err := r.Write(report); err != nil {
		r.Close()
		return err
	}
	return r.Close()
}

// single guards reporters that only accept one report.
type single struct {
	report *schemas.SuiteReport
}

func (s *single) set(report *schemas.SuiteReport) error {
	if report == nil {
		return fmt.Errorf("nil report")
	}
	if s.report != nil {
		return fmt.Errorf("report already written")
	}
	s.report = report
	return nil
}

// closeAfter closes w after a write and prefers the write error.
func closeAfter(w io.Closer, writeErr error) error {
	closeErr := w.Close()
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}
