// internal/reporting/json_reporter.go
package reporting

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/flowcheck/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONReporter writes the report as indented JSON, the report.json format
// every other format can be regenerated from.
type JSONReporter struct {
	single
	writer io.WriteCloser
}

func NewJSONReporter(w io.WriteCloser) *JSONReporter {
	return &JSONReporter{writer: w}
}

func (r *JSONReporter) Write(report *schemas.SuiteReport) error {
	return r.set(report)
}

func (r *JSONReporter) Close() error {
	if r.report == nil {
		return closeAfter(r.writer, nil)
	}
	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	var err error
	if encErr := encoder.Encode(r.report); encErr != nil {
		err = fmt.Errorf("failed to encode JSON report: %w", encErr)
	}
	return closeAfter(r.writer, err)
}

// ReadJSON decodes a report previously written by JSONReporter.
func ReadJSON(rd io.Reader) (*schemas.SuiteReport, error) {
	var report schemas.SuiteReport
	if err := json.NewDecoder(rd).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}
