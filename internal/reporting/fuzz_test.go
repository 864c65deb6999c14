// internal/reporting/fuzz_test.go
package reporting_test

import (
	"math"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/reporting"
)

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// FuzzReporters_Structured renders arbitrary reports in every format.
func FuzzReporters_Structured(f *testing.F) {
	f.Add([]byte("seed"))
	f.Fuzz(func(t *testing.T, data []byte) {
		report := &schemas.SuiteReport{}
		if err := fuzz.NewConsumer(data).GenerateStruct(report); err != nil {
			return
		}
		// JSON cannot encode NaN or infinities.
		report.DurationMS = finite(report.DurationMS)
		for i := range report.Results {
			report.Results[i].DurationMS = finite(report.Results[i].DurationMS)
			for j := range report.Results[i].Steps {
				report.Results[i].Steps[j].DurationMS = finite(report.Results[i].Steps[j].DurationMS)
			}
		}
		report.Tally()

		for _, format := range reporting.Formats {
			w := &bufferCloser{}
			r, err := reporting.NewWriter(format, w, testToolVersion)
			if err != nil {
				t.Fatalf("%s: %v", format, err)
			}
			if err := r.Write(report); err != nil {
				t.Fatalf("%s: write: %v", format, err)
			}
			if err := r.Close(); err != nil {
				t.Fatalf("%s: close: %v", format, err)
			}
			if !w.closed {
				t.Fatalf("%s: writer not closed", format)
			}
		}
	})
}
