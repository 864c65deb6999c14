// internal/reporting/sarif_reporter.go
package reporting

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/observability"
	"github.com/xkilldash9x/flowcheck/internal/reporting/sarif"
)

// Constants for tool identification in the SARIF report.
const (
	ToolName     = "flowcheck"
	ToolInfoURI  = "https://github.com/xkilldash9x/flowcheck"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

// ruleHelp describes the failure classes a scenario can end with.
var ruleHelp = map[string]string{
	"NavigationError":      "A route did not load or its readiness element never became visible.",
	"UnknownFieldError":    "A step names a field the application model does not define.",
	"ControlNotFoundError": "A control was not visible and enabled within the action timeout.",
	"AssertionFailure":     "The rendered page did not match the expectation of an assert step.",
	"Error":                "The scenario failed with an unclassified error.",
}

// SARIFReporter writes failed instances as SARIF 2.1.0 results so code
// scanning dashboards can annotate the scenario files. One rule is emitted
// per failure class.
type SARIFReporter struct {
	single
	writer io.WriteCloser
	logger *zap.Logger
	log    *sarif.Log
}

// NewSARIFReporter creates a reporter that writes SARIF output.
func NewSARIFReporter(writer io.WriteCloser, toolVersion string) *SARIFReporter {
	log := &sarif.Log{
		Version: SARIFVersion,
		Schema:  SARIFSchema,
		Runs: []*sarif.Run{
			{
				Tool: &sarif.Tool{
					Driver: &sarif.ToolComponent{
						Name:           ToolName,
						Version:        pString(toolVersion),
						InformationURI: pString(ToolInfoURI),
						Rules:          []*sarif.ReportingDescriptor{},
					},
				},
				// Empty, not nil, so the array is always present.
				Results: []*sarif.Result{},
			},
		},
	}
	return &SARIFReporter{
		writer: writer,
		logger: observability.GetLogger().Named("sarif_reporter"),
		log:    log,
	}
}

// Write converts the failed instances of report into SARIF results.
func (r *SARIFReporter) Write(report *schemas.SuiteReport) error {
	if err := r.set(report); err != nil {
		return err
	}
	run := r.log.Runs[0]
	run.Invocations = []*sarif.Invocation{{
		ExecutionSuccessful: report.Passed(),
		StartTimeUTC:        pString(report.StartedAt.UTC().Format(time.RFC3339)),
		EndTimeUTC:          pString(report.FinishedAt.UTC().Format(time.RFC3339)),
	}}

	rules := map[string]bool{}
	for _, res := range report.Failed() {
		errType := "Error"
		message := "scenario failed"
		props := sarif.PropertyBag{"attempts": res.Attempts, "feature": res.Feature}
		if f := res.Failure; f != nil {
			if f.ErrorType != "" {
				errType = f.ErrorType
			}
			message = f.Message
			props["step"] = f.StepIndex + 1
			if f.Expected != "" || f.Actual != "" {
				props["expected"] = f.Expected
				props["actual"] = f.Actual
			}
		}
		rules[errType] = true

		run.Results = append(run.Results, &sarif.Result{
			RuleID:              ruleID(errType),
			Message:             &sarif.Message{Text: pString(fmt.Sprintf("%s: %s", res.Title, message))},
			Level:               sarif.LevelError,
			Locations:           []*sarif.Location{location(res)},
			PartialFingerprints: map[string]string{"scenarioId/v1": fingerprint(res.ID)},
			Properties:          props,
		})
	}

	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)
	driver := run.Tool.Driver
	for _, name := range names {
		driver.Rules = append(driver.Rules, &sarif.ReportingDescriptor{
			ID:               ruleID(name),
			Name:             pString(name),
			ShortDescription: &sarif.MultiformatMessageString{Text: pString(name)},
			Help:             &sarif.MultiformatMessageString{Text: pString(helpFor(name))},
		})
	}
	return nil
}

// Close writes the SARIF log to the output writer.
func (r *SARIFReporter) Close() error {
	run := r.log.Runs[0]
	r.logger.Info("Finalizing SARIF report",
		zap.Int("total_results", len(run.Results)),
		zap.Int("total_rules", len(run.Tool.Driver.Rules)),
	)

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	var err error
	if encodeErr := encoder.Encode(r.log); encodeErr != nil {
		r.logger.Error("Failed to encode SARIF log to JSON", zap.Error(encodeErr))
		err = fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}
	return closeAfter(r.writer, err)
}

func ruleID(errType string) string {
	return "FLOWCHECK-" + errType
}

func helpFor(errType string) string {
	if h, ok := ruleHelp[errType]; ok {
		return h
	}
	return ruleHelp["Error"]
}

func location(res schemas.ScenarioResult) *sarif.Location {
	loc := &sarif.Location{
		LogicalLocations: []*sarif.LogicalLocation{{
			Name:               pString(res.Title),
			FullyQualifiedName: pString(res.ID),
			Kind:               pString("test"),
		}},
	}
	if res.File != "" {
		loc.PhysicalLocation = &sarif.PhysicalLocation{
			ArtifactLocation: &sarif.ArtifactLocation{URI: pString(res.File)},
		}
	}
	return loc
}

// fingerprint is stable across runs of the same instance.
func fingerprint(id string) string {
	sum := sha1.Sum([]byte(id))
	return hex.EncodeToString(sum[:])
}

// pString returns a pointer to the given string value.
func pString(s string) *string {
	return &s
}
