// internal/analysis/analyzer.go
package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/llmclient"
	"github.com/xkilldash9x/flowcheck/internal/llmutil"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	SummaryFile = "summary.md"
	ContextFile = "context.json"
)

const systemPrompt = `You are an expert in automated end-to-end testing of web applications.
You receive the failures of a browser scenario run against an online banking site.
For every failure explain clearly why it failed and how to fix it.
Classify each failure as "test" (the scenario or its locators are wrong),
"application" (the site misbehaves) or "environment" (network, timeouts, test data).
Answer with a JSON array only. Each element has the keys
"scenario" (the scenario id), "category", "cause" and "suggestion".`

// Triage is the model's verdict on one failure.
type Triage struct {
	Scenario   string `json:"scenario"`
	Category   string `json:"category"`
	Cause      string `json:"cause"`
	Suggestion string `json:"suggestion"`
}

// Analyzer turns the failures of a report into a triage summary.
type Analyzer struct {
	client llmclient.Client
	outDir string
	logger *zap.Logger
	now    func() time.Time
}

// New creates an Analyzer writing into outDir. client may be nil when only
// passing reports will be analyzed.
func New(client llmclient.Client, outDir string, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{client: client, outDir: outDir, logger: logger.Named("analysis"), now: time.Now}
}

// Analyze writes summary.md for report and returns its path. Reports without
// failures get a short note and the model is not called.
func (a *Analyzer) Analyze(ctx context.Context, report *schemas.SuiteReport) (string, error) {
	if err := os.MkdirAll(a.outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create analysis directory: %w", err)
	}
	path := filepath.Join(a.outDir, SummaryFile)

	contexts := BuildContexts(report)
	if len(contexts) == 0 {
		note := fmt.Sprintf("# Failure analysis\n\nAll %d scenarios passed in run `%s`. Nothing to analyze.\n", report.Stats.Total, report.RunID)
		if !report.Passed() {
			note = fmt.Sprintf("# Failure analysis\n\nNo scenario failed in run `%s`, but %d of %d never ran. Nothing to analyze.\n",
				report.RunID, report.Stats.Skipped, report.Stats.Total)
		}
		a.logger.Info("No failures to analyze.", zap.String("run_id", report.RunID))
		return path, writeFile(path, note)
	}
	if a.client == nil {
		return "", fmt.Errorf("%d failures to analyze but no LLM client is configured", len(contexts))
	}

	payload, err := json.MarshalIndent(contexts, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode failure context: %w", err)
	}
	if err := writeFile(filepath.Join(a.outDir, ContextFile), string(payload)); err != nil {
		return "", err
	}

	a.logger.Info("Requesting failure triage.", zap.Int("failures", len(contexts)))
	answer, err := a.client.Generate(ctx, llmclient.Request{
		System: systemPrompt,
		Prompt: "Failures of run " + report.RunID + ":\n\n" + string(payload),
		JSON:   true,
	})
	if err != nil {
		return "", fmt.Errorf("failure triage: %w", err)
	}

	var body string
	triage, err := llmutil.ParseJSONResponse[[]Triage](answer)
	if err != nil {
		a.logger.Warn("Model answer is not the expected JSON, keeping it verbatim.", zap.Error(err))
		body = llmutil.StripFence(answer) + "\n"
	} else {
		body = renderTriage(contexts, *triage)
	}

	header := fmt.Sprintf("# Failure analysis\n\nRun `%s`: %d of %d scenarios failed. Generated %s.\n\n",
		report.RunID, report.Stats.Failed, report.Stats.Total, a.now().UTC().Format(time.RFC3339))
	return path, writeFile(path, header+body)
}

func renderTriage(contexts []FailureContext, triage []Triage) string {
	byID := make(map[string]Triage, len(triage))
	for _, t := range triage {
		byID[t.Scenario] = t
	}

	var b strings.Builder
	for _, fc := range contexts {
		fmt.Fprintf(&b, "## %s\n\n", fc.Title)
		fmt.Fprintf(&b, "- Scenario: `%s`\n", fc.ID)
		if fc.Step > 0 {
			fmt.Fprintf(&b, "- Failed step: %d (`%s %s`)\n", fc.Step, fc.StepKind, fc.Target)
		}
		fmt.Fprintf(&b, "- Error: %s: %s\n", fc.ErrorType, fc.Message)

		t, ok := byID[fc.ID]
		if !ok {
			b.WriteString("\nNo triage returned for this failure.\n\n")
			continue
		}
		if t.Category != "" {
			fmt.Fprintf(&b, "- Category: %s\n", t.Category)
		}
		fmt.Fprintf(&b, "\n**Cause.** %s\n\n**Suggestion.** %s\n\n", t.Cause, t.Suggestion)
	}
	return b.String()
}

func writeFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
