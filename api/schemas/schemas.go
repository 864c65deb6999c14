package schemas

import "time"

// Status is the terminal state of a scenario instance or step.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

func (s Status) String() string { return string(s) }

// ArtifactKind identifies a captured artifact.
type ArtifactKind string

const (
	ArtifactScreenshot ArtifactKind = "screenshot"
	ArtifactDOM        ArtifactKind = "dom"
	ArtifactTrace      ArtifactKind = "trace"
	ArtifactVideo      ArtifactKind = "video"
)

func (k ArtifactKind) String() string { return string(k) }

// SuiteReport is the machine-readable record of one suite run. It is the
// payload of report.json and the input of every other report format.
type SuiteReport struct {
	RunID      string           `json:"runId"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	DurationMS float64          `json:"durationMs"`
	Config     RunConfig        `json:"config"`
	Revision   *Revision        `json:"revision,omitempty"`
	Stats      Stats            `json:"stats"`
	Results    []ScenarioResult `json:"results"`
}

// RunConfig records the settings a run was executed with.
type RunConfig struct {
	BaseURL     string   `json:"baseUrl"`
	Driver      string   `json:"driver"`
	Headless    bool     `json:"headless"`
	Concurrency int      `json:"concurrency"`
	Retries     int      `json:"retries"`
	Tags        []string `json:"tags,omitempty"`
	Grep        string   `json:"grep,omitempty"`
	Paths       []string `json:"paths,omitempty"`
}

// Revision identifies the source revision of the scenario files.
type Revision struct {
	Commit string `json:"commit"`
	Branch string `json:"branch,omitempty"`
	Dirty  bool   `json:"dirty"`
}

// Stats aggregates instance outcomes.
type Stats struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	// Flaky counts instances that passed only after a retry.
	Flaky int `json:"flaky"`
}

// ScenarioResult is the outcome of one scenario instance.
type ScenarioResult struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Feature    string            `json:"feature"`
	File       string            `json:"file,omitempty"`
	Outline    string            `json:"outline,omitempty"`
	Row        map[string]string `json:"row,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Status     Status            `json:"status"`
	Attempts   int               `json:"attempts"`
	StartedAt  time.Time         `json:"startedAt"`
	DurationMS float64           `json:"durationMs"`
	Steps      []StepRecord      `json:"steps"`
	Failure    *Failure          `json:"failure,omitempty"`
	Artifacts  []ArtifactRef     `json:"artifacts,omitempty"`
}

// Flaky reports whether the instance passed after at least one failed attempt.
func (r ScenarioResult) Flaky() bool {
	return r.Status == StatusPassed && r.Attempts > 1
}

// StepRecord is the outcome of a single step of the final attempt.
type StepRecord struct {
	Index      int     `json:"index"`
	Kind       string  `json:"kind"`
	Target     string  `json:"target"`
	Value      string  `json:"value,omitempty"`
	Status     Status  `json:"status"`
	DurationMS float64 `json:"durationMs"`
	Error      string  `json:"error,omitempty"`
}

// Failure holds the detail of the first failing step.
type Failure struct {
	Message   string `json:"message"`
	ErrorType string `json:"errorType"`
	StepIndex int    `json:"stepIndex"`
	StepKind  string `json:"stepKind"`
	Target    string `json:"target"`
	Expected  string `json:"expected,omitempty"`
	Actual    string `json:"actual,omitempty"`
}

// ArtifactRef points at a file captured for an instance.
type ArtifactRef struct {
	Kind        ArtifactKind `json:"kind"`
	Path        string       `json:"path"`
	ContentType string       `json:"contentType"`
}

// Failed returns the results that did not pass.
func (r *SuiteReport) Failed() []ScenarioResult {
	var failed []ScenarioResult
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			failed = append(failed, res)
		}
	}
	return failed
}

// Passed reports whether every included instance passed. Skipped instances
// never ran, so they count against the run. An empty report passes.
func (r *SuiteReport) Passed() bool {
	return r.Stats.Passed == r.Stats.Total
}

// Tally recomputes Stats from Results.
func (r *SuiteReport) Tally() {
	var s Stats
	for _, res := range r.Results {
		s.Total++
		switch res.Status {
		case StatusPassed:
			s.Passed++
			if res.Flaky() {
				s.Flaky++
			}
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	r.Stats = s
}
