// internal/harness/runner.go
package harness

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/fixture"
)

// pageCloseTimeout bounds releasing a page after its scenario ended.
const pageCloseTimeout = 10 * time.Second

// Options is the explicit configuration handed to a Runner.
type Options struct {
	BaseURL           string
	ActionTimeout     time.Duration
	NavigationTimeout time.Duration
	ResponseTimeout   time.Duration
	DateLayout        string
}

// OptionsFromConfig copies the harness section of the configuration.
func OptionsFromConfig(cfg config.HarnessConfig) Options {
	return Options{
		BaseURL:           cfg.BaseURL,
		ActionTimeout:     cfg.ActionTimeout,
		NavigationTimeout: cfg.NavigationTimeout,
		ResponseTimeout:   cfg.ResponseTimeout,
		DateLayout:        cfg.DateLayout,
	}
}

// State is the lifecycle position of a scenario instance.
type State int

const (
	StatePending State = iota
	StateRunning
	StatePassed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StatePassed:
		return "passed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Outcome is the result of one scenario instance.
type Outcome struct {
	ScenarioID string
	Title      string
	State      State
	Steps      []schemas.StepRecord
	// Failure and Err describe the first failing step.
	Failure  *schemas.Failure
	Err      error
	Captured map[string]string
	Started  time.Time
	Duration time.Duration
}

// Passed reports whether every step passed.
func (o Outcome) Passed() bool { return o.State == StatePassed }

// Status maps the state onto the report schema.
func (o Outcome) Status() schemas.Status {
	if o.State == StatePassed {
		return schemas.StatusPassed
	}
	return schemas.StatusFailed
}

// Runner executes scenarios step by step.
type Runner struct {
	browser browser.Browser
	opts    Options
	logger  *zap.Logger
	newUser func() fixture.User
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithUserFactory replaces the fixture generator.
func WithUserFactory(f func() fixture.User) RunnerOption {
	return func(r *Runner) { r.newUser = f }
}

// NewRunner creates a runner that provisions pages from b.
func NewRunner(b browser.Browser, opts Options, logger *zap.Logger, ro ...RunnerOption) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{browser: b, opts: opts, logger: logger.Named("runner"), newUser: fixture.NewUser}
	for _, o := range ro {
		o(r)
	}
	return r
}

// Run executes sc on a fresh page that is closed afterwards, even when ctx
// was canceled.
func (r *Runner) Run(ctx context.Context, sc Scenario) Outcome {
	page, err := r.browser.NewPage(ctx, browser.PageOptions{ID: sc.ID})
	if err != nil {
		return failedBeforeStart(sc, fmt.Errorf("provision page: %w", err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(browser.Detach(ctx), pageCloseTimeout)
		defer cancel()
		if err := page.Close(closeCtx); err != nil {
			r.logger.Warn("Failed to close page.", zap.String("scenario", sc.ID), zap.Error(err))
		}
	}()
	return r.RunOn(ctx, page, sc, r.newUser())
}

// RunOutline expands o and runs every instance on its own page. A failing
// instance does not stop the others.
func (r *Runner) RunOutline(ctx context.Context, o *Outline) ([]Outcome, error) {
	instances, err := o.Expand()
	if err != nil {
		return nil, err
	}
	outcomes := make([]Outcome, 0, len(instances))
	for _, sc := range instances {
		outcomes = append(outcomes, r.Run(ctx, sc))
	}
	return outcomes, nil
}

func failedBeforeStart(sc Scenario, err error) Outcome {
	return Outcome{
		ScenarioID: sc.ID,
		Title:      sc.Title,
		State:      StateFailed,
		Err:        err,
		Failure: &schemas.Failure{
			Message:   err.Error(),
			ErrorType: ErrorType(err),
			StepIndex: -1,
		},
		Started: time.Now(),
	}
}

// session is the per-instance execution state.
type session struct {
	opts      Options
	page      browser.Page
	app       *App
	user      fixture.User
	captured  map[string]string
	navigator *Navigator
	filler    *Filler
	trigger   *Trigger
	asserter  *Asserter
	// prevMark is the response log position when the last step other than a
	// wait_response started.
	prevMark int
}

// RunOn executes sc on a page owned by the caller. Steps run strictly in
// order; the first failure ends the instance.
func (r *Runner) RunOn(ctx context.Context, page browser.Page, sc Scenario, user fixture.User) (out Outcome) {
	logger := r.logger.With(zap.String("scenario", sc.ID))
	out = Outcome{
		ScenarioID: sc.ID,
		Title:      sc.Title,
		State:      StatePending,
		Captured:   make(map[string]string),
		Started:    time.Now(),
	}
	defer func() { out.Duration = time.Since(out.Started) }()

	s := &session{
		opts:      r.opts,
		page:      page,
		app:       sc.App,
		user:      user,
		captured:  out.Captured,
		navigator: NewNavigator(page, sc.App, r.opts.BaseURL, r.opts.NavigationTimeout, logger),
		filler:    NewFiller(page, sc.App, r.opts.ActionTimeout, logger),
		trigger:   NewTrigger(page, sc.App, r.opts.ActionTimeout, r.opts.NavigationTimeout, logger),
		asserter:  NewAsserter(page, r.opts.ActionTimeout),
	}

	out.State = StateRunning
	logger.Debug("Scenario running.", zap.Int("steps", len(sc.Steps)))

	for i, step := range sc.Steps {
		started := time.Now()
		mark := page.Responses().Mark()

		resolved, err := s.resolve(step)
		if err == nil {
			err = ctx.Err()
		}
		if err == nil {
			err = s.exec(ctx, resolved)
		}
		if step.Kind != StepWaitResponse {
			s.prevMark = mark
		}

		rec := schemas.StepRecord{
			Index:      i,
			Kind:       string(step.Kind),
			Target:     resolved.Target,
			Value:      resolved.expectation(),
			Status:     schemas.StatusPassed,
			DurationMS: float64(time.Since(started).Microseconds()) / 1000,
		}
		if err != nil {
			rec.Status = schemas.StatusFailed
			rec.Error = err.Error()
			out.Steps = append(out.Steps, rec)
			out.State = StateFailed
			out.Err = err
			out.Failure = failureOf(i, resolved, err)
			logger.Info("Scenario failed.", zap.Int("step", i+1), zap.String("kind", string(step.Kind)), zap.Error(err))
			return out
		}
		out.Steps = append(out.Steps, rec)
	}

	out.State = StatePassed
	logger.Debug("Scenario passed.")
	return out
}

func failureOf(index int, step Step, err error) *schemas.Failure {
	f := &schemas.Failure{
		Message:   err.Error(),
		ErrorType: ErrorType(err),
		StepIndex: index,
		StepKind:  string(step.Kind),
		Target:    step.Target,
		Expected:  step.expectation(),
	}
	var af *AssertionFailure
	if errors.As(err, &af) {
		f.Expected = af.Expected
		f.Actual = af.Actual
	}
	return f
}

// resolve fills in ${user.*} and ${captured.*} placeholders.
func (s *session) resolve(step Step) (Step, error) {
	lookup := func(name string) (Value, bool) {
		switch {
		case strings.HasPrefix(name, userScope):
			v, ok := s.user.Lookup(strings.TrimPrefix(name, userScope))
			return Set(v), ok
		case strings.HasPrefix(name, capturedScope):
			v, ok := s.captured[strings.TrimPrefix(name, capturedScope)]
			return Set(v), ok
		}
		return Value{}, false
	}
	resolved := step.resolve(lookup)
	for _, text := range resolved.texts() {
		if name, ok := unresolved(text); ok {
			return resolved, fmt.Errorf("unbound placeholder ${%s}", name)
		}
	}
	return resolved, nil
}

func (s *session) exec(ctx context.Context, step Step) error {
	switch step.Kind {
	case StepNavigate:
		return s.navigator.Goto(ctx, step.Target)
	case StepFill:
		return s.filler.Fill(ctx, step.Target, step.Value)
	case StepClick:
		return s.trigger.Trigger(ctx, step.Target)
	case StepAssert:
		return s.assert(ctx, step)
	case StepCapture:
		return s.capture(ctx, step)
	case StepWaitResponse:
		return s.waitResponse(ctx, step)
	}
	return fmt.Errorf("unknown step kind %q", step.Kind)
}

func (s *session) assert(ctx context.Context, step Step) error {
	if step.Op == OpURL {
		re, err := regexp.Compile(step.Expected)
		if err != nil {
			return err
		}
		return s.asserter.AssertURLMatches(ctx, re)
	}

	loc, err := s.app.Locate(step.Target)
	if err != nil {
		return err
	}
	switch step.Op {
	case OpText:
		return s.asserter.AssertVisibleText(ctx, loc, step.Expected)
	case OpValue:
		return s.asserter.AssertValue(ctx, loc, step.Expected)
	case OpDatesDescending:
		return s.asserter.AssertNonIncreasingDates(ctx, loc, s.opts.DateLayout)
	}

	re, err := regexp.Compile(step.Expected)
	if err != nil {
		return err
	}
	switch step.Op {
	case OpMatches:
		return s.asserter.AssertTextMatches(ctx, loc, re)
	case OpAttribute:
		return s.asserter.AssertAttribute(ctx, loc, step.Attr, re)
	}
	return fmt.Errorf("unknown assertion %q", step.Op)
}

func (s *session) capture(ctx context.Context, step Step) error {
	loc, err := s.app.Locate(step.Target)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.ActionTimeout)
	defer cancel()
	if err := s.page.WaitVisible(ctx, loc); err != nil {
		return &AssertionFailure{Locator: loc.String(), Expected: "visible element to capture", Actual: notVisible, Err: err}
	}
	text, err := s.page.Text(ctx, loc)
	if err != nil {
		return fmt.Errorf("capture %s: %w", loc, err)
	}
	s.captured[step.As] = normalizeSpace(text)
	return nil
}

// waitResponse looks for a matching response recorded since the last action
// step started, so the response triggered by a click is not missed and
// consecutive waits share the same window.
func (s *session) waitResponse(ctx context.Context, step Step) error {
	re, err := regexp.Compile(step.Target)
	if err != nil {
		return err
	}
	m := browser.ResponseMatcher{URL: re, Method: strings.ToUpper(step.Method), Status: step.Status}

	ctx, cancel := context.WithTimeout(ctx, s.opts.ResponseTimeout)
	defer cancel()
	if _, err := s.page.Responses().Wait(ctx, m, s.prevMark); err != nil {
		return &AssertionFailure{Locator: m.String(), Expected: "matching response", Actual: "<no response>", Err: err}
	}
	return nil
}
