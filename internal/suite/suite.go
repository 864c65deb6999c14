// internal/suite/suite.go
package suite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/artifacts"
	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/fixture"
	"github.com/xkilldash9x/flowcheck/internal/harness"
	"github.com/xkilldash9x/flowcheck/internal/observability"
)

// closeTimeout bounds capturing artifacts and closing a page once the
// attempt context may already be gone.
const closeTimeout = 15 * time.Second

// Options schedules a suite run.
type Options struct {
	Concurrency     int
	Retries         int
	ScenarioTimeout time.Duration
	// Timeout bounds the whole run. Instances not started in time are skipped.
	Timeout time.Duration
	// StartRate limits instance starts per second. Zero disables pacing.
	StartRate float64
}

// OptionsFromConfig copies the scheduling part of the suite configuration.
func OptionsFromConfig(cfg config.SuiteConfig) Options {
	return Options{
		Concurrency:     cfg.Concurrency,
		Retries:         cfg.Retries,
		ScenarioTimeout: cfg.ScenarioTimeout,
		Timeout:         cfg.Timeout,
		StartRate:       cfg.StartRate,
	}
}

// Executor runs scenario instances in parallel, each on its own page.
type Executor struct {
	browser   browser.Browser
	runner    *harness.Runner
	collector *artifacts.Collector
	opts      Options
	logger    *zap.Logger
	newUser   func() fixture.User
	onResult  func(schemas.ScenarioResult)
}

// Option configures an Executor.
type Option func(*Executor)

// WithCollector enables artifact capture.
func WithCollector(c *artifacts.Collector) Option {
	return func(e *Executor) { e.collector = c }
}

// WithUserFactory replaces the fixture generator used for every attempt.
func WithUserFactory(f func() fixture.User) Option {
	return func(e *Executor) { e.newUser = f }
}

// WithResultHook is called once per finished instance, from the goroutine
// that ran it.
func WithResultHook(f func(schemas.ScenarioResult)) Option {
	return func(e *Executor) { e.onResult = f }
}

func NewExecutor(b browser.Browser, runner *harness.Runner, opts Options, logger *zap.Logger, options ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	e := &Executor{
		browser: b,
		runner:  runner,
		opts:    opts,
		logger:  logger.Named("suite"),
		newUser: fixture.NewUser,
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// Execute runs every instance and returns the report. Results keep the order
// of instances. A failing instance never stops the others.
func (e *Executor) Execute(ctx context.Context, instances []harness.Scenario) *schemas.SuiteReport {
	report := &schemas.SuiteReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Results:   make([]schemas.ScenarioResult, len(instances)),
	}

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	var limiter *rate.Limiter
	if e.opts.StartRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(e.opts.StartRate), 1)
	}

	e.logger.Info("Starting suite run.",
		zap.String("run_id", report.RunID),
		zap.Int("instances", len(instances)),
		zap.Int("concurrency", e.opts.Concurrency),
		zap.Int("retries", e.opts.Retries))

	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)
	for i := range instances {
		sc := instances[i]
		g.Go(func() error {
			var res schemas.ScenarioResult
			if err := e.waitTurn(ctx, limiter); err != nil {
				res = skipped(sc, err)
			} else {
				res = e.runInstance(ctx, sc)
			}
			report.Results[i] = res
			if e.onResult != nil {
				e.onResult(res)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = time.Now()
	report.DurationMS = float64(report.FinishedAt.Sub(report.StartedAt).Microseconds()) / 1000
	report.Tally()
	e.logger.Info("Suite run finished.",
		zap.Int("passed", report.Stats.Passed),
		zap.Int("failed", report.Stats.Failed),
		zap.Int("skipped", report.Stats.Skipped),
		zap.Int("flaky", report.Stats.Flaky))
	return report
}

func (e *Executor) waitTurn(ctx context.Context, limiter *rate.Limiter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		e.logger.Debug("Context cancelled while waiting for start pacing.", zap.Error(err))
		return err
	}
	return nil
}

// runInstance runs one instance, retrying the whole scenario on failure.
// Artifacts of every attempt are kept in the result.
func (e *Executor) runInstance(ctx context.Context, sc harness.Scenario) schemas.ScenarioResult {
	var (
		out  harness.Outcome
		refs []schemas.ArtifactRef
	)
	attempt := 0
	for attempt <= e.opts.Retries {
		attempt++
		var kept []schemas.ArtifactRef
		out, kept = e.attempt(ctx, sc, attempt)
		refs = append(refs, kept...)
		if out.Passed() || ctx.Err() != nil {
			break
		}
	}
	return resultOf(sc, out, attempt, refs)
}

func (e *Executor) attempt(ctx context.Context, sc harness.Scenario, attempt int) (harness.Outcome, []schemas.ArtifactRef) {
	logger := observability.ScenarioLogger(e.logger, sc.ID, sc.Title, attempt)

	if e.opts.ScenarioTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.ScenarioTimeout)
		defer cancel()
	}

	opts := browser.PageOptions{ID: sc.ID}
	if e.collector != nil {
		opts = e.collector.PageOptions(sc.ID, attempt)
	}
	page, err := e.browser.NewPage(ctx, opts)
	if err != nil {
		logger.Error("Failed to provision page.", zap.Error(err))
		return provisionFailure(sc, err), nil
	}

	out := e.runner.RunOn(ctx, page, sc, e.newUser())

	// The attempt context may have expired; cleanup runs on a detached one.
	cleanupCtx, cancel := context.WithTimeout(browser.Detach(ctx), closeTimeout)
	defer cancel()

	var refs []schemas.ArtifactRef
	if e.collector != nil {
		refs = e.collector.Capture(cleanupCtx, page, sc.ID, attempt, !out.Passed())
	}
	if err := page.Close(cleanupCtx); err != nil {
		logger.Warn("Failed to close page.", zap.Error(err))
	}
	if e.collector != nil {
		refs = append(refs, e.collector.Finalize(page, sc.ID, attempt, !out.Passed())...)
	}

	if out.Passed() {
		logger.Info("Scenario passed.", zap.Duration("duration", out.Duration))
	} else {
		logger.Warn("Scenario failed.", zap.Int("step", out.Failure.StepIndex+1), zap.String("error", out.Failure.Message))
	}
	return out, refs
}

func provisionFailure(sc harness.Scenario, err error) harness.Outcome {
	err = fmt.Errorf("provision page: %w", err)
	return harness.Outcome{
		ScenarioID: sc.ID,
		Title:      sc.Title,
		State:      harness.StateFailed,
		Err:        err,
		Failure:    &schemas.Failure{Message: err.Error(), ErrorType: harness.ErrorType(err), StepIndex: -1},
		Started:    time.Now(),
	}
}

func resultOf(sc harness.Scenario, out harness.Outcome, attempts int, refs []schemas.ArtifactRef) schemas.ScenarioResult {
	res := schemas.ScenarioResult{
		ID:         sc.ID,
		Title:      sc.Title,
		Feature:    sc.Feature,
		File:       sc.File,
		Outline:    sc.Outline,
		Tags:       sc.Tags,
		Status:     out.Status(),
		Attempts:   attempts,
		StartedAt:  out.Started,
		DurationMS: float64(out.Duration.Microseconds()) / 1000,
		Steps:      out.Steps,
		Failure:    out.Failure,
		Artifacts:  refs,
	}
	if sc.Row != nil {
		res.Row = sc.Row.Strings()
	}
	return res
}

func skipped(sc harness.Scenario, err error) schemas.ScenarioResult {
	res := resultOf(sc, harness.Outcome{Started: time.Now()}, 0, nil)
	res.Status = schemas.StatusSkipped
	res.Failure = &schemas.Failure{Message: "not started: " + err.Error(), ErrorType: "Skipped", StepIndex: -1}
	return res
}
