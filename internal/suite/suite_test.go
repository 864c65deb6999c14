// internal/suite/suite_test.go
package suite

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/artifacts"
	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/browser/httpdom"
	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/demobank"
	"github.com/xkilldash9x/flowcheck/internal/harness"
	"github.com/xkilldash9x/flowcheck/internal/scenario"
	"github.com/xkilldash9x/flowcheck/suites"
)

// -- Fakes --

// fakeBrowser hands out pages whose heading text comes from heading. It
// tracks how many pages are open at once.
type fakeBrowser struct {
	heading func(id string) string
	delay   time.Duration

	mu      sync.Mutex
	open    int
	maxOpen int
	created int
	closed  int
}

func (b *fakeBrowser) NewPage(_ context.Context, opts browser.PageOptions) (browser.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open++
	b.created++
	if b.open > b.maxOpen {
		b.maxOpen = b.open
	}
	return &fakePage{id: opts.ID, browser: b, responses: browser.NewResponseLog()}, nil
}

func (b *fakeBrowser) Close(context.Context) error { return nil }

func (b *fakeBrowser) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open--
	b.closed++
}

type fakePage struct {
	id        string
	browser   *fakeBrowser
	responses *browser.ResponseLog
	once      sync.Once
}

func (p *fakePage) ID() string { return p.id }
func (p *fakePage) Goto(ctx context.Context, _ string) error {
	select {
	case <-time.After(p.browser.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
func (p *fakePage) URL(context.Context) (string, error)                  { return "http://fake.test/", nil }
func (p *fakePage) WaitVisible(context.Context, browser.Locator) error   { return nil }
func (p *fakePage) WaitEnabled(context.Context, browser.Locator) error   { return nil }
func (p *fakePage) Fill(context.Context, browser.Locator, string) error  { return nil }
func (p *fakePage) Click(context.Context, browser.Locator) error         { return nil }
func (p *fakePage) Value(context.Context, browser.Locator) (string, error) { return "", nil }
func (p *fakePage) Text(context.Context, browser.Locator) (string, error) {
	return p.browser.heading(p.id), nil
}
func (p *fakePage) Texts(ctx context.Context, loc browser.Locator) ([]string, error) {
	t, err := p.Text(ctx, loc)
	return []string{t}, err
}
func (p *fakePage) Attribute(context.Context, browser.Locator, string) (string, bool, error) {
	return "", false, nil
}
func (p *fakePage) Screenshot(context.Context) ([]byte, error) { return nil, browser.ErrUnsupported }
func (p *fakePage) HTML(context.Context) (string, error)       { return "<html></html>", nil }
func (p *fakePage) Responses() *browser.ResponseLog            { return p.responses }
func (p *fakePage) Close(context.Context) error {
	p.once.Do(p.browser.release)
	return nil
}

// -- Helpers --

func fakeInstances(t *testing.T, n int) []harness.Scenario {
	t.Helper()
	app, err := harness.NewApp("fake", map[string]harness.RouteDef{"home": {Path: "/", Ready: "body"}}, nil, nil)
	require.NoError(t, err)

	var all []harness.Scenario
	for i := 0; i < n; i++ {
		o := &harness.Outline{
			Title:   fmt.Sprintf("case %d", i),
			Feature: "fake",
			Tags:    []string{fmt.Sprintf("group%d", i%2)},
			App:     app,
			Steps: []harness.Step{
				{Kind: harness.StepNavigate, Target: "home"},
				{Kind: harness.StepAssert, Op: harness.OpText, Target: "h1", Expected: "ok"},
			},
		}
		instances, err := o.Expand()
		require.NoError(t, err)
		all = append(all, instances...)
	}
	return all
}

func fakeExecutor(t *testing.T, b *fakeBrowser, opts Options, extra ...Option) *Executor {
	t.Helper()
	logger := zaptest.NewLogger(t)
	runner := harness.NewRunner(b, harness.Options{
		BaseURL:           "http://fake.test",
		ActionTimeout:     time.Second,
		NavigationTimeout: time.Second,
		ResponseTimeout:   time.Second,
		DateLayout:        "01-02-2006",
	}, logger)
	return NewExecutor(b, runner, opts, logger, extra...)
}

func always(text string) func(string) string {
	return func(string) string { return text }
}

// -- Tests --

func TestExecuteRespectsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBrowser{heading: always("ok"), delay: 20 * time.Millisecond}
	instances := fakeInstances(t, 8)

	var hooked atomic.Int32
	exec := fakeExecutor(t, b, Options{Concurrency: 3}, WithResultHook(func(schemas.ScenarioResult) { hooked.Add(1) }))
	report := exec.Execute(context.Background(), instances)

	require.Len(t, report.Results, 8)
	for i, res := range report.Results {
		assert.Equal(t, instances[i].ID, res.ID, "results keep instance order")
		assert.Equal(t, schemas.StatusPassed, res.Status)
		assert.Equal(t, 1, res.Attempts)
		assert.Len(t, res.Steps, 2)
	}
	assert.True(t, report.Passed())
	assert.Equal(t, schemas.Stats{Total: 8, Passed: 8}, report.Stats)
	assert.LessOrEqual(t, b.maxOpen, 3)
	assert.Equal(t, 8, b.created)
	assert.Equal(t, 8, b.closed, "every page is closed")
	assert.Equal(t, int32(8), hooked.Load())
	assert.NotEmpty(t, report.RunID)
}

func TestFlakyInstanceIsRetried(t *testing.T) {
	defer goleak.VerifyNone(t)

	var mu sync.Mutex
	calls := map[string]int{}
	b := &fakeBrowser{heading: func(id string) string {
		mu.Lock()
		defer mu.Unlock()
		calls[id]++
		if calls[id] == 1 {
			return "not yet"
		}
		return "ok"
	}}

	report := fakeExecutor(t, b, Options{Concurrency: 2, Retries: 2}).Execute(context.Background(), fakeInstances(t, 2))
	for _, res := range report.Results {
		assert.Equal(t, schemas.StatusPassed, res.Status)
		assert.Equal(t, 2, res.Attempts)
		assert.True(t, res.Flaky())
	}
	assert.Equal(t, 2, report.Stats.Flaky)
	assert.Equal(t, 4, b.closed)
}

func TestFailureDoesNotStopOtherInstances(t *testing.T) {
	defer goleak.VerifyNone(t)

	instances := fakeInstances(t, 3)
	bad := instances[1].ID
	b := &fakeBrowser{heading: func(id string) string {
		if id == bad {
			return "server error"
		}
		return "ok"
	}}

	report := fakeExecutor(t, b, Options{Concurrency: 1, Retries: 1}).Execute(context.Background(), instances)
	assert.False(t, report.Passed())
	assert.Equal(t, schemas.Stats{Total: 3, Passed: 2, Failed: 1}, report.Stats)

	failed := report.Results[1]
	assert.Equal(t, schemas.StatusFailed, failed.Status)
	assert.Equal(t, 2, failed.Attempts)
	require.NotNil(t, failed.Failure)
	assert.Equal(t, 1, failed.Failure.StepIndex)
	assert.Equal(t, "AssertionFailure", failed.Failure.ErrorType)
	assert.Equal(t, "server error", failed.Failure.Actual)
}

func TestCanceledRunSkipsInstances(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := &fakeBrowser{heading: always("ok")}
	report := fakeExecutor(t, b, Options{Concurrency: 2}).Execute(ctx, fakeInstances(t, 3))
	assert.Equal(t, schemas.Stats{Total: 3, Skipped: 3}, report.Stats)
	assert.Zero(t, b.created)
	assert.Contains(t, report.Results[0].Failure.Message, "not started")
	assert.False(t, report.Passed(), "instances that never started are not a pass")
}

func TestSuiteTimeoutSkipsPendingInstances(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBrowser{heading: always("ok")}
	opts := Options{Concurrency: 1, StartRate: 1, Timeout: 500 * time.Millisecond}
	report := fakeExecutor(t, b, opts).Execute(context.Background(), fakeInstances(t, 3))

	assert.Equal(t, schemas.Stats{Total: 3, Passed: 1, Skipped: 2}, report.Stats)
	assert.False(t, report.Passed())
}

func TestScenarioTimeoutFailsSlowInstance(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBrowser{heading: always("ok"), delay: time.Second}
	report := fakeExecutor(t, b, Options{Concurrency: 1, ScenarioTimeout: 50 * time.Millisecond}).
		Execute(context.Background(), fakeInstances(t, 1))

	res := report.Results[0]
	assert.Equal(t, schemas.StatusFailed, res.Status)
	assert.Equal(t, "NavigationError", res.Failure.ErrorType)
	assert.Equal(t, 1, b.closed, "pages are closed after a timeout")
}

func TestStartRatePacesInstances(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBrowser{heading: always("ok")}
	started := time.Now()
	report := fakeExecutor(t, b, Options{Concurrency: 3, StartRate: 20}).Execute(context.Background(), fakeInstances(t, 3))
	assert.True(t, report.Passed())
	assert.GreaterOrEqual(t, time.Since(started), 90*time.Millisecond)
}

func TestFilter(t *testing.T) {
	instances := fakeInstances(t, 4)

	f, err := NewFilter([]string{"group1"}, "")
	require.NoError(t, err)
	assert.Len(t, f.Select(instances), 2)

	f, err = NewFilter([]string{"~group1"}, "case [02]")
	require.NoError(t, err)
	got := f.Select(instances)
	require.Len(t, got, 2)
	assert.Equal(t, "case 0", got[0].Title)
	assert.Equal(t, "case 2", got[1].Title)

	f, err = NewFilter([]string{"group0, !group0"}, "")
	require.NoError(t, err)
	assert.Empty(t, f.Select(instances))

	_, err = NewFilter(nil, "(")
	assert.ErrorContains(t, err, "invalid grep pattern")
}

func TestBundledDemobankSuitePasses(t *testing.T) {
	logger := zaptest.NewLogger(t)
	bank := demobank.New(demobank.WithLogger(logger))
	srv := httptest.NewServer(bank.Handler())
	defer srv.Close()

	features, err := scenario.NewLoader(suites.FS, logger).Load("demobank")
	require.NoError(t, err)
	var instances []harness.Scenario
	for _, f := range features {
		got, err := f.Instances()
		require.NoError(t, err)
		instances = append(instances, got...)
	}

	b := httpdom.New(config.BrowserConfig{}, logger)
	defer b.Close(context.Background())

	runner := harness.NewRunner(b, harness.Options{
		BaseURL:           srv.URL + demobank.BasePath,
		ActionTimeout:     2 * time.Second,
		NavigationTimeout: 5 * time.Second,
		ResponseTimeout:   2 * time.Second,
		DateLayout:        "01-02-2006",
	}, logger)

	dir := t.TempDir()
	collector := artifacts.New(config.ArtifactsConfig{
		Dir:        dir,
		Screenshot: config.PolicyOnlyOnFailure,
		DOM:        config.PolicyOnlyOnFailure,
		Trace:      config.PolicyRetainOnFailure,
		Video:      config.PolicyOff,
	}, "test", logger)

	report := NewExecutor(b, runner, Options{Concurrency: 4, ScenarioTimeout: 30 * time.Second}, logger, WithCollector(collector)).
		Execute(context.Background(), instances)

	for _, res := range report.Failed() {
		t.Errorf("%s failed at step %d: %s", res.ID, res.Failure.StepIndex+1, res.Failure.Message)
	}
	assert.Equal(t, 26, report.Stats.Total)
	assert.True(t, report.Passed())
	for _, res := range report.Results {
		assert.Empty(t, res.Artifacts, "passing instances keep no artifacts")
	}
}
