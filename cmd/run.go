// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/artifacts"
	"github.com/xkilldash9x/flowcheck/internal/browser/launcher"
	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/demobank"
	"github.com/xkilldash9x/flowcheck/internal/harness"
	"github.com/xkilldash9x/flowcheck/internal/observability"
	"github.com/xkilldash9x/flowcheck/internal/reporting"
	"github.com/xkilldash9x/flowcheck/internal/revision"
	"github.com/xkilldash9x/flowcheck/internal/suite"
)

// runOptions carries the run flags that are not plain config overrides.
type runOptions struct {
	selection
	headed bool
	demo   bool
}

// newRunCmd creates and configures the `run` command.
func newRunCmd(v *viper.Viper) *cobra.Command {
	var opts runOptions

	runCmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Runs scenario files against the application under test",
		Long: `Loads the scenario files under the given paths (or suite.paths, or a bundled
suite), expands every outline into instances and runs them in parallel, each on
its own browsing context. Exits with status 1 unless every instance passed.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			bindings := map[string]string{
				"driver":      "browser.driver",
				"base-url":    "harness.base_url",
				"concurrency": "suite.concurrency",
				"retries":     "suite.retries",
				"tag":         "suite.tags",
				"grep":        "suite.grep",
			}
			for flag, key := range bindings {
				if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-read the config now that the flags are bound.
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to apply flag overrides: %w", err)
			}
			if opts.headed {
				cfg.SetBrowserHeadless(false)
			}
			opts.paths = args

			report, err := runSuite(ctx, logger, cfg, opts, cmd.OutOrStdout(), NewStoreProvider())
			if err != nil {
				return err
			}
			if !report.Passed() {
				return ErrScenariosFailed
			}
			return nil
		},
	}

	flags := runCmd.Flags()
	flags.StringVar(&opts.suite, "suite", "", "bundled suite to run when no paths are given (demobank, parabank)")
	flags.StringSlice("tag", nil, "only run instances carrying one of these tags")
	flags.String("grep", "", "only run instances whose title matches this regular expression")
	flags.String("driver", config.DriverChromedp, "browser driver (chromedp, playwright, http)")
	flags.String("base-url", "", "base URL of the application under test")
	flags.IntP("concurrency", "j", 4, "number of instances run in parallel")
	flags.Int("retries", 0, "whole-scenario retries for failed instances")
	flags.BoolVar(&opts.headed, "headed", false, "show the browser window")
	flags.BoolVar(&opts.demo, "demo", false, "start the bundled demo bank and run against it")
	return runCmd
}

// runSuite contains the core, testable logic of the run command.
func runSuite(ctx context.Context, logger *zap.Logger, cfg config.Interface, opts runOptions, out io.Writer, provider storeProvider) (*schemas.SuiteReport, error) {
	if opts.suite == "" {
		opts.suite = "parabank"
		if opts.demo {
			opts.suite = "demobank"
		}
	}

	instances, err := loadInstances(logger, cfg.Suite(), opts.selection)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, errors.New("no scenarios matched the given paths, tags and pattern")
	}

	if opts.demo {
		stop, baseURL, err := startDemo(ctx, logger)
		if err != nil {
			return nil, err
		}
		defer stop()
		cfg.SetHarnessBaseURL(baseURL)
	}

	b, err := launcher.New(ctx, cfg.Browser(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if err := b.Close(context.Background()); err != nil {
			logger.Warn("Failed to close browser cleanly.", zap.Error(err))
		}
	}()

	runner := harness.NewRunner(b, harness.OptionsFromConfig(cfg.Harness()), logger)
	collector := artifacts.New(cfg.Artifacts(), Version, logger)
	executor := suite.NewExecutor(b, runner, suite.OptionsFromConfig(cfg.Suite()), logger,
		suite.WithCollector(collector),
		suite.WithResultHook(resultHook(logger, cfg.Report(), out)),
	)

	report := executor.Execute(ctx, instances)
	report.Config = schemas.RunConfig{
		BaseURL:     cfg.Harness().BaseURL,
		Driver:      cfg.Browser().Driver,
		Headless:    cfg.Browser().Headless,
		Concurrency: cfg.Suite().Concurrency,
		Retries:     cfg.Suite().Retries,
		Tags:        cfg.Suite().Tags,
		Grep:        cfg.Suite().Grep,
		Paths:       opts.sources(cfg.Suite()),
	}
	if rev, err := revision.Detect("."); err != nil {
		logger.Warn("Could not read the scenario revision.", zap.Error(err))
	} else {
		report.Revision = rev
	}

	if cfg.Report().Console {
		fmt.Fprint(out, reporting.Summary(report))
	}
	if err := writeReports(logger, cfg.Report(), report); err != nil {
		return report, err
	}
	if cfg.Database().URL != "" {
		saveRun(ctx, logger, cfg, provider, report)
	}
	return report, nil
}

// resultHook streams console lines and appends failures to the failure log
// as instances finish.
func resultHook(logger *zap.Logger, cfg config.ReportConfig, out io.Writer) func(schemas.ScenarioResult) {
	var failureLog *reporting.FailureLog
	if cfg.FailureLog != "" {
		failureLog = reporting.NewFailureLog(cfg.FailureLog)
	}
	var mu sync.Mutex
	return func(res schemas.ScenarioResult) {
		if failureLog != nil {
			if err := failureLog.Record(res); err != nil {
				logger.Warn("Failed to append to failure log.", zap.Error(err))
			}
		}
		if cfg.Console {
			mu.Lock()
			fmt.Fprintln(out, reporting.Line(res))
			mu.Unlock()
		}
	}
}

// writeReports writes every configured report file.
func writeReports(logger *zap.Logger, cfg config.ReportConfig, report *schemas.SuiteReport) error {
	outputs := []struct{ format, path string }{
		{"json", cfg.JSON},
		{"html", cfg.HTML},
		{"junit", cfg.JUnit},
		{"markdown", cfg.Markdown},
	}
	for _, o := range outputs {
		if o.path == "" {
			continue
		}
		if err := reporting.WriteFile(o.format, o.path, Version, report); err != nil {
			return err
		}
		logger.Info("Report written.", zap.String("format", o.format), zap.String("path", o.path))
	}
	return nil
}

// saveRun persists the report. Database problems never fail the run.
func saveRun(ctx context.Context, logger *zap.Logger, cfg config.Interface, provider storeProvider, report *schemas.SuiteReport) {
	s, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		logger.Warn("Run history is not available.", zap.Error(err))
		return
	}
	if cleanup != nil {
		defer cleanup()
	}
	if err := s.Migrate(ctx); err != nil {
		logger.Warn("Failed to prepare the run history schema.", zap.Error(err))
		return
	}
	if err := s.SaveReport(ctx, report); err != nil {
		logger.Warn("Failed to save the run.", zap.Error(err))
	}
}

// startDemo serves the demo bank on a free local port and returns its base URL.
func startDemo(ctx context.Context, logger *zap.Logger) (func(), string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, "", fmt.Errorf("failed to start the demo bank: %w", err)
	}
	srv := demobank.New(demobank.WithLogger(logger))

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ctx, ln); err != nil {
			logger.Error("Demo bank stopped.", zap.Error(err))
		}
	}()

	stop := func() {
		cancel()
		<-done
	}
	return stop, "http://" + ln.Addr().String() + demobank.BasePath, nil
}
