// File: cmd/report.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/observability"
	"github.com/xkilldash9x/flowcheck/internal/reporting"
	"github.com/xkilldash9x/flowcheck/internal/store"
)

// runStore is the part of the result store the CLI uses.
type runStore interface {
	Migrate(ctx context.Context) error
	SaveReport(ctx context.Context, report *schemas.SuiteReport) error
	RecentRuns(ctx context.Context, limit int) ([]store.RunSummary, error)
}

// storeProvider creates the run store. Tests inject a mock instead of a live
// database connection.
type storeProvider interface {
	// Create returns the store and a cleanup function releasing its resources.
	Create(ctx context.Context, cfg config.Interface) (runStore, func(), error)
}

// defaultStoreProvider connects to PostgreSQL.
type defaultStoreProvider struct{}

func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (runStore, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database().URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (FLOWCHECK_DATABASE_URL)")
	}

	s, pool, err := store.Open(ctx, cfg.Database().URL, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return s, cleanup, nil
}

// newReportCmd creates and configures the `report` command.
func newReportCmd(provider storeProvider) *cobra.Command {
	var (
		inputPath  string
		outputPath string
		format     string
		history    int
	)

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Renders a saved run report in another format",
		Long: `Reads the JSON report of a previous run and renders it as html, json, junit,
markdown, sarif or text. With --history the latest runs recorded in the
database are listed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if history > 0 {
				return runHistory(ctx, cfg, provider, history, cmd.OutOrStdout())
			}
			if inputPath == "" {
				inputPath = cfg.Report().JSON
			}
			return runReport(logger, inputPath, outputPath, format, cmd.OutOrStdout())
		},
	}

	reportCmd.Flags().StringVarP(&inputPath, "input", "i", "", "JSON report to read (default is report.json)")
	reportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path. If unset, the report is printed to stdout.")
	reportCmd.Flags().StringVarP(&format, "format", "f", "text", "output format ("+strings.Join(reporting.Formats, ", ")+")")
	reportCmd.Flags().IntVar(&history, "history", 0, "list the latest N runs from the database")
	return reportCmd
}

// runReport contains the core, testable logic for re-rendering a report.
func runReport(logger *zap.Logger, inputPath, outputPath, format string, stdout io.Writer) error {
	if !slices.Contains(reporting.Formats, format) && format != "md" {
		return fmt.Errorf("unsupported output format: %s", format)
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	report, err := reporting.ReadJSON(f)
	if err != nil {
		return fmt.Errorf("failed to read report %s: %w", inputPath, err)
	}

	if outputPath == "" {
		r, err := reporting.NewWriter(format, nopCloser{stdout}, Version)
		if err != nil {
			return err
		}
		if err := r.Write(report); err != nil {
			return err
		}
		return r.Close()
	}

	if err := reporting.WriteFile(format, outputPath, Version, report); err != nil {
		return err
	}
	logger.Info("Report successfully written to file", zap.String("path", outputPath), zap.String("format", format))
	return nil
}

// runHistory prints the latest runs recorded in the database.
func runHistory(ctx context.Context, cfg config.Interface, provider storeProvider, limit int, out io.Writer) error {
	s, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	runs, err := s.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tDRIVER\tCOMMIT\tPASSED\tFAILED\tSKIPPED\tFLAKY\tDURATION")
	for _, r := range runs {
		commit := r.Commit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%.1fs\n",
			r.RunID, r.StartedAt.Local().Format("2006-01-02 15:04"), r.Driver, commit,
			r.Stats.Passed, r.Stats.Failed, r.Stats.Skipped, r.Stats.Flaky, r.DurationMS/1000)
	}
	return tw.Flush()
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
