// File: cmd/analyze.go
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/analysis"
	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/llmclient"
	"github.com/xkilldash9x/flowcheck/internal/observability"
	"github.com/xkilldash9x/flowcheck/internal/reporting"
)

// clientFactory creates the LLM client used for triage.
type clientFactory func(ctx context.Context, cfg config.AnalysisConfig, logger *zap.Logger) (llmclient.Client, error)

func defaultClientFactory(ctx context.Context, cfg config.AnalysisConfig, logger *zap.Logger) (llmclient.Client, error) {
	return llmclient.NewClient(ctx, cfg, logger)
}

// newAnalyzeCmd creates the `analyze` command. A nil factory uses the
// configured provider.
func newAnalyzeCmd(factory clientFactory) *cobra.Command {
	if factory == nil {
		factory = defaultClientFactory
	}
	var inputPath, outputDir string

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Asks an LLM why the failed scenarios of a run failed",
		Long: `Builds a failure context for every failed instance of a JSON report (step,
error, expected and actual values, page text from the DOM snapshot) and writes
a triage summary to <output-dir>/summary.md. Runs without failures get a short
note and the model is not called.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if inputPath == "" {
				inputPath = cfg.Report().JSON
			}
			if outputDir == "" {
				outputDir = cfg.Analysis().OutputDir
			}

			path, err := runAnalyze(ctx, logger, cfg.Analysis(), factory, inputPath, outputDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Analysis written to %s\n", path)
			return nil
		},
	}

	analyzeCmd.Flags().StringVarP(&inputPath, "input", "i", "", "JSON report to analyze (default is report.json)")
	analyzeCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "directory for summary.md (default is ai/analysis)")
	return analyzeCmd
}

func runAnalyze(ctx context.Context, logger *zap.Logger, cfg config.AnalysisConfig, factory clientFactory, inputPath, outputDir string) (string, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return "", fmt.Errorf("failed to open report: %w", err)
	}
	report, err := reporting.ReadJSON(f)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("failed to read report %s: %w", inputPath, err)
	}

	var client llmclient.Client
	if report.Stats.Failed > 0 {
		client, err = factory(ctx, cfg, logger)
		if err != nil {
			return "", fmt.Errorf("failed to create LLM client: %w", err)
		}
	}
	return analysis.New(client, outputDir, logger).Analyze(ctx, report)
}
