// File: cmd/generate.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/generate"
	"github.com/xkilldash9x/flowcheck/internal/observability"
	"github.com/xkilldash9x/flowcheck/internal/scenario"
	"github.com/xkilldash9x/flowcheck/suites"
)

type generateOptions struct {
	suite     string
	appPath   string
	outputDir string
}

// newGenerateCmd creates the `generate` command. A nil factory uses the
// configured provider.
func newGenerateCmd(factory clientFactory) *cobra.Command {
	if factory == nil {
		factory = defaultClientFactory
	}
	var opts generateOptions

	generateCmd := &cobra.Command{
		Use:   "generate <criteria.md|feature.feature>...",
		Short: "Writes scenario files from acceptance criteria or Gherkin with an LLM",
		Long: `Acceptance criteria (any file that is not a .feature) are first turned into a
Gherkin feature, which is kept next to the result. Gherkin features are then
converted into scenario YAML against an application model, either a bundled
suite's (--suite) or a *.app.yaml file (--app). A scenario file is only
written once it loads cleanly; rejected answers are sent back to the model
with the load error.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runGenerate(ctx, logger, cfg.Analysis(), factory, opts, args, cmd.OutOrStdout())
		},
	}

	generateCmd.Flags().StringVar(&opts.suite, "suite", "demobank", "bundled suite whose application model is used")
	generateCmd.Flags().StringVar(&opts.appPath, "app", "", "application model file (*.app.yaml), overrides --suite")
	generateCmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", "generated", "directory for generated files")
	return generateCmd
}

// appModel reads the application model generated files refer to.
func appModel(opts generateOptions) (generate.App, error) {
	if opts.appPath != "" {
		if !strings.HasSuffix(opts.appPath, scenario.AppSuffix) {
			return generate.App{}, fmt.Errorf("application model %s must end in %s", opts.appPath, scenario.AppSuffix)
		}
		data, err := os.ReadFile(opts.appPath)
		if err != nil {
			return generate.App{}, fmt.Errorf("failed to read application model: %w", err)
		}
		return generate.App{File: filepath.Base(opts.appPath), Data: data}, nil
	}

	if !slices.Contains(suites.Names(), opts.suite) {
		return generate.App{}, fmt.Errorf("unknown bundled suite %q (available: %s)", opts.suite, strings.Join(suites.Names(), ", "))
	}
	file := opts.suite + scenario.AppSuffix
	data, err := fs.ReadFile(suites.FS, opts.suite+"/"+file)
	if err != nil {
		return generate.App{}, fmt.Errorf("bundled suite %q has no application model: %w", opts.suite, err)
	}
	return generate.App{File: file, Data: data}, nil
}

func runGenerate(ctx context.Context, logger *zap.Logger, cfg config.AnalysisConfig, factory clientFactory, opts generateOptions, inputs []string, out io.Writer) error {
	app, err := appModel(opts)
	if err != nil {
		return err
	}
	client, err := factory(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	g := generate.New(client, app, logger)
	for _, input := range inputs {
		res, err := g.File(ctx, input, opts.outputDir)
		if err != nil {
			return err
		}
		if res.Gherkin != "" {
			fmt.Fprintf(out, "%s -> %s\n", input, res.Gherkin)
		}
		fmt.Fprintf(out, "%s -> %s\n", input, res.Scenario)
	}
	return nil
}
