// File: cmd/list.go
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/flowcheck/internal/observability"
)

// newListCmd creates the `list` command.
func newListCmd() *cobra.Command {
	var sel selection
	var tags []string
	var grep string

	listCmd := &cobra.Command{
		Use:   "list [paths...]",
		Short: "Lists the scenario instances a run would execute",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			suiteCfg := cfg.Suite()
			if cmd.Flags().Changed("tag") {
				suiteCfg.Tags = tags
			}
			if cmd.Flags().Changed("grep") {
				suiteCfg.Grep = grep
			}
			sel.paths = args
			if sel.suite == "" {
				sel.suite = "parabank"
			}

			instances, err := loadInstances(observability.GetLogger(), suiteCfg, sel)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, sc := range instances {
				line := fmt.Sprintf("%s\t%s › %s", sc.ID, sc.Feature, sc.Title)
				if len(sc.Tags) > 0 {
					line += "\t@" + strings.Join(sc.Tags, " @")
				}
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "\n%d scenario instances\n", len(instances))
			return nil
		},
	}

	listCmd.Flags().StringVar(&sel.suite, "suite", "", "bundled suite to list when no paths are given (demobank, parabank)")
	listCmd.Flags().StringSliceVar(&tags, "tag", nil, "only list instances carrying one of these tags")
	listCmd.Flags().StringVar(&grep, "grep", "", "only list instances whose title matches this regular expression")
	return listCmd
}
