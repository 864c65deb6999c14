// File: cmd/scenarios.go
package cmd

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/harness"
	"github.com/xkilldash9x/flowcheck/internal/scenario"
	"github.com/xkilldash9x/flowcheck/internal/suite"
	"github.com/xkilldash9x/flowcheck/suites"
)

// selection names the scenario sources of a command. Paths win over
// suite.paths from the config, which win over the bundled suite.
type selection struct {
	paths []string
	suite string
}

func (s selection) sources(cfg config.SuiteConfig) []string {
	if len(s.paths) > 0 {
		return s.paths
	}
	return cfg.Paths
}

// loadInstances loads, expands and filters the selected scenarios. Unknown
// fields, routes and unbound placeholders fail here, before any browser work.
func loadInstances(logger *zap.Logger, cfg config.SuiteConfig, sel selection) ([]harness.Scenario, error) {
	var (
		features []*scenario.Feature
		err      error
	)
	if paths := sel.sources(cfg); len(paths) > 0 {
		features, err = scenario.LoadPaths(logger, paths...)
	} else {
		if !slices.Contains(suites.Names(), sel.suite) {
			return nil, fmt.Errorf("unknown bundled suite %q (available: %s)", sel.suite, strings.Join(suites.Names(), ", "))
		}
		features, err = scenario.NewLoader(suites.FS, logger).Load(sel.suite)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load scenarios: %w", err)
	}

	var instances []harness.Scenario
	for _, f := range features {
		got, err := f.Instances()
		if err != nil {
			return nil, err
		}
		instances = append(instances, got...)
	}

	filter, err := suite.NewFilter(cfg.Tags, cfg.Grep)
	if err != nil {
		return nil, err
	}
	selected := filter.Select(instances)
	logger.Debug("Scenarios selected.", zap.Int("loaded", len(instances)), zap.Int("selected", len(selected)))
	return selected, nil
}
