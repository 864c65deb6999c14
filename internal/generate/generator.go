// internal/generate/generator.go
package generate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/flowcheck/internal/llmclient"
	"github.com/xkilldash9x/flowcheck/internal/llmutil"
	"github.com/xkilldash9x/flowcheck/internal/scenario"
)

// MaxAttempts bounds how often a scenario file is requested for one feature.
// Every retry carries the validation error of the previous answer.
const MaxAttempts = 3

const gherkinSystemPrompt = `You are a QA engineer writing acceptance tests for an online banking site.
Turn the acceptance criteria you receive into BDD scenarios in Gherkin syntax.
Write exactly one Feature. Use Scenario Outline with an Examples table whenever
the same flow is checked with several data sets. Keep the language of the
criteria. Answer with the Gherkin text only.`

const scenarioSystemPrompt = `You convert Gherkin features into flowcheck scenario files (YAML).
A scenario file has the keys: feature (string), tags (list), app_ref (string),
background (list of steps), scenarios (list). Each scenario has title, tags,
steps and optionally examples (a list of maps; every map has the same keys,
referenced in steps as ${key}).
Each step has exactly one of these keys:
  navigate: <route name>
  fill: <field name>, with value: <text> (value: null clears the field)
  click: <control name, or the visible label of a button or link>
  assert: text | matches | url | value | attribute | dates_desc,
    with target: <field name or locator> and expected: <text or regular expression>,
    attr: <name> for attribute
  capture: <locator>, with as: <variable>, read later as ${captured.<variable>}
  wait_response: <URL regular expression>, with optional method and status
Locators are CSS by default; prefixes xpath=, text=, label= and testid= are allowed.
${user.email}, ${user.password}, ${user.fullName}, ${user.phone} and ${user.cep}
hold a fresh user for every scenario.
Only use the routes, fields and controls of the application model below and
set app_ref to its file name. Answer with the YAML document only.`

// App is the application model generated files refer to.
type App struct {
	// File is the base name written as app_ref, e.g. demobank.app.yaml.
	File string
	Data []byte
}

// Generator turns acceptance criteria and Gherkin features into scenario
// files with an LLM.
type Generator struct {
	client llmclient.Client
	app    App
	logger *zap.Logger
}

func New(client llmclient.Client, app App, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{client: client, app: app, logger: logger.Named("generate")}
}

// Gherkin writes BDD scenarios for a set of acceptance criteria.
func (g *Generator) Gherkin(ctx context.Context, criteria string) (string, error) {
	if strings.TrimSpace(criteria) == "" {
		return "", errors.New("acceptance criteria are empty")
	}
	answer, err := g.client.Generate(ctx, llmclient.Request{
		System: gherkinSystemPrompt,
		Prompt: criteria,
	})
	if err != nil {
		return "", fmt.Errorf("gherkin generation: %w", err)
	}
	feature := llmutil.StripFence(answer)
	if !strings.Contains(feature, "Feature:") && !strings.Contains(feature, "Funcionalidade:") {
		return "", fmt.Errorf("model answer is not a Gherkin feature: %s", llmutil.Truncate(feature, 200))
	}
	return feature + "\n", nil
}

// Scenarios converts a Gherkin feature into a scenario file named name and
// returns it once it loads cleanly against the application model.
func (g *Generator) Scenarios(ctx context.Context, name, feature string) ([]byte, error) {
	prompt := fmt.Sprintf("Application model (%s):\n\n%s\nGherkin feature:\n\n%s", g.app.File, g.app.Data, feature)

	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		req := llmclient.Request{System: scenarioSystemPrompt, Prompt: prompt}
		if lastErr != nil {
			req.Prompt += fmt.Sprintf("\n\nYour previous answer was rejected: %v\nFix it and answer with the whole file again.", lastErr)
		}
		answer, err := g.client.Generate(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("scenario generation: %w", err)
		}

		data, err := withAppRef([]byte(llmutil.StripFence(answer)), g.app.File)
		if err == nil {
			err = g.Validate(name, data)
		}
		if err == nil {
			return data, nil
		}
		g.logger.Warn("Generated scenario file rejected.",
			zap.String("file", name), zap.Int("attempt", attempt), zap.Error(err))
		lastErr = err
	}
	return nil, fmt.Errorf("no valid scenario file after %d attempts: %w", MaxAttempts, lastErr)
}

// Validate loads data as feature file name next to the application model,
// expanding every outline.
func (g *Generator) Validate(name string, data []byte) error {
	dir, err := os.MkdirTemp("", "flowcheck-generate-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, g.app.File), g.app.Data, 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return err
	}
	_, err = scenario.NewLoader(os.DirFS(dir), g.logger).Load(name)
	return err
}

// withAppRef points a feature without an application at the model file.
func withAppRef(data []byte, ref string) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, errors.New("scenario file must be a YAML mapping")
	}
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		switch root.Content[i].Value {
		case "app", "app_ref":
			return data, nil
		}
	}

	key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "app_ref"}
	value := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: ref}
	at := 0
	if len(root.Content) >= 2 && root.Content[0].Value == "feature" {
		at = 2
	}
	root.Content = append(root.Content[:at], append([]*yaml.Node{key, value}, root.Content[at:]...)...)
	return yaml.Marshal(&doc)
}

// Result names the files written for one input.
type Result struct {
	Input    string
	Gherkin  string
	Scenario string
	// App is set when the application model was copied next to Scenario.
	App string
}

// File generates a scenario file for one input. Gherkin (*.feature) inputs
// are converted directly; anything else is read as acceptance criteria and
// turned into a feature first, which is kept next to the scenario file.
func (g *Generator) File(ctx context.Context, input, outDir string) (*Result, error) {
	text, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", input, err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	res := &Result{Input: input}
	feature := string(text)
	if filepath.Ext(input) != ".feature" {
		g.logger.Info("Writing Gherkin for acceptance criteria.", zap.String("input", input))
		if feature, err = g.Gherkin(ctx, feature); err != nil {
			return nil, fmt.Errorf("%s: %w", input, err)
		}
		res.Gherkin = filepath.Join(outDir, stem+".feature")
		if err := os.WriteFile(res.Gherkin, []byte(feature), 0o644); err != nil {
			return nil, err
		}
	}

	name := stem + ".yaml"
	data, err := g.Scenarios(ctx, name, feature)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", input, err)
	}
	res.Scenario = filepath.Join(outDir, name)
	if err := os.WriteFile(res.Scenario, data, 0o644); err != nil {
		return nil, err
	}

	appPath := filepath.Join(outDir, g.app.File)
	if _, err := os.Stat(appPath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(appPath, g.app.Data, 0o644); err != nil {
			return nil, err
		}
		res.App = appPath
	}
	g.logger.Info("Scenario file generated.", zap.String("file", res.Scenario))
	return res, nil
}
