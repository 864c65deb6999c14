// internal/scenario/document.go
package scenario

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/flowcheck/internal/harness"
)

// featureDoc is the on-disk shape of a feature file.
type featureDoc struct {
	Feature    string        `yaml:"feature" validate:"required"`
	Tags       []string      `yaml:"tags"`
	App        *appDoc       `yaml:"app" validate:"required_without=AppRef"`
	AppRef     string        `yaml:"app_ref" validate:"required_without=App"`
	Background []stepDoc     `yaml:"background"`
	Scenarios  []scenarioDoc `yaml:"scenarios" validate:"required,min=1,dive"`
}

type scenarioDoc struct {
	Title    string                 `yaml:"title" validate:"required"`
	Tags     []string               `yaml:"tags"`
	Steps    []stepDoc              `yaml:"steps" validate:"required,min=1"`
	Examples []map[string]yaml.Node `yaml:"examples"`
}

// appDoc is an application model, inline in a feature or in a *.app.yaml file.
type appDoc struct {
	Name     string              `yaml:"name" validate:"required"`
	Routes   map[string]routeDoc `yaml:"routes" validate:"required,min=1,dive"`
	Fields   map[string]string   `yaml:"fields" validate:"dive,required"`
	Controls map[string]string   `yaml:"controls" validate:"dive,required"`
}

type routeDoc struct {
	Path  string `yaml:"path" validate:"required,startswith=/"`
	Ready string `yaml:"ready" validate:"required"`
}

// stepDoc carries exactly one of the kind keys. The remaining keys qualify
// it.
type stepDoc struct {
	Navigate     string `yaml:"navigate"`
	Fill         string `yaml:"fill"`
	Click        string `yaml:"click"`
	Assert       string `yaml:"assert"`
	Capture      string `yaml:"capture"`
	WaitResponse string `yaml:"wait_response"`

	// Value is a node so that an explicit null can be told apart from a
	// string.
	Value    yaml.Node `yaml:"value"`
	Target   string    `yaml:"target"`
	Expected string    `yaml:"expected"`
	Attr     string    `yaml:"attr"`
	As       string    `yaml:"as"`
	Method   string    `yaml:"method"`
	Status   int       `yaml:"status"`
}

func (d *appDoc) build() (*harness.App, error) {
	routes := make(map[string]harness.RouteDef, len(d.Routes))
	for name, r := range d.Routes {
		routes[name] = harness.RouteDef{Path: r.Path, Ready: r.Ready}
	}
	return harness.NewApp(d.Name, routes, d.Fields, d.Controls)
}

// nodeValue turns a YAML scalar into a harness value. Null is absent.
func nodeValue(n yaml.Node) (harness.Value, error) {
	switch {
	case n.Kind == 0:
		return harness.Absent, nil
	case n.Kind == yaml.ScalarNode && n.Tag == "!!null":
		return harness.Absent, nil
	case n.Kind == yaml.ScalarNode:
		return harness.Set(n.Value), nil
	}
	return harness.Value{}, fmt.Errorf("line %d: expected a scalar value", n.Line)
}

func (d stepDoc) kinds() []harness.StepKind {
	var kinds []harness.StepKind
	for kind, v := range map[harness.StepKind]string{
		harness.StepNavigate:     d.Navigate,
		harness.StepFill:         d.Fill,
		harness.StepClick:        d.Click,
		harness.StepAssert:       d.Assert,
		harness.StepCapture:      d.Capture,
		harness.StepWaitResponse: d.WaitResponse,
	} {
		if v != "" {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// build converts the document into a step. Assertions are written as
// `assert: <op>` with the locator under `target`; url assertions need no
// target.
func (d stepDoc) build() (harness.Step, error) {
	kinds := d.kinds()
	if len(kinds) != 1 {
		return harness.Step{}, fmt.Errorf("a step needs exactly one of navigate, fill, click, assert, capture, wait_response (found %d)", len(kinds))
	}

	step := harness.Step{Kind: kinds[0]}
	switch step.Kind {
	case harness.StepNavigate:
		step.Target = d.Navigate
	case harness.StepFill:
		step.Target = d.Fill
		v, err := nodeValue(d.Value)
		if err != nil {
			return step, err
		}
		step.Value = v
	case harness.StepClick:
		step.Target = d.Click
	case harness.StepAssert:
		step.Op = harness.AssertOp(strings.ToLower(d.Assert))
		step.Target = d.Target
		step.Expected = d.Expected
		step.Attr = d.Attr
	case harness.StepCapture:
		step.Target = d.Capture
		step.As = d.As
	case harness.StepWaitResponse:
		step.Target = d.WaitResponse
		step.Method = d.Method
		step.Status = d.Status
	}
	return step, nil
}
