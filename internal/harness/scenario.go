// internal/harness/scenario.go
package harness

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/flowcheck/internal/fixture"
)

// StepKind is what a step does.
type StepKind string

const (
	StepNavigate     StepKind = "navigate"
	StepFill         StepKind = "fill"
	StepClick        StepKind = "click"
	StepAssert       StepKind = "assert"
	StepCapture      StepKind = "capture"
	StepWaitResponse StepKind = "wait_response"
)

// AssertOp selects the comparison of an assert step.
type AssertOp string

const (
	// OpText checks that the visible text contains Expected.
	OpText AssertOp = "text"
	// OpMatches checks the visible text against the regular expression Expected.
	OpMatches AssertOp = "matches"
	// OpURL checks the current URL against the regular expression Expected.
	OpURL AssertOp = "url"
	// OpValue checks that an input value equals Expected.
	OpValue AssertOp = "value"
	// OpAttribute checks attribute Attr against the regular expression Expected.
	OpAttribute AssertOp = "attribute"
	// OpDatesDescending checks that the dates listed by Target never increase.
	OpDatesDescending AssertOp = "dates_desc"
)

// Step is one harness action.
type Step struct {
	Kind StepKind
	// Target is a route name (navigate), field name (fill), control name
	// (click), field name or locator (assert, capture) or URL pattern
	// (wait_response).
	Target string
	// Value is written by fill steps.
	Value Value

	Op       AssertOp
	Expected string
	Attr     string

	// Method and Status narrow wait_response steps.
	Method string
	Status int

	// As names the variable a capture step stores into.
	As string
}

// expectation renders what the step expects, for step records.
func (s Step) expectation() string {
	switch s.Kind {
	case StepFill:
		return s.Value.display()
	case StepAssert:
		if s.Op == OpAttribute {
			return s.Attr + "~" + s.Expected
		}
		return s.Expected
	case StepCapture:
		return s.As
	case StepWaitResponse:
		if s.Status != 0 {
			return fmt.Sprintf("%s %d", s.Method, s.Status)
		}
		return s.Method
	}
	return ""
}

// resolve substitutes every placeholder lookup knows.
func (s Step) resolve(lookup lookupFunc) Step {
	s.Target = substituteString(s.Target, lookup)
	s.Value = substitute(s.Value, lookup)
	s.Expected = substituteString(s.Expected, lookup)
	s.Attr = substituteString(s.Attr, lookup)
	return s
}

func (s Step) texts() []string {
	return []string{s.Target, s.Value.String(), s.Expected, s.Attr}
}

// Scenario is one runnable test case. It owns its steps and is not modified
// once built.
type Scenario struct {
	ID      string
	Title   string
	Feature string
	File    string
	Tags    []string
	App     *App
	Steps   []Step

	// Outline and Row are set on instances expanded from an outline.
	Outline string
	Row     ExampleRow
}

// HasTag reports whether the scenario carries tag.
func (s *Scenario) HasTag(tag string) bool {
	tag = strings.TrimPrefix(tag, "@")
	for _, t := range s.Tags {
		if strings.TrimPrefix(t, "@") == tag {
			return true
		}
	}
	return false
}

// Validate checks every step against the app before any browser work:
// routes and fields must exist, locators and patterns must parse, and the
// only placeholders left must be ${user.*} or ${captured.*} names that will
// be known at run time.
func (s *Scenario) Validate() error {
	if s.App == nil {
		return errors.New("scenario has no app")
	}
	if len(s.Steps) == 0 {
		return errors.New("scenario has no steps")
	}
	captured := make(map[string]bool)
	for i, step := range s.Steps {
		if err := s.validateStep(step, captured); err != nil {
			return fmt.Errorf("step %d (%s %q): %w", i+1, step.Kind, step.Target, err)
		}
		if step.Kind == StepCapture {
			captured[step.As] = true
		}
	}
	return nil
}

func (s *Scenario) validateStep(step Step, captured map[string]bool) error {
	dynamic := false
	for _, text := range step.texts() {
		for _, name := range placeholders(text) {
			switch {
			case strings.HasPrefix(name, userScope):
				if _, ok := (fixture.User{}).Lookup(strings.TrimPrefix(name, userScope)); !ok {
					return fmt.Errorf("unknown user placeholder ${%s}", name)
				}
			case strings.HasPrefix(name, capturedScope):
				if !captured[strings.TrimPrefix(name, capturedScope)] {
					return fmt.Errorf("placeholder ${%s} is used before it is captured", name)
				}
			default:
				return fmt.Errorf("unbound placeholder ${%s}", name)
			}
			dynamic = true
		}
	}

	switch step.Kind {
	case StepNavigate:
		if dynamic {
			return errors.New("route names cannot contain placeholders")
		}
		_, err := s.App.Route(step.Target)
		return err
	case StepFill:
		if strings.Contains(step.Target, "${") {
			return errors.New("field names cannot contain placeholders")
		}
		_, err := s.App.Field(step.Target)
		return err
	case StepClick:
		if strings.TrimSpace(step.Target) == "" {
			return errors.New("click needs a control")
		}
		if dynamic {
			return nil
		}
		_, err := s.App.Control(step.Target)
		return err
	case StepCapture:
		if step.As == "" {
			return errors.New("capture needs a variable name")
		}
		if dynamic {
			return nil
		}
		_, err := s.App.Locate(step.Target)
		return err
	case StepWaitResponse:
		if step.Status < 0 || step.Status > 599 {
			return fmt.Errorf("invalid status %d", step.Status)
		}
		if dynamic {
			return nil
		}
		_, err := regexp.Compile(step.Target)
		return err
	case StepAssert:
		return s.validateAssert(step, dynamic)
	}
	return fmt.Errorf("unknown step kind %q", step.Kind)
}

func (s *Scenario) validateAssert(step Step, dynamic bool) error {
	switch step.Op {
	case OpText, OpValue:
	case OpMatches, OpURL:
		if step.Expected == "" {
			return fmt.Errorf("%s assertion needs a pattern", step.Op)
		}
	case OpAttribute:
		if step.Attr == "" {
			return errors.New("attribute assertion needs an attribute name")
		}
	case OpDatesDescending:
	default:
		return fmt.Errorf("unknown assertion %q", step.Op)
	}
	if dynamic {
		return nil
	}
	if step.Op == OpMatches || step.Op == OpURL || step.Op == OpAttribute {
		if _, err := regexp.Compile(step.Expected); err != nil {
			return fmt.Errorf("invalid pattern: %w", err)
		}
	}
	if step.Op == OpURL {
		return nil
	}
	_, err := s.App.Locate(step.Target)
	return err
}

// Outline is a scenario template instantiated once per example row. A
// template without rows yields a single instance.
type Outline struct {
	Title    string
	Feature  string
	File     string
	Tags     []string
	App      *App
	Steps    []Step
	Examples []ExampleRow
}

// Expand validates the template and returns one scenario per row. Row values
// replace ${param} placeholders in titles and steps; every instance gets its
// own copy of the steps.
func (o *Outline) Expand() ([]Scenario, error) {
	if err := o.checkRows(); err != nil {
		return nil, fmt.Errorf("outline %q: %w", o.Title, err)
	}

	rows := o.Examples
	if len(rows) == 0 {
		rows = []ExampleRow{nil}
	}
	instances := make([]Scenario, 0, len(rows))
	for i, row := range rows {
		lookup := func(name string) (Value, bool) {
			v, ok := row[name]
			return v, ok
		}

		sc := Scenario{
			Title:   substituteString(o.Title, lookup),
			Feature: o.Feature,
			File:    o.File,
			Tags:    append([]string(nil), o.Tags...),
			App:     o.App,
			Steps:   make([]Step, len(o.Steps)),
			Row:     row,
		}
		for j, step := range o.Steps {
			sc.Steps[j] = step.resolve(lookup)
		}
		sc.ID = Slug(o.Feature) + "/" + Slug(o.Title)
		if row != nil {
			sc.Outline = o.Title
			sc.ID += fmt.Sprintf("#%d", i+1)
			if sc.Title == o.Title {
				sc.Title = fmt.Sprintf("%s [%s]", o.Title, row)
			}
		}
		if err := sc.Validate(); err != nil {
			return nil, fmt.Errorf("scenario %q: %w", sc.Title, err)
		}
		instances = append(instances, sc)
	}
	return instances, nil
}

// checkRows enforces that all rows share one parameter set.
func (o *Outline) checkRows() error {
	if len(o.Examples) == 0 {
		return nil
	}
	want := o.Examples[0].Names()
	for i, row := range o.Examples[1:] {
		if got := row.Names(); strings.Join(got, "\x00") != strings.Join(want, "\x00") {
			return fmt.Errorf("example row %d has parameters [%s], expected [%s]",
				i+2, strings.Join(got, ", "), strings.Join(want, ", "))
		}
	}
	return nil
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a title into a lowercase identifier made of [a-z0-9-].
func Slug(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		b.WriteString(foldAccent(r))
	}
	slug := strings.Trim(slugInvalid.ReplaceAllString(b.String(), "-"), "-")
	if slug == "" {
		return "scenario"
	}
	return slug
}

var accentFolds = map[rune]string{
	'á': "a", 'à': "a", 'ã': "a", 'â': "a", 'ä': "a",
	'é': "e", 'ê': "e", 'è': "e", 'ë': "e",
	'í': "i", 'ì': "i", 'î': "i", 'ï': "i",
	'ó': "o", 'ò': "o", 'õ': "o", 'ô': "o", 'ö': "o",
	'ú': "u", 'ù': "u", 'û': "u", 'ü': "u",
	'ç': "c", 'ñ': "n",
}

func foldAccent(r rune) string {
	if s, ok := accentFolds[r]; ok {
		return s
	}
	return string(r)
}
