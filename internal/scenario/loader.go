// internal/scenario/loader.go
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/flowcheck/internal/harness"
)

// AppSuffix marks shared application model files. They are only read through
// app_ref and never loaded as features.
const AppSuffix = ".app.yaml"

// Feature is one loaded feature file.
type Feature struct {
	Name     string
	File     string
	Tags     []string
	App      *harness.App
	Outlines []*harness.Outline
}

// Instances expands every outline of the feature.
func (f *Feature) Instances() ([]harness.Scenario, error) {
	var all []harness.Scenario
	for _, o := range f.Outlines {
		instances, err := o.Expand()
		if err != nil {
			return nil, &LoadError{File: f.File, Scenario: o.Title, Err: err}
		}
		all = append(all, instances...)
	}
	return all, nil
}

// LoadError locates a problem in a scenario file.
type LoadError struct {
	File     string
	Scenario string
	Err      error
}

func (e *LoadError) Error() string {
	if e.Scenario != "" {
		return fmt.Sprintf("%s: scenario %q: %v", e.File, e.Scenario, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Loader reads feature files from a file system. Referenced app files are
// parsed once per loader.
type Loader struct {
	fsys     fs.FS
	validate *validator.Validate
	apps     map[string]*harness.App
	logger   *zap.Logger
}

func NewLoader(fsys fs.FS, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Loader{
		fsys:     fsys,
		validate: validate,
		apps:     make(map[string]*harness.App),
		logger:   logger.Named("scenario"),
	}
}

// Load reads the named files and directories. Directories are searched
// recursively for *.yaml and *.yml files other than app files. Every
// outline is expanded once here so that unknown fields, routes and unbound
// placeholders fail before any browser work.
func (l *Loader) Load(names ...string) ([]*Feature, error) {
	files, err := l.collect(names)
	if err != nil {
		return nil, err
	}
	features := make([]*Feature, 0, len(files))
	for _, file := range files {
		f, err := l.LoadFile(file)
		if err != nil {
			return nil, err
		}
		if _, err := f.Instances(); err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	l.logger.Debug("Scenario files loaded.", zap.Int("files", len(features)))
	return features, nil
}

func (l *Loader) collect(names []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, name := range names {
		name = path.Clean(filepath.ToSlash(name))
		info, err := fs.Stat(l.fsys, name)
		if err != nil {
			return nil, fmt.Errorf("scenario path %q: %w", name, err)
		}
		if !info.IsDir() {
			if !seen[name] {
				seen[name] = true
				files = append(files, name)
			}
			continue
		}
		var found []string
		err = fs.WalkDir(l.fsys, name, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isFeatureFile(p) {
				return nil
			}
			found = append(found, p)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %q: %w", name, err)
		}
		sort.Strings(found)
		for _, p := range found {
			if !seen[p] {
				seen[p] = true
				files = append(files, p)
			}
		}
	}
	if len(files) == 0 {
		return nil, errors.New("no scenario files found")
	}
	return files, nil
}

func isFeatureFile(p string) bool {
	if strings.HasSuffix(p, AppSuffix) {
		return false
	}
	ext := path.Ext(p)
	return ext == ".yaml" || ext == ".yml"
}

// LoadFile parses one feature file.
func (l *Loader) LoadFile(name string) (*Feature, error) {
	var doc featureDoc
	if err := l.decode(name, &doc); err != nil {
		return nil, &LoadError{File: name, Err: err}
	}

	f := &Feature{Name: doc.Feature, File: name, Tags: doc.Tags}
	if doc.App != nil {
		app, err := doc.App.build()
		if err != nil {
			return nil, &LoadError{File: name, Err: err}
		}
		f.App = app
	} else {
		app, err := l.appRef(path.Join(path.Dir(name), doc.AppRef))
		if err != nil {
			return nil, &LoadError{File: name, Err: err}
		}
		f.App = app
	}

	background, err := buildSteps(doc.Background)
	if err != nil {
		return nil, &LoadError{File: name, Err: fmt.Errorf("background: %w", err)}
	}

	for _, sd := range doc.Scenarios {
		o, err := buildOutline(sd, f, background)
		if err != nil {
			return nil, &LoadError{File: name, Scenario: sd.Title, Err: err}
		}
		f.Outlines = append(f.Outlines, o)
	}
	return f, nil
}

func (l *Loader) appRef(name string) (*harness.App, error) {
	if app, ok := l.apps[name]; ok {
		return app, nil
	}
	var wrapper struct {
		App appDoc `yaml:"app" validate:"required"`
	}
	if err := l.decode(name, &wrapper); err != nil {
		return nil, fmt.Errorf("app_ref %s: %w", name, err)
	}
	app, err := wrapper.App.build()
	if err != nil {
		return nil, fmt.Errorf("app_ref %s: %w", name, err)
	}
	l.apps[name] = app
	return app, nil
}

// decode reads name strictly: unknown keys are errors.
func (l *Loader) decode(name string, out any) error {
	data, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := l.validate.Struct(out); err != nil {
		return describeValidation(err)
	}
	return nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		switch fe.Tag() {
		case "required", "required_without":
			msgs = append(msgs, field+" is required")
		case "min":
			msgs = append(msgs, field+" must not be empty")
		case "startswith":
			msgs = append(msgs, fmt.Sprintf("%s must start with %q", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func buildSteps(docs []stepDoc) ([]harness.Step, error) {
	steps := make([]harness.Step, 0, len(docs))
	for i, d := range docs {
		step, err := d.build()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func buildOutline(sd scenarioDoc, f *Feature, background []harness.Step) (*harness.Outline, error) {
	steps, err := buildSteps(sd.Steps)
	if err != nil {
		return nil, err
	}
	o := &harness.Outline{
		Title:   sd.Title,
		Feature: f.Name,
		File:    f.File,
		Tags:    mergeTags(f.Tags, sd.Tags),
		App:     f.App,
		Steps:   append(append([]harness.Step(nil), background...), steps...),
	}
	for i, raw := range sd.Examples {
		row := make(harness.ExampleRow, len(raw))
		for name, node := range raw {
			v, err := nodeValue(node)
			if err != nil {
				return nil, fmt.Errorf("example %d, %s: %w", i+1, name, err)
			}
			row[name] = v
		}
		o.Examples = append(o.Examples, row)
	}
	return o, nil
}

func mergeTags(feature, scenario []string) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, t := range append(append([]string(nil), feature...), scenario...) {
		t = strings.TrimPrefix(strings.TrimSpace(t), "@")
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	return tags
}

// LoadPaths loads feature files from the local disk. Paths are resolved
// against the working directory so that app_ref may point at sibling
// directories.
func LoadPaths(logger *zap.Logger, paths ...string) ([]*Feature, error) {
	if len(paths) == 0 {
		return nil, errors.New("no scenario paths given")
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	rel := make([]string, 0, len(paths))
	outside := false
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		r, err := filepath.Rel(wd, abs)
		if err != nil || strings.HasPrefix(r, "..") {
			outside = true
			break
		}
		rel = append(rel, r)
	}
	if !outside {
		return NewLoader(os.DirFS(wd), logger).Load(rel...)
	}

	// Paths outside the working directory are loaded one root at a time.
	var features []*Feature
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		root, name := filepath.Dir(abs), filepath.Base(abs)
		loaded, err := NewLoader(os.DirFS(root), logger).Load(name)
		if err != nil {
			return nil, err
		}
		features = append(features, loaded...)
	}
	return features, nil
}
