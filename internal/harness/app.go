// internal/harness/app.go
package harness

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/flowcheck/internal/browser"
)

// Route is a named page of the application.
type Route struct {
	// Path is joined to the base URL unless it is already absolute.
	Path string
	// Ready must become visible before the page counts as loaded.
	Ready browser.Locator
}

// RouteDef is the unparsed form of a Route.
type RouteDef struct {
	Path  string
	Ready string
}

// App is the fixed vocabulary scenarios use to talk about one application:
// which routes exist, which locator backs each field, and named controls.
// It is built once and only read afterwards.
type App struct {
	Name     string
	routes   map[string]Route
	fields   map[string]browser.Locator
	controls map[string]browser.Locator
}

// NewApp parses every locator of the definition. Any invalid entry fails the
// whole app.
func NewApp(name string, routes map[string]RouteDef, fields, controls map[string]string) (*App, error) {
	app := &App{
		Name:     name,
		routes:   make(map[string]Route, len(routes)),
		fields:   make(map[string]browser.Locator, len(fields)),
		controls: make(map[string]browser.Locator, len(controls)),
	}
	for routeName, def := range routes {
		if strings.TrimSpace(def.Path) == "" {
			return nil, fmt.Errorf("route %q has no path", routeName)
		}
		ready, err := browser.ParseLocator(def.Ready)
		if err != nil {
			return nil, fmt.Errorf("route %q readiness locator: %w", routeName, err)
		}
		app.routes[routeName] = Route{Path: def.Path, Ready: ready}
	}
	for fieldName, raw := range fields {
		loc, err := browser.ParseLocator(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", fieldName, err)
		}
		app.fields[fieldName] = loc
	}
	for controlName, raw := range controls {
		loc, err := browser.ParseLocator(raw)
		if err != nil {
			return nil, fmt.Errorf("control %q: %w", controlName, err)
		}
		app.controls[controlName] = loc
	}
	return app, nil
}

// Route looks up a route by name.
func (a *App) Route(name string) (Route, error) {
	r, ok := a.routes[name]
	if !ok {
		return Route{}, &NavigationError{Route: name, Err: ErrUnknownRoute}
	}
	return r, nil
}

// Field looks up the locator of a field. Only the field table is consulted.
func (a *App) Field(name string) (browser.Locator, error) {
	loc, ok := a.fields[name]
	if !ok {
		return browser.Locator{}, &UnknownFieldError{Field: name, Known: a.FieldNames()}
	}
	return loc, nil
}

// HasField reports whether name is in the field table.
func (a *App) HasField(name string) bool {
	_, ok := a.fields[name]
	return ok
}

// Control resolves a control name. Names missing from the control table are
// read as a locator when they carry an explicit engine prefix, otherwise as
// the visible label of the control.
func (a *App) Control(name string) (browser.Locator, error) {
	if loc, ok := a.controls[name]; ok {
		return loc, nil
	}
	if hasEnginePrefix(name) {
		return browser.ParseLocator(name)
	}
	return browser.ParseLocator("label=" + name)
}

// Locate resolves the target of an assert or capture step: a field name or
// a locator.
func (a *App) Locate(target string) (browser.Locator, error) {
	if loc, ok := a.fields[target]; ok {
		return loc, nil
	}
	return browser.ParseLocator(target)
}

// FieldNames returns the sorted field names.
func (a *App) FieldNames() []string {
	return sortedNames(a.fields)
}

// RouteNames returns the sorted route names.
func (a *App) RouteNames() []string {
	return sortedNames(a.routes)
}

var enginePrefixes = []string{"css=", "xpath=", "text=", "label=", "testid="}

func hasEnginePrefix(s string) bool {
	for _, p := range enginePrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// JoinURL joins a route path to the base URL. Absolute paths are returned
// unchanged.
func JoinURL(base, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
