// internal/harness/errors.go
package harness

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownRoute is wrapped by NavigationError when a route name is not in
// the application's route table.
var ErrUnknownRoute = errors.New("unknown route")

// NavigationError reports a route that could not be loaded or whose
// readiness element never became visible.
type NavigationError struct {
	Route string
	URL   string
	Err   error
}

func (e *NavigationError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("navigation to route %q failed: %v", e.Route, e.Err)
	}
	return fmt.Sprintf("navigation to route %q (%s) failed: %v", e.Route, e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// UnknownFieldError reports a field name missing from the field table.
type UnknownFieldError struct {
	Field string
	Known []string
}

func (e *UnknownFieldError) Error() string {
	known := append([]string(nil), e.Known...)
	sort.Strings(known)
	return fmt.Sprintf("unknown field %q (known fields: %s)", e.Field, strings.Join(known, ", "))
}

// ControlNotFoundError reports a control that never became actionable.
type ControlNotFoundError struct {
	Control string
	Locator string
	Err     error
}

func (e *ControlNotFoundError) Error() string {
	return fmt.Sprintf("control %q (%s) not actionable: %v", e.Control, e.Locator, e.Err)
}

func (e *ControlNotFoundError) Unwrap() error { return e.Err }

// notVisible is the Actual value recorded when the asserted element never
// became visible.
const notVisible = "<not visible>"

// AssertionFailure reports observed page state that did not match the
// expectation.
type AssertionFailure struct {
	Locator  string
	Expected string
	Actual   string
	Err      error
}

func (e *AssertionFailure) Error() string {
	msg := fmt.Sprintf("assertion on %s failed: expected %q, got %q", e.Locator, e.Expected, e.Actual)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AssertionFailure) Unwrap() error { return e.Err }

// ErrorType names the taxonomy member of err for reports.
func ErrorType(err error) string {
	var (
		navErr     *NavigationError
		fieldErr   *UnknownFieldError
		controlErr *ControlNotFoundError
		assertErr  *AssertionFailure
	)
	switch {
	case errors.As(err, &navErr):
		return "NavigationError"
	case errors.As(err, &fieldErr):
		return "UnknownFieldError"
	case errors.As(err, &controlErr):
		return "ControlNotFoundError"
	case errors.As(err, &assertErr):
		return "AssertionFailure"
	case err == nil:
		return ""
	}
	return "Error"
}
