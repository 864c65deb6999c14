// internal/harness/value.go
package harness

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Value is a fill value that may be absent. Filling an absent value clears
// the field, which is how required-field scenarios leave a field blank.
type Value struct {
	s   string
	set bool
}

// Set wraps a present value, which may be the empty string.
func Set(s string) Value { return Value{s: s, set: true} }

// Absent is the missing value.
var Absent = Value{}

// IsSet reports whether the value is present.
func (v Value) IsSet() bool { return v.set }

// String returns the value, or "" when absent.
func (v Value) String() string { return v.s }

// display renders the value for step records.
func (v Value) display() string {
	if !v.set {
		return "<absent>"
	}
	return v.s
}

// ExampleRow maps outline parameter names to values.
type ExampleRow map[string]Value

// Names returns the parameter names of the row in sorted order.
func (r ExampleRow) Names() []string {
	return sortedNames(r)
}

// Strings flattens the row for reports. Absent values are omitted.
func (r ExampleRow) Strings() map[string]string {
	out := make(map[string]string, len(r))
	for k, v := range r {
		if v.set {
			out[k] = v.s
		}
	}
	return out
}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_.\-]+)\}`)

// Placeholder scopes resolved at run time instead of expansion time.
const (
	userScope     = "user."
	capturedScope = "captured."
)

// placeholders returns the names referenced in s.
func placeholders(s string) []string {
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(s, -1) {
		names = append(names, m[1])
	}
	return names
}

func isRuntimePlaceholder(name string) bool {
	return strings.HasPrefix(name, userScope) || strings.HasPrefix(name, capturedScope)
}

// lookupFunc resolves one placeholder name.
type lookupFunc func(name string) (Value, bool)

// substitute replaces the placeholders lookup knows about and leaves the
// others untouched. A string consisting of exactly one placeholder takes the
// resolved value as is, so an absent cell stays absent.
func substitute(v Value, lookup lookupFunc) Value {
	if !v.set {
		return v
	}
	if m := placeholderPattern.FindStringSubmatch(v.s); m != nil && m[0] == v.s {
		if resolved, ok := lookup(m[1]); ok {
			return resolved
		}
		return v
	}
	return Set(substituteString(v.s, lookup))
}

func substituteString(s string, lookup lookupFunc) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if resolved, ok := lookup(name); ok {
			return resolved.s
		}
		return match
	})
}

// unresolved returns the first placeholder left in s, if any.
func unresolved(s string) (string, bool) {
	if m := placeholderPattern.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	return "", false
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (r ExampleRow) String() string {
	parts := make([]string, 0, len(r))
	for _, k := range r.Names() {
		parts = append(parts, fmt.Sprintf("%s=%s", k, r[k].display()))
	}
	return strings.Join(parts, ", ")
}
