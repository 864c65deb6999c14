// internal/suite/filter.go
package suite

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/flowcheck/internal/harness"
)

// Filter selects scenario instances. Tags prefixed with "~" or "!" exclude
// instances carrying them; the remaining tags include any instance carrying
// at least one of them. Grep matches the title or ID.
type Filter struct {
	include []string
	exclude []string
	grep    *regexp.Regexp
}

// NewFilter compiles the tag list and title pattern. Both may be empty.
func NewFilter(tags []string, grep string) (*Filter, error) {
	f := &Filter{}
	for _, t := range tags {
		for _, part := range strings.Split(t, ",") {
			part = strings.TrimSpace(part)
			switch {
			case part == "":
			case strings.HasPrefix(part, "~"), strings.HasPrefix(part, "!"):
				f.exclude = append(f.exclude, part[1:])
			default:
				f.include = append(f.include, part)
			}
		}
	}
	if grep != "" {
		re, err := regexp.Compile(grep)
		if err != nil {
			return nil, fmt.Errorf("invalid grep pattern: %w", err)
		}
		f.grep = re
	}
	return f, nil
}

// Match reports whether sc passes the filter.
func (f *Filter) Match(sc *harness.Scenario) bool {
	for _, t := range f.exclude {
		if sc.HasTag(t) {
			return false
		}
	}
	if len(f.include) > 0 {
		found := false
		for _, t := range f.include {
			if sc.HasTag(t) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.grep != nil && !f.grep.MatchString(sc.Title) && !f.grep.MatchString(sc.ID) {
		return false
	}
	return true
}

// Select returns the matching instances in their original order.
func (f *Filter) Select(instances []harness.Scenario) []harness.Scenario {
	var out []harness.Scenario
	for i := range instances {
		if f.Match(&instances[i]) {
			out = append(out, instances[i])
		}
	}
	return out
}
