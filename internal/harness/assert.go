// internal/harness/assert.go
package harness

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xkilldash9x/flowcheck/internal/browser"
)

// Asserter compares rendered page state with expectations. The only wait is
// the bounded visibility wait on the asserted element; values are read once.
type Asserter struct {
	page    browser.Page
	timeout time.Duration
}

func NewAsserter(page browser.Page, timeout time.Duration) *Asserter {
	return &Asserter{page: page, timeout: timeout}
}

// visible waits for loc and reports a not-visible failure otherwise.
func (a *Asserter) visible(ctx context.Context, loc browser.Locator, expected string) error {
	if err := a.page.WaitVisible(ctx, loc); err != nil {
		return &AssertionFailure{Locator: loc.String(), Expected: expected, Actual: notVisible, Err: err}
	}
	return nil
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// AssertVisibleText checks that the element's visible text contains expected.
// Runs of whitespace compare equal.
func (a *Asserter) AssertVisibleText(ctx context.Context, loc browser.Locator, expected string) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := a.visible(ctx, loc, expected); err != nil {
		return err
	}
	actual, err := a.page.Text(ctx, loc)
	if err != nil {
		return &AssertionFailure{Locator: loc.String(), Expected: expected, Actual: notVisible, Err: err}
	}
	if !strings.Contains(normalizeSpace(actual), normalizeSpace(expected)) {
		return &AssertionFailure{Locator: loc.String(), Expected: expected, Actual: actual}
	}
	return nil
}

// AssertTextMatches checks the element's visible text against pattern.
func (a *Asserter) AssertTextMatches(ctx context.Context, loc browser.Locator, pattern *regexp.Regexp) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	expected := "/" + pattern.String() + "/"
	if err := a.visible(ctx, loc, expected); err != nil {
		return err
	}
	actual, err := a.page.Text(ctx, loc)
	if err != nil {
		return &AssertionFailure{Locator: loc.String(), Expected: expected, Actual: notVisible, Err: err}
	}
	if !pattern.MatchString(actual) {
		return &AssertionFailure{Locator: loc.String(), Expected: expected, Actual: actual}
	}
	return nil
}

// AssertURLMatches checks the URL of the current document against pattern.
func (a *Asserter) AssertURLMatches(ctx context.Context, pattern *regexp.Regexp) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	actual, err := a.page.URL(ctx)
	expected := "/" + pattern.String() + "/"
	if err != nil {
		return &AssertionFailure{Locator: "<url>", Expected: expected, Err: err}
	}
	if !pattern.MatchString(actual) {
		return &AssertionFailure{Locator: "<url>", Expected: expected, Actual: actual}
	}
	return nil
}

// AssertValue checks the current value of an input or select.
func (a *Asserter) AssertValue(ctx context.Context, loc browser.Locator, expected string) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := a.visible(ctx, loc, expected); err != nil {
		return err
	}
	actual, err := a.page.Value(ctx, loc)
	if err != nil {
		return &AssertionFailure{Locator: loc.String(), Expected: expected, Err: err}
	}
	if actual != expected {
		return &AssertionFailure{Locator: loc.String(), Expected: expected, Actual: actual}
	}
	return nil
}

// AssertAttribute checks an attribute of the element against pattern. A
// missing attribute never matches.
func (a *Asserter) AssertAttribute(ctx context.Context, loc browser.Locator, name string, pattern *regexp.Regexp) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	target := fmt.Sprintf("%s@%s", loc, name)
	expected := "/" + pattern.String() + "/"
	if err := a.page.WaitVisible(ctx, loc); err != nil {
		return &AssertionFailure{Locator: target, Expected: expected, Actual: notVisible, Err: err}
	}
	actual, present, err := a.page.Attribute(ctx, loc, name)
	if err != nil {
		return &AssertionFailure{Locator: target, Expected: expected, Err: err}
	}
	if !present {
		return &AssertionFailure{Locator: target, Expected: expected, Actual: "<absent>"}
	}
	if !pattern.MatchString(actual) {
		return &AssertionFailure{Locator: target, Expected: expected, Actual: actual}
	}
	return nil
}

// AssertNonIncreasingDates waits for the first element matching loc, reads
// every visible match, parses each text with layout and checks the dates
// never increase down the list. A listing that never renders fails.
func (a *Asserter) AssertNonIncreasingDates(ctx context.Context, loc browser.Locator, layout string) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	expected := fmt.Sprintf("dates (%s) in non-increasing order", layout)
	if err := a.visible(ctx, loc, expected); err != nil {
		return err
	}

	texts, err := a.page.Texts(ctx, loc)
	if err != nil {
		return &AssertionFailure{Locator: loc.String(), Expected: expected, Err: err}
	}
	if len(texts) == 0 {
		return &AssertionFailure{Locator: loc.String(), Expected: expected, Actual: notVisible}
	}
	dates := make([]time.Time, len(texts))
	for i, s := range texts {
		d, err := ParseDisplayDate(layout, s)
		if err != nil {
			return &AssertionFailure{Locator: loc.String(), Expected: expected, Actual: s, Err: err}
		}
		dates[i] = d
	}
	if i, ok := NonIncreasing(dates, CompareTimes); !ok {
		return &AssertionFailure{
			Locator:  loc.String(),
			Expected: expected,
			Actual:   fmt.Sprintf("%s followed by later %s at position %d", texts[i-1], texts[i], i),
		}
	}
	return nil
}
