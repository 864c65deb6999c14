// internal/harness/dates.go
package harness

import (
	"fmt"
	"strings"
	"time"
)

// ParseDisplayDate parses a date exactly as a page shows it. layout is a Go
// reference layout such as "01-02-2006" and is the whole contract: no locale
// guessing takes place. Surrounding whitespace is ignored.
func ParseDisplayDate(layout, s string) (time.Time, error) {
	t, err := time.Parse(layout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q does not match layout %q: %w", s, layout, err)
	}
	return t, nil
}

// NonIncreasing reports whether every element compares greater than or equal
// to its successor. When it does not, the index of the first element that is
// greater than its predecessor is returned.
func NonIncreasing[T any](xs []T, cmp func(a, b T) int) (int, bool) {
	for i := 1; i < len(xs); i++ {
		if cmp(xs[i-1], xs[i]) < 0 {
			return i, false
		}
	}
	return -1, true
}

// CompareTimes orders times chronologically, for use with NonIncreasing.
func CompareTimes(a, b time.Time) int {
	return a.Compare(b)
}
