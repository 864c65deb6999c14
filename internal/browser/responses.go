// internal/browser/responses.go
package browser

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/xkilldash9x/flowcheck/api/schemas"
)

// ResponseMatcher selects a network response. Zero fields match anything.
type ResponseMatcher struct {
	URL    *regexp.Regexp
	Method string
	Status int
}

// Matches reports whether the entry satisfies every set field.
func (m ResponseMatcher) Matches(e schemas.Entry) bool {
	if m.URL != nil && !m.URL.MatchString(e.Request.URL) {
		return false
	}
	if m.Method != "" && m.Method != e.Request.Method {
		return false
	}
	if m.Status != 0 && m.Status != e.Response.Status {
		return false
	}
	return true
}

func (m ResponseMatcher) String() string {
	s := "any response"
	if m.URL != nil {
		s = fmt.Sprintf("response matching /%s/", m.URL.String())
	}
	if m.Method != "" {
		s += " method " + m.Method
	}
	if m.Status != 0 {
		s += fmt.Sprintf(" status %d", m.Status)
	}
	return s
}

// ResponseLog records responses received by one page, in arrival order, and
// lets callers block until a matching response arrives.
type ResponseLog struct {
	mu      sync.Mutex
	entries []schemas.Entry
	pages   []schemas.Page
	// changed is closed and replaced on every Record.
	changed chan struct{}
}

// NewResponseLog creates an empty log.
func NewResponseLog() *ResponseLog {
	return &ResponseLog{changed: make(chan struct{})}
}

// Record appends an entry and wakes any waiters.
func (l *ResponseLog) Record(e schemas.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	close(l.changed)
	l.changed = make(chan struct{})
}

// RecordPage registers a top-level navigation.
func (l *ResponseLog) RecordPage(id, title string, started time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pages = append(l.pages, schemas.Page{
		ID:              id,
		Title:           title,
		StartedDateTime: started,
		PageTimings:     schemas.PageTimings{OnContentLoad: -1, OnLoad: -1},
	})
}

// Mark returns a position in the log. Entries recorded afterwards have an
// index greater or equal to the mark.
func (l *ResponseLog) Mark() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Len returns the number of recorded entries.
func (l *ResponseLog) Len() int { return l.Mark() }

// Wait blocks until an entry at or after since satisfies m, or ctx is done.
func (l *ResponseLog) Wait(ctx context.Context, m ResponseMatcher, since int) (schemas.Entry, error) {
	if since < 0 {
		since = 0
	}
	for {
		l.mu.Lock()
		for i := since; i < len(l.entries); i++ {
			if m.Matches(l.entries[i]) {
				e := l.entries[i]
				l.mu.Unlock()
				return e, nil
			}
		}
		since = len(l.entries)
		changed := l.changed
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return schemas.Entry{}, fmt.Errorf("waiting for %s: %w", m, ctx.Err())
		case <-changed:
		}
	}
}

// Entries returns a copy of the recorded entries.
func (l *ResponseLog) Entries() []schemas.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]schemas.Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// HAR renders the log as a HAR document.
func (l *ResponseLog) HAR(version string) *schemas.HAR {
	har := schemas.NewHAR(version)
	l.mu.Lock()
	defer l.mu.Unlock()
	har.Log.Pages = append(har.Log.Pages, l.pages...)
	har.Log.Entries = append(har.Log.Entries, l.entries...)
	return har
}
