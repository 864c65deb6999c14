// internal/reporting/failure_log.go
package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xkilldash9x/flowcheck/api/schemas"
)

// FailureLog appends a plain text entry for every failed instance:
//
//	<ISO timestamp> - <title> falhou
//	<error message>
//
// It is safe for concurrent use and can serve as an executor result hook.
type FailureLog struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

func NewFailureLog(path string) *FailureLog {
	return &FailureLog{path: path, now: time.Now}
}

// Record appends res when it failed and ignores it otherwise.
func (l *FailureLog) Record(res schemas.ScenarioResult) error {
	if res.Status != schemas.StatusFailed {
		return nil
	}
	entry := fmt.Sprintf("%s - %s falhou\n", l.now().UTC().Format("2006-01-02T15:04:05.000Z"), res.Title)
	if res.Failure != nil && res.Failure.Message != "" {
		entry += res.Failure.Message + "\n\n"
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create failure log directory: %w", err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open failure log: %w", err)
	}
	if _, err := f.WriteString(entry); err != nil {
		f.Close()
		return fmt.Errorf("failed to append failure log: %w", err)
	}
	return f.Close()
}
