// internal/harness/trigger.go
package harness

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/browser"
)

// Trigger activates controls: submit buttons, links and anything clickable.
type Trigger struct {
	page          browser.Page
	app           *App
	actionTimeout time.Duration
	navTimeout    time.Duration
	logger        *zap.Logger
}

func NewTrigger(page browser.Page, app *App, actionTimeout, navTimeout time.Duration, logger *zap.Logger) *Trigger {
	return &Trigger{page: page, app: app, actionTimeout: actionTimeout, navTimeout: navTimeout, logger: logger}
}

// Trigger waits until the control is visible and enabled, then clicks it.
// The click may start a navigation, so it gets the navigation timeout.
func (t *Trigger) Trigger(ctx context.Context, control string) error {
	loc, err := t.app.Control(control)
	if err != nil {
		return &ControlNotFoundError{Control: control, Locator: control, Err: err}
	}

	waitCtx, cancel := context.WithTimeout(ctx, t.actionTimeout)
	err = t.page.WaitEnabled(waitCtx, loc)
	cancel()
	if err != nil {
		return &ControlNotFoundError{Control: control, Locator: loc.String(), Err: err}
	}

	clickCtx, cancel := context.WithTimeout(ctx, t.navTimeout)
	defer cancel()
	t.logger.Debug("Activating control.", zap.String("control", control), zap.Stringer("locator", loc))
	if err := t.page.Click(clickCtx, loc); err != nil {
		return &ControlNotFoundError{Control: control, Locator: loc.String(), Err: fmt.Errorf("click: %w", err)}
	}
	return nil
}
