// internal/harness/navigator.go
package harness

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/browser"
)

// Navigator loads named routes.
type Navigator struct {
	page    browser.Page
	app     *App
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
}

// NewNavigator binds a navigator to one page.
func NewNavigator(page browser.Page, app *App, baseURL string, timeout time.Duration, logger *zap.Logger) *Navigator {
	return &Navigator{page: page, app: app, baseURL: baseURL, timeout: timeout, logger: logger}
}

// Goto loads the route and waits for its readiness element. Load and
// readiness share one deadline. Nothing is retried.
func (n *Navigator) Goto(ctx context.Context, route string) error {
	r, err := n.app.Route(route)
	if err != nil {
		return err
	}
	url := JoinURL(n.baseURL, r.Path)

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	n.logger.Debug("Navigating to route.", zap.String("route", route), zap.String("url", url))
	if err := n.page.Goto(ctx, url); err != nil {
		return &NavigationError{Route: route, URL: url, Err: err}
	}
	if err := n.page.WaitVisible(ctx, r.Ready); err != nil {
		return &NavigationError{Route: route, URL: url, Err: fmt.Errorf("readiness element %s: %w", r.Ready, err)}
	}
	return nil
}
