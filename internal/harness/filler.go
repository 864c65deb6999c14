// internal/harness/filler.go
package harness

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/browser"
)

// Filler writes values into the fields of the app's field table.
type Filler struct {
	page    browser.Page
	app     *App
	timeout time.Duration
	logger  *zap.Logger
}

func NewFiller(page browser.Page, app *App, timeout time.Duration, logger *zap.Logger) *Filler {
	return &Filler{page: page, app: app, timeout: timeout, logger: logger}
}

// Fill replaces the content of field with v. An absent v clears the field so
// nothing typed by an earlier step survives.
func (f *Filler) Fill(ctx context.Context, field string, v Value) error {
	loc, err := f.app.Field(field)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if !v.IsSet() {
		f.logger.Debug("Clearing field.", zap.String("field", field))
	}
	if err := f.page.Fill(ctx, loc, v.String()); err != nil {
		// The input exists in the table but could not be written.
		return &ControlNotFoundError{Control: field, Locator: loc.String(), Err: fmt.Errorf("fill: %w", err)}
	}
	return nil
}
