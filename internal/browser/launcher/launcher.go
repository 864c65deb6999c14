// internal/browser/launcher/launcher.go
package launcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/browser/cdp"
	"github.com/xkilldash9x/flowcheck/internal/browser/httpdom"
	"github.com/xkilldash9x/flowcheck/internal/browser/pw"
	"github.com/xkilldash9x/flowcheck/internal/config"
)

// New starts the browser selected by cfg.Driver.
func New(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browser.Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Starting browser.", zap.String("driver", cfg.Driver))

	switch cfg.Driver {
	case config.DriverChromedp, "":
		b, err := cdp.New(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.DriverPlaywright:
		b, err := pw.New(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.DriverHTTP:
		return httpdom.New(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", cfg.Driver)
	}
}
