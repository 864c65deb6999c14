// internal/browser/cdp/browser.go
package cdp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/config"
)

// Browser drives a single Chrome process over the DevTools protocol. Every
// page lives in its own incognito browser context.
type Browser struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu     sync.Mutex
	pages  map[string]*Page
	closed bool
}

// New starts Chrome. The process outlives ctx; it is released by Close.
func New(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Browser{
		cfg:    cfg,
		logger: logger.Named("cdp"),
		pages:  make(map[string]*Page),
	}

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(browser.Detach(ctx), AllocatorOptions(cfg)...)
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx,
		chromedp.WithLogf(b.logger.Sugar().Debugf),
		chromedp.WithErrorf(b.logger.Sugar().Warnf),
	)

	// The first Run launches the process. It must not run on a context with a
	// deadline, or the browser dies with it.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(b.browserCtx) }()
	select {
	case err := <-started:
		if err != nil {
			b.browserCancel()
			b.allocCancel()
			return nil, fmt.Errorf("failed to start chrome: %w", err)
		}
	case <-ctx.Done():
		b.browserCancel()
		b.allocCancel()
		return nil, fmt.Errorf("chrome startup aborted: %w", ctx.Err())
	}

	b.logger.Info("Chrome started.", zap.Bool("headless", cfg.Headless))
	return b, nil
}

// AllocatorOptions maps the browser configuration onto exec allocator flags.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.IgnoreCertErrors)
	}

	// Extra args accept both "--flag" and "--key=value".
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(arg, "-")
		if arg == "" {
			continue
		}
		if key, value, found := strings.Cut(arg, "="); found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(arg, true))
		}
	}
	return opts
}

// NewPage opens a tab in a fresh browser context. Video and native traces are
// not available over CDP; PageOptions.VideoDir and TracePath are ignored.
func (b *Browser) NewPage(ctx context.Context, opts browser.PageOptions) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("browser is closed")
	}
	b.mu.Unlock()

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx, chromedp.WithNewBrowserContext())
	p := newPage(id, tabCtx, tabCancel, b.cfg, b.logger.With(zap.String("page", id)))

	if err := p.start(ctx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	p.onClose = func() {
		b.mu.Lock()
		delete(b.pages, id)
		b.mu.Unlock()
	}
	b.mu.Lock()
	b.pages[id] = p
	b.mu.Unlock()

	b.logger.Debug("Page created.", zap.String("page", id))
	return p, nil
}

// Close closes all pages and terminates Chrome.
func (b *Browser) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pages := make([]*Page, 0, len(b.pages))
	for _, p := range b.pages {
		pages = append(pages, p)
	}
	b.mu.Unlock()

	for _, p := range pages {
		_ = p.Close(ctx)
	}

	err := chromedp.Cancel(b.browserCtx)
	b.browserCancel()
	b.allocCancel()
	if err != nil && ctx.Err() == nil {
		b.logger.Debug("Chrome did not shut down cleanly.", zap.Error(err))
	}
	b.logger.Info("Chrome stopped.")
	return nil
}
