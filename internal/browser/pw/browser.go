// internal/browser/pw/browser.go
package pw

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/config"
)

const (
	installTimeout = 5 * time.Minute
	launchTimeout  = 60 * time.Second
	// defaultActionTimeout bounds calls made with a context that has no deadline.
	defaultActionTimeout = 30 * time.Second
)

// Browser is a Chromium instance driven through Playwright. Pages map onto
// Playwright browser contexts, one per page.
type Browser struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	pw      *playwright.Playwright
	browser playwright.Browser

	mu     sync.Mutex
	pages  map[string]*Page
	closed bool
}

// New installs the driver when needed, starts it and launches Chromium.
func New(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Browser{
		cfg:    cfg,
		logger: logger.Named("playwright"),
		pages:  make(map[string]*Page),
	}

	if err := b.ensureInstallation(ctx); err != nil {
		return nil, err
	}

	runtime, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright driver: %w", err)
	}

	instance, err := runtime.Chromium.Launch(LaunchOptions(cfg))
	if err != nil {
		_ = runtime.Stop()
		return nil, fmt.Errorf("failed to launch chromium: %w", err)
	}
	b.pw = runtime
	b.browser = instance

	b.logger.Info("Chromium launched.", zap.String("version", instance.Version()), zap.Bool("headless", cfg.Headless))
	return b, nil
}

func (b *Browser) ensureInstallation(ctx context.Context) error {
	installCtx, cancel := context.WithTimeout(ctx, installTimeout)
	defer cancel()

	opts := &playwright.RunOptions{Browsers: []string{"chromium"}}
	if b.cfg.ExecPath != "" {
		// A custom executable only needs the driver.
		opts.SkipInstallBrowsers = true
	}

	errs := make(chan error, 1)
	go func() { errs <- playwright.Install(opts) }()
	select {
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
		return nil
	case <-installCtx.Done():
		return fmt.Errorf("timed out installing playwright: %w", installCtx.Err())
	}
}

// LaunchOptions builds Chromium launch options from the browser config.
func LaunchOptions(cfg config.BrowserConfig) playwright.BrowserTypeLaunchOptions {
	args := []string{
		"--disable-gpu",
		"--no-sandbox",
		"--disable-dev-shm-usage",
	}
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args:     append(args, cfg.Args...),
		Timeout:  playwright.Float(float64(launchTimeout.Milliseconds())),
	}
	if cfg.SlowMo > 0 {
		opts.SlowMo = playwright.Float(float64(cfg.SlowMo.Milliseconds()))
	}
	if cfg.ExecPath != "" {
		opts.ExecutablePath = playwright.String(cfg.ExecPath)
	}
	return opts
}

// ContextOptions builds the options of the browser context backing one page.
func ContextOptions(cfg config.BrowserConfig, opts browser.PageOptions) playwright.BrowserNewContextOptions {
	ctxOpts := playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(cfg.IgnoreTLSErrors),
	}
	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		ctxOpts.Viewport = &playwright.Size{Width: w, Height: h}
	}
	if cfg.UserAgent != "" {
		ctxOpts.UserAgent = playwright.String(cfg.UserAgent)
	}
	if opts.VideoDir != "" {
		ctxOpts.RecordVideo = &playwright.RecordVideo{Dir: opts.VideoDir}
		if ctxOpts.Viewport != nil {
			ctxOpts.RecordVideo.Size = &playwright.Size{Width: ctxOpts.Viewport.Width, Height: ctxOpts.Viewport.Height}
		}
	}
	return ctxOpts
}

// NewPage creates a browser context and a page inside it.
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

	bctx, err := b.browser.NewContext(ContextOptions(b.cfg, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	if opts.TracePath != "" {
		err := bctx.Tracing().Start(playwright.TracingStartOptions{
			Name:        playwright.String(id),
			Screenshots: playwright.Bool(true),
			Snapshots:   playwright.Bool(true),
		})
		if err != nil {
			_ = bctx.Close()
			return nil, fmt.Errorf("failed to start tracing: %w", err)
		}
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	p := newPage(id, bctx, page, opts.TracePath, b.logger.With(zap.String("page", id)))
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

// Close closes remaining pages, the browser and the driver.
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
		if err := p.Close(ctx); err != nil {
			b.logger.Warn("Error closing page during shutdown.", zap.String("page", p.ID()), zap.Error(err))
		}
	}

	if err := b.browser.Close(); err != nil {
		b.logger.Warn("Error closing browser.", zap.Error(err))
	}
	if err := b.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright driver: %w", err)
	}
	b.logger.Info("Chromium stopped.")
	return nil
}
