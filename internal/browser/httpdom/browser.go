// internal/browser/httpdom/browser.go
package httpdom

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/browser/network"
	"github.com/xkilldash9x/flowcheck/internal/config"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) flowcheck-httpdom/1.0"

// Browser is a JavaScript-free browser built on net/http. Each page gets its
// own cookie jar, so pages are fully isolated from one another.
type Browser struct {
	cfg       config.BrowserConfig
	logger    *zap.Logger
	transport http.RoundTripper

	mu     sync.Mutex
	pages  map[string]*Page
	closed bool
}

// Option configures a Browser.
type Option func(*Browser)

// WithTransport overrides the HTTP transport shared by all pages.
func WithTransport(rt http.RoundTripper) Option {
	return func(b *Browser) { b.transport = rt }
}

// New creates a Browser.
func New(cfg config.BrowserConfig, logger *zap.Logger, opts ...Option) *Browser {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Browser{
		cfg:    cfg,
		logger: logger.Named("httpdom"),
		pages:  make(map[string]*Page),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.transport == nil {
		b.transport = network.NewTransport(cfg, b.logger)
	}
	return b
}

// NewPage provisions an isolated page.
func (b *Browser) NewPage(ctx context.Context, opts browser.PageOptions) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("browser is closed")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	ua := b.cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	p := &Page{
		id:        id,
		logger:    b.logger.With(zap.String("page", id)),
		userAgent: ua,
		slowMo:    b.cfg.SlowMo,
		responses: browser.NewResponseLog(),
		client: &http.Client{
			Transport: b.transport,
			Jar:       jar,
			// Redirects are followed manually so every hop lands in the response log.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	p.onClose = func() {
		b.mu.Lock()
		delete(b.pages, id)
		b.mu.Unlock()
	}
	b.pages[id] = p
	b.logger.Debug("Page created.", zap.String("page", id))
	return p, nil
}

// Close closes every open page.
func (b *Browser) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	pages := make([]*Page, 0, len(b.pages))
	for _, p := range b.pages {
		pages = append(pages, p)
	}
	b.mu.Unlock()

	for _, p := range pages {
		_ = p.Close(ctx)
	}
	if t, ok := b.transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
	return nil
}

// OpenPages reports the number of pages not yet closed.
func (b *Browser) OpenPages() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pages)
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
