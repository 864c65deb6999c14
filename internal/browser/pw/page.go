// internal/browser/pw/page.go
package pw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/browser"
)

const enabledPollInterval = 100 * time.Millisecond

// Page wraps a Playwright page and its dedicated browser context.
type Page struct {
	id        string
	logger    *zap.Logger
	bctx      playwright.BrowserContext
	page      playwright.Page
	tracePath string
	responses *browser.ResponseLog

	mu        sync.Mutex
	closed    bool
	videoPath string
	onClose   func()
}

var (
	_ browser.Page        = (*Page)(nil)
	_ browser.VideoSource = (*Page)(nil)
)

func newPage(id string, bctx playwright.BrowserContext, page playwright.Page, tracePath string, logger *zap.Logger) *Page {
	p := &Page{
		id:        id,
		logger:    logger,
		bctx:      bctx,
		page:      page,
		tracePath: tracePath,
		responses: browser.NewResponseLog(),
	}
	pageSeq := 0
	page.OnFrameNavigated(func(frame playwright.Frame) {
		if frame.ParentFrame() != nil {
			return
		}
		pageSeq++
		p.responses.RecordPage(fmt.Sprintf("page_%d", pageSeq), frame.URL(), time.Now())
	})
	page.OnResponse(p.handleResponse)
	return p
}

func (p *Page) ID() string                      { return p.id }
func (p *Page) Responses() *browser.ResponseLog { return p.responses }

func (p *Page) handleResponse(resp playwright.Response) {
	req := resp.Request()
	started := time.Now()
	entry := schemas.Entry{
		StartedDateTime: started,
		Time:            -1,
		Request: schemas.Request{
			Method:      req.Method(),
			URL:         req.URL(),
			HTTPVersion: "HTTP/1.1",
			Headers:     pairs(req.Headers()),
			HeadersSize: -1,
			BodySize:    -1,
		},
		Response: schemas.Response{
			Status:      resp.Status(),
			StatusText:  resp.StatusText(),
			HTTPVersion: "HTTP/1.1",
			Headers:     pairs(resp.Headers()),
			Content:     schemas.Content{MimeType: resp.Headers()["content-type"]},
			RedirectURL: resp.Headers()["location"],
			HeadersSize: -1,
			BodySize:    -1,
		},
		Timings: schemas.Timings{Send: -1, Wait: -1, Receive: -1},
	}
	if timing := req.Timing(); timing != nil && timing.StartTime > 0 {
		entry.StartedDateTime = time.UnixMilli(int64(timing.StartTime))
		if timing.ResponseEnd > 0 {
			entry.Time = timing.ResponseEnd
		}
	}
	if body, err := req.PostData(); err == nil && body != "" {
		entry.Request.PostData = &schemas.PostData{MimeType: req.Headers()["content-type"], Text: body}
		entry.Request.BodySize = int64(len(body))
	}
	p.responses.Record(entry)
}

func pairs(headers map[string]string) []schemas.NVPair {
	out := make([]schemas.NVPair, 0, len(headers))
	for name, value := range headers {
		out = append(out, schemas.NVPair{Name: name, Value: value})
	}
	return out
}

func (p *Page) checkOpen(ctx context.Context) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return browser.ErrClosed
	}
	return ctx.Err()
}

func (p *Page) locate(loc browser.Locator) playwright.Locator {
	return p.page.Locator(loc.Selector()).First()
}

func timeout(ctx context.Context) *float64 {
	return playwright.Float(browser.TimeoutMillis(ctx, defaultActionTimeout))
}

// classify maps Playwright timeouts onto the shared sentinel errors.
func (p *Page) classify(loc browser.Locator, want, err error) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%s: %w", loc, err)
	}
	if n, countErr := p.page.Locator(loc.Selector()).Count(); countErr == nil && n == 0 {
		return fmt.Errorf("%w: %s", browser.ErrNotFound, loc)
	}
	return fmt.Errorf("%w: %s", want, loc)
}

// -- Navigation --

func (p *Page) Goto(ctx context.Context, url string) error {
	if err := p.checkOpen(ctx); err != nil {
		return err
	}
	p.logger.Debug("Navigating.", zap.String("url", url))
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   timeout(ctx),
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	if err := p.checkOpen(ctx); err != nil {
		return "", err
	}
	return p.page.URL(), nil
}

// -- Waits --

func (p *Page) WaitVisible(ctx context.Context, loc browser.Locator) error {
	if err := p.checkOpen(ctx); err != nil {
		return err
	}
	err := p.locate(loc).WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: timeout(ctx),
	})
	return p.classify(loc, browser.ErrNotVisible, err)
}

// WaitEnabled waits for visibility, then polls the enabled state until ctx
// expires.
func (p *Page) WaitEnabled(ctx context.Context, loc browser.Locator) error {
	if err := p.WaitVisible(ctx, loc); err != nil {
		return err
	}
	ticker := time.NewTicker(enabledPollInterval)
	defer ticker.Stop()
	for {
		enabled, err := p.locate(loc).IsEnabled(playwright.LocatorIsEnabledOptions{Timeout: timeout(ctx)})
		if err != nil {
			return p.classify(loc, browser.ErrNotEnabled, err)
		}
		if enabled {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", browser.ErrNotEnabled, loc)
		case <-ticker.C:
		}
	}
}

// -- Interaction --

func (p *Page) Fill(ctx context.Context, loc browser.Locator, value string) error {
	if err := p.WaitVisible(ctx, loc); err != nil {
		return err
	}
	el := p.locate(loc)

	kind, err := el.Evaluate(`el => el.tagName.toLowerCase() + ":" + (el.getAttribute("type") || "").toLowerCase()`, nil)
	if err != nil {
		return fmt.Errorf("fill %s: %w", loc, err)
	}
	tag, typ, _ := strings.Cut(fmt.Sprint(kind), ":")

	switch {
	case tag == "select":
		return p.selectOption(ctx, el, loc, value)
	case tag == "input" && (typ == "checkbox" || typ == "radio"):
		checked := value != "" && !strings.EqualFold(value, "false") && value != "0" && !strings.EqualFold(value, "off")
		if err := el.SetChecked(checked, playwright.LocatorSetCheckedOptions{Timeout: timeout(ctx)}); err != nil {
			return fmt.Errorf("fill %s: %w", loc, err)
		}
		return nil
	}

	if err := el.Fill(value, playwright.LocatorFillOptions{Timeout: timeout(ctx)}); err != nil {
		return fmt.Errorf("fill %s: %w", loc, err)
	}
	return nil
}

// selectOption matches by option value first, then by label.
func (p *Page) selectOption(ctx context.Context, el playwright.Locator, loc browser.Locator, value string) error {
	if value == "" {
		_, err := el.SelectOption(playwright.SelectOptionValues{Values: playwright.StringSlice()}, playwright.LocatorSelectOptionOptions{Timeout: timeout(ctx)})
		return err
	}

	values, err := el.Evaluate(`el => Array.from(el.options).map(o => o.value)`, nil)
	if err != nil {
		return fmt.Errorf("fill %s: %w", loc, err)
	}
	byValue := false
	if list, ok := values.([]interface{}); ok {
		for _, v := range list {
			if fmt.Sprint(v) == value {
				byValue = true
				break
			}
		}
	}

	choice := playwright.SelectOptionValues{Labels: playwright.StringSlice(value)}
	if byValue {
		choice = playwright.SelectOptionValues{Values: playwright.StringSlice(value)}
	}
	if _, err := el.SelectOption(choice, playwright.LocatorSelectOptionOptions{Timeout: timeout(ctx)}); err != nil {
		return fmt.Errorf("fill %s: no option with value or label %q: %w", loc, value, err)
	}
	return nil
}

func (p *Page) Click(ctx context.Context, loc browser.Locator) error {
	if err := p.WaitEnabled(ctx, loc); err != nil {
		return err
	}
	if err := p.locate(loc).Click(playwright.LocatorClickOptions{Timeout: timeout(ctx)}); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	return nil
}

// -- Reads --

func (p *Page) Text(ctx context.Context, loc browser.Locator) (string, error) {
	if err := p.WaitVisible(ctx, loc); err != nil {
		return "", err
	}
	text, err := p.locate(loc).InnerText(playwright.LocatorInnerTextOptions{Timeout: timeout(ctx)})
	if err != nil {
		return "", fmt.Errorf("read text of %s: %w", loc, err)
	}
	return strings.Join(strings.Fields(text), " "), nil
}

// Texts returns the text of every rendered match, in document order.
func (p *Page) Texts(ctx context.Context, loc browser.Locator) ([]string, error) {
	if err := p.checkOpen(ctx); err != nil {
		return nil, err
	}
	raw, err := p.page.Locator(loc.Selector()).EvaluateAll(
		`els => els.filter(el => el.getClientRects().length > 0).map(el => el.innerText.replace(/\s+/g, " ").trim())`)
	if err != nil {
		return nil, fmt.Errorf("read texts of %s: %w", loc, err)
	}
	return toStrings(raw), nil
}

func toStrings(raw interface{}) []string {
	list, _ := raw.([]interface{})
	out := make([]string, 0, len(list))
	for _, v := range list {
		out = append(out, fmt.Sprint(v))
	}
	return out
}

func (p *Page) Value(ctx context.Context, loc browser.Locator) (string, error) {
	if err := p.WaitVisible(ctx, loc); err != nil {
		return "", err
	}
	value, err := p.locate(loc).InputValue(playwright.LocatorInputValueOptions{Timeout: timeout(ctx)})
	if err != nil {
		return "", fmt.Errorf("read value of %s: %w", loc, err)
	}
	return value, nil
}

func (p *Page) Attribute(ctx context.Context, loc browser.Locator, name string) (string, bool, error) {
	if err := p.checkOpen(ctx); err != nil {
		return "", false, err
	}
	el := p.locate(loc)
	if err := el.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: timeout(ctx),
	}); err != nil {
		return "", false, p.classify(loc, browser.ErrNotFound, err)
	}
	present, err := el.Evaluate(`(el, name) => el.hasAttribute(name)`, name)
	if err != nil {
		return "", false, fmt.Errorf("read attribute %s of %s: %w", name, loc, err)
	}
	if ok, _ := present.(bool); !ok {
		return "", false, nil
	}
	value, err := el.GetAttribute(name)
	if err != nil {
		return "", false, fmt.Errorf("read attribute %s of %s: %w", name, loc, err)
	}
	return value, true, nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := p.checkOpen(ctx); err != nil {
		return nil, err
	}
	return p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Timeout:  timeout(ctx),
	})
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	if err := p.checkOpen(ctx); err != nil {
		return "", err
	}
	return p.page.Content()
}

// VideoPath returns the recorded video. It is complete only after Close.
func (p *Page) VideoPath() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.videoPath == "" {
		return "", browser.ErrUnsupported
	}
	return p.videoPath, nil
}

// Close stops tracing, closes the page and its browser context.
func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	var errs []error
	if p.tracePath != "" {
		if err := p.bctx.Tracing().Stop(p.tracePath); err != nil {
			errs = append(errs, fmt.Errorf("stop tracing: %w", err))
		}
	}

	video := p.page.Video()
	if err := p.page.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close page: %w", err))
	}
	if err := p.bctx.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close context: %w", err))
	}
	if video != nil {
		if path, err := video.Path(); err == nil {
			p.mu.Lock()
			p.videoPath = path
			p.mu.Unlock()
		}
	}

	if p.onClose != nil {
		p.onClose()
	}
	p.logger.Debug("Page closed.")
	return errors.Join(errs...)
}
