// internal/browser/cdp/page.go
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/config"
)

const probeTimeout = 2 * time.Second

// Page is one Chrome tab.
type Page struct {
	id        string
	logger    *zap.Logger
	tabCtx    context.Context
	tabCancel context.CancelFunc
	slowMo    time.Duration
	responses *browser.ResponseLog

	reqMu    sync.Mutex
	inflight map[network.RequestID]*pendingRequest
	pageSeq  int

	closeOnce sync.Once
	closed    chan struct{}
	onClose   func()
}

// pendingRequest holds a request until its response is complete.
type pendingRequest struct {
	request  *network.Request
	response *network.Response
	started  time.Time
}

var _ browser.Page = (*Page)(nil)

func newPage(id string, tabCtx context.Context, cancel context.CancelFunc, cfg config.BrowserConfig, logger *zap.Logger) *Page {
	return &Page{
		id:        id,
		logger:    logger,
		tabCtx:    tabCtx,
		tabCancel: cancel,
		slowMo:    cfg.SlowMo,
		responses: browser.NewResponseLog(),
		inflight:  make(map[network.RequestID]*pendingRequest),
		closed:    make(chan struct{}),
	}
}

func (p *Page) ID() string                      { return p.id }
func (p *Page) Responses() *browser.ResponseLog { return p.responses }

// start creates the target and enables the network domain. The first Run on
// a tab context allocates the tab, so it runs on tabCtx itself.
func (p *Page) start(ctx context.Context) error {
	chromedp.ListenTarget(p.tabCtx, p.handleEvent)

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(p.tabCtx, network.Enable()) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// -- Network events --

func (p *Page) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		p.reqMu.Lock()
		// A redirect reuses the request ID; the previous hop is complete.
		if prev, ok := p.inflight[e.RequestID]; ok && e.RedirectResponse != nil {
			prev.response = e.RedirectResponse
			p.recordLocked(prev)
		}
		p.inflight[e.RequestID] = &pendingRequest{request: e.Request, started: time.Now()}
		if e.Type == network.ResourceTypeDocument {
			p.pageSeq++
			p.responses.RecordPage(fmt.Sprintf("page_%d", p.pageSeq), e.Request.URL, time.Now())
		}
		p.reqMu.Unlock()
	case *network.EventResponseReceived:
		p.reqMu.Lock()
		if pending, ok := p.inflight[e.RequestID]; ok {
			pending.response = e.Response
		}
		p.reqMu.Unlock()
	case *network.EventLoadingFinished:
		p.complete(e.RequestID)
	case *network.EventLoadingFailed:
		p.complete(e.RequestID)
	}
}

func (p *Page) complete(id network.RequestID) {
	p.reqMu.Lock()
	defer p.reqMu.Unlock()
	if pending, ok := p.inflight[id]; ok {
		p.recordLocked(pending)
		delete(p.inflight, id)
	}
}

func (p *Page) recordLocked(pending *pendingRequest) {
	p.responses.Record(toEntry(pending, time.Now()))
}

func toEntry(pending *pendingRequest, finished time.Time) schemas.Entry {
	req := pending.request
	entry := schemas.Entry{
		StartedDateTime: pending.started,
		Time:            float64(finished.Sub(pending.started).Milliseconds()),
		Request: schemas.Request{
			Method:      req.Method,
			URL:         req.URL,
			HTTPVersion: "HTTP/1.1",
			Headers:     convertHeaders(req.Headers),
			HeadersSize: -1,
			BodySize:    -1,
		},
		Timings: schemas.Timings{Send: -1, Wait: -1, Receive: -1},
	}
	if req.HasPostData {
		var text strings.Builder
		for _, part := range req.PostDataEntries {
			text.WriteString(part.Bytes)
		}
		entry.Request.PostData = &schemas.PostData{
			MimeType: headerValue(req.Headers, "Content-Type"),
			Text:     text.String(),
		}
		entry.Request.BodySize = int64(text.Len())
	}

	resp := pending.response
	if resp == nil {
		entry.Response = schemas.Response{StatusText: "Failed (No Response)", HeadersSize: -1, BodySize: -1}
		return entry
	}
	entry.Response = schemas.Response{
		Status:      int(resp.Status),
		StatusText:  resp.StatusText,
		HTTPVersion: resp.Protocol,
		Headers:     convertHeaders(resp.Headers),
		Content:     schemas.Content{MimeType: resp.MimeType},
		RedirectURL: headerValue(resp.Headers, "Location"),
		HeadersSize: -1,
		BodySize:    int64(resp.EncodedDataLength),
	}
	return entry
}

func convertHeaders(headers network.Headers) []schemas.NVPair {
	pairs := make([]schemas.NVPair, 0, len(headers))
	for name, value := range headers {
		if s, ok := value.(string); ok {
			// CDP joins repeated headers with newlines.
			for _, v := range strings.Split(s, "\n") {
				pairs = append(pairs, schemas.NVPair{Name: name, Value: v})
			}
		}
	}
	return pairs
}

func headerValue(headers network.Headers, key string) string {
	for name, value := range headers {
		if strings.EqualFold(name, key) {
			if s, ok := value.(string); ok {
				return strings.Split(s, "\n")[0]
			}
		}
	}
	return ""
}

// -- Action plumbing --

// run executes actions on the tab, bounded by ctx.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	select {
	case <-p.closed:
		return browser.ErrClosed
	default:
	}
	opCtx, cancel := browser.CombineContext(p.tabCtx, ctx)
	defer cancel()

	if p.slowMo > 0 {
		select {
		case <-time.After(p.slowMo):
		case <-opCtx.Done():
			return opCtx.Err()
		}
	}
	return chromedp.Run(opCtx, actions...)
}

// query maps a locator onto a chromedp selector. XPath locators are narrowed
// to their first match in document order.
func query(loc browser.Locator) (string, chromedp.QueryOption) {
	if loc.Strategy == browser.XPath {
		return "(" + loc.Expr + ")[1]", chromedp.BySearch
	}
	return loc.Expr, chromedp.ByQuery
}

// elementsJS returns a script expression evaluating to an array of every
// element matched by loc.
func elementsJS(loc browser.Locator) string {
	expr, _ := json.Marshal(loc.Expr)
	if loc.Strategy == browser.XPath {
		return fmt.Sprintf(`(() => { const r = document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null); const out = []; for (let i = 0; i < r.snapshotLength; i++) { if (r.snapshotItem(i).nodeType === 1) out.push(r.snapshotItem(i)); } return out; })()`, expr)
	}
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s))`, expr)
}

// classify turns a wait failure into the shared sentinel errors.
func (p *Page) classify(ctx context.Context, loc browser.Locator, want error, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, browser.ErrClosed) {
		return err
	}
	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", loc, err)
	}
	if ctx.Err() == context.Canceled {
		return ctx.Err()
	}

	probeCtx, cancel := context.WithTimeout(browser.Detach(ctx), probeTimeout)
	defer cancel()
	var count int
	if probeErr := p.run(probeCtx, chromedp.Evaluate(elementsJS(loc)+".length", &count)); probeErr == nil && count == 0 {
		return fmt.Errorf("%w: %s", browser.ErrNotFound, loc)
	}
	return fmt.Errorf("%w: %s", want, loc)
}

// -- Navigation --

func (p *Page) Goto(ctx context.Context, url string) error {
	p.logger.Debug("Navigating.", zap.String("url", url))
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var location string
	if err := p.run(ctx, chromedp.Location(&location)); err != nil {
		return "", err
	}
	return location, nil
}

// -- Waits --

func (p *Page) WaitVisible(ctx context.Context, loc browser.Locator) error {
	sel, by := query(loc)
	return p.classify(ctx, loc, browser.ErrNotVisible, p.run(ctx, chromedp.WaitVisible(sel, by)))
}

func (p *Page) WaitEnabled(ctx context.Context, loc browser.Locator) error {
	sel, by := query(loc)
	if err := p.WaitVisible(ctx, loc); err != nil {
		return err
	}
	return p.classify(ctx, loc, browser.ErrNotEnabled, p.run(ctx, chromedp.WaitEnabled(sel, by)))
}

// -- Interaction --

// fillChoiceJS sets selects, checkboxes and radios directly and reports the
// outcome; any other element returns "text" and is typed into.
const fillChoiceJS = `((el, v) => {
  if (!el) return "missing";
  const tag = el.tagName.toLowerCase();
  const type = (el.getAttribute("type") || "").toLowerCase();
  const fire = () => {
    el.dispatchEvent(new Event("input", {bubbles: true}));
    el.dispatchEvent(new Event("change", {bubbles: true}));
  };
  if (tag === "select") {
    const opts = Array.from(el.options);
    const opt = opts.find(o => o.value === v) || opts.find(o => o.text.trim() === v);
    if (!opt && v !== "") return "no-option";
    el.value = opt ? opt.value : "";
    fire();
    return "ok";
  }
  if (tag === "input" && (type === "checkbox" || type === "radio")) {
    el.checked = !["", "false", "off", "no", "0"].includes(v.toLowerCase());
    fire();
    return "ok";
  }
  if (tag === "input" && ["submit", "button", "reset", "image"].includes(type)) return "not-fillable";
  if (tag !== "input" && tag !== "textarea" && !el.isContentEditable) return "not-fillable";
  return "text";
})(%s[0], %s)`

func (p *Page) Fill(ctx context.Context, loc browser.Locator, value string) error {
	if err := p.WaitVisible(ctx, loc); err != nil {
		return err
	}

	v, _ := json.Marshal(value)
	var outcome string
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(fillChoiceJS, elementsJS(loc), v), &outcome)); err != nil {
		return fmt.Errorf("fill %s: %w", loc, err)
	}
	switch outcome {
	case "ok":
		return nil
	case "missing":
		return fmt.Errorf("%w: %s", browser.ErrNotFound, loc)
	case "no-option":
		return fmt.Errorf("fill %s: no option with value or label %q", loc, value)
	case "not-fillable":
		return fmt.Errorf("fill %s: element is not a form field", loc)
	}

	sel, by := query(loc)
	actions := chromedp.Tasks{chromedp.Clear(sel, by)}
	if value != "" {
		actions = append(actions, chromedp.SendKeys(sel, value, by))
	}
	if err := p.run(ctx, actions); err != nil {
		return fmt.Errorf("fill %s: %w", loc, err)
	}
	return nil
}

func (p *Page) Click(ctx context.Context, loc browser.Locator) error {
	if err := p.WaitEnabled(ctx, loc); err != nil {
		return err
	}
	sel, by := query(loc)
	err := p.run(ctx, chromedp.Tasks{
		chromedp.ScrollIntoView(sel, by),
		chromedp.Click(sel, by),
	})
	if err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	return nil
}

// -- Reads --

func (p *Page) Text(ctx context.Context, loc browser.Locator) (string, error) {
	if err := p.WaitVisible(ctx, loc); err != nil {
		return "", err
	}
	sel, by := query(loc)
	var text string
	if err := p.run(ctx, chromedp.Text(sel, &text, by)); err != nil {
		return "", fmt.Errorf("read text of %s: %w", loc, err)
	}
	return strings.Join(strings.Fields(text), " "), nil
}

// Texts returns the text of every rendered match, in document order.
func (p *Page) Texts(ctx context.Context, loc browser.Locator) ([]string, error) {
	script := elementsJS(loc) + `.filter(el => el.getClientRects().length > 0).map(el => el.innerText.replace(/\s+/g, " ").trim())`
	var texts []string
	if err := p.run(ctx, chromedp.Evaluate(script, &texts)); err != nil {
		return nil, fmt.Errorf("read texts of %s: %w", loc, err)
	}
	return texts, nil
}

func (p *Page) Value(ctx context.Context, loc browser.Locator) (string, error) {
	if err := p.WaitVisible(ctx, loc); err != nil {
		return "", err
	}
	sel, by := query(loc)
	var value string
	if err := p.run(ctx, chromedp.Value(sel, &value, by)); err != nil {
		return "", fmt.Errorf("read value of %s: %w", loc, err)
	}
	return value, nil
}

// Attribute reads an attribute of the first match; hidden elements qualify.
func (p *Page) Attribute(ctx context.Context, loc browser.Locator, name string) (string, bool, error) {
	sel, by := query(loc)
	var (
		value string
		ok    bool
	)
	err := p.run(ctx, chromedp.AttributeValue(sel, name, &value, &ok, by))
	if err != nil {
		return "", false, p.classify(ctx, loc, browser.ErrNotFound, err)
	}
	return value, ok, nil
}

// Screenshot captures the full page as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	return html, nil
}

// Close closes the tab and disposes its browser context.
func (p *Page) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(p.tabCtx) }()
		select {
		case err = <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		p.tabCancel()
		if p.onClose != nil {
			p.onClose()
		}
		p.logger.Debug("Page closed.")
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close page %s: %w", p.id, err)
	}
	return nil
}
