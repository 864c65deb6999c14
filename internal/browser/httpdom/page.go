// internal/browser/httpdom/page.go
package httpdom

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/browser"
)

const maxRedirects = 10

// Page is a single browsing context. Its document only changes through
// navigation, link clicks and form submissions.
type Page struct {
	id        string
	logger    *zap.Logger
	client    *http.Client
	userAgent string
	slowMo    time.Duration
	responses *browser.ResponseLog

	mu         sync.RWMutex
	currentURL *url.URL
	doc        *html.Node
	pageSeq    int
	closed     bool

	onClose   func()
	closeOnce sync.Once
}

var _ browser.Page = (*Page)(nil)

func (p *Page) ID() string                      { return p.id }
func (p *Page) Responses() *browser.ResponseLog { return p.responses }

// -- Navigation --

// Goto loads a URL, resolving relative URLs against the current document.
func (p *Page) Goto(ctx context.Context, target string) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	resolved, err := p.resolveURL(target)
	if err != nil {
		return fmt.Errorf("failed to resolve URL '%s': %w", target, err)
	}

	p.logger.Debug("Navigating", zap.String("url", resolved.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request for '%s': %w", resolved, err)
	}
	return p.executeRequest(ctx, req, nil)
}

// URL returns the URL of the current document.
func (p *Page) URL(context.Context) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.currentURL == nil {
		return "about:blank", nil
	}
	return p.currentURL.String(), nil
}

// executeRequest sends req, follows redirects and replaces the document.
func (p *Page) executeRequest(ctx context.Context, req *http.Request, postData *schemas.PostData) error {
	if err := pause(ctx, p.slowMo); err != nil {
		return err
	}

	current := req
	for i := 0; i < maxRedirects; i++ {
		p.prepareRequestHeaders(current)

		started := time.Now()
		resp, err := p.client.Do(current)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 && resp.Header.Get("Location") != "" {
			p.record(current, resp, postData, started, 0)
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			next, err := p.redirectRequest(ctx, resp, current)
			if err != nil {
				return fmt.Errorf("failed to handle redirect: %w", err)
			}
			current, postData = next, nil
			continue
		}

		return p.processResponse(current, resp, postData, started)
	}
	return fmt.Errorf("maximum number of redirects (%d) exceeded", maxRedirects)
}

func (p *Page) redirectRequest(ctx context.Context, resp *http.Response, orig *http.Request) (*http.Request, error) {
	next, err := orig.URL.Parse(resp.Header.Get("Location"))
	if err != nil {
		return nil, fmt.Errorf("bad Location header: %w", err)
	}

	method := orig.Method
	var body io.ReadCloser
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther:
		if method != http.MethodHead {
			method = http.MethodGet
		}
	default:
		if orig.GetBody != nil {
			if body, err = orig.GetBody(); err != nil {
				return nil, err
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, next.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Referer", orig.URL.String())
	if body != nil {
		req.Header.Set("Content-Type", orig.Header.Get("Content-Type"))
	}
	return req, nil
}

func (p *Page) processResponse(req *http.Request, resp *http.Response, postData *schemas.PostData, started time.Time) error {
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read response from '%s': %w", req.URL, err)
	}
	p.record(req, resp, postData, started, int64(len(body)))

	if resp.StatusCode >= 400 {
		p.logger.Debug("Request resulted in error status code", zap.Int("status", resp.StatusCode), zap.String("url", req.URL.String()))
	}

	var doc *html.Node
	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "html") {
		if doc, err = htmlquery.Parse(bytes.NewReader(body)); err != nil {
			return fmt.Errorf("failed to parse HTML from '%s': %w", req.URL, err)
		}
	}

	p.mu.Lock()
	p.currentURL = req.URL
	p.doc = doc
	p.pageSeq++
	pageID := fmt.Sprintf("page_%d", p.pageSeq)
	p.mu.Unlock()

	title := ""
	if doc != nil {
		if n := htmlquery.FindOne(doc, "//title"); n != nil {
			title = strings.TrimSpace(htmlquery.InnerText(n))
		}
	}
	p.responses.RecordPage(pageID, title, started)
	return nil
}

// decodeBody reads the body, undoing gzip or brotli content encoding.
func decodeBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	case "br":
		r = brotli.NewReader(resp.Body)
	}
	return io.ReadAll(r)
}

func (p *Page) record(req *http.Request, resp *http.Response, postData *schemas.PostData, started time.Time, size int64) {
	elapsed := float64(time.Since(started).Microseconds()) / 1000
	entry := schemas.Entry{
		StartedDateTime: started,
		Time:            elapsed,
		Request: schemas.Request{
			Method:      req.Method,
			URL:         req.URL.String(),
			HTTPVersion: "HTTP/1.1",
			Cookies:     []schemas.NVPair{},
			Headers:     headerPairs(req.Header),
			QueryString: queryPairs(req.URL),
			PostData:    postData,
			HeadersSize: -1,
			BodySize:    -1,
		},
		Response: schemas.Response{
			Status:      resp.StatusCode,
			StatusText:  http.StatusText(resp.StatusCode),
			HTTPVersion: resp.Proto,
			Cookies:     []schemas.NVPair{},
			Headers:     headerPairs(resp.Header),
			Content:     schemas.Content{Size: size, MimeType: resp.Header.Get("Content-Type")},
			RedirectURL: resp.Header.Get("Location"),
			HeadersSize: -1,
			BodySize:    size,
		},
		Timings: schemas.Timings{Send: -1, Wait: elapsed, Receive: -1},
	}
	if postData != nil {
		entry.Request.BodySize = int64(len(postData.Text))
	}
	p.responses.Record(entry)
}

func headerPairs(h http.Header) []schemas.NVPair {
	pairs := make([]schemas.NVPair, 0, len(h))
	for name, values := range h {
		for _, v := range values {
			pairs = append(pairs, schemas.NVPair{Name: name, Value: v})
		}
	}
	return pairs
}

func queryPairs(u *url.URL) []schemas.NVPair {
	pairs := []schemas.NVPair{}
	for name, values := range u.Query() {
		for _, v := range values {
			pairs = append(pairs, schemas.NVPair{Name: name, Value: v})
		}
	}
	return pairs
}

func (p *Page) prepareRequestHeaders(req *http.Request) {
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip, br")
	}
	p.mu.RLock()
	current := p.currentURL
	p.mu.RUnlock()
	if current != nil && req.Header.Get("Referer") == "" {
		req.Header.Set("Referer", current.String())
	}
}

func (p *Page) resolveURL(target string) (*url.URL, error) {
	p.mu.RLock()
	current := p.currentURL
	p.mu.RUnlock()

	parsed, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if parsed.IsAbs() {
		return parsed, nil
	}
	if current == nil {
		return nil, fmt.Errorf("initial navigation target must be an absolute URL: '%s'", target)
	}
	return current.ResolveReference(parsed), nil
}

// -- Element access --

// query returns every element matching loc in document order.
func (p *Page) query(loc browser.Locator) ([]*html.Node, error) {
	p.mu.RLock()
	doc := p.doc
	p.mu.RUnlock()
	if doc == nil {
		return nil, fmt.Errorf("%w: %s (no document loaded)", browser.ErrNotFound, loc)
	}
	return queryAll(doc, loc)
}

// resolve returns the first visible match, or an error naming why none qualifies.
func (p *Page) resolve(ctx context.Context, loc browser.Locator) (*html.Node, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nodes, err := p.query(loc)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrNotFound, loc)
	}
	for _, n := range nodes {
		if isVisible(n) {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", browser.ErrNotVisible, loc)
}

// WaitVisible succeeds when a matching element is visible. Without script
// execution the document cannot change on its own, so the check is immediate.
func (p *Page) WaitVisible(ctx context.Context, loc browser.Locator) error {
	_, err := p.resolve(ctx, loc)
	return err
}

// WaitEnabled succeeds when a matching element is visible and not disabled.
func (p *Page) WaitEnabled(ctx context.Context, loc browser.Locator) error {
	n, err := p.resolve(ctx, loc)
	if err != nil {
		return err
	}
	if isDisabled(n) {
		return fmt.Errorf("%w: %s", browser.ErrNotEnabled, loc)
	}
	return nil
}

// Fill writes value into the first visible match.
func (p *Page) Fill(ctx context.Context, loc browser.Locator, value string) error {
	n, err := p.resolve(ctx, loc)
	if err != nil {
		return err
	}
	if isDisabled(n) {
		return fmt.Errorf("%w: %s", browser.ErrNotEnabled, loc)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch strings.ToLower(n.Data) {
	case "textarea":
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			n.RemoveChild(c)
			c = next
		}
		if value != "" {
			n.AppendChild(&html.Node{Type: html.TextNode, Data: value})
		}
	case "select":
		if err := selectOption(n, value); err != nil {
			return fmt.Errorf("%s: %w", loc, err)
		}
	case "input":
		switch inputType(n) {
		case "checkbox", "radio":
			if isTruthy(value) {
				setAttr(n, "checked", "checked")
			} else {
				removeAttr(n, "checked")
			}
		case "submit", "button", "reset", "image", "file":
			return fmt.Errorf("element %s is a %s input and cannot be filled", loc, inputType(n))
		default:
			setAttr(n, "value", value)
		}
	default:
		return fmt.Errorf("element %s (<%s>) is not a form field", loc, n.Data)
	}
	return nil
}

// Click activates the first visible match: links navigate, submit controls
// submit their form, checkboxes and radios toggle.
func (p *Page) Click(ctx context.Context, loc browser.Locator) error {
	n, err := p.resolve(ctx, loc)
	if err != nil {
		return err
	}
	if isDisabled(n) {
		return fmt.Errorf("%w: %s", browser.ErrNotEnabled, loc)
	}
	if err := pause(ctx, p.slowMo); err != nil {
		return err
	}

	target := actionable(n)
	if target == nil {
		p.logger.Debug("Click has no effect without scripting.", zap.String("locator", loc.String()))
		return nil
	}

	switch strings.ToLower(target.Data) {
	case "a":
		href := strings.TrimSpace(htmlquery.SelectAttr(target, "href"))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return nil
		}
		return p.Goto(ctx, href)
	case "input":
		switch inputType(target) {
		case "checkbox":
			p.mu.Lock()
			if hasAttr(target, "checked") {
				removeAttr(target, "checked")
			} else {
				setAttr(target, "checked", "checked")
			}
			p.mu.Unlock()
			return nil
		case "radio":
			p.selectRadio(target)
			return nil
		}
	}

	if isSubmitter(target) {
		form := findParentForm(target)
		if form == nil {
			return nil
		}
		return p.submitForm(ctx, form, target)
	}
	return nil
}

// Text returns the rendered text of the first visible match.
func (p *Page) Text(ctx context.Context, loc browser.Locator) (string, error) {
	n, err := p.resolve(ctx, loc)
	if err != nil {
		return "", err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return visibleText(n), nil
}

// Texts returns the rendered text of every visible match in document order.
func (p *Page) Texts(ctx context.Context, loc browser.Locator) ([]string, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	nodes, err := p.query(loc)
	if err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	texts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if isVisible(n) {
			texts = append(texts, visibleText(n))
		}
	}
	return texts, nil
}

// Value returns the current value of a form field.
func (p *Page) Value(ctx context.Context, loc browser.Locator) (string, error) {
	n, err := p.resolve(ctx, loc)
	if err != nil {
		return "", err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return fieldValue(n), nil
}

// Attribute returns an attribute of the first visible match.
func (p *Page) Attribute(ctx context.Context, loc browser.Locator, name string) (string, bool, error) {
	n, err := p.resolve(ctx, loc)
	if err != nil {
		return "", false, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true, nil
		}
	}
	return "", false, nil
}

// Screenshot is not available without a rendering engine.
func (p *Page) Screenshot(context.Context) ([]byte, error) {
	return nil, fmt.Errorf("screenshot: %w", browser.ErrUnsupported)
}

// HTML serializes the current document.
func (p *Page) HTML(context.Context) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.doc == nil {
		return "<html><head></head><body></body></html>", nil
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, p.doc); err != nil {
		return "", fmt.Errorf("failed to render DOM snapshot: %w", err)
	}
	return buf.String(), nil
}

// Close releases the page. It is safe to call more than once.
func (p *Page) Close(context.Context) error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.doc = nil
		p.mu.Unlock()
		if p.onClose != nil {
			p.onClose()
		}
		p.logger.Debug("Page closed.")
	})
	return nil
}

func (p *Page) checkOpen() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return browser.ErrClosed
	}
	return nil
}

// -- Forms --

// submitForm serializes form the way a browser does for
// application/x-www-form-urlencoded and sends it.
func (p *Page) submitForm(ctx context.Context, form, submitter *html.Node) error {
	action := htmlquery.SelectAttr(form, "action")
	method := strings.ToUpper(htmlquery.SelectAttr(form, "method"))
	if method != http.MethodPost {
		method = http.MethodGet
	}

	target, err := p.resolveURL(action)
	if err != nil {
		return fmt.Errorf("failed to determine form submission URL: %w", err)
	}

	p.mu.RLock()
	values := serializeForm(form, submitter)
	p.mu.RUnlock()

	encoded := values.Encode()
	var req *http.Request
	var postData *schemas.PostData
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, target.String(), strings.NewReader(encoded))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		postData = &schemas.PostData{MimeType: "application/x-www-form-urlencoded", Text: encoded}
		for name, vs := range values {
			for _, v := range vs {
				postData.Params = append(postData.Params, schemas.NVPair{Name: name, Value: v})
			}
		}
	} else {
		u := *target
		u.RawQuery = encoded
		req, err = http.NewRequestWithContext(ctx, method, u.String(), nil)
		if err != nil {
			return err
		}
	}

	p.logger.Debug("Submitting form", zap.String("method", method), zap.String("url", req.URL.String()))
	return p.executeRequest(ctx, req, postData)
}

func (p *Page) selectRadio(n *html.Node) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := htmlquery.SelectAttr(n, "name")
	root := findParentForm(n)
	if root == nil {
		root = n
		for root.Parent != nil {
			root = root.Parent
		}
	}
	if name == "" {
		setAttr(n, "checked", "checked")
		return
	}
	for _, radio := range htmlquery.Find(root, fmt.Sprintf(".//input[@type='radio' and @name=%s]", browser.XPathLiteral(name))) {
		if radio == n {
			setAttr(radio, "checked", "checked")
		} else {
			removeAttr(radio, "checked")
		}
	}
}
