// internal/browser/httpdom/dom.go
package httpdom

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/flowcheck/internal/browser"
)

// queryAll evaluates a locator against doc. CSS goes through goquery, XPath
// through htmlquery.
func queryAll(doc *html.Node, loc browser.Locator) ([]*html.Node, error) {
	switch loc.Strategy {
	case browser.XPath:
		nodes, err := htmlquery.QueryAll(doc, loc.Expr)
		if err != nil {
			return nil, fmt.Errorf("invalid XPath selector '%s': %w", loc.Expr, err)
		}
		return nodes, nil
	default:
		return goquery.NewDocumentFromNode(doc).Find(loc.Expr).Nodes, nil
	}
}

var invisibleTags = map[string]bool{
	"head": true, "script": true, "style": true, "template": true,
	"title": true, "noscript": true, "meta": true, "link": true,
}

// isVisible applies static visibility rules to n and its ancestors.
func isVisible(n *html.Node) bool {
	if n.Type == html.ElementNode && n.Data == "input" && inputType(n) == "hidden" {
		return false
	}
	for x := n; x != nil; x = x.Parent {
		if x.Type != html.ElementNode {
			continue
		}
		if invisibleTags[x.Data] || hasAttr(x, "hidden") {
			return false
		}
		style := strings.ReplaceAll(strings.ToLower(htmlquery.SelectAttr(x, "style")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	return true
}

// isDisabled reports whether n is disabled directly or through a fieldset.
func isDisabled(n *html.Node) bool {
	if hasAttr(n, "disabled") || strings.EqualFold(htmlquery.SelectAttr(n, "aria-disabled"), "true") {
		return true
	}
	for x := n.Parent; x != nil; x = x.Parent {
		if x.Type == html.ElementNode && x.Data == "fieldset" && hasAttr(x, "disabled") {
			return true
		}
	}
	return false
}

var blockTags = map[string]bool{
	"address": true, "article": true, "br": true, "dd": true, "div": true, "dl": true,
	"dt": true, "footer": true, "form": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "hr": true, "li": true,
	"nav": true, "ol": true, "p": true, "section": true, "table": true, "td": true,
	"th": true, "tr": true, "ul": true,
}

// visibleText approximates innerText: hidden subtrees are skipped and
// whitespace is collapsed.
func visibleText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(x *html.Node) {
		switch x.Type {
		case html.TextNode:
			sb.WriteString(x.Data)
			return
		case html.ElementNode:
			if x != n && !isVisible(x) {
				return
			}
			if blockTags[x.Data] {
				sb.WriteByte(' ')
			}
		}
		for c := x.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if x.Type == html.ElementNode && blockTags[x.Data] {
			sb.WriteByte(' ')
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// fieldValue returns the current value of an input, textarea or select.
func fieldValue(n *html.Node) string {
	switch n.Data {
	case "textarea":
		return htmlquery.InnerText(n)
	case "select":
		options := htmlquery.Find(n, ".//option")
		for _, opt := range options {
			if hasAttr(opt, "selected") {
				return optionValue(opt)
			}
		}
		if len(options) > 0 {
			return optionValue(options[0])
		}
		return ""
	case "input":
		switch inputType(n) {
		case "checkbox", "radio":
			if hasAttr(n, "checked") {
				return "on"
			}
			return ""
		}
		return htmlquery.SelectAttr(n, "value")
	}
	return visibleText(n)
}

func optionValue(opt *html.Node) string {
	for _, a := range opt.Attr {
		if a.Key == "value" {
			return a.Val
		}
	}
	return strings.TrimSpace(htmlquery.InnerText(opt))
}

// selectOption marks the option whose value, or failing that whose label,
// equals value. An empty value deselects everything unless an option has an
// empty value.
func selectOption(sel *html.Node, value string) error {
	options := htmlquery.Find(sel, ".//option")
	var chosen *html.Node
	for _, opt := range options {
		if optionValue(opt) == value {
			chosen = opt
			break
		}
	}
	if chosen == nil && value != "" {
		for _, opt := range options {
			if strings.Join(strings.Fields(htmlquery.InnerText(opt)), " ") == value {
				chosen = opt
				break
			}
		}
	}
	if chosen == nil && value != "" {
		return fmt.Errorf("no option with value or label %q", value)
	}
	for _, opt := range options {
		if opt == chosen {
			setAttr(opt, "selected", "selected")
		} else {
			removeAttr(opt, "selected")
		}
	}
	return nil
}

// serializeForm collects the successful controls of form. The submitter's
// name/value pair is included when it has a name.
func serializeForm(form, submitter *html.Node) url.Values {
	values := url.Values{}
	controls, _ := htmlquery.QueryAll(form, ".//input | .//textarea | .//select")
	for _, c := range controls {
		name := htmlquery.SelectAttr(c, "name")
		if name == "" || isDisabled(c) {
			continue
		}
		switch c.Data {
		case "input":
			switch inputType(c) {
			case "checkbox", "radio":
				if hasAttr(c, "checked") {
					v := htmlquery.SelectAttr(c, "value")
					if v == "" {
						v = "on"
					}
					values.Add(name, v)
				}
			case "submit", "image", "button", "reset", "file":
				if c == submitter {
					values.Add(name, htmlquery.SelectAttr(c, "value"))
				}
			default:
				values.Add(name, htmlquery.SelectAttr(c, "value"))
			}
		case "textarea":
			values.Add(name, htmlquery.InnerText(c))
		case "select":
			values.Add(name, fieldValue(c))
		}
	}
	if submitter != nil && submitter.Data == "button" {
		if name := htmlquery.SelectAttr(submitter, "name"); name != "" {
			values.Add(name, htmlquery.SelectAttr(submitter, "value"))
		}
	}
	return values
}

// actionable walks up from n to the element a click would activate.
func actionable(n *html.Node) *html.Node {
	for x := n; x != nil; x = x.Parent {
		if x.Type != html.ElementNode {
			continue
		}
		switch x.Data {
		case "a":
			if hasAttr(x, "href") {
				return x
			}
		case "button", "input", "select", "textarea":
			return x
		}
	}
	return nil
}

func isSubmitter(n *html.Node) bool {
	switch n.Data {
	case "button":
		t := strings.ToLower(htmlquery.SelectAttr(n, "type"))
		return t == "" || t == "submit"
	case "input":
		t := inputType(n)
		return t == "submit" || t == "image"
	}
	return false
}

func inputType(n *html.Node) string {
	t := strings.ToLower(strings.TrimSpace(htmlquery.SelectAttr(n, "type")))
	if t == "" {
		return "text"
	}
	return t
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "on", "yes", "checked", "1":
		return true
	}
	return false
}

func findParentForm(n *html.Node) *html.Node {
	for x := n.Parent; x != nil; x = x.Parent {
		if x.Type == html.ElementNode && x.Data == "form" {
			return x
		}
	}
	return nil
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func removeAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
