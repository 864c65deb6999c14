// internal/browser/locator.go
package browser

import (
	"fmt"
	"strings"
)

// Strategy is the query engine a locator compiles to.
type Strategy int

const (
	CSS Strategy = iota
	XPath
)

func (s Strategy) String() string {
	if s == XPath {
		return "xpath"
	}
	return "css"
}

// Locator identifies one or more elements. Every locator compiles down to a
// CSS selector or an XPath 1.0 expression so drivers need only those engines.
type Locator struct {
	// Raw is the locator exactly as written.
	Raw      string
	Strategy Strategy
	Expr     string
}

func (l Locator) String() string { return l.Raw }

// Selector returns the expression prefixed with its engine name, the form
// understood by Playwright style selector parsers.
func (l Locator) Selector() string {
	return l.Strategy.String() + "=" + l.Expr
}

// ParseLocator parses the locator syntax:
//
//	css=<selector>    CSS selector
//	xpath=<expr>      XPath 1.0 expression
//	text=<text>       innermost element whose normalized text contains <text>
//	label=<text>      control labelled <text>: button text, submit value, link
//	                  text, aria-label or an associated <label>
//	testid=<id>       element with data-testid=<id>
//
// Bare strings starting with "/" or "(" are XPath, everything else is CSS.
func ParseLocator(raw string) (Locator, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Locator{}, fmt.Errorf("empty locator")
	}
	loc := Locator{Raw: raw}

	prefix, rest, found := strings.Cut(s, "=")
	if found {
		switch prefix {
		case "css":
			loc.Strategy, loc.Expr = CSS, rest
		case "xpath":
			loc.Strategy, loc.Expr = XPath, rest
		case "text":
			loc.Strategy, loc.Expr = XPath, textXPath(rest)
		case "label":
			loc.Strategy, loc.Expr = XPath, labelXPath(rest)
		case "testid":
			loc.Strategy, loc.Expr = CSS, fmt.Sprintf("[data-testid=%s]", cssString(rest))
		default:
			found = false
		}
	}
	if !found {
		if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "(") {
			loc.Strategy, loc.Expr = XPath, s
		} else {
			loc.Strategy, loc.Expr = CSS, s
		}
	}
	if strings.TrimSpace(loc.Expr) == "" {
		return Locator{}, fmt.Errorf("locator %q has an empty expression", raw)
	}
	return loc, nil
}

// MustParseLocator is ParseLocator for static tables; it panics on error.
func MustParseLocator(raw string) Locator {
	loc, err := ParseLocator(raw)
	if err != nil {
		panic(err)
	}
	return loc
}

func textXPath(text string) string {
	lit := XPathLiteral(strings.Join(strings.Fields(text), " "))
	match := fmt.Sprintf("contains(normalize-space(.), %s)", lit)
	return fmt.Sprintf("//body//*[%s][not(.//*[%s])]", match, match)
}

func labelXPath(label string) string {
	lit := XPathLiteral(strings.Join(strings.Fields(label), " "))
	byLabel := fmt.Sprintf("@id=string(//label[normalize-space(.)=%s]/@for)", lit)
	parts := []string{
		fmt.Sprintf("//button[normalize-space(.)=%s]", lit),
		fmt.Sprintf("//input[(@type='submit' or @type='button' or @type='reset') and @value=%s]", lit),
		fmt.Sprintf("//a[normalize-space(.)=%s]", lit),
		fmt.Sprintf("//*[@aria-label=%s]", lit),
		fmt.Sprintf("//input[%s]", byLabel),
		fmt.Sprintf("//select[%s]", byLabel),
		fmt.Sprintf("//textarea[%s]", byLabel),
	}
	return strings.Join(parts, " | ")
}

// XPathLiteral quotes s as an XPath 1.0 string literal. XPath 1.0 has no
// escape sequences, so strings holding both quote kinds become concat() calls.
func XPathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	segments := strings.Split(s, "'")
	args := make([]string, 0, len(segments)*2)
	for i, seg := range segments {
		if i > 0 {
			args = append(args, `"'"`)
		}
		if seg != "" {
			args = append(args, "'"+seg+"'")
		}
	}
	return "concat(" + strings.Join(args, ", ") + ")"
}

func cssString(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
