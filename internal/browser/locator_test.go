// internal/browser/locator_test.go
package browser

import (
	"strings"
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocator(t *testing.T) {
	tests := []struct {
		raw      string
		strategy Strategy
		expr     string
	}{
		{`input[name="username"]`, CSS, `input[name="username"]`},
		{`#leftPanel > p`, CSS, `#leftPanel > p`},
		{`css=.error`, CSS, `.error`},
		{`xpath=//h1`, XPath, `//h1`},
		{`//table[@id='accountTable']//tr`, XPath, `//table[@id='accountTable']//tr`},
		{`(//a)[1]`, XPath, `(//a)[1]`},
		{`testid=submit`, CSS, `[data-testid="submit"]`},
		// Unknown prefixes are plain CSS attribute selectors.
		{`[data-x=1]`, CSS, `[data-x=1]`},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			loc, err := ParseLocator(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.strategy, loc.Strategy)
			assert.Equal(t, tc.expr, loc.Expr)
			assert.Equal(t, tc.raw, loc.String())
		})
	}
}

func TestParseLocatorErrors(t *testing.T) {
	for _, raw := range []string{"", "   ", "css=", "xpath= "} {
		_, err := ParseLocator(raw)
		assert.Error(t, err, "locator %q", raw)
	}
	assert.Panics(t, func() { MustParseLocator("") })
}

func TestSelector(t *testing.T) {
	assert.Equal(t, "css=.error", MustParseLocator(".error").Selector())
	assert.Equal(t, "xpath=//h1", MustParseLocator("//h1").Selector())
}

func TestXPathLiteral(t *testing.T) {
	assert.Equal(t, `'Log In'`, XPathLiteral("Log In"))
	assert.Equal(t, `"O campo 'Nome' é obrigatório"`, XPathLiteral("O campo 'Nome' é obrigatório"))
	assert.Equal(t, `concat('a', "'", 'b"c')`, XPathLiteral(`a'b"c`))
}

const labelDoc = `<html><body>
<form>
  <label for="amount">Loan Amount</label><input id="amount" name="amount">
  <input type="submit" value="Log In">
  <button type="button">Apply Now</button>
  <a href="/parabank/transfer.htm">Transfer Funds</a>
  <span aria-label="close dialog">x</span>
</form>
<div id="rightPanel"><h1 class="title">Accounts Overview</h1><p>Welcome <b>John Smith</b></p></div>
</body></html>`

func TestTextAndLabelCompileToValidXPath(t *testing.T) {
	doc, err := htmlquery.Parse(strings.NewReader(labelDoc))
	require.NoError(t, err)

	cases := map[string]string{
		"label=Log In":           "input",
		"label=Apply Now":        "button",
		"label=Transfer Funds":   "a",
		"label=close dialog":     "span",
		"label=Loan Amount":      "input",
		"text=Accounts Overview": "h1",
		"text=John Smith":        "b",
	}
	for raw, tag := range cases {
		loc := MustParseLocator(raw)
		require.Equal(t, XPath, loc.Strategy, raw)
		node, err := htmlquery.Query(doc, loc.Expr)
		require.NoError(t, err, raw)
		require.NotNil(t, node, raw)
		assert.Equal(t, tag, node.Data, raw)
	}

	node, err := htmlquery.Query(doc, MustParseLocator("label=Loan Amount").Expr)
	require.NoError(t, err)
	assert.Equal(t, "amount", htmlquery.SelectAttr(node, "id"))

	missing, err := htmlquery.Query(doc, MustParseLocator("label=Does Not Exist").Expr)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
