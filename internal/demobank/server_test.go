// internal/demobank/server_test.go
package demobank

import (
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func newClient(t *testing.T) (*client, *Server) {
	t.Helper()
	s := New(WithClock(fixedClock), WithLogger(zaptest.NewLogger(t)))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, base: srv.URL + BasePath + "/", http: &http.Client{Jar: jar}}, s
}

func (c *client) get(path string) (*goquery.Document, int) {
	c.t.Helper()
	resp, err := c.http.Get(c.base + path)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(c.t, err)
	return doc, resp.StatusCode
}

func (c *client) post(path string, form url.Values) *goquery.Document {
	c.t.Helper()
	resp, err := c.http.PostForm(c.base+path, form)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(c.t, err)
	return doc
}

func text(doc *goquery.Document, selector string) string {
	return strings.Join(strings.Fields(doc.Find(selector).First().Text()), " ")
}

func (c *client) login(user, pass string) *goquery.Document {
	return c.post("login.htm", url.Values{"username": {user}, "password": {pass}})
}

func TestLoginFlow(t *testing.T) {
	c, _ := newClient(t)

	doc, status := c.get("index.htm")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, doc.Find(`input[name="username"]`).Length())
	assert.Equal(t, 1, doc.Find(`input[value="Log In"]`).Length())

	doc = c.login("john", "wrong")
	assert.Contains(t, text(doc, ".error"), "could not be verified")

	doc = c.login("", "")
	assert.Equal(t, "Please enter a username and password.", text(doc, "p.error"))

	doc = c.login("john", "demo")
	assert.Equal(t, "Accounts Overview", text(doc, "h1.title"))
	assert.Equal(t, "Welcome John Smith", text(doc, "#leftPanel > p"))
	assert.Equal(t, "$1514.80", text(doc, "#totalBalance"))
	assert.Equal(t, "Update Contact Info", text(doc, "#leftPanel ul li:nth-child(6) a"))

	_, _ = c.get("logout.htm")
	_, status = c.get("overview.htm")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRegistrationForm(t *testing.T) {
	c, _ := newClient(t)

	doc := c.post("register.htm", url.Values{
		"fullName": {""},
		"email":    {"ana.example.com"},
		"phone":    {"11 9999"},
		"cep":      {"0131010"},
	})
	assert.Equal(t, "O campo 'Nome completo' é obrigatório", text(doc, "#fullName-error"))
	assert.Equal(t, "Formato de e-mail inválido", text(doc, "#email-error"))
	assert.Equal(t, "Telefone deve conter apenas números", text(doc, "#phone-error"))
	assert.Equal(t, "CEP inválido. Use apenas dígitos", text(doc, "#cep-error"))
	assert.Equal(t, "O campo 'Senha' é obrigatório", text(doc, "#password-error"))
	value, _ := doc.Find("#email").Attr("value")
	assert.Equal(t, "ana.example.com", value, "submitted values are kept")

	form := url.Values{
		"fullName":        {"Ana Souza"},
		"email":           {"ana@example.com"},
		"phone":           {"11987654321"},
		"cep":             {"01310100"},
		"password":        {"s3nha"},
		"confirmPassword": {"s3nha"},
	}
	doc = c.post("register.htm", form)
	assert.Equal(t, "Cadastro realizado com sucesso", text(doc, "h1.title"))
	assert.Contains(t, text(doc, "#rightPanel p"), "Bem-vindo, Ana Souza")

	doc = c.post("register.htm", form)
	assert.Equal(t, "E-mail já cadastrado", text(doc, "#email-error"))

	doc = c.login("ana@example.com", "s3nha")
	assert.Equal(t, "Welcome Ana Souza", text(doc, "#leftPanel > p"))
}

func TestTransferPages(t *testing.T) {
	c, s := newClient(t)
	c.login("john", "demo")

	accounts := s.Bank().Accounts(12213)
	require.Len(t, accounts, 2)
	from, to := accounts[0].ID, accounts[1].ID
	ids := url.Values{"fromAccountId": {strconv.Itoa(from)}, "toAccountId": {strconv.Itoa(to)}}

	form := cloneWith(ids, "amount", "")
	doc := c.post("transfer.htm", form)
	assert.Equal(t, "The amount cannot be empty.", text(doc, "#amount-error"))

	doc = c.post("transfer.htm", cloneWith(ids, "amount", "abc"))
	assert.Equal(t, "Please enter a valid amount.", text(doc, "#amount-error"))

	doc = c.post("transfer.htm", cloneWith(ids, "amount", "100000"))
	assert.Contains(t, text(doc, "#transferError"), "Insufficient funds")
	acct, _ := s.Bank().Account(12213, from)
	assert.Equal(t, Money(126480), acct.Balance)

	doc = c.post("transfer.htm", cloneWith(ids, "amount", "25"))
	assert.Equal(t, "Transfer Complete!", text(doc, "h1.title"))
	assert.Equal(t, "$25.00", text(doc, "#amountResult"))

	doc, _ = c.get("activity.htm?id=" + strconv.Itoa(from))
	dates := doc.Find("#transactionTable td.date").Map(func(_ int, sel *goquery.Selection) string { return sel.Text() })
	require.Len(t, dates, 5)
	assert.Equal(t, "03-10-2026", dates[0])
	assert.Equal(t, "Funds Transfer Sent", text(doc, "#transactionTable td.description"))

	_, status := c.get("activity.htm?id=99")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestLoanPages(t *testing.T) {
	c, _ := newClient(t)
	doc := c.login("john", "demo")
	from, _ := doc.Find("#accountTable a").First().Attr("href")
	fromID := strings.TrimPrefix(from, "activity.htm?id=")

	doc = c.post("requestloan.htm", url.Values{"amount": {"1000"}, "downPayment": {"100"}, "annualIncome": {"60000"}, "fromAccountId": {fromID}})
	assert.Equal(t, "Approved", text(doc, "#loanStatus"))
	assert.NotEmpty(t, text(doc, "#newAccountId"))

	doc = c.post("requestloan.htm", url.Values{"amount": {"50000"}, "downPayment": {""}, "annualIncome": {"60000"}, "fromAccountId": {fromID}})
	assert.Equal(t, "Denied", text(doc, "#loanStatus"))
	assert.Contains(t, text(doc, "#loanRequestDenied .error"), "annual income")

	doc = c.post("requestloan.htm", url.Values{"amount": {""}, "annualIncome": {"60000"}, "fromAccountId": {fromID}})
	assert.Equal(t, "Please enter a valid loan amount.", text(doc, "#requestLoanError"))
}

func TestBillPayPages(t *testing.T) {
	c, _ := newClient(t)
	doc := c.login("john", "demo")
	from, _ := doc.Find("#accountTable a").First().Attr("href")
	fromID := strings.TrimPrefix(from, "activity.htm?id=")

	doc = c.post("billpay.htm", url.Values{"fromAccountId": {fromID}, "payee.accountNumber": {"1"}, "verifyAccount": {"2"}})
	assert.Equal(t, "Payee name is required.", text(doc, "#validationModel-name"))
	assert.Equal(t, "The account numbers do not match.", text(doc, "#validationModel-verifyAccount"))
	assert.Equal(t, "The amount cannot be empty.", text(doc, "#validationModel-amount"))

	form := url.Values{
		"payee.name":            {"Electric Co"},
		"payee.address.street":  {"1 Power Rd"},
		"payee.address.city":    {"Springfield"},
		"payee.address.state":   {"IL"},
		"payee.address.zipCode": {"62701"},
		"payee.phoneNumber":     {"5550100"},
		"payee.accountNumber":   {"4242"},
		"verifyAccount":         {"4242"},
		"amount":                {"42.10"},
		"date":                  {"03-20-2026"},
		"fromAccountId":         {fromID},
	}
	doc = c.post("billpay.htm", form)
	assert.Equal(t, "Bill Payment Complete", text(doc, "h1.title"))
	assert.Equal(t, "Electric Co", text(doc, "#payeeName"))
	assert.Equal(t, "03-20-2026", text(doc, "#paymentDate"))

	form.Set("date", "01-01-2020")
	doc = c.post("billpay.htm", form)
	assert.Equal(t, "The payment date cannot be in the past.", text(doc, "#validationModel-date"))
}

func TestUpdateProfilePages(t *testing.T) {
	c, _ := newClient(t)
	c.login("john", "demo")

	doc, _ := c.get("updateprofile.htm")
	phone, _ := doc.Find(`[id="customer.phoneNumber"]`).Attr("value")
	assert.Equal(t, "310-447-4121", phone)
	assert.Equal(t, 8, doc.Find("#updateProfileForm > form > table > tbody > tr").Length())

	form := url.Values{}
	doc.Find("#updateProfileForm input.input").Each(func(_ int, sel *goquery.Selection) {
		name, _ := sel.Attr("name")
		value, _ := sel.Attr("value")
		form.Set(name, value)
	})
	form.Set("customer.phoneNumber", "")
	doc = c.post("updateprofile.htm", form)
	assert.Equal(t, "Phone is required.", text(doc, "#phone-error"))

	form.Set("customer.phoneNumber", "310-555-0100")
	doc = c.post("updateprofile.htm", form)
	assert.Equal(t, "Profile Updated", text(doc, "h1.title"))
}

func TestUnknownPage(t *testing.T) {
	c, _ := newClient(t)
	doc, status := c.get("nope.htm")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "The page you requested was not found.", text(doc, "p.error"))
}

func cloneWith(base url.Values, key, value string) url.Values {
	out := url.Values{}
	for k, v := range base {
		out[k] = append([]string(nil), v...)
	}
	out.Set(key, value)
	return out
}
