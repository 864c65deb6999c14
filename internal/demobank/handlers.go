// internal/demobank/handlers.go
package demobank

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const customerKey = "customer"

func (s *Server) render(c *gin.Context, status int, name string, data pageData) {
	if data.Customer == nil {
		if cust, ok := c.Get(customerKey); ok {
			cu := cust.(Customer)
			data.Customer = &cu
		} else if cu, ok := s.currentCustomer(c); ok {
			data.Customer = &cu
		}
	}
	c.HTML(status, name, data)
}

func (s *Server) currentCustomer(c *gin.Context) (Customer, bool) {
	token, err := c.Cookie(sessionCookie)
	if err != nil || token == "" {
		return Customer{}, false
	}
	return s.bank.Session(token)
}

// requireLogin rejects requests without a live session.
func (s *Server) requireLogin(c *gin.Context) {
	cust, ok := s.currentCustomer(c)
	if !ok {
		s.render(c, http.StatusUnauthorized, "error", pageData{Title: "Error", Error: "Please log in to access this page."})
		c.Abort()
		return
	}
	c.Set(customerKey, cust)
	c.Next()
}

func customer(c *gin.Context) Customer {
	return c.MustGet(customerKey).(Customer)
}

func (s *Server) index(c *gin.Context) {
	s.render(c, http.StatusOK, "index", pageData{Title: "Welcome | Online Banking"})
}

// -- Session --

func (s *Server) login(c *gin.Context) {
	username := strings.TrimSpace(c.PostForm("username"))
	password := c.PostForm("password")
	if username == "" || password == "" {
		s.render(c, http.StatusOK, "error", pageData{Title: "Error", Error: "Please enter a username and password."})
		return
	}
	token, err := s.bank.Login(username, password)
	if err != nil {
		s.logger.Debug("Login rejected.", zap.String("username", username))
		s.render(c, http.StatusOK, "error", pageData{Title: "Error", Error: err.Error()})
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, token, 0, BasePath, "", false, true)
	c.Redirect(http.StatusFound, "overview.htm")
}

func (s *Server) logout(c *gin.Context) {
	if token, err := c.Cookie(sessionCookie); err == nil {
		s.bank.Logout(token)
	}
	c.SetCookie(sessionCookie, "", -1, BasePath, "", false, true)
	c.Redirect(http.StatusFound, "index.htm")
}

// -- Registration --

func registrationRows() []formRow {
	rows := make([]formRow, 0, len(RegistrationFields))
	for _, f := range RegistrationFields {
		typ := "text"
		if f.Name == "password" || f.Name == "confirmPassword" {
			typ = "password"
		}
		rows = append(rows, formRow{Name: f.Name, Label: f.Label, Type: typ, ErrorID: f.Name + "-error"})
	}
	return rows
}

func (s *Server) registerForm(c *gin.Context) {
	s.render(c, http.StatusOK, "register", pageData{Title: "Cadastro", Data: registrationRows()})
}

func (s *Server) register(c *gin.Context) {
	reg := Registration{
		FullName:        strings.TrimSpace(c.PostForm("fullName")),
		Email:           strings.TrimSpace(c.PostForm("email")),
		Phone:           strings.TrimSpace(c.PostForm("phone")),
		CEP:             strings.TrimSpace(c.PostForm("cep")),
		Password:        c.PostForm("password"),
		ConfirmPassword: c.PostForm("confirmPassword"),
	}
	form := map[string]string{"fullName": reg.FullName, "email": reg.Email, "phone": reg.Phone, "cep": reg.CEP}

	errs := make(map[string]string)
	for field, msg := range reg.Validate() {
		errs[field+"-error"] = msg
	}
	if len(errs) == 0 {
		cust, err := s.bank.Register(reg)
		if err == nil {
			s.logger.Debug("Customer registered.", zap.Int("customer", cust.ID))
			s.render(c, http.StatusOK, "registered", pageData{Title: "Cadastro", Data: cust})
			return
		}
		errs["email-error"] = err.Error()
	}
	s.render(c, http.StatusOK, "register", pageData{Title: "Cadastro", Data: registrationRows(), Errors: errs, Form: form})
}

// -- Accounts --

func (s *Server) overview(c *gin.Context) {
	accounts := s.bank.Accounts(customer(c).ID)
	var total Money
	for _, a := range accounts {
		total += a.Balance
	}
	s.render(c, http.StatusOK, "overview", pageData{Title: "Accounts Overview", Accounts: accounts, Data: total})
}

func (s *Server) activity(c *gin.Context) {
	cust := customer(c)
	id, err := strconv.Atoi(c.Query("id"))
	if err != nil {
		s.render(c, http.StatusBadRequest, "error", pageData{Title: "Error", Error: "A valid account number is required."})
		return
	}
	acct, err := s.bank.Account(cust.ID, id)
	if err != nil {
		s.render(c, http.StatusNotFound, "error", pageData{Title: "Error", Error: err.Error()})
		return
	}
	txs, _ := s.bank.Transactions(cust.ID, id)
	s.render(c, http.StatusOK, "activity", pageData{
		Title: "Account Activity",
		Data: struct {
			Account      Account
			Transactions []Transaction
		}{acct, txs},
	})
}

func (s *Server) openAccountForm(c *gin.Context) {
	s.render(c, http.StatusOK, "openaccount", pageData{Title: "Open Account", Accounts: s.bank.Accounts(customer(c).ID)})
}

func (s *Server) openAccount(c *gin.Context) {
	cust := customer(c)
	data := pageData{Title: "Open Account", Accounts: s.bank.Accounts(cust.ID)}

	typ := AccountType(c.PostForm("type"))
	if typ != Checking && typ != Savings {
		data.Error = "Choose CHECKING or SAVINGS."
		s.render(c, http.StatusOK, "openaccount", data)
		return
	}
	from, _ := strconv.Atoi(c.PostForm("fromAccountId"))
	acct, err := s.bank.OpenAccount(cust.ID, typ, from)
	if err != nil {
		data.Error = err.Error()
		s.render(c, http.StatusOK, "openaccount", data)
		return
	}
	s.render(c, http.StatusOK, "accountOpened", pageData{Title: "Open Account", Data: acct})
}

// amountError validates a required positive amount field.
func amountError(raw string) (Money, string) {
	if strings.TrimSpace(raw) == "" {
		return 0, "The amount cannot be empty."
	}
	m, err := ParseMoney(raw)
	if err != nil || m <= 0 {
		return 0, "Please enter a valid amount."
	}
	return m, ""
}

func (s *Server) transferForm(c *gin.Context) {
	s.render(c, http.StatusOK, "transfer", pageData{Title: "Transfer Funds", Accounts: s.bank.Accounts(customer(c).ID)})
}

func (s *Server) transfer(c *gin.Context) {
	cust := customer(c)
	data := pageData{
		Title:    "Transfer Funds",
		Accounts: s.bank.Accounts(cust.ID),
		Form:     map[string]string{"amount": c.PostForm("amount")},
	}

	amount, msg := amountError(c.PostForm("amount"))
	if msg != "" {
		data.Errors = map[string]string{"amount": msg}
		s.render(c, http.StatusOK, "transfer", data)
		return
	}
	from, _ := strconv.Atoi(c.PostForm("fromAccountId"))
	to, _ := strconv.Atoi(c.PostForm("toAccountId"))

	if err := s.bank.Transfer(cust.ID, from, to, amount); err != nil {
		data.Error = err.Error()
		if errors.Is(err, ErrInsufficientFunds) {
			data.Error = "Insufficient funds: the transfer amount exceeds the available balance."
		}
		s.render(c, http.StatusOK, "transfer", data)
		return
	}
	s.render(c, http.StatusOK, "transferred", pageData{
		Title: "Transfer Complete",
		Data: struct {
			Amount   Money
			From, To int
		}{amount, from, to},
	})
}

// -- Bill pay --

var billPayRows = []formRow{
	{Name: "payee.name", Label: "Payee Name", Type: "text", ErrorID: "validationModel-name"},
	{Name: "payee.address.street", Label: "Address", Type: "text", ErrorID: "validationModel-address"},
	{Name: "payee.address.city", Label: "City", Type: "text", ErrorID: "validationModel-city"},
	{Name: "payee.address.state", Label: "State", Type: "text", ErrorID: "validationModel-state"},
	{Name: "payee.address.zipCode", Label: "Zip Code", Type: "text", ErrorID: "validationModel-zipCode"},
	{Name: "payee.phoneNumber", Label: "Phone #", Type: "text", ErrorID: "validationModel-phoneNumber"},
	{Name: "payee.accountNumber", Label: "Account #", Type: "text", ErrorID: "validationModel-account"},
	{Name: "verifyAccount", Label: "Verify Account #", Type: "text", ErrorID: "validationModel-verifyAccount"},
	{Name: "amount", Label: "Amount", Type: "text", ErrorID: "validationModel-amount"},
	{Name: "date", Label: "Payment Date (MM-DD-YYYY)", Type: "text", ErrorID: "validationModel-date"},
}

var billPayRequired = map[string]string{
	"payee.name":            "Payee name is required.",
	"payee.address.street":  "Address is required.",
	"payee.address.city":    "City is required.",
	"payee.address.state":   "State is required.",
	"payee.address.zipCode": "Zip Code is required.",
	"payee.phoneNumber":     "Phone number is required.",
	"payee.accountNumber":   "Account number is required.",
	"verifyAccount":         "Account number is required.",
}

func (s *Server) billPayForm(c *gin.Context) {
	s.render(c, http.StatusOK, "billpay", pageData{Title: "Bill Pay", Accounts: s.bank.Accounts(customer(c).ID), Data: billPayRows})
}

func (s *Server) billPay(c *gin.Context) {
	cust := customer(c)
	form := make(map[string]string, len(billPayRows))
	errs := make(map[string]string)
	for _, row := range billPayRows {
		form[row.Name] = strings.TrimSpace(c.PostForm(row.Name))
		if msg, required := billPayRequired[row.Name]; required && form[row.Name] == "" {
			errs[row.ErrorID] = msg
		}
	}
	if _, missing := errs["validationModel-verifyAccount"]; !missing && form["verifyAccount"] != form["payee.accountNumber"] {
		errs["validationModel-verifyAccount"] = "The account numbers do not match."
	}
	amount, msg := amountError(form["amount"])
	if msg != "" {
		errs["validationModel-amount"] = msg
	}

	var date time.Time
	if raw := form["date"]; raw != "" {
		parsed, err := time.ParseInLocation("01-02-2006", raw, s.now().Location())
		switch {
		case err != nil:
			errs["validationModel-date"] = "Please enter a date as MM-DD-YYYY."
		case parsed.Before(s.bank.today()):
			errs["validationModel-date"] = "The payment date cannot be in the past."
		default:
			date = parsed
		}
	}

	data := pageData{Title: "Bill Pay", Accounts: s.bank.Accounts(cust.ID), Data: billPayRows, Form: form, Errors: errs}
	if len(errs) > 0 {
		s.render(c, http.StatusOK, "billpay", data)
		return
	}

	from, _ := strconv.Atoi(c.PostForm("fromAccountId"))
	payee := Payee{
		Name:    form["payee.name"],
		Street:  form["payee.address.street"],
		City:    form["payee.address.city"],
		State:   form["payee.address.state"],
		ZipCode: form["payee.address.zipCode"],
		Phone:   form["payee.phoneNumber"],
		Account: form["payee.accountNumber"],
	}
	tx, err := s.bank.PayBill(cust.ID, from, payee, amount, date)
	if err != nil {
		data.Error = err.Error()
		s.render(c, http.StatusOK, "billpay", data)
		return
	}
	s.render(c, http.StatusOK, "billpaid", pageData{
		Title: "Bill Pay",
		Data: struct {
			Payee     string
			Amount    Money
			From      int
			Date      time.Time
			Scheduled bool
		}{payee.Name, amount, from, tx.Date, tx.Date.After(s.now())},
	})
}

// -- Find transactions --

func (s *Server) findTransactionsForm(c *gin.Context) {
	s.render(c, http.StatusOK, "findtrans", pageData{Title: "Find Transactions"})
}

func (s *Server) findTransactions(c *gin.Context) {
	data := pageData{Title: "Find Transactions", Form: map[string]string{"amount": c.PostForm("amount")}}
	amount, msg := amountError(c.PostForm("amount"))
	if msg != "" {
		data.Error = msg
		s.render(c, http.StatusOK, "findtrans", data)
		return
	}
	found := s.bank.FindTransactions(customer(c).ID, amount)
	if len(found) == 0 {
		data.Error = "No transactions found."
	} else {
		data.Data = found
	}
	s.render(c, http.StatusOK, "findtrans", data)
}

// -- Loans --

func (s *Server) requestLoanForm(c *gin.Context) {
	s.render(c, http.StatusOK, "requestloan", pageData{Title: "Request Loan", Accounts: s.bank.Accounts(customer(c).ID)})
}

func (s *Server) requestLoan(c *gin.Context) {
	cust := customer(c)
	data := pageData{
		Title:    "Request Loan",
		Accounts: s.bank.Accounts(cust.ID),
		Form: map[string]string{
			"amount":       c.PostForm("amount"),
			"downPayment":  c.PostForm("downPayment"),
			"annualIncome": c.PostForm("annualIncome"),
		},
	}

	amount, err := ParseMoney(data.Form["amount"])
	if err != nil || amount <= 0 {
		data.Error = "Please enter a valid loan amount."
		s.render(c, http.StatusOK, "requestloan", data)
		return
	}
	income, err := ParseMoney(data.Form["annualIncome"])
	if err != nil || income <= 0 {
		data.Error = "Please enter a valid annual income."
		s.render(c, http.StatusOK, "requestloan", data)
		return
	}
	var down Money
	if raw := strings.TrimSpace(data.Form["downPayment"]); raw != "" {
		if down, err = ParseMoney(raw); err != nil || down < 0 {
			data.Error = "Please enter a valid down payment."
			s.render(c, http.StatusOK, "requestloan", data)
			return
		}
	}

	from, _ := strconv.Atoi(c.PostForm("fromAccountId"))
	decision, err := s.bank.RequestLoan(cust.ID, from, amount, down, income)
	if err != nil {
		data.Error = err.Error()
		s.render(c, http.StatusOK, "requestloan", data)
		return
	}
	s.render(c, http.StatusOK, "loanResult", pageData{Title: "Loan Request", Data: decision})
}

// -- Profile --

var profileLabels = map[string]string{
	"customer.firstName":       "First Name",
	"customer.lastName":        "Last Name",
	"customer.address.street":  "Address",
	"customer.address.city":    "City",
	"customer.address.state":   "State",
	"customer.address.zipCode": "Zip Code",
	"customer.phoneNumber":     "Phone #",
}

func profileRows() []formRow {
	rows := make([]formRow, 0, len(ProfileFields))
	for _, f := range ProfileFields {
		rows = append(rows, formRow{Name: f.Name, Label: profileLabels[f.Name], Type: "text", ErrorID: f.ErrorID})
	}
	return rows
}

func (s *Server) updateProfileForm(c *gin.Context) {
	cust := customer(c)
	form := map[string]string{
		"customer.firstName":       cust.FirstName,
		"customer.lastName":        cust.LastName,
		"customer.address.street":  cust.Street,
		"customer.address.city":    cust.City,
		"customer.address.state":   cust.State,
		"customer.address.zipCode": cust.ZipCode,
		"customer.phoneNumber":     cust.Phone,
	}
	s.render(c, http.StatusOK, "updateprofile", pageData{Title: "Update Profile", Data: profileRows(), Form: form})
}

func (s *Server) updateProfile(c *gin.Context) {
	cust := customer(c)
	update := ProfileUpdate{
		FirstName: strings.TrimSpace(c.PostForm("customer.firstName")),
		LastName:  strings.TrimSpace(c.PostForm("customer.lastName")),
		Street:    strings.TrimSpace(c.PostForm("customer.address.street")),
		City:      strings.TrimSpace(c.PostForm("customer.address.city")),
		State:     strings.TrimSpace(c.PostForm("customer.address.state")),
		ZipCode:   strings.TrimSpace(c.PostForm("customer.address.zipCode")),
		Phone:     strings.TrimSpace(c.PostForm("customer.phoneNumber")),
	}
	form := make(map[string]string, len(ProfileFields))
	for _, f := range ProfileFields {
		form[f.Name] = update.value(f.Name)
	}

	if errs := update.Validate(); len(errs) > 0 {
		s.render(c, http.StatusOK, "updateprofile", pageData{Title: "Update Profile", Data: profileRows(), Form: form, Errors: errs})
		return
	}
	updated, err := s.bank.UpdateProfile(cust.ID, update)
	if err != nil {
		s.render(c, http.StatusInternalServerError, "error", pageData{Title: "Error", Error: err.Error()})
		return
	}
	s.render(c, http.StatusOK, "profileUpdated", pageData{Title: "Update Profile", Customer: &updated})
}
