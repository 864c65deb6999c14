// internal/demobank/bank.go
package demobank

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// sessionTTL bounds how long a session token is accepted.
const sessionTTL = 8 * time.Hour

// Errors returned by bank operations. Handlers render their text verbatim.
//
//nolint:stylecheck // user facing messages
var (
	ErrInvalidCredentials = errors.New("The username and password could not be verified.")
	ErrInsufficientFunds  = errors.New("Insufficient funds.")
	ErrUnknownAccount     = errors.New("Account not found.")
	ErrDuplicateEmail     = errors.New("E-mail já cadastrado")
)

// Money is an amount in cents.
type Money int64

// ParseMoney accepts plain decimal amounts such as "1500", "20.5" or "1,500.00".
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(s), "$"), ",", ""))
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return Money(math.Round(f * 100)), nil
}

func (m Money) String() string {
	sign := ""
	if m < 0 {
		sign = "-"
		m = -m
	}
	return fmt.Sprintf("%s$%d.%02d", sign, m/100, m%100)
}

// AccountType mirrors the ParaBank account kinds.
type AccountType string

const (
	Checking AccountType = "CHECKING"
	Savings  AccountType = "SAVINGS"
	Loan     AccountType = "LOAN"
)

// Customer is a registered bank user.
type Customer struct {
	ID        int
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Street    string
	City      string
	State     string
	ZipCode   string
	Phone     string
	CEP       string
}

// FullName joins first and last name.
func (c Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

type Account struct {
	ID         int
	CustomerID int
	Type       AccountType
	Balance    Money
}

type Transaction struct {
	ID          int
	AccountID   int
	Date        time.Time
	Description string
	Debit       Money
	Credit      Money
}

// Bank is the in-memory state behind the demo site. All methods are safe for
// concurrent use.
type Bank struct {
	now func() time.Time

	mu           sync.Mutex
	customers    map[int]*Customer
	accounts     map[int]*Account
	transactions []Transaction
	// sessions maps the ID claim of every live session token to its customer.
	sessions     map[string]int
	secret       []byte
	nextCustomer int
	nextAccount  int
	nextTx       int
}

// NewBank creates a bank seeded with the ParaBank demo customer john/demo.
func NewBank(now func() time.Time) *Bank {
	if now == nil {
		now = time.Now
	}
	b := &Bank{
		now:          now,
		customers:    make(map[int]*Customer),
		accounts:     make(map[int]*Account),
		sessions:     make(map[string]int),
		secret:       make([]byte, 32),
		nextCustomer: 12212,
		nextAccount:  13344,
		nextTx:       14476,
	}
	if _, err := rand.Read(b.secret); err != nil {
		panic(fmt.Sprintf("demobank: failed to generate session key: %v", err))
	}
	b.seed()
	return b
}

func (b *Bank) seed() {
	john := b.addCustomer(Customer{
		Username:  "john",
		Password:  "demo",
		FirstName: "John",
		LastName:  "Smith",
		Street:    "1431 Main St",
		City:      "Beverly Hills",
		State:     "CA",
		ZipCode:   "90210",
		Phone:     "310-447-4121",
	})
	checking := b.addAccount(john.ID, Checking, 0)
	savings := b.addAccount(john.ID, Savings, 0)

	today := b.today()
	b.post(checking.ID, today.AddDate(0, 0, -45), "Funds Transfer Received", 0, 150000)
	b.post(checking.ID, today.AddDate(0, 0, -20), "Bill Payment to Electric Co", 8520, 0)
	b.post(checking.ID, today.AddDate(0, 0, -7), "Down Payment for Loan", 10000, 0)
	b.post(checking.ID, today.AddDate(0, 0, -2), "ATM Withdrawal", 5000, 0)
	b.post(savings.ID, today.AddDate(0, 0, -30), "Funds Transfer Received", 0, 25000)
}

func (b *Bank) today() time.Time {
	t := b.now()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func (b *Bank) addCustomer(c Customer) *Customer {
	b.nextCustomer++
	c.ID = b.nextCustomer
	b.customers[c.ID] = &c
	return &c
}

func (b *Bank) addAccount(customerID int, typ AccountType, balance Money) *Account {
	b.nextAccount += 111
	a := &Account{ID: b.nextAccount, CustomerID: customerID, Type: typ, Balance: balance}
	b.accounts[a.ID] = a
	return a
}

// post records a transaction and applies it to the balance.
func (b *Bank) post(accountID int, date time.Time, desc string, debit, credit Money) {
	b.nextTx++
	b.transactions = append(b.transactions, Transaction{
		ID:          b.nextTx,
		AccountID:   accountID,
		Date:        date,
		Description: desc,
		Debit:       debit,
		Credit:      credit,
	})
	b.accounts[accountID].Balance += credit - debit
}

// -- Sessions --

// Login authenticates by username or e-mail and opens a session. The
// returned token is a signed JWT naming the session.
func (b *Bank) Login(username, password string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.customers {
		if (strings.EqualFold(c.Username, username) || (c.Email != "" && strings.EqualFold(c.Email, username))) && c.Password == password {
			now := b.now()
			claims := jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   strconv.Itoa(c.ID),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
			}
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
			if err != nil {
				return "", fmt.Errorf("failed to sign session token: %w", err)
			}
			b.sessions[claims.ID] = c.ID
			return token, nil
		}
	}
	return "", ErrInvalidCredentials
}

// sessionID verifies token and returns its session ID.
func (b *Bank) sessionID(token string) (string, bool) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return b.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(b.now))
	if err != nil || claims.ID == "" {
		return "", false
	}
	return claims.ID, true
}

func (b *Bank) Logout(token string) {
	id, ok := b.sessionID(token)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, id)
}

// Session returns a copy of the customer behind a session token.
func (b *Bank) Session(token string) (Customer, bool) {
	sid, ok := b.sessionID(token)
	if !ok {
		return Customer{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.sessions[sid]
	if !ok {
		return Customer{}, false
	}
	return *b.customers[id], true
}

// -- Registration --

// Registration is the Portuguese sign-up form.
type Registration struct {
	FullName        string
	Email           string
	Phone           string
	CEP             string
	Password        string
	ConfirmPassword string
}

// RegistrationField names a form field and its label used in messages.
type RegistrationField struct {
	Name  string
	Label string
}

// RegistrationFields lists the sign-up fields in form order.
var RegistrationFields = []RegistrationField{
	{"fullName", "Nome completo"},
	{"email", "E-mail"},
	{"phone", "Telefone"},
	{"cep", "CEP"},
	{"password", "Senha"},
	{"confirmPassword", "Confirmar senha"},
}

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	digitsOnly   = regexp.MustCompile(`^[0-9]+$`)
)

func (r Registration) value(field string) string {
	switch field {
	case "fullName":
		return r.FullName
	case "email":
		return r.Email
	case "phone":
		return r.Phone
	case "cep":
		return r.CEP
	case "password":
		return r.Password
	case "confirmPassword":
		return r.ConfirmPassword
	}
	return ""
}

// Validate returns one message per invalid field, keyed by field name.
func (r Registration) Validate() map[string]string {
	problems := make(map[string]string)
	for _, f := range RegistrationFields {
		if strings.TrimSpace(r.value(f.Name)) == "" {
			problems[f.Name] = fmt.Sprintf("O campo '%s' é obrigatório", f.Label)
		}
	}
	if _, ok := problems["email"]; !ok && !emailPattern.MatchString(r.Email) {
		problems["email"] = "Formato de e-mail inválido"
	}
	if _, ok := problems["phone"]; !ok && !digitsOnly.MatchString(r.Phone) {
		problems["phone"] = "Telefone deve conter apenas números"
	}
	if _, ok := problems["cep"]; !ok && (!digitsOnly.MatchString(r.CEP) || len(r.CEP) != 8) {
		problems["cep"] = "CEP inválido. Use apenas dígitos"
	}
	_, pwMissing := problems["password"]
	_, confirmMissing := problems["confirmPassword"]
	if !pwMissing && !confirmMissing && r.Password != r.ConfirmPassword {
		problems["confirmPassword"] = "As senhas não conferem"
	}
	return problems
}

// openingDeposit is credited to the first account of every new customer.
const openingDeposit Money = 51550

// Register creates a customer and a funded checking account.
func (b *Bank) Register(r Registration) (Customer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.customers {
		if strings.EqualFold(c.Email, r.Email) {
			return Customer{}, ErrDuplicateEmail
		}
	}
	first, last, _ := strings.Cut(strings.TrimSpace(r.FullName), " ")
	c := b.addCustomer(Customer{
		Username:  r.Email,
		Email:     r.Email,
		Password:  r.Password,
		FirstName: first,
		LastName:  strings.TrimSpace(last),
		Phone:     r.Phone,
		CEP:       r.CEP,
	})
	acct := b.addAccount(c.ID, Checking, 0)
	b.post(acct.ID, b.now(), "Funds Transfer Received", 0, openingDeposit)
	return *c, nil
}

// -- Accounts --

// Accounts lists the customer's accounts ordered by ID.
func (b *Bank) Accounts(customerID int) []Account {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Account
	for _, a := range b.accounts {
		if a.CustomerID == customerID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Account returns one of the customer's accounts.
func (b *Bank) Account(customerID, accountID int) (Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, err := b.ownedLocked(customerID, accountID)
	if err != nil {
		return Account{}, err
	}
	return *a, nil
}

func (b *Bank) ownedLocked(customerID, accountID int) (*Account, error) {
	a, ok := b.accounts[accountID]
	if !ok || a.CustomerID != customerID {
		return nil, ErrUnknownAccount
	}
	return a, nil
}

// Transactions lists an account's activity, newest first.
func (b *Bank) Transactions(customerID, accountID int) ([]Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.ownedLocked(customerID, accountID); err != nil {
		return nil, err
	}
	var out []Transaction
	for _, t := range b.transactions {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// FindTransactions returns the customer's transactions of exactly amount.
func (b *Bank) FindTransactions(customerID int, amount Money) []Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Transaction
	for _, t := range b.transactions {
		if a := b.accounts[t.AccountID]; a.CustomerID == customerID && (t.Debit == amount || t.Credit == amount) {
			out = append(out, t)
		}
	}
	return out
}

// minimumOpeningDeposit is moved from the funding account on OpenAccount.
const minimumOpeningDeposit Money = 10000

// OpenAccount creates an account funded from an existing one.
func (b *Bank) OpenAccount(customerID int, typ AccountType, fromID int) (Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	from, err := b.ownedLocked(customerID, fromID)
	if err != nil {
		return Account{}, err
	}
	if from.Balance < minimumOpeningDeposit {
		return Account{}, ErrInsufficientFunds
	}
	acct := b.addAccount(customerID, typ, 0)
	now := b.now()
	b.post(from.ID, now, "Funds Transfer Sent", minimumOpeningDeposit, 0)
	b.post(acct.ID, now, "Funds Transfer Received", 0, minimumOpeningDeposit)
	return *acct, nil
}

// Transfer moves amount between two of the customer's accounts, which may be
// the same account as on ParaBank. Overdrafts are refused and leave both
// balances untouched.
func (b *Bank) Transfer(customerID, fromID, toID int, amount Money) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	from, err := b.ownedLocked(customerID, fromID)
	if err != nil {
		return err
	}
	if _, err := b.ownedLocked(customerID, toID); err != nil {
		return err
	}
	if amount > from.Balance {
		return ErrInsufficientFunds
	}
	now := b.now()
	b.post(fromID, now, "Funds Transfer Sent", amount, 0)
	b.post(toID, now, "Funds Transfer Received", 0, amount)
	return nil
}

// Payee is the receiver of a bill payment.
type Payee struct {
	Name    string
	Street  string
	City    string
	State   string
	ZipCode string
	Phone   string
	Account string
}

// PayBill debits the account. A zero date means today; later dates schedule
// the payment and are recorded with that date.
func (b *Bank) PayBill(customerID, fromID int, payee Payee, amount Money, date time.Time) (Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	from, err := b.ownedLocked(customerID, fromID)
	if err != nil {
		return Transaction{}, err
	}
	if amount > from.Balance {
		return Transaction{}, ErrInsufficientFunds
	}
	if date.IsZero() {
		date = b.now()
	}
	b.post(fromID, date, "Bill Payment to "+payee.Name, amount, 0)
	return b.transactions[len(b.transactions)-1], nil
}

// LoanDecision is the outcome of a loan request.
type LoanDecision struct {
	Approved     bool
	Reason       string
	NewAccountID int
}

// maxLoanIncomeRatio caps a loan at this share of the annual income.
const maxLoanIncomeRatio = 0.2

// RequestLoan approves loans up to 20% of the annual income when the down
// payment is covered by the funding account.
func (b *Bank) RequestLoan(customerID, fromID int, amount, downPayment, annualIncome Money) (LoanDecision, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	from, err := b.ownedLocked(customerID, fromID)
	if err != nil {
		return LoanDecision{}, err
	}
	if downPayment > from.Balance {
		return LoanDecision{Reason: "You do not have sufficient funds for the given down payment."}, nil
	}
	if float64(amount) > float64(annualIncome)*maxLoanIncomeRatio {
		return LoanDecision{Reason: "We cannot grant a loan in that amount with your annual income."}, nil
	}

	acct := b.addAccount(customerID, Loan, 0)
	now := b.now()
	if downPayment > 0 {
		b.post(from.ID, now, "Down Payment for Loan", downPayment, 0)
	}
	b.post(acct.ID, now, "Loan Funds", 0, amount)
	return LoanDecision{Approved: true, NewAccountID: acct.ID}, nil
}

// ProfileUpdate holds the contact info form.
type ProfileUpdate struct {
	FirstName string
	LastName  string
	Street    string
	City      string
	State     string
	ZipCode   string
	Phone     string
}

// ProfileFields lists the contact info fields with their error element IDs
// and messages, in form order.
var ProfileFields = []struct {
	Name    string
	ErrorID string
	Message string
}{
	{"customer.firstName", "firstName-error", "First name is required."},
	{"customer.lastName", "lastName-error", "Last name is required."},
	{"customer.address.street", "street-error", "Address is required."},
	{"customer.address.city", "city-error", "City is required."},
	{"customer.address.state", "state-error", "State is required."},
	{"customer.address.zipCode", "zipCode-error", "Zip Code is required."},
	{"customer.phoneNumber", "phone-error", "Phone is required."},
}

func (p ProfileUpdate) value(field string) string {
	switch field {
	case "customer.firstName":
		return p.FirstName
	case "customer.lastName":
		return p.LastName
	case "customer.address.street":
		return p.Street
	case "customer.address.city":
		return p.City
	case "customer.address.state":
		return p.State
	case "customer.address.zipCode":
		return p.ZipCode
	case "customer.phoneNumber":
		return p.Phone
	}
	return ""
}

// Validate returns messages keyed by error element ID.
func (p ProfileUpdate) Validate() map[string]string {
	problems := make(map[string]string)
	for _, f := range ProfileFields {
		if strings.TrimSpace(p.value(f.Name)) == "" {
			problems[f.ErrorID] = f.Message
		}
	}
	return problems
}

// UpdateProfile stores new contact info.
func (b *Bank) UpdateProfile(customerID int, p ProfileUpdate) (Customer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.customers[customerID]
	if !ok {
		return Customer{}, fmt.Errorf("customer %d not found", customerID)
	}
	c.FirstName, c.LastName = p.FirstName, p.LastName
	c.Street, c.City, c.State, c.ZipCode = p.Street, p.City, p.State, p.ZipCode
	c.Phone = p.Phone
	return *c, nil
}
