// internal/demobank/bank_test.go
package demobank

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, time.March, 10, 14, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func login(t *testing.T, b *Bank, user, pass string) Customer {
	t.Helper()
	token, err := b.Login(user, pass)
	require.NoError(t, err)
	cust, ok := b.Session(token)
	require.True(t, ok)
	return cust
}

func TestParseMoney(t *testing.T) {
	cases := map[string]Money{
		"1500":      150000,
		"20.5":      2050,
		"$1,264.80": 126480,
		" 0.01 ":    1,
		"-5":        -500,
	}
	for in, want := range cases {
		got, err := ParseMoney(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "abc", "NaN", "1.2.3"} {
		_, err := ParseMoney(bad)
		assert.Error(t, err, bad)
	}

	assert.Equal(t, "$1264.80", Money(126480).String())
	assert.Equal(t, "-$0.05", Money(-5).String())
}

func TestSeededCustomer(t *testing.T) {
	b := NewBank(fixedClock)
	john := login(t, b, "john", "demo")
	assert.Equal(t, "John Smith", john.FullName())

	accounts := b.Accounts(john.ID)
	require.Len(t, accounts, 2)
	assert.Equal(t, Checking, accounts[0].Type)
	assert.Equal(t, Money(126480), accounts[0].Balance)
	assert.Equal(t, Money(25000), accounts[1].Balance)

	txs, err := b.Transactions(john.ID, accounts[0].ID)
	require.NoError(t, err)
	require.Len(t, txs, 4)
	for i := 1; i < len(txs); i++ {
		assert.False(t, txs[i].Date.After(txs[i-1].Date), "transactions must be newest first")
	}
	assert.Equal(t, "ATM Withdrawal", txs[0].Description)

	_, err = b.Login("john", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegistrationValidation(t *testing.T) {
	valid := Registration{
		FullName:        "Ana Souza",
		Email:           "ana@example.com",
		Phone:           "11987654321",
		CEP:             "01310100",
		Password:        "s3nha!",
		ConfirmPassword: "s3nha!",
	}
	assert.Empty(t, valid.Validate())

	blank := valid
	blank.FullName = "  "
	blank.CEP = ""
	assert.Equal(t, map[string]string{
		"fullName": "O campo 'Nome completo' é obrigatório",
		"cep":      "O campo 'CEP' é obrigatório",
	}, blank.Validate())

	bad := valid
	bad.Email = "ana.example.com"
	bad.Phone = "(11) 98765-4321"
	bad.CEP = "01310-100"
	bad.ConfirmPassword = "other"
	assert.Equal(t, map[string]string{
		"email":           "Formato de e-mail inválido",
		"phone":           "Telefone deve conter apenas números",
		"cep":             "CEP inválido. Use apenas dígitos",
		"confirmPassword": "As senhas não conferem",
	}, bad.Validate())
}

func TestRegisterAndLoginByEmail(t *testing.T) {
	b := NewBank(fixedClock)
	reg := Registration{FullName: "Ana Maria Souza", Email: "ana@example.com", Phone: "11987654321", CEP: "01310100", Password: "pw", ConfirmPassword: "pw"}

	cust, err := b.Register(reg)
	require.NoError(t, err)
	assert.Equal(t, "Ana", cust.FirstName)
	assert.Equal(t, "Maria Souza", cust.LastName)

	_, err = b.Register(reg)
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	loggedIn := login(t, b, "ANA@example.com", "pw")
	assert.Equal(t, cust.ID, loggedIn.ID)

	accounts := b.Accounts(cust.ID)
	require.Len(t, accounts, 1)
	assert.Equal(t, openingDeposit, accounts[0].Balance)
}

func TestTransfer(t *testing.T) {
	b := NewBank(fixedClock)
	john := login(t, b, "john", "demo")
	accounts := b.Accounts(john.ID)
	checking, savings := accounts[0], accounts[1]

	require.NoError(t, b.Transfer(john.ID, checking.ID, savings.ID, 10000))
	c, _ := b.Account(john.ID, checking.ID)
	s, _ := b.Account(john.ID, savings.ID)
	assert.Equal(t, Money(116480), c.Balance)
	assert.Equal(t, Money(35000), s.Balance)

	t.Run("insufficient funds leaves balances untouched", func(t *testing.T) {
		err := b.Transfer(john.ID, savings.ID, checking.ID, 999999)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		s2, _ := b.Account(john.ID, savings.ID)
		assert.Equal(t, s.Balance, s2.Balance)
	})

	t.Run("same account is allowed", func(t *testing.T) {
		require.NoError(t, b.Transfer(john.ID, checking.ID, checking.ID, 100))
		c2, _ := b.Account(john.ID, checking.ID)
		assert.Equal(t, c.Balance, c2.Balance)
	})

	t.Run("foreign account", func(t *testing.T) {
		other, err := b.Register(Registration{FullName: "Bia", Email: "bia@example.com", Phone: "1", CEP: "12345678", Password: "x", ConfirmPassword: "x"})
		require.NoError(t, err)
		err = b.Transfer(other.ID, checking.ID, savings.ID, 100)
		assert.ErrorIs(t, err, ErrUnknownAccount)
	})
}

func TestRequestLoan(t *testing.T) {
	b := NewBank(fixedClock)
	john := login(t, b, "john", "demo")
	from := b.Accounts(john.ID)[0]

	approved, err := b.RequestLoan(john.ID, from.ID, 1000000, 10000, 5000000)
	require.NoError(t, err)
	assert.True(t, approved.Approved)
	loanAcct, err := b.Account(john.ID, approved.NewAccountID)
	require.NoError(t, err)
	assert.Equal(t, Loan, loanAcct.Type)
	assert.Equal(t, Money(1000000), loanAcct.Balance)

	denied, err := b.RequestLoan(john.ID, from.ID, 5000000, 0, 5000000)
	require.NoError(t, err)
	assert.False(t, denied.Approved)
	assert.Contains(t, denied.Reason, "annual income")

	noFunds, err := b.RequestLoan(john.ID, from.ID, 1000, 99999999, 5000000)
	require.NoError(t, err)
	assert.False(t, noFunds.Approved)
	assert.Contains(t, noFunds.Reason, "down payment")
}

func TestPayBillAndFind(t *testing.T) {
	b := NewBank(fixedClock)
	john := login(t, b, "john", "demo")
	from := b.Accounts(john.ID)[0]

	tx, err := b.PayBill(john.ID, from.ID, Payee{Name: "Gas Co"}, 4321, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, fixedNow, tx.Date)
	assert.Equal(t, "Bill Payment to Gas Co", tx.Description)

	found := b.FindTransactions(john.ID, 4321)
	require.Len(t, found, 1)
	assert.Equal(t, tx.ID, found[0].ID)

	_, err = b.PayBill(john.ID, from.ID, Payee{Name: "Big"}, 99999999, time.Time{})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestProfileUpdate(t *testing.T) {
	b := NewBank(fixedClock)
	john := login(t, b, "john", "demo")

	update := ProfileUpdate{FirstName: "John", LastName: "Smith", Street: "1 Elm", City: "LA", State: "CA", ZipCode: "90001"}
	assert.Equal(t, map[string]string{"phone-error": "Phone is required."}, update.Validate())

	update.Phone = "555-0100"
	require.Empty(t, update.Validate())
	updated, err := b.UpdateProfile(john.ID, update)
	require.NoError(t, err)
	assert.Equal(t, "555-0100", updated.Phone)
	assert.Equal(t, "1 Elm", updated.Street)
}

func TestSessionTokens(t *testing.T) {
	now := fixedNow
	b := NewBank(func() time.Time { return now })

	token, err := b.Login("john", "demo")
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3, "session tokens are JWTs")

	_, ok := b.Session(token + "x")
	assert.False(t, ok, "tampered tokens are rejected")
	_, ok = b.Session("not-a-token")
	assert.False(t, ok)

	other := NewBank(fixedClock)
	_, ok = other.Session(token)
	assert.False(t, ok, "tokens are bound to the bank that signed them")

	b.Logout(token)
	_, ok = b.Session(token)
	assert.False(t, ok, "logout ends the session")

	token, err = b.Login("john", "demo")
	require.NoError(t, err)
	now = now.Add(sessionTTL + time.Minute)
	_, ok = b.Session(token)
	assert.False(t, ok, "expired tokens are rejected")
}
