// internal/demobank/templates.go
package demobank

import "html/template"

// formRow describes one labelled input of a generated form.
type formRow struct {
	Name    string
	Label   string
	Type    string
	ErrorID string
}

// pageData is the model handed to every template.
type pageData struct {
	Title    string
	Customer *Customer
	Error    string
	Errors   map[string]string
	Form     map[string]string
	Accounts []Account
	Data     interface{}
}

var templateFuncs = template.FuncMap{
	"field": func(d pageData, name string) string { return d.Form[name] },
	"fieldError": func(d pageData, name string) string {
		return d.Errors[name]
	},
}

// The markup follows the ParaBank page structure so selectors written for the
// real site (#leftPanel, #rightPanel, customer.* names) work unchanged.
const layoutTemplates = `
{{define "top"}}<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>ParaBank | {{.Title}}</title></head>
<body>
<div id="mainPanel">
<div id="topPanel"><a href="index.htm"><img class="logo" alt="ParaBank" src="data:,"></a><p class="caption">Experience the difference</p></div>
<div id="headerPanel"><ul class="leftmenu"><li><a href="about.htm">About Us</a></li><li><a href="services.htm">Services</a></li></ul></div>
<div id="bodyPanel">
<div id="leftPanel">
{{- if .Customer}}
<p class="smallText"><b>Welcome</b> {{.Customer.FullName}}</p>
<h2>Account Services</h2>
<ul>
<li><a href="openaccount.htm">Open New Account</a></li>
<li><a href="overview.htm">Accounts Overview</a></li>
<li><a href="transfer.htm">Transfer Funds</a></li>
<li><a href="billpay.htm">Bill Pay</a></li>
<li><a href="findtrans.htm">Find Transactions</a></li>
<li><a href="updateprofile.htm">Update Contact Info</a></li>
<li><a href="requestloan.htm">Request Loan</a></li>
<li><a href="logout.htm">Log Out</a></li>
</ul>
{{- else}}
<h2>Customer Login</h2>
<form name="login" action="login.htm" method="post">
<p>Username</p>
<div class="login"><input type="text" class="input" name="username"></div>
<p>Password</p>
<div class="login"><input type="password" class="input" name="password"></div>
<div class="login"><input type="submit" class="button" value="Log In"></div>
</form>
<p><a href="register.htm">Register</a></p>
{{- end}}
</div>
<div id="rightPanel">
{{end}}

{{define "bottom"}}
</div>
</div>
</div>
<div id="footerPanel"><p class="copyright">&copy; Parasoft. All rights reserved.</p></div>
</body>
</html>
{{end}}

{{define "accountOptions"}}{{range .}}<option value="{{.ID}}">{{.ID}}</option>{{end}}{{end}}
`

const pageTemplates = `
{{define "index"}}{{template "top" .}}
<h1 class="title">Welcome to ParaBank</h1>
<p>ATM Services, Online Services and more.</p>
{{template "bottom" .}}{{end}}

{{define "error"}}{{template "top" .}}
<h1 class="title">Error!</h1>
<p class="error">{{.Error}}</p>
{{template "bottom" .}}{{end}}

{{define "register"}}{{template "top" .}}
<h1 class="title">Cadastro</h1>
<form id="registerForm" action="register.htm" method="post">
<table class="form">
{{- range .Data}}
<tr>
<td align="right"><label for="{{.Name}}">{{.Label}}:</label></td>
<td><input id="{{.Name}}" name="{{.Name}}" class="input" type="{{.Type}}" value="{{field $ .Name}}"></td>
<td>{{$row := .}}{{with fieldError $ .ErrorID}}<span class="error" id="{{$row.ErrorID}}">{{.}}</span>{{end}}</td>
</tr>
{{- end}}
<tr><td></td><td><button type="submit" class="button">Cadastrar</button></td></tr>
</table>
</form>
{{template "bottom" .}}{{end}}

{{define "registered"}}{{template "top" .}}
<h1 class="title">Cadastro realizado com sucesso</h1>
<p>Bem-vindo, {{.Data.FullName}}. Use seu e-mail e senha para entrar.</p>
{{template "bottom" .}}{{end}}

{{define "overview"}}{{template "top" .}}
<div id="showOverview">
<h1 class="title">Accounts Overview</h1>
<table id="accountTable" class="gradient-style">
<thead><tr><th>Account</th><th>Balance*</th><th>Available Amount</th></tr></thead>
<tbody>
{{- range .Accounts}}
<tr><td><a href="activity.htm?id={{.ID}}">{{.ID}}</a></td><td class="balance" id="balance-{{.ID}}">{{.Balance}}</td><td>{{.Balance}}</td></tr>
{{- end}}
<tr><td align="right"><b>Total</b></td><td><b id="totalBalance">{{.Data}}</b></td><td></td></tr>
</tbody>
</table>
<p class="smallText">*Balance includes deposits that may be subject to holds</p>
</div>
{{template "bottom" .}}{{end}}

{{define "activity"}}{{template "top" .}}
<div id="accountDetails">
<h1 class="title">Account Details</h1>
<table>
<tr><td align="right">Account Number:</td><td id="accountId">{{.Data.Account.ID}}</td></tr>
<tr><td align="right">Account Type:</td><td id="accountType">{{.Data.Account.Type}}</td></tr>
<tr><td align="right">Balance:</td><td id="balance">{{.Data.Account.Balance}}</td></tr>
<tr><td align="right">Available:</td><td id="availableBalance">{{.Data.Account.Balance}}</td></tr>
</table>
</div>
<div id="accountActivity">
<h1 class="title">Account Activity</h1>
<table id="transactionTable" class="gradient-style">
<thead><tr><th>Date</th><th>Transaction</th><th>Debit (-)</th><th>Credit (+)</th></tr></thead>
<tbody>
{{- range .Data.Transactions}}
<tr><td class="date">{{.Date.Format "01-02-2006"}}</td><td class="description">{{.Description}}</td><td>{{if .Debit}}{{.Debit}}{{end}}</td><td>{{if .Credit}}{{.Credit}}{{end}}</td></tr>
{{- end}}
</tbody>
</table>
{{if not .Data.Transactions}}<p id="noTransactions"><b>No transactions found.</b></p>{{end}}
</div>
{{template "bottom" .}}{{end}}

{{define "openaccount"}}{{template "top" .}}
<div id="openAccountForm">
<h1 class="title">Open New Account</h1>
{{with .Error}}<p class="error" id="openAccountError">{{.}}</p>{{end}}
<form action="openaccount.htm" method="post">
<p><b>What type of Account would you like to open?</b></p>
<select id="type" name="type" class="input"><option value="CHECKING">CHECKING</option><option value="SAVINGS">SAVINGS</option></select>
<p><b>A minimum of $100.00 must be deposited into this account at time of opening. Please choose an existing account to transfer funds into the new account.</b></p>
<select id="fromAccountId" name="fromAccountId" class="input">{{template "accountOptions" .Accounts}}</select>
<div><input type="submit" class="button" value="Open New Account"></div>
</form>
</div>
{{template "bottom" .}}{{end}}

{{define "accountOpened"}}{{template "top" .}}
<div id="openAccountResult">
<h1 class="title">Account Opened!</h1>
<p>Congratulations, your account is now open.</p>
<p><b>Your new account number:</b> <a id="newAccountId" href="activity.htm?id={{.Data.ID}}">{{.Data.ID}}</a></p>
</div>
{{template "bottom" .}}{{end}}

{{define "transfer"}}{{template "top" .}}
<div id="showForm">
<h1 class="title">Transfer Funds</h1>
{{with .Error}}<p class="error" id="transferError">{{.}}</p>{{end}}
<form id="transferForm" action="transfer.htm" method="post">
<p><b>Amount:</b> $<input id="amount" name="amount" class="input" type="text" value="{{field . "amount"}}">
{{with fieldError . "amount"}}<span class="error" id="amount-error">{{.}}</span>{{end}}</p>
<div>From account #<select id="fromAccountId" name="fromAccountId" class="input">{{template "accountOptions" .Accounts}}</select>
to account #<select id="toAccountId" name="toAccountId" class="input">{{template "accountOptions" .Accounts}}</select></div>
<div><input type="submit" class="button" value="Transfer"></div>
</form>
</div>
{{template "bottom" .}}{{end}}

{{define "transferred"}}{{template "top" .}}
<div id="showResult">
<h1 class="title">Transfer Complete!</h1>
<p><span id="amountResult">{{.Data.Amount}}</span> has been transferred from account #<span id="fromAccountIdResult">{{.Data.From}}</span> to account #<span id="toAccountIdResult">{{.Data.To}}</span>.</p>
<p>See Account Activity for more details.</p>
</div>
{{template "bottom" .}}{{end}}

{{define "billpay"}}{{template "top" .}}
<div id="billpayForm">
<h1 class="title">Bill Payment Service</h1>
<p>Enter payee information</p>
{{with .Error}}<p class="error" id="billpayError">{{.}}</p>{{end}}
<form action="billpay.htm" method="post">
<table class="form2">
{{- range .Data}}
<tr><td align="right"><b>{{.Label}}:</b></td><td><input class="input" name="{{.Name}}" type="{{.Type}}" value="{{field $ .Name}}"></td>
<td>{{$row := .}}{{with fieldError $ .ErrorID}}<span class="error" id="{{$row.ErrorID}}">{{.}}</span>{{end}}</td></tr>
{{- end}}
<tr><td align="right"><b>From account #:</b></td><td><select name="fromAccountId" class="input">{{template "accountOptions" .Accounts}}</select></td><td></td></tr>
<tr><td></td><td><input type="submit" class="button" value="Send Payment"></td><td></td></tr>
</table>
</form>
</div>
{{template "bottom" .}}{{end}}

{{define "billpaid"}}{{template "top" .}}
<div id="billpayResult">
<h1 class="title">Bill Payment Complete</h1>
<p>Bill Payment to <span id="payeeName">{{.Data.Payee}}</span> in the amount of <span id="amount">{{.Data.Amount}}</span> from account <span id="fromAccountId">{{.Data.From}}</span> was successful.</p>
{{if .Data.Scheduled}}<p id="scheduled">Scheduled for <span id="paymentDate">{{.Data.Date.Format "01-02-2006"}}</span></p>{{end}}
<p>See Account Activity for more details.</p>
</div>
{{template "bottom" .}}{{end}}

{{define "findtrans"}}{{template "top" .}}
<div id="formContainer">
<h1 class="title">Find Transactions</h1>
{{with .Error}}<p class="error" id="findTransError">{{.}}</p>{{end}}
<form action="findtrans.htm" method="post">
<p>Find by Amount: <input id="amount" name="amount" class="input" type="text" value="{{field . "amount"}}"></p>
<div><input type="submit" class="button" value="Find Transactions"></div>
</form>
</div>
{{if .Data}}
<div id="resultContainer">
<h1 class="title">Transaction Results</h1>
<table id="transactionTable">
<tbody>
{{- range .Data}}
<tr><td class="date">{{.Date.Format "01-02-2006"}}</td><td class="description">{{.Description}}</td><td>{{if .Debit}}{{.Debit}}{{end}}</td><td>{{if .Credit}}{{.Credit}}{{end}}</td></tr>
{{- end}}
</tbody>
</table>
</div>
{{end}}
{{template "bottom" .}}{{end}}

{{define "requestloan"}}{{template "top" .}}
<div id="requestLoanForm">
<h1 class="title">Apply for a Loan</h1>
{{with .Error}}<p class="error" id="requestLoanError">{{.}}</p>{{end}}
<form action="requestloan.htm" method="post">
<table class="form2">
<tr><td align="right"><b>Loan Amount:</b></td><td>$<input id="amount" name="amount" class="input" type="text" value="{{field . "amount"}}"></td></tr>
<tr><td align="right"><b>Down Payment:</b></td><td>$<input id="downPayment" name="downPayment" class="input" type="text" value="{{field . "downPayment"}}"></td></tr>
<tr><td align="right"><b>Annual Income:</b></td><td>$<input id="annualIncome" name="annualIncome" class="input" type="text" value="{{field . "annualIncome"}}"></td></tr>
<tr><td align="right"><b>From account #:</b></td><td><select id="fromAccountId" name="fromAccountId" class="input">{{template "accountOptions" .Accounts}}</select></td></tr>
<tr><td></td><td><input type="submit" class="button" value="Apply Now"></td></tr>
</table>
</form>
</div>
{{template "bottom" .}}{{end}}

{{define "loanResult"}}{{template "top" .}}
<div id="requestLoanResult">
<h1 class="title">Loan Request Processed</h1>
<table>
<tr><td align="right"><b>Loan Provider:</b></td><td id="loanProviderName">Wealth Securities Dynamic Loans (WSDL)</td></tr>
<tr><td align="right"><b>Status:</b></td><td id="loanStatus">{{if .Data.Approved}}Approved{{else}}Denied{{end}}</td></tr>
</table>
{{if .Data.Approved}}
<div id="loanRequestApproved"><p>Congratulations, your loan has been approved.</p>
<p><b>Your new account number:</b> <a id="newAccountId" href="activity.htm?id={{.Data.NewAccountID}}">{{.Data.NewAccountID}}</a></p></div>
{{else}}
<div id="loanRequestDenied"><p class="error">{{.Data.Reason}}</p></div>
{{end}}
</div>
{{template "bottom" .}}{{end}}

{{define "updateprofile"}}{{template "top" .}}
<div id="updateProfileForm">
<h1 class="title">Update Profile</h1>
<form action="updateprofile.htm" method="post">
<table class="form2">
<tbody>
{{- range .Data}}
<tr><td align="right">{{.Label}}:</td><td><input id="{{.Name}}" name="{{.Name}}" class="input" type="{{.Type}}" value="{{field $ .Name}}"></td>
<td>{{$row := .}}{{with fieldError $ .ErrorID}}<span class="error" id="{{$row.ErrorID}}">{{.}}</span>{{end}}</td></tr>
{{- end}}
<tr><td></td><td><input type="submit" class="button" value="Update Profile"></td><td></td></tr>
</tbody>
</table>
</form>
</div>
{{template "bottom" .}}{{end}}

{{define "profileUpdated"}}{{template "top" .}}
<div id="updateProfileResult">
<h1 class="title">Profile Updated</h1>
<p>Your updated address and phone number have been added to the system.</p>
</div>
{{template "bottom" .}}{{end}}
`

func parseTemplates() *template.Template {
	t := template.New("demobank").Funcs(templateFuncs)
	template.Must(t.Parse(layoutTemplates))
	return template.Must(t.Parse(pageTemplates))
}
