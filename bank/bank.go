// Package bank implements the toy ledger that backs the RPC runtime's
// transaction processor contract (spec §4.2, component C2).
//
// Everything here runs single-threaded inside the server dispatcher (spec
// §5) — no mutex guards the account map, exactly like the reference
// implementation's unordered_map<int32_t, Account> in a single-threaded
// select loop.
package bank

import (
	"bankrpc/protocol"
)

// account is the ledger's private record. Callers only see the values the
// Processor methods return.
type account struct {
	accountNo int32
	name      string
	password  string
	currency  protocol.Currency
	balance   float64
	closed    bool
}

func authMatch(a *account, name, password string) bool {
	return a.name == name && a.password == password
}

// Processor is the operation surface the dispatcher consumes. An
// implementer may substitute any processor with this same surface — the
// dispatcher never reaches into ledger internals.
type Processor interface {
	Open(name, password string, currency protocol.Currency, initial float64) (accountNo int32, balance float64, status protocol.Status)
	Close(name string, accountNo int32, password string) (confirmation string, status protocol.Status)
	Deposit(name string, accountNo int32, password string, currency protocol.Currency, amount float64) (balance float64, status protocol.Status)
	Withdraw(name string, accountNo int32, password string, currency protocol.Currency, amount float64) (balance float64, status protocol.Status)
	Transfer(name string, fromAcc int32, password string, toAcc int32, currency protocol.Currency, amount float64) (fromBalance, toBalance float64, status protocol.Status)
	QueryBalance(name string, accountNo int32, password string) (currency protocol.Currency, balance float64, status protocol.Status)

	// AccountSnapshot exposes read-only account state for callback
	// composition (e.g. CLOSE's post-close currency/balance) without
	// leaking the ledger's internal account type.
	AccountSnapshot(accountNo int32) (currency protocol.Currency, balance float64, ok bool)
}

// InMemoryBank is the reference Processor: a process-local ledger with a
// strictly increasing account number allocator starting at 10001, grounded
// on original_source's z_server_cpp Bank (the fuller variant with CLOSE,
// DEPOSIT, WITHDRAW, and TRANSFER — the base server_cpp Bank only had OPEN
// and QUERY_BALANCE).
type InMemoryBank struct {
	nextAccountNo int32
	accounts      map[int32]*account
}

// NewInMemoryBank returns an empty ledger; the first OPEN allocates 10001.
func NewInMemoryBank() *InMemoryBank {
	return &InMemoryBank{
		nextAccountNo: 10001,
		accounts:      make(map[int32]*account),
	}
}

func (b *InMemoryBank) Open(name, password string, currency protocol.Currency, initial float64) (int32, float64, protocol.Status) {
	if len(password) == 0 || len(password) > protocol.PasswordFieldLen {
		return 0, 0, protocol.StatusErrPasswordFormat
	}

	a := &account{
		accountNo: b.nextAccountNo,
		name:      name,
		password:  password,
		currency:  currency,
		balance:   initial,
	}
	b.accounts[a.accountNo] = a
	b.nextAccountNo++

	return a.accountNo, a.balance, protocol.StatusOK
}

func (b *InMemoryBank) Close(name string, accountNo int32, password string) (string, protocol.Status) {
	a, ok := b.accounts[accountNo]
	if !ok || a.closed {
		return "", protocol.StatusErrNotFound
	}
	if !authMatch(a, name, password) {
		return "", protocol.StatusErrAuth
	}
	a.closed = true
	return "account closed", protocol.StatusOK
}

func (b *InMemoryBank) Deposit(name string, accountNo int32, password string, currency protocol.Currency, amount float64) (float64, protocol.Status) {
	a, ok := b.accounts[accountNo]
	if !ok || a.closed {
		return 0, protocol.StatusErrNotFound
	}
	if !authMatch(a, name, password) {
		return 0, protocol.StatusErrAuth
	}
	if a.currency != currency {
		return 0, protocol.StatusErrCurrency
	}
	if amount <= 0 {
		return 0, protocol.StatusErrBadRequest
	}
	a.balance += amount
	return a.balance, protocol.StatusOK
}

func (b *InMemoryBank) Withdraw(name string, accountNo int32, password string, currency protocol.Currency, amount float64) (float64, protocol.Status) {
	a, ok := b.accounts[accountNo]
	if !ok || a.closed {
		return 0, protocol.StatusErrNotFound
	}
	if !authMatch(a, name, password) {
		return 0, protocol.StatusErrAuth
	}
	if a.currency != currency {
		return 0, protocol.StatusErrCurrency
	}
	if amount <= 0 {
		return 0, protocol.StatusErrBadRequest
	}
	if a.balance < amount {
		return 0, protocol.StatusErrInsufficientFunds
	}
	a.balance -= amount
	return a.balance, protocol.StatusOK
}

func (b *InMemoryBank) Transfer(name string, fromAcc int32, password string, toAcc int32, currency protocol.Currency, amount float64) (float64, float64, protocol.Status) {
	if fromAcc == toAcc {
		return 0, 0, protocol.StatusErrBadRequest
	}
	from, ok := b.accounts[fromAcc]
	if !ok || from.closed {
		return 0, 0, protocol.StatusErrNotFound
	}
	to, ok := b.accounts[toAcc]
	if !ok || to.closed {
		return 0, 0, protocol.StatusErrNotFound
	}
	if !authMatch(from, name, password) {
		return 0, 0, protocol.StatusErrAuth
	}
	if from.currency != currency || to.currency != currency {
		return 0, 0, protocol.StatusErrCurrency
	}
	if amount <= 0 {
		return 0, 0, protocol.StatusErrBadRequest
	}
	if from.balance < amount {
		return 0, 0, protocol.StatusErrInsufficientFunds
	}

	from.balance -= amount
	to.balance += amount
	return from.balance, to.balance, protocol.StatusOK
}

func (b *InMemoryBank) QueryBalance(name string, accountNo int32, password string) (protocol.Currency, float64, protocol.Status) {
	a, ok := b.accounts[accountNo]
	if !ok || a.closed {
		return 0, 0, protocol.StatusErrNotFound
	}
	if !authMatch(a, name, password) {
		return 0, 0, protocol.StatusErrAuth
	}
	return a.currency, a.balance, protocol.StatusOK
}

func (b *InMemoryBank) AccountSnapshot(accountNo int32) (protocol.Currency, float64, bool) {
	a, ok := b.accounts[accountNo]
	if !ok {
		return 0, 0, false
	}
	return a.currency, a.balance, true
}

var _ Processor = (*InMemoryBank)(nil)
