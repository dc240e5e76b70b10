package domain

import (
	"context"
	"math"
	"time"

	"microfinance/internal/errors"
)

type AccountType string

const (
	AccountTypeCustomer AccountType = "customer"
	AccountTypeUser     AccountType = "user"
	AccountTypeSource   AccountType = "source"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeCustomer, AccountTypeUser, AccountTypeSource:
		return true
	default:
		return false
	}
}

type AccountState string

const (
	AccountOpen   AccountState = "open"
	AccountClosed AccountState = "closed"
)

// Account holds a balance in the smallest currency unit. Exactly one account
// of type source exists system-wide; it has no owner.
type Account struct {
	ID         int64        `json:"id"`
	Name       string       `json:"name"`
	Type       AccountType  `json:"type"`
	Balance    int64        `json:"balance"`
	State      AccountState `json:"state"`
	CustomerID *int64       `json:"customer_id,omitempty"`
	UserID     *int64       `json:"user_id,omitempty"`
	DateOpened time.Time    `json:"date_opened"`
	DateClosed *time.Time   `json:"date_closed,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

func (a *Account) IsOpen() bool {
	switch a.State {
	case AccountOpen:
		return true
	case AccountClosed:
		return false
	default:
		return false
	}
}

// CheckOpen returns ErrAccountClosed for a closed account.
func (a *Account) CheckOpen() error {
	if !a.IsOpen() {
		return errors.ErrAccountClosed.WithDetailsf("account %d", a.ID)
	}
	return nil
}

// CheckType returns ErrWrongAccountType unless the account has type t.
func (a *Account) CheckType(t AccountType) error {
	if a.Type != t {
		return errors.ErrWrongAccountType.WithDetailsf("account %d is of type %s, expected %s", a.ID, a.Type, t)
	}
	return nil
}

// CheckFunds returns ErrInsufficientFunds when amount exceeds the balance.
func (a *Account) CheckFunds(amount int64) error {
	if amount > a.Balance {
		return errors.ErrInsufficientFunds.WithDetailsf("account %d has %d, needs %d", a.ID, a.Balance, amount)
	}
	return nil
}

func (a *Account) Credit(amount int64) {
	a.Balance += amount
}

// Debit removes amount from the balance. The balance never goes below zero.
func (a *Account) Debit(amount int64) error {
	if err := a.CheckFunds(amount); err != nil {
		return err
	}
	a.Balance -= amount
	return nil
}

// Apply adds a signed delta, refusing to drive the balance negative or past
// the int64 range.
func (a *Account) Apply(delta int64) error {
	if delta < 0 {
		if delta == math.MinInt64 {
			return errors.ErrAmountOutOfRange.WithDetailsf("account %d", a.ID)
		}
		return a.Debit(-delta)
	}
	if delta > math.MaxInt64-a.Balance {
		return errors.ErrAmountOutOfRange.WithDetailsf("balance of account %d would overflow", a.ID)
	}
	a.Credit(delta)
	return nil
}

// Close moves the account to the closed state. The source account can never
// be closed.
func (a *Account) Close(on time.Time) error {
	if a.Type == AccountTypeSource {
		return errors.ErrSourceAccountProtected
	}
	if err := a.CheckOpen(); err != nil {
		return err
	}
	a.State = AccountClosed
	a.DateClosed = &on
	return nil
}

func (a *Account) OwnedByCustomer(customerID int64) bool {
	return a.CustomerID != nil && *a.CustomerID == customerID
}

type AccountRepository interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id int64) (*Account, error)
	GetAccountForUpdate(ctx context.Context, id int64) (*Account, error)
	// GetSourceAccount returns the single system source account.
	GetSourceAccount(ctx context.Context) (*Account, error)
	// GetUserAccount returns the account owned by a staff user.
	GetUserAccount(ctx context.Context, userID int64) (*Account, error)
	ListCustomerAccounts(ctx context.Context, customerID int64) ([]*Account, error)
	ListOpenCustomerAccountIDs(ctx context.Context) ([]int64, error)
	UpdateAccountBalance(ctx context.Context, id int64, balance int64) error
	UpdateAccountState(ctx context.Context, account *Account) error
	SumCustomerBalances(ctx context.Context) (Aggregate, error)
}
