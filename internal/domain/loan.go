package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"microfinance/internal/errors"
)

type LoanStatus string

const (
	LoanUnpaid     LoanStatus = "unpaid"
	LoanUnfinished LoanStatus = "unfinished"
	LoanPaid       LoanStatus = "paid"
)

// Loan tracks what a customer still owes. Amount is principal plus interest
// and never changes; Balance only decreases.
type Loan struct {
	ID           int64           `json:"id"`
	CustomerID   int64           `json:"customer_id"`
	Principal    int64           `json:"principal"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	Amount       int64           `json:"amount"`
	Balance      int64           `json:"balance"`
	Status       LoanStatus      `json:"status"`
	Date         time.Time       `json:"date"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func NewLoan(customerID, principal int64, rate decimal.Decimal, total int64, date time.Time) *Loan {
	return &Loan{
		CustomerID:   customerID,
		Principal:    principal,
		InterestRate: rate,
		Amount:       total,
		Balance:      total,
		Status:       LoanUnpaid,
		Date:         date,
	}
}

func (l *Loan) IsPaid() bool {
	switch l.Status {
	case LoanPaid:
		return true
	case LoanUnpaid, LoanUnfinished:
		return false
	default:
		return false
	}
}

// Repay lowers the balance and recomputes the status.
func (l *Loan) Repay(amount int64) error {
	if amount <= 0 {
		return errors.ErrInvalidAmount.WithDetails("repayment must be positive")
	}
	if amount > l.Balance {
		return errors.ErrAmountExceedsBalance.WithDetailsf("loan %d has %d left, got %d", l.ID, l.Balance, amount)
	}
	l.Balance -= amount
	if l.Balance == 0 {
		l.Status = LoanPaid
	} else {
		l.Status = LoanUnfinished
	}
	return nil
}

func (l *Loan) CheckDeletable() error {
	if l.Balance != 0 || l.Status != LoanPaid {
		return errors.ErrLoanNotRecovered.WithDetailsf("loan %d has %d left", l.ID, l.Balance)
	}
	return nil
}

type LoanRepository interface {
	CreateLoan(ctx context.Context, loan *Loan) error
	GetLoan(ctx context.Context, id int64) (*Loan, error)
	GetLoanForUpdate(ctx context.Context, id int64) (*Loan, error)
	UpdateLoan(ctx context.Context, loan *Loan) error
	DeleteLoan(ctx context.Context, id int64) error
	ListCustomerLoans(ctx context.Context, customerID int64) ([]*Loan, error)
}
