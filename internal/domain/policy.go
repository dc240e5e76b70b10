package domain

import (
	"fmt"

	"github.com/shopspring/decimal"

	"microfinance/internal/errors"
)

// Policy carries the tunable ledger settings. Services receive it at
// construction time and never read settings from anywhere else.
type Policy struct {
	MinimumDeposit int64
	// MaximumDeposit of 0 disables the upper bound.
	MaximumDeposit int64
	// MaximumTransfer caps every other amount a caller submits: withdrawals,
	// collector credits, source draws, source funding and loan recoveries.
	MaximumTransfer int64
	MinimumLoan     int64
	MaximumLoan     int64
	MinInterest     decimal.Decimal
	MaxInterest     decimal.Decimal
	// InterestRateDivisor scales the submitted rate: a rate of 0.5 with the
	// default divisor of 100 adds 0.5% interest.
	InterestRateDivisor decimal.Decimal
	Tariffs             TariffTable
}

func DefaultPolicy() Policy {
	return Policy{
		MinimumDeposit:      500,
		MaximumDeposit:      1_000_000,
		MaximumTransfer:     100_000_000,
		MinimumLoan:         500,
		MaximumLoan:         1_000_000,
		MinInterest:         decimal.Zero,
		MaxInterest:         decimal.RequireFromString("0.9"),
		InterestRateDivisor: decimal.NewFromInt(100),
		Tariffs:             DefaultTariffTable(),
	}
}

func (p Policy) Validate() error {
	if p.MinimumDeposit < 1 {
		return fmt.Errorf("minimum deposit must be positive, got %d", p.MinimumDeposit)
	}
	if p.MaximumDeposit != 0 && p.MaximumDeposit < p.MinimumDeposit {
		return fmt.Errorf("maximum deposit %d is below minimum %d", p.MaximumDeposit, p.MinimumDeposit)
	}
	if p.MaximumTransfer < 1 {
		return fmt.Errorf("maximum transfer must be positive, got %d", p.MaximumTransfer)
	}
	if p.MinimumLoan < 1 || p.MaximumLoan < p.MinimumLoan {
		return fmt.Errorf("invalid loan bounds [%d, %d]", p.MinimumLoan, p.MaximumLoan)
	}
	if p.MinInterest.IsNegative() || p.MaxInterest.LessThan(p.MinInterest) {
		return fmt.Errorf("invalid interest bounds [%s, %s]", p.MinInterest, p.MaxInterest)
	}
	if !p.InterestRateDivisor.IsPositive() {
		return fmt.Errorf("interest rate divisor must be positive, got %s", p.InterestRateDivisor)
	}
	return p.Tariffs.Validate()
}

func (p Policy) CheckDeposit(amount int64) error {
	if amount < p.MinimumDeposit {
		return errors.ErrInvalidAmount.WithDetailsf("amount %d is below the minimum deposit of %d", amount, p.MinimumDeposit)
	}
	if p.MaximumDeposit > 0 && amount > p.MaximumDeposit {
		return errors.ErrInvalidAmount.WithDetailsf("amount %d exceeds the maximum deposit of %d", amount, p.MaximumDeposit)
	}
	return nil
}

// CheckTransfer validates a submitted amount that is not a deposit.
func (p Policy) CheckTransfer(amount int64) error {
	if amount <= 0 {
		return errors.ErrInvalidAmount.WithDetailsf("amount must be positive, got %d", amount)
	}
	if amount > p.MaximumTransfer {
		return errors.ErrAmountOutOfRange.WithDetailsf("amount %d exceeds the maximum of %d", amount, p.MaximumTransfer)
	}
	return nil
}

func (p Policy) CheckLoanPrincipal(principal int64) error {
	if principal < p.MinimumLoan || principal > p.MaximumLoan {
		return errors.ErrAmountOutOfRange.WithDetailsf("principal must be between %d and %d", p.MinimumLoan, p.MaximumLoan)
	}
	return nil
}

func (p Policy) CheckInterestRate(rate decimal.Decimal) error {
	if rate.LessThan(p.MinInterest) || rate.GreaterThan(p.MaxInterest) {
		return errors.ErrInvalidInterestRate.WithDetailsf("rate must be between %s and %s", p.MinInterest, p.MaxInterest)
	}
	return nil
}

// LoanTotal returns principal plus interest, rounded to the smallest unit.
func (p Policy) LoanTotal(principal int64, rate decimal.Decimal) int64 {
	interest := decimal.NewFromInt(principal).
		Mul(rate).
		Div(p.InterestRateDivisor).
		Round(0)
	return principal + interest.IntPart()
}
