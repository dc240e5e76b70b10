package domain

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"microfinance/internal/errors"
)

type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionCredit     TransactionType = "credit"
	TransactionSourceDraw TransactionType = "source_draw"
	TransactionTariff     TransactionType = "tariff"
	TransactionRecovery   TransactionType = "recovery"
)

// Transaction is written once per money movement. AccountID is the account
// the operation targets; CounterpartyAccountID is the other side of the
// transfer. Balances are snapshots taken at write time.
type Transaction struct {
	ID                    uuid.UUID       `json:"id"`
	Type                  TransactionType `json:"type"`
	Amount                int64           `json:"amount"`
	Fee                   int64           `json:"fee"`
	AccountID             int64           `json:"account_id"`
	CounterpartyAccountID *int64          `json:"counterparty_account_id,omitempty"`
	UserID                *int64          `json:"user_id,omitempty"`
	LoanID                *int64          `json:"loan_id,omitempty"`
	SourceID              *int64          `json:"source_id,omitempty"`
	AccountBalance        int64           `json:"account_balance"`
	CounterpartyBalance   *int64          `json:"counterparty_balance,omitempty"`
	Period                *string         `json:"period,omitempty"`
	ReversedAt            *time.Time      `json:"reversed_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
}

func (t *Transaction) IsReversed() bool {
	return t.ReversedAt != nil
}

// Leg is a signed balance change on one account.
type Leg struct {
	AccountID int64
	Delta     int64
}

// Legs returns the balance changes the transaction applied, ordered by
// account id. feeAccountID is the system source account that collects
// withdrawal fees.
func (t *Transaction) Legs(feeAccountID int64) ([]Leg, error) {
	deltas := make(map[int64]int64)
	counterparty := func(delta int64) {
		if t.CounterpartyAccountID != nil {
			deltas[*t.CounterpartyAccountID] += delta
		}
	}

	switch t.Type {
	case TransactionDeposit:
		deltas[t.AccountID] += t.Amount
		counterparty(-t.Amount)
	case TransactionWithdrawal:
		deltas[t.AccountID] -= t.Amount + t.Fee
		counterparty(t.Amount)
		if t.Fee > 0 {
			deltas[feeAccountID] += t.Fee
		}
	case TransactionCredit, TransactionSourceDraw:
		deltas[t.AccountID] += t.Amount
		counterparty(-t.Amount)
	case TransactionTariff:
		deltas[t.AccountID] -= t.Amount
		counterparty(t.Amount)
	case TransactionRecovery:
		return nil, errors.ErrTransactionNotReversible.WithDetails("loan recoveries cannot be reversed")
	default:
		return nil, errors.ErrTransactionNotReversible.WithDetailsf("unknown transaction type %q", t.Type)
	}

	legs := make([]Leg, 0, len(deltas))
	for id, delta := range deltas {
		if delta != 0 {
			legs = append(legs, Leg{AccountID: id, Delta: delta})
		}
	}
	sort.Slice(legs, func(i, j int) bool { return legs[i].AccountID < legs[j].AccountID })
	return legs, nil
}

type TransactionRepository interface {
	CreateTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (*Transaction, error)
	MarkReversed(ctx context.Context, id uuid.UUID, at time.Time) error
	// ListAccountTransactions returns rows where the account is either side,
	// newest first.
	ListAccountTransactions(ctx context.Context, accountID int64) ([]*Transaction, error)
	// SumDeposits totals non-reversed deposits into the account in [from, to).
	SumDeposits(ctx context.Context, accountID int64, from, to time.Time) (int64, error)
	TariffCharged(ctx context.Context, accountID int64, period string) (bool, error)
}
