package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"microfinance/internal/domain"
	"microfinance/internal/errors"
)

// lockAccounts locks the given accounts in ascending id order and returns them
// keyed by id. Every balance mutation goes through here so two transactions
// touching the same accounts always acquire their row locks in the same order.
func lockAccounts(ctx context.Context, tx domain.Store, ids ...int64) (map[int64]*domain.Account, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	locked := make(map[int64]*domain.Account, len(sorted))
	for _, id := range sorted {
		if _, ok := locked[id]; ok {
			continue
		}
		acc, err := tx.Accounts().GetAccountForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = acc
	}
	return locked, nil
}

type balanceChange struct {
	account *domain.Account
	before  int64
}

// posting collects the balance changes of one operation and persists them
// together with the Transaction row and one audit entry per account.
type posting struct {
	tx      domain.Store
	action  string
	actorID *int64
	at      time.Time
	// ref links the audit entries to an existing transaction when commit
	// writes no record of its own.
	ref     *uuid.UUID
	changes []balanceChange
}

func newPosting(tx domain.Store, action string, actorID *int64, at time.Time) *posting {
	return &posting{tx: tx, action: action, actorID: actorID, at: at}
}

// apply adds delta to the account in memory. A debit the balance cannot cover
// fails with ErrInsufficientFunds and leaves the account untouched.
func (p *posting) apply(acc *domain.Account, delta int64) error {
	before := acc.Balance
	if err := acc.Apply(delta); err != nil {
		return err
	}
	p.changes = append(p.changes, balanceChange{account: acc, before: before})
	return nil
}

// commit writes record (if any), the new balances and the audit trail.
func (p *posting) commit(ctx context.Context, record *domain.Transaction) error {
	txID := p.ref
	if record != nil {
		if record.CreatedAt.IsZero() {
			record.CreatedAt = p.at
		}
		if err := p.tx.Transactions().CreateTransaction(ctx, record); err != nil {
			return err
		}
		txID = &record.ID
	}

	for _, c := range p.changes {
		if err := p.tx.Accounts().UpdateAccountBalance(ctx, c.account.ID, c.account.Balance); err != nil {
			return err
		}
		before := c.before
		if err := writeAudit(ctx, p.tx, auditRecord{
			entityType:    domain.EntityAccount,
			entityID:      c.account.ID,
			action:        p.action,
			before:        &before,
			after:         c.account.Balance,
			actorID:       p.actorID,
			transactionID: txID,
			at:            p.at,
		}); err != nil {
			return err
		}
	}
	return nil
}

type auditRecord struct {
	entityType    string
	entityID      int64
	action        string
	before        *int64
	after         int64
	actorID       *int64
	transactionID *uuid.UUID
	at            time.Time
}

type balanceSnapshot struct {
	Balance int64 `json:"balance"`
}

func writeAudit(ctx context.Context, tx domain.Store, rec auditRecord) error {
	entry := &domain.AuditEntry{
		EntityType:    rec.entityType,
		EntityID:      rec.entityID,
		Action:        rec.action,
		UserID:        rec.actorID,
		TransactionID: rec.transactionID,
		CreatedAt:     rec.at,
	}

	var err error
	if rec.before != nil {
		if entry.OldValues, err = json.Marshal(balanceSnapshot{Balance: *rec.before}); err != nil {
			return errors.Internal("failed to encode audit values", err)
		}
	}
	if entry.NewValues, err = json.Marshal(balanceSnapshot{Balance: rec.after}); err != nil {
		return errors.Internal("failed to encode audit values", err)
	}
	return tx.Audit().CreateAuditEntry(ctx, entry)
}

func int64Ptr(v int64) *int64 {
	return &v
}
