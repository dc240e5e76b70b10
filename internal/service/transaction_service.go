package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"microfinance/internal/clock"
	"microfinance/internal/domain"
	"microfinance/internal/errors"
)

// TransactionService moves money between accounts. Each operation validates on
// plain reads first so callers get errors in a stable order, then locks every
// participating row in ascending id order and validates again before writing.
type TransactionService struct {
	store  domain.Store
	clock  clock.Clock
	policy domain.Policy
	logger *slog.Logger
}

func NewTransactionService(store domain.Store, clk clock.Clock, policy domain.Policy, logger *slog.Logger) *TransactionService {
	return &TransactionService{
		store:  store,
		clock:  clk,
		policy: policy,
		logger: logger,
	}
}

type DepositRequest struct {
	AccountID int64
	Amount    int64
	ActorID   int64
}

type WithdrawRequest struct {
	AccountID int64
	Amount    int64
	ActorID   int64
}

type CreditCollectorRequest struct {
	CollectorID int64
	Amount      int64
	ActorID     int64
}

type DrawRequest struct {
	SourceID int64
	Amount   int64
	ActorID  int64
}

// Deposit moves amount from the acting user's account into a customer account.
func (s *TransactionService) Deposit(ctx context.Context, req DepositRequest) (*domain.Transaction, error) {
	s.logger.Info("Processing deposit", "account_id", req.AccountID, "amount", req.Amount, "actor_id", req.ActorID)

	if err := s.policy.CheckDeposit(req.Amount); err != nil {
		return nil, err
	}

	validate := func(target, actor *domain.Account) error {
		if err := target.CheckOpen(); err != nil {
			return err
		}
		if err := target.CheckType(domain.AccountTypeCustomer); err != nil {
			return err
		}
		if err := actor.CheckOpen(); err != nil {
			return err
		}
		return actor.CheckFunds(req.Amount)
	}

	var record *domain.Transaction
	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		target, err := tx.Accounts().GetAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}
		actor, err := tx.Accounts().GetUserAccount(ctx, req.ActorID)
		if err != nil {
			return err
		}
		if err := validate(target, actor); err != nil {
			return err
		}

		locked, err := lockAccounts(ctx, tx, target.ID, actor.ID)
		if err != nil {
			return err
		}
		target, actor = locked[target.ID], locked[actor.ID]
		if err := validate(target, actor); err != nil {
			return err
		}

		p := newPosting(tx, string(domain.TransactionDeposit), &req.ActorID, s.clock.Now())
		if err := p.apply(actor, -req.Amount); err != nil {
			return err
		}
		if err := p.apply(target, req.Amount); err != nil {
			return err
		}

		record = &domain.Transaction{
			Type:                  domain.TransactionDeposit,
			Amount:                req.Amount,
			AccountID:             target.ID,
			CounterpartyAccountID: &actor.ID,
			UserID:                &req.ActorID,
			AccountBalance:        target.Balance,
			CounterpartyBalance:   int64Ptr(actor.Balance),
		}
		return p.commit(ctx, record)
	})
	if err != nil {
		s.logger.Warn("Deposit failed", "account_id", req.AccountID, "error", err)
		return nil, err
	}

	s.logger.Info("Deposit completed", "transaction_id", record.ID, "balance", record.AccountBalance)
	return record, nil
}

// Withdraw pays amount out of a customer account into the acting user's
// account. The tariff fee for the current balance goes to the source account.
func (s *TransactionService) Withdraw(ctx context.Context, req WithdrawRequest) (*domain.Transaction, error) {
	s.logger.Info("Processing withdrawal", "account_id", req.AccountID, "amount", req.Amount, "actor_id", req.ActorID)

	if err := s.policy.CheckTransfer(req.Amount); err != nil {
		return nil, err
	}

	validate := func(customer, actor *domain.Account) (int64, error) {
		if err := customer.CheckOpen(); err != nil {
			return 0, err
		}
		if err := customer.CheckType(domain.AccountTypeCustomer); err != nil {
			return 0, err
		}
		if err := actor.CheckOpen(); err != nil {
			return 0, err
		}
		fee := s.policy.Tariffs.Fee(customer.Balance)
		if err := customer.CheckFunds(req.Amount + fee); err != nil {
			return 0, err
		}
		return fee, nil
	}

	var record *domain.Transaction
	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		customer, err := tx.Accounts().GetAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}
		actor, err := tx.Accounts().GetUserAccount(ctx, req.ActorID)
		if err != nil {
			return err
		}
		if _, err := validate(customer, actor); err != nil {
			return err
		}
		source, err := tx.Accounts().GetSourceAccount(ctx)
		if err != nil {
			return err
		}

		locked, err := lockAccounts(ctx, tx, customer.ID, actor.ID, source.ID)
		if err != nil {
			return err
		}
		customer, actor, source = locked[customer.ID], locked[actor.ID], locked[source.ID]
		fee, err := validate(customer, actor)
		if err != nil {
			return err
		}

		p := newPosting(tx, string(domain.TransactionWithdrawal), &req.ActorID, s.clock.Now())
		if err := p.apply(customer, -(req.Amount + fee)); err != nil {
			return err
		}
		if err := p.apply(actor, req.Amount); err != nil {
			return err
		}
		if fee > 0 {
			if err := p.apply(source, fee); err != nil {
				return err
			}
		}

		record = &domain.Transaction{
			Type:                  domain.TransactionWithdrawal,
			Amount:                req.Amount,
			Fee:                   fee,
			AccountID:             customer.ID,
			CounterpartyAccountID: &actor.ID,
			UserID:                &req.ActorID,
			AccountBalance:        customer.Balance,
			CounterpartyBalance:   int64Ptr(actor.Balance),
		}
		return p.commit(ctx, record)
	})
	if err != nil {
		s.logger.Warn("Withdrawal failed", "account_id", req.AccountID, "error", err)
		return nil, err
	}

	s.logger.Info("Withdrawal completed", "transaction_id", record.ID, "fee", record.Fee)
	return record, nil
}

// CreditCollector moves amount from the acting manager's account to a
// collector's account. The manager's funds are checked before the collector
// is looked up.
func (s *TransactionService) CreditCollector(ctx context.Context, req CreditCollectorRequest) (*domain.Transaction, error) {
	s.logger.Info("Crediting collector", "collector_id", req.CollectorID, "amount", req.Amount, "actor_id", req.ActorID)

	if err := s.policy.CheckTransfer(req.Amount); err != nil {
		return nil, err
	}

	var record *domain.Transaction
	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		manager, err := tx.Accounts().GetUserAccount(ctx, req.ActorID)
		if err != nil {
			return err
		}
		if err := manager.CheckOpen(); err != nil {
			return err
		}
		if err := manager.CheckFunds(req.Amount); err != nil {
			return err
		}

		collector, err := tx.Users().GetUser(ctx, req.CollectorID)
		if err != nil {
			return err
		}
		if err := collector.CheckActive(); err != nil {
			return err
		}
		if err := collector.CheckRole(domain.RoleCollector); err != nil {
			return err
		}
		target, err := tx.Accounts().GetUserAccount(ctx, collector.ID)
		if err != nil {
			return err
		}
		if err := target.CheckOpen(); err != nil {
			return err
		}
		if target.ID == manager.ID {
			return errors.ErrInvalidInput.WithDetails("cannot credit your own account")
		}

		locked, err := lockAccounts(ctx, tx, manager.ID, target.ID)
		if err != nil {
			return err
		}
		manager, target = locked[manager.ID], locked[target.ID]
		if err := manager.CheckOpen(); err != nil {
			return err
		}
		if err := target.CheckOpen(); err != nil {
			return err
		}

		p := newPosting(tx, string(domain.TransactionCredit), &req.ActorID, s.clock.Now())
		if err := p.apply(manager, -req.Amount); err != nil {
			return err
		}
		if err := p.apply(target, req.Amount); err != nil {
			return err
		}

		record = &domain.Transaction{
			Type:                  domain.TransactionCredit,
			Amount:                req.Amount,
			AccountID:             target.ID,
			CounterpartyAccountID: &manager.ID,
			UserID:                &req.ActorID,
			AccountBalance:        target.Balance,
			CounterpartyBalance:   int64Ptr(manager.Balance),
		}
		return p.commit(ctx, record)
	})
	if err != nil {
		s.logger.Warn("Collector credit failed", "collector_id", req.CollectorID, "error", err)
		return nil, err
	}

	s.logger.Info("Collector credited", "transaction_id", record.ID)
	return record, nil
}

// DrawFromSource credits the acting user's account from a source row. The
// source row and the system source account are debited together.
func (s *TransactionService) DrawFromSource(ctx context.Context, req DrawRequest) (*domain.Transaction, error) {
	s.logger.Info("Drawing from source", "source_id", req.SourceID, "amount", req.Amount, "actor_id", req.ActorID)

	if err := s.policy.CheckTransfer(req.Amount); err != nil {
		return nil, err
	}

	var record *domain.Transaction
	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		src, err := tx.Sources().GetSource(ctx, req.SourceID)
		if err != nil {
			return err
		}
		actor, err := tx.Accounts().GetUserAccount(ctx, req.ActorID)
		if err != nil {
			return err
		}
		if err := actor.CheckOpen(); err != nil {
			return err
		}
		if req.Amount > src.Balance {
			return errors.ErrInsufficientFunds.WithDetailsf("source %d has %d, needs %d", src.ID, src.Balance, req.Amount)
		}
		sourceAccount, err := tx.Accounts().GetSourceAccount(ctx)
		if err != nil {
			return err
		}

		src, err = tx.Sources().GetSourceForUpdate(ctx, req.SourceID)
		if err != nil {
			return err
		}
		locked, err := lockAccounts(ctx, tx, actor.ID, sourceAccount.ID)
		if err != nil {
			return err
		}
		actor, sourceAccount = locked[actor.ID], locked[sourceAccount.ID]
		if err := actor.CheckOpen(); err != nil {
			return err
		}

		before := src.Balance
		if err := src.Draw(req.Amount); err != nil {
			return err
		}
		if err := tx.Sources().UpdateSource(ctx, src); err != nil {
			return err
		}

		now := s.clock.Now()
		p := newPosting(tx, string(domain.TransactionSourceDraw), &req.ActorID, now)
		if err := p.apply(sourceAccount, -req.Amount); err != nil {
			return err
		}
		if err := p.apply(actor, req.Amount); err != nil {
			return err
		}

		record = &domain.Transaction{
			Type:                  domain.TransactionSourceDraw,
			Amount:                req.Amount,
			AccountID:             actor.ID,
			CounterpartyAccountID: &sourceAccount.ID,
			UserID:                &req.ActorID,
			SourceID:              &src.ID,
			AccountBalance:        actor.Balance,
			CounterpartyBalance:   int64Ptr(sourceAccount.Balance),
		}
		if err := p.commit(ctx, record); err != nil {
			return err
		}
		return writeAudit(ctx, tx, auditRecord{
			entityType:    domain.EntitySource,
			entityID:      src.ID,
			action:        string(domain.TransactionSourceDraw),
			before:        &before,
			after:         src.Balance,
			actorID:       &req.ActorID,
			transactionID: &record.ID,
			at:            now,
		})
	})
	if err != nil {
		s.logger.Warn("Source draw failed", "source_id", req.SourceID, "error", err)
		return nil, err
	}

	s.logger.Info("Source draw completed", "transaction_id", record.ID)
	return record, nil
}

// ReverseTransaction undoes the balance effect of a transaction and marks it
// reversed. The row itself is kept.
func (s *TransactionService) ReverseTransaction(ctx context.Context, id uuid.UUID, actorID int64) (*domain.Transaction, error) {
	s.logger.Info("Reversing transaction", "transaction_id", id, "actor_id", actorID)

	var record *domain.Transaction
	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		var err error
		record, err = tx.Transactions().GetTransactionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if record.IsReversed() {
			return errors.ErrTransactionAlreadyReversed.WithDetails(id.String())
		}
		sourceAccount, err := tx.Accounts().GetSourceAccount(ctx)
		if err != nil {
			return err
		}
		legs, err := record.Legs(sourceAccount.ID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if record.Type == domain.TransactionSourceDraw && record.SourceID != nil {
			src, err := tx.Sources().GetSourceForUpdate(ctx, *record.SourceID)
			if err != nil {
				return err
			}
			before := src.Balance
			if err := src.Refund(record.Amount); err != nil {
				return err
			}
			if err := tx.Sources().UpdateSource(ctx, src); err != nil {
				return err
			}
			if err := writeAudit(ctx, tx, auditRecord{
				entityType:    domain.EntitySource,
				entityID:      src.ID,
				action:        "reverse",
				before:        &before,
				after:         src.Balance,
				actorID:       &actorID,
				transactionID: &record.ID,
				at:            now,
			}); err != nil {
				return err
			}
		}

		ids := make([]int64, 0, len(legs))
		for _, leg := range legs {
			ids = append(ids, leg.AccountID)
		}
		locked, err := lockAccounts(ctx, tx, ids...)
		if err != nil {
			return err
		}

		p := newPosting(tx, "reverse", &actorID, now)
		p.ref = &record.ID
		for _, leg := range legs {
			if err := p.apply(locked[leg.AccountID], -leg.Delta); err != nil {
				return err
			}
		}
		if err := p.commit(ctx, nil); err != nil {
			return err
		}
		if err := tx.Transactions().MarkReversed(ctx, record.ID, now); err != nil {
			return err
		}
		record.ReversedAt = &now
		return nil
	})
	if err != nil {
		s.logger.Warn("Reversal failed", "transaction_id", id, "error", err)
		return nil, err
	}

	s.logger.Info("Transaction reversed", "transaction_id", id)
	return record, nil
}

func (s *TransactionService) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return s.store.Transactions().GetTransaction(ctx, id)
}
