package service

import (
	"context"
	"log/slog"
	"strings"

	"microfinance/internal/clock"
	"microfinance/internal/domain"
	"microfinance/internal/errors"
)

type AccountService struct {
	store  domain.Store
	clock  clock.Clock
	logger *slog.Logger
}

func NewAccountService(store domain.Store, clk clock.Clock, logger *slog.Logger) *AccountService {
	return &AccountService{
		store:  store,
		clock:  clk,
		logger: logger,
	}
}

// OpenCustomerAccount opens an additional account for an active customer. An
// empty name defaults to the customer's full name.
func (s *AccountService) OpenCustomerAccount(ctx context.Context, customerID int64, name string, actorID *int64) (*domain.Account, error) {
	s.logger.Info("Opening customer account", "customer_id", customerID)

	var account *domain.Account
	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		customer, err := tx.Customers().GetCustomer(ctx, customerID)
		if err != nil {
			return err
		}
		if err := customer.CheckActive(); err != nil {
			return err
		}
		account, err = openAccount(ctx, tx, s.clock, accountOwner{
			name:       name,
			fallback:   customer.FullName(),
			kind:       domain.AccountTypeCustomer,
			customerID: &customer.ID,
		}, actorID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Customer account opened", "account_id", account.ID, "customer_id", customerID)
	return account, nil
}

// CloseAccount closes an open account. The system source account can never
// be closed.
func (s *AccountService) CloseAccount(ctx context.Context, accountID int64, actorID *int64) (*domain.Account, error) {
	s.logger.Info("Closing account", "account_id", accountID)

	var account *domain.Account
	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		var err error
		account, err = tx.Accounts().GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := account.Close(now); err != nil {
			return err
		}
		if err := tx.Accounts().UpdateAccountState(ctx, account); err != nil {
			return err
		}
		balance := account.Balance
		return writeAudit(ctx, tx, auditRecord{
			entityType: domain.EntityAccount,
			entityID:   account.ID,
			action:     "close",
			before:     &balance,
			after:      balance,
			actorID:    actorID,
			at:         now,
		})
	})
	if err != nil {
		s.logger.Warn("Failed to close account", "account_id", accountID, "error", err)
		return nil, err
	}

	s.logger.Info("Account closed", "account_id", accountID)
	return account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	return s.store.Accounts().GetAccount(ctx, accountID)
}

// ListTransactions returns the transactions touching the account, newest
// first.
func (s *AccountService) ListTransactions(ctx context.Context, accountID int64) ([]*domain.Transaction, error) {
	if _, err := s.store.Accounts().GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.Transactions().ListAccountTransactions(ctx, accountID)
}

// SumCustomerBalances reports the total held in open customer accounts.
func (s *AccountService) SumCustomerBalances(ctx context.Context) (domain.Aggregate, error) {
	return s.store.Accounts().SumCustomerBalances(ctx)
}

func (s *AccountService) AuditTrail(ctx context.Context, accountID int64) ([]*domain.AuditEntry, error) {
	if _, err := s.store.Accounts().GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.Audit().ListAuditEntries(ctx, domain.EntityAccount, accountID)
}

type accountOwner struct {
	name       string
	fallback   string
	kind       domain.AccountType
	customerID *int64
	userID     *int64
}

// openAccount creates an open, empty account inside tx and audits it.
func openAccount(ctx context.Context, tx domain.Store, clk clock.Clock, owner accountOwner, actorID *int64) (*domain.Account, error) {
	name := strings.TrimSpace(owner.name)
	if name == "" {
		name = owner.fallback
	}
	if name == "" {
		return nil, errors.ErrInvalidInput.WithDetails("account name is required")
	}

	now := clk.Now()
	account := &domain.Account{
		Name:       name,
		Type:       owner.kind,
		State:      domain.AccountOpen,
		CustomerID: owner.customerID,
		UserID:     owner.userID,
		DateOpened: now,
	}
	if err := tx.Accounts().CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	if err := writeAudit(ctx, tx, auditRecord{
		entityType: domain.EntityAccount,
		entityID:   account.ID,
		action:     "open",
		after:      0,
		actorID:    actorID,
		at:         now,
	}); err != nil {
		return nil, err
	}
	return account, nil
}
