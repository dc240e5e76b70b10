package service

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"microfinance/internal/clock"
	"microfinance/internal/domain"
	"microfinance/internal/errors"
)

type LoanService struct {
	store  domain.Store
	clock  clock.Clock
	policy domain.Policy
	logger *slog.Logger
}

func NewLoanService(store domain.Store, clk clock.Clock, policy domain.Policy, logger *slog.Logger) *LoanService {
	return &LoanService{
		store:  store,
		clock:  clk,
		policy: policy,
		logger: logger,
	}
}

type CreateLoanRequest struct {
	CustomerID   int64
	Principal    int64
	InterestRate decimal.Decimal
	ActorID      *int64
}

type RecoverRequest struct {
	LoanID    int64
	AccountID int64
	Amount    int64
	ActorID   *int64
}

// CreateLoan grants a loan of principal plus interest. The interest is
// principal * rate / InterestRateDivisor.
func (s *LoanService) CreateLoan(ctx context.Context, req CreateLoanRequest) (*domain.Loan, error) {
	s.logger.Info("Creating loan", "customer_id", req.CustomerID, "principal", req.Principal, "rate", req.InterestRate)

	var loan *domain.Loan
	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		customer, err := tx.Customers().GetCustomer(ctx, req.CustomerID)
		if err != nil {
			return err
		}
		if err := customer.CheckActive(); err != nil {
			return err
		}
		if err := s.policy.CheckLoanPrincipal(req.Principal); err != nil {
			return err
		}
		if err := s.policy.CheckInterestRate(req.InterestRate); err != nil {
			return err
		}

		total := s.policy.LoanTotal(req.Principal, req.InterestRate)
		loan = domain.NewLoan(customer.ID, req.Principal, req.InterestRate, total, s.clock.Today())
		if err := tx.Loans().CreateLoan(ctx, loan); err != nil {
			return err
		}
		return writeAudit(ctx, tx, auditRecord{
			entityType: domain.EntityLoan,
			entityID:   loan.ID,
			action:     "create",
			after:      loan.Balance,
			actorID:    req.ActorID,
			at:         s.clock.Now(),
		})
	})
	if err != nil {
		s.logger.Warn("Loan creation failed", "customer_id", req.CustomerID, "error", err)
		return nil, err
	}

	s.logger.Info("Loan created", "loan_id", loan.ID, "amount", loan.Amount)
	return loan, nil
}

// Prepayment records money repaid outside any account, so it moves no
// account balance and writes no Transaction.
func (s *LoanService) Prepayment(ctx context.Context, loanID, amount int64, actorID *int64) (*domain.Loan, error) {
	s.logger.Info("Recording prepayment", "loan_id", loanID, "amount", amount)

	var loan *domain.Loan
	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		var err error
		loan, err = tx.Loans().GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		before := loan.Balance
		if err := loan.Repay(amount); err != nil {
			return err
		}
		if err := tx.Loans().UpdateLoan(ctx, loan); err != nil {
			return err
		}
		return writeAudit(ctx, tx, auditRecord{
			entityType: domain.EntityLoan,
			entityID:   loan.ID,
			action:     "prepayment",
			before:     &before,
			after:      loan.Balance,
			actorID:    actorID,
			at:         s.clock.Now(),
		})
	})
	if err != nil {
		s.logger.Warn("Prepayment failed", "loan_id", loanID, "error", err)
		return nil, err
	}

	s.logger.Info("Prepayment recorded", "loan_id", loanID, "balance", loan.Balance, "status", loan.Status)
	return loan, nil
}

// Recover repays a loan from one of the borrower's accounts. The account and
// the loan are debited in the same transaction. The amount is checked once the
// loan is known to exist and be open.
func (s *LoanService) Recover(ctx context.Context, req RecoverRequest) (*domain.Loan, *domain.Transaction, error) {
	s.logger.Info("Recovering loan", "loan_id", req.LoanID, "account_id", req.AccountID, "amount", req.Amount)

	validate := func(loan *domain.Loan, account *domain.Account) error {
		if loan.IsPaid() {
			return errors.ErrLoanAlreadyPaid.WithDetailsf("loan %d", loan.ID)
		}
		if err := account.CheckOpen(); err != nil {
			return err
		}
		if !account.OwnedByCustomer(loan.CustomerID) {
			return errors.ErrOwnershipMismatch.WithDetailsf("account %d, customer %d", account.ID, loan.CustomerID)
		}
		if err := account.CheckFunds(req.Amount); err != nil {
			return err
		}
		if req.Amount > loan.Balance {
			return errors.ErrAmountExceedsBalance.WithDetailsf("loan %d has %d left, got %d", loan.ID, loan.Balance, req.Amount)
		}
		return nil
	}

	var (
		loan   *domain.Loan
		record *domain.Transaction
	)
	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		var err error
		loan, err = tx.Loans().GetLoan(ctx, req.LoanID)
		if err != nil {
			return err
		}
		if loan.IsPaid() {
			return errors.ErrLoanAlreadyPaid.WithDetailsf("loan %d", loan.ID)
		}
		if err := s.policy.CheckTransfer(req.Amount); err != nil {
			return err
		}
		account, err := tx.Accounts().GetAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}
		if err := validate(loan, account); err != nil {
			return err
		}

		if loan, err = tx.Loans().GetLoanForUpdate(ctx, req.LoanID); err != nil {
			return err
		}
		locked, err := lockAccounts(ctx, tx, account.ID)
		if err != nil {
			return err
		}
		account = locked[account.ID]
		if err := validate(loan, account); err != nil {
			return err
		}

		now := s.clock.Now()
		p := newPosting(tx, string(domain.TransactionRecovery), req.ActorID, now)
		if err := p.apply(account, -req.Amount); err != nil {
			return err
		}
		before := loan.Balance
		if err := loan.Repay(req.Amount); err != nil {
			return err
		}
		if err := tx.Loans().UpdateLoan(ctx, loan); err != nil {
			return err
		}

		record = &domain.Transaction{
			Type:           domain.TransactionRecovery,
			Amount:         req.Amount,
			AccountID:      account.ID,
			UserID:         req.ActorID,
			LoanID:         &loan.ID,
			AccountBalance: account.Balance,
		}
		if err := p.commit(ctx, record); err != nil {
			return err
		}
		return writeAudit(ctx, tx, auditRecord{
			entityType:    domain.EntityLoan,
			entityID:      loan.ID,
			action:        string(domain.TransactionRecovery),
			before:        &before,
			after:         loan.Balance,
			actorID:       req.ActorID,
			transactionID: &record.ID,
			at:            now,
		})
	})
	if err != nil {
		s.logger.Warn("Recovery failed", "loan_id", req.LoanID, "error", err)
		return nil, nil, err
	}

	s.logger.Info("Loan recovered", "loan_id", loan.ID, "balance", loan.Balance, "transaction_id", record.ID)
	return loan, record, nil
}

// DeleteLoan removes a fully recovered loan.
func (s *LoanService) DeleteLoan(ctx context.Context, loanID int64, actorID *int64) error {
	s.logger.Info("Deleting loan", "loan_id", loanID)

	return s.store.WithTransaction(ctx, func(tx domain.Store) error {
		loan, err := tx.Loans().GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if err := loan.CheckDeletable(); err != nil {
			return err
		}
		if err := tx.Loans().DeleteLoan(ctx, loanID); err != nil {
			return err
		}
		return writeAudit(ctx, tx, auditRecord{
			entityType: domain.EntityLoan,
			entityID:   loanID,
			action:     "delete",
			before:     &loan.Balance,
			after:      0,
			actorID:    actorID,
			at:         s.clock.Now(),
		})
	})
}

func (s *LoanService) GetLoan(ctx context.Context, loanID int64) (*domain.Loan, error) {
	return s.store.Loans().GetLoan(ctx, loanID)
}

func (s *LoanService) ListCustomerLoans(ctx context.Context, customerID int64) ([]*domain.Loan, error) {
	if _, err := s.store.Customers().GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return s.store.Loans().ListCustomerLoans(ctx, customerID)
}
