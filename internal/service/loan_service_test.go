package service

import (
	"math"

	"github.com/shopspring/decimal"

	"microfinance/internal/domain"
	"microfinance/internal/errors"
)

func (s *LedgerSuite) newLoan(customerID, principal int64, rate string) *domain.Loan {
	loan, err := s.loans.CreateLoan(s.ctx, CreateLoanRequest{
		CustomerID:   customerID,
		Principal:    principal,
		InterestRate: decimal.RequireFromString(rate),
	})
	s.Require().NoError(err)
	return loan
}

func (s *LedgerSuite) TestCreateLoan_AddsInterest() {
	customer, _ := s.newCustomer()

	loan := s.newLoan(customer.ID, 500_000, "0.5")

	s.Equal(int64(502_500), loan.Amount)
	s.Equal(int64(502_500), loan.Balance)
	s.Equal(domain.LoanUnpaid, loan.Status)
	s.Equal(s.clock.Today(), loan.Date)
}

func (s *LedgerSuite) TestCreateLoan_Validation() {
	customer, _ := s.newCustomer()
	zone := s.newZone()
	inactive := &domain.Customer{FirstName: "Esi", LastName: "Asante", IdentityNumber: "GHA-X", Contact: "0200000000", ZoneID: zone.ID, State: domain.CustomerInactive}
	s.Require().NoError(s.store.Customers().CreateCustomer(s.ctx, inactive))

	tests := []struct {
		name       string
		customerID int64
		principal  int64
		rate       string
		want       *errors.AppError
	}{
		{"missing customer", 9_999, 100, "5", errors.ErrCustomerNotFound},
		{"inactive customer", inactive.ID, 100, "5", errors.ErrCustomerInactive},
		{"principal too small", customer.ID, 499, "0.5", errors.ErrAmountOutOfRange},
		{"principal too large", customer.ID, 1_000_001, "0.5", errors.ErrAmountOutOfRange},
		{"rate too high", customer.ID, 1_000, "0.91", errors.ErrInvalidInterestRate},
		{"negative rate", customer.ID, 1_000, "-0.1", errors.ErrInvalidInterestRate},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.loans.CreateLoan(s.ctx, CreateLoanRequest{
				CustomerID:   tt.customerID,
				Principal:    tt.principal,
				InterestRate: decimal.RequireFromString(tt.rate),
			})
			s.requireCode(err, tt.want)
		})
	}
}

func (s *LedgerSuite) TestPrepayment() {
	customer, _ := s.newCustomer()
	loan := s.newLoan(customer.ID, 500_000, "0.5")

	_, err := s.loans.Prepayment(s.ctx, 9_999, 100, nil)
	s.requireCode(err, errors.ErrLoanNotFound)

	_, err = s.loans.Prepayment(s.ctx, loan.ID, 502_501, nil)
	s.requireCode(err, errors.ErrAmountExceedsBalance)

	partial, err := s.loans.Prepayment(s.ctx, loan.ID, 2_500, nil)
	s.Require().NoError(err)
	s.Equal(int64(500_000), partial.Balance)
	s.Equal(domain.LoanUnfinished, partial.Status)

	paid, err := s.loans.Prepayment(s.ctx, loan.ID, 500_000, nil)
	s.Require().NoError(err)
	s.Equal(int64(0), paid.Balance)
	s.Equal(domain.LoanPaid, paid.Status)
}

func (s *LedgerSuite) TestPrepayment_FullBalance() {
	customer, _ := s.newCustomer()
	loan := s.newLoan(customer.ID, 500_000, "0.5")

	paid, err := s.loans.Prepayment(s.ctx, loan.ID, 502_500, nil)
	s.Require().NoError(err)
	s.Equal(int64(0), paid.Balance)
	s.Equal(domain.LoanPaid, paid.Status)
	s.True(paid.IsPaid())
}

func (s *LedgerSuite) TestRecover_CheckOrder() {
	customer, account := s.newCustomer()
	s.depositFor(account.ID, 500)
	loan := s.newLoan(customer.ID, 1_000, "0")
	_, err := s.loans.Prepayment(s.ctx, loan.ID, 1, nil)
	s.Require().NoError(err)

	_, foreign := s.newCustomer()
	s.depositFor(foreign.ID, 5_000)
	_, closed := s.newCustomer()
	_, err = s.accounts.CloseAccount(s.ctx, closed.ID, nil)
	s.Require().NoError(err)

	paidCustomer, _ := s.newCustomer()
	paidLoan := s.newLoan(paidCustomer.ID, 1_000, "0")
	_, err = s.loans.Prepayment(s.ctx, paidLoan.ID, 1_000, nil)
	s.Require().NoError(err)

	tests := []struct {
		name string
		req  RecoverRequest
		want *errors.AppError
	}{
		{"missing loan and account", RecoverRequest{LoanID: 9_999, AccountID: 9_999, Amount: 100}, errors.ErrLoanNotFound},
		{"paid loan", RecoverRequest{LoanID: paidLoan.ID, AccountID: 9_999, Amount: 100}, errors.ErrLoanAlreadyPaid},
		{"missing account", RecoverRequest{LoanID: loan.ID, AccountID: 9_999, Amount: 100}, errors.ErrAccountNotFound},
		{"closed account", RecoverRequest{LoanID: loan.ID, AccountID: closed.ID, Amount: 100}, errors.ErrAccountClosed},
		{"foreign account", RecoverRequest{LoanID: loan.ID, AccountID: foreign.ID, Amount: 100}, errors.ErrOwnershipMismatch},
		{"insufficient funds", RecoverRequest{LoanID: loan.ID, AccountID: account.ID, Amount: 800}, errors.ErrInsufficientFunds},
		{"non-positive amount", RecoverRequest{LoanID: loan.ID, AccountID: account.ID, Amount: 0}, errors.ErrInvalidAmount},
		{"amount above cap", RecoverRequest{LoanID: loan.ID, AccountID: account.ID, Amount: math.MaxInt64}, errors.ErrAmountOutOfRange},
		{"missing loan before amount", RecoverRequest{LoanID: 9_999, AccountID: 9_999, Amount: 0}, errors.ErrLoanNotFound},
		{"paid loan before amount", RecoverRequest{LoanID: paidLoan.ID, AccountID: 9_999, Amount: -1}, errors.ErrLoanAlreadyPaid},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, _, err := s.loans.Recover(s.ctx, tt.req)
			s.requireCode(err, tt.want)
		})
	}

	stored, err := s.loans.GetLoan(s.ctx, loan.ID)
	s.Require().NoError(err)
	s.Equal(int64(999), stored.Balance)
	s.Equal(domain.LoanUnfinished, stored.Status)
	s.Equal(int64(500), s.balance(account.ID))
}

func (s *LedgerSuite) TestRecover_AmountExceedsLoanBalance() {
	customer, account := s.newCustomer()
	s.depositFor(account.ID, 5_000)
	loan := s.newLoan(customer.ID, 1_000, "0")

	_, _, err := s.loans.Recover(s.ctx, RecoverRequest{LoanID: loan.ID, AccountID: account.ID, Amount: 1_001})
	s.requireCode(err, errors.ErrAmountExceedsBalance)
	s.Equal(int64(5_000), s.balance(account.ID))
}

func (s *LedgerSuite) TestRecover_DebitsAccountAndLoan() {
	customer, account := s.newCustomer()
	s.depositFor(account.ID, 5_000)
	loan := s.newLoan(customer.ID, 2_000, "0.5")

	updated, tx, err := s.loans.Recover(s.ctx, RecoverRequest{LoanID: loan.ID, AccountID: account.ID, Amount: 1_000})
	s.Require().NoError(err)
	s.Equal(int64(1_010), updated.Balance)
	s.Equal(domain.LoanUnfinished, updated.Status)
	s.Equal(domain.TransactionRecovery, tx.Type)
	s.Equal(loan.ID, *tx.LoanID)
	s.Equal(int64(4_000), s.balance(account.ID))

	updated, _, err = s.loans.Recover(s.ctx, RecoverRequest{LoanID: loan.ID, AccountID: account.ID, Amount: 1_010})
	s.Require().NoError(err)
	s.Equal(int64(0), updated.Balance)
	s.Equal(domain.LoanPaid, updated.Status)
	s.Equal(int64(2_990), s.balance(account.ID))

	_, err = s.transactions.ReverseTransaction(s.ctx, tx.ID, 1)
	s.requireCode(err, errors.ErrTransactionNotReversible)

	entries, err := s.store.Audit().ListAuditEntries(s.ctx, domain.EntityLoan, loan.ID)
	s.Require().NoError(err)
	s.Len(entries, 3)
}

func (s *LedgerSuite) TestDeleteLoan() {
	customer, _ := s.newCustomer()
	loan := s.newLoan(customer.ID, 1_000, "0")

	err := s.loans.DeleteLoan(s.ctx, loan.ID, nil)
	s.requireCode(err, errors.ErrLoanNotRecovered)

	_, err = s.loans.Prepayment(s.ctx, loan.ID, 1_000, nil)
	s.Require().NoError(err)
	s.Require().NoError(s.loans.DeleteLoan(s.ctx, loan.ID, nil))

	_, err = s.loans.GetLoan(s.ctx, loan.ID)
	s.requireCode(err, errors.ErrLoanNotFound)

	loans, err := s.loans.ListCustomerLoans(s.ctx, customer.ID)
	s.Require().NoError(err)
	s.Empty(loans)

	_, err = s.loans.ListCustomerLoans(s.ctx, 9_999)
	s.requireCode(err, errors.ErrCustomerNotFound)
}
