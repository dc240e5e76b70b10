package service

import (
	"encoding/json"

	"microfinance/internal/domain"
	"microfinance/internal/errors"
)

func (s *LedgerSuite) TestRegistration_OpensAccounts() {
	customer, customerAcc := s.newCustomer()
	s.Equal(domain.AccountTypeCustomer, customerAcc.Type)
	s.Equal("Ama Owusu", customerAcc.Name)
	s.Equal(customer.ID, *customerAcc.CustomerID)
	s.True(customerAcc.IsOpen())

	user, userAcc := s.newUser(domain.RoleCollector)
	s.Equal(domain.AccountTypeUser, userAcc.Type)
	s.Equal(user.ID, *userAcc.UserID)
}

func (s *LedgerSuite) TestDirectory_Validation() {
	_, err := s.directory.CreateZone(s.ctx, "  ")
	s.requireCode(err, errors.ErrInvalidInput)

	zone := s.newZone()
	_, err = s.directory.CreateZone(s.ctx, zone.Name)
	s.requireCode(err, errors.ErrDuplicateZone)

	_, _, err = s.directory.CreateUser(s.ctx, CreateUserRequest{FirstName: "A", LastName: "B", Email: "x@example.com", Role: "teller"}, nil)
	s.requireCode(err, errors.ErrInvalidInput)

	_, _, err = s.directory.CreateCustomer(s.ctx, CreateCustomerRequest{FirstName: "A", LastName: "B", IdentityNumber: "1", Contact: "2", ZoneID: 9_999}, nil)
	s.requireCode(err, errors.ErrZoneNotFound)
}

func (s *LedgerSuite) TestOpenCustomerAccount() {
	customer, _ := s.newCustomer()

	account, err := s.accounts.OpenCustomerAccount(s.ctx, customer.ID, "Savings", nil)
	s.Require().NoError(err)
	s.Equal("Savings", account.Name)
	s.Equal(int64(0), account.Balance)

	accounts, err := s.store.Accounts().ListCustomerAccounts(s.ctx, customer.ID)
	s.Require().NoError(err)
	s.Len(accounts, 2)

	_, err = s.accounts.OpenCustomerAccount(s.ctx, 9_999, "", nil)
	s.requireCode(err, errors.ErrCustomerNotFound)

	zone := s.newZone()
	inactive := &domain.Customer{FirstName: "Esi", LastName: "Asante", IdentityNumber: "GHA-Y", Contact: "0200000001", ZoneID: zone.ID, State: domain.CustomerInactive}
	s.Require().NoError(s.store.Customers().CreateCustomer(s.ctx, inactive))
	_, err = s.accounts.OpenCustomerAccount(s.ctx, inactive.ID, "", nil)
	s.requireCode(err, errors.ErrCustomerInactive)
}

func (s *LedgerSuite) TestCloseAccount() {
	_, account := s.newCustomer()

	closed, err := s.accounts.CloseAccount(s.ctx, account.ID, nil)
	s.Require().NoError(err)
	s.Equal(domain.AccountClosed, closed.State)
	s.Require().NotNil(closed.DateClosed)
	s.Equal(s.clock.Now(), *closed.DateClosed)

	_, err = s.accounts.CloseAccount(s.ctx, account.ID, nil)
	s.requireCode(err, errors.ErrAccountClosed)

	_, err = s.accounts.CloseAccount(s.ctx, sourceAccountID, nil)
	s.requireCode(err, errors.ErrSourceAccountProtected)

	_, err = s.accounts.CloseAccount(s.ctx, 9_999, nil)
	s.requireCode(err, errors.ErrAccountNotFound)
}

func (s *LedgerSuite) TestSumCustomerBalances() {
	_, first := s.newCustomer()
	_, second := s.newCustomer()
	s.depositFor(first.ID, 1_000)
	s.depositFor(second.ID, 2_500)

	agg, err := s.accounts.SumCustomerBalances(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.Aggregate{Total: 3_500, Count: 2}, agg)
}

func (s *LedgerSuite) TestAuditTrail_RecordsBalanceSnapshots() {
	_, account := s.newCustomer()
	s.depositFor(account.ID, 1_000)

	entries, err := s.accounts.AuditTrail(s.ctx, account.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)

	latest := entries[0]
	s.Equal("deposit", latest.Action)
	s.Require().NotNil(latest.TransactionID)

	var before, after struct {
		Balance int64 `json:"balance"`
	}
	s.Require().NoError(json.Unmarshal(latest.OldValues, &before))
	s.Require().NoError(json.Unmarshal(latest.NewValues, &after))
	s.Equal(int64(0), before.Balance)
	s.Equal(int64(1_000), after.Balance)

	s.Equal("open", entries[1].Action)
	s.Nil(entries[1].OldValues)
}

func (s *LedgerSuite) TestListTransactions() {
	_, account := s.newCustomer()
	s.depositFor(account.ID, 1_000)
	s.depositFor(account.ID, 2_000)

	txs, err := s.accounts.ListTransactions(s.ctx, account.ID)
	s.Require().NoError(err)
	s.Len(txs, 2)

	_, err = s.accounts.ListTransactions(s.ctx, 9_999)
	s.requireCode(err, errors.ErrAccountNotFound)
}
