package service

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"microfinance/internal/domain"
	"microfinance/internal/errors"
)

func (s *LedgerSuite) TestDeposit_MovesMoneyFromActor() {
	collector, collectorAcc := s.newUser(domain.RoleCollector)
	s.fund(collector.ID, 10_000)
	_, customerAcc := s.newCustomer()

	tx, err := s.transactions.Deposit(s.ctx, DepositRequest{AccountID: customerAcc.ID, Amount: 2_000, ActorID: collector.ID})
	s.Require().NoError(err)

	s.Equal(domain.TransactionDeposit, tx.Type)
	s.Equal(customerAcc.ID, tx.AccountID)
	s.Equal(collectorAcc.ID, *tx.CounterpartyAccountID)
	s.Equal(int64(2_000), tx.AccountBalance)
	s.Equal(int64(8_000), *tx.CounterpartyBalance)
	s.Equal(s.clock.Now(), tx.CreatedAt)

	s.Equal(int64(2_000), s.balance(customerAcc.ID))
	s.Equal(int64(8_000), s.balance(collectorAcc.ID))
}

func (s *LedgerSuite) TestDeposit_IsNotIdempotent() {
	collector, _ := s.newUser(domain.RoleCollector)
	s.fund(collector.ID, 10_000)
	_, customerAcc := s.newCustomer()

	req := DepositRequest{AccountID: customerAcc.ID, Amount: 1_000, ActorID: collector.ID}
	first, err := s.transactions.Deposit(s.ctx, req)
	s.Require().NoError(err)
	second, err := s.transactions.Deposit(s.ctx, req)
	s.Require().NoError(err)

	s.NotEqual(first.ID, second.ID)
	s.Equal(int64(2_000), s.balance(customerAcc.ID))
	s.Len(s.transactionsOf(customerAcc.ID), 2)
}

func (s *LedgerSuite) TestDeposit_Rejections() {
	collector, collectorAcc := s.newUser(domain.RoleCollector)
	s.fund(collector.ID, 5_000)
	broke, _ := s.newUser(domain.RoleCollector)
	_, otherUserAcc := s.newUser(domain.RoleManager)
	_, customerAcc := s.newCustomer()
	_, closedAcc := s.newCustomer()
	_, err := s.accounts.CloseAccount(s.ctx, closedAcc.ID, nil)
	s.Require().NoError(err)

	tests := []struct {
		name string
		req  DepositRequest
		want *errors.AppError
	}{
		{"below minimum", DepositRequest{AccountID: customerAcc.ID, Amount: 100, ActorID: collector.ID}, errors.ErrInvalidAmount},
		{"above maximum", DepositRequest{AccountID: customerAcc.ID, Amount: 1_000_001, ActorID: collector.ID}, errors.ErrInvalidAmount},
		{"missing target", DepositRequest{AccountID: 9_999, Amount: 1_000, ActorID: collector.ID}, errors.ErrAccountNotFound},
		{"closed target", DepositRequest{AccountID: closedAcc.ID, Amount: 1_000, ActorID: collector.ID}, errors.ErrAccountClosed},
		{"user account target", DepositRequest{AccountID: otherUserAcc.ID, Amount: 1_000, ActorID: collector.ID}, errors.ErrWrongAccountType},
		{"actor without account", DepositRequest{AccountID: customerAcc.ID, Amount: 1_000, ActorID: 9_999}, errors.ErrAccountNotFound},
		{"actor cannot cover", DepositRequest{AccountID: customerAcc.ID, Amount: 1_000, ActorID: broke.ID}, errors.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.transactions.Deposit(s.ctx, tt.req)
			s.requireCode(err, tt.want)
		})
	}

	s.Equal(int64(0), s.balance(customerAcc.ID))
	s.Equal(int64(5_000), s.balance(collectorAcc.ID))
	s.Empty(s.transactionsOf(customerAcc.ID))
}

func (s *LedgerSuite) TestWithdraw_ChargesFeeToSourceAccount() {
	_, customerAcc := s.newCustomer()
	s.depositFor(customerAcc.ID, 10_000)
	teller, tellerAcc := s.newUser(domain.RoleCollector)

	before := s.balance(customerAcc.ID) + s.balance(tellerAcc.ID) + s.balance(sourceAccountID)

	tx, err := s.transactions.Withdraw(s.ctx, WithdrawRequest{AccountID: customerAcc.ID, Amount: 9_550, ActorID: teller.ID})
	s.Require().NoError(err)

	s.Equal(int64(450), tx.Fee)
	s.Equal(int64(0), tx.AccountBalance)
	s.Equal(int64(0), s.balance(customerAcc.ID))
	s.Equal(int64(9_550), s.balance(tellerAcc.ID))
	s.Equal(int64(450), s.balance(sourceAccountID))

	after := s.balance(customerAcc.ID) + s.balance(tellerAcc.ID) + s.balance(sourceAccountID)
	s.Equal(before, after)
}

func (s *LedgerSuite) TestWithdraw_FeeMustBeCovered() {
	_, customerAcc := s.newCustomer()
	s.depositFor(customerAcc.ID, 10_000)
	teller, _ := s.newUser(domain.RoleCollector)

	_, err := s.transactions.Withdraw(s.ctx, WithdrawRequest{AccountID: customerAcc.ID, Amount: 9_551, ActorID: teller.ID})
	s.requireCode(err, errors.ErrInsufficientFunds)
	s.Equal(int64(10_000), s.balance(customerAcc.ID))

	_, err = s.transactions.Withdraw(s.ctx, WithdrawRequest{AccountID: customerAcc.ID, Amount: 0, ActorID: teller.ID})
	s.requireCode(err, errors.ErrInvalidAmount)
}

func (s *LedgerSuite) TestWithdraw_Rejections() {
	_, customerAcc := s.newCustomer()
	s.depositFor(customerAcc.ID, 10_000)
	teller, tellerAcc := s.newUser(domain.RoleCollector)
	closedTeller, closedTellerAcc := s.newUser(domain.RoleCollector)
	closeAccount(s, closedTellerAcc.ID)
	_, staffAcc := s.newUser(domain.RoleManager)

	_, closedAcc := s.newCustomer()
	s.depositFor(closedAcc.ID, 5_000)
	closeAccount(s, closedAcc.ID)

	tests := []struct {
		name string
		req  WithdrawRequest
		want *errors.AppError
	}{
		{"zero amount", WithdrawRequest{AccountID: customerAcc.ID, Amount: 0, ActorID: teller.ID}, errors.ErrInvalidAmount},
		{"amount that would overflow with the fee", WithdrawRequest{AccountID: customerAcc.ID, Amount: math.MaxInt64 - 100, ActorID: teller.ID}, errors.ErrAmountOutOfRange},
		{"missing account", WithdrawRequest{AccountID: 9_999, Amount: 1_000, ActorID: teller.ID}, errors.ErrAccountNotFound},
		{"closed customer account", WithdrawRequest{AccountID: closedAcc.ID, Amount: 1_000, ActorID: teller.ID}, errors.ErrAccountClosed},
		{"staff account", WithdrawRequest{AccountID: staffAcc.ID, Amount: 1_000, ActorID: teller.ID}, errors.ErrWrongAccountType},
		{"source account", WithdrawRequest{AccountID: sourceAccountID, Amount: 1_000, ActorID: teller.ID}, errors.ErrWrongAccountType},
		{"closed actor account", WithdrawRequest{AccountID: customerAcc.ID, Amount: 1_000, ActorID: closedTeller.ID}, errors.ErrAccountClosed},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.transactions.Withdraw(s.ctx, tt.req)
			s.requireCode(err, tt.want)
		})
	}

	s.Equal(int64(10_000), s.balance(customerAcc.ID))
	s.Equal(int64(5_000), s.balance(closedAcc.ID))
	s.Equal(int64(0), s.balance(tellerAcc.ID))
	s.Equal(int64(0), s.balance(sourceAccountID))
	s.Len(s.transactionsOf(customerAcc.ID), 1)
}

func (s *LedgerSuite) TestWithdraw_NoFeeInLowestBracket() {
	_, customerAcc := s.newCustomer()
	s.depositFor(customerAcc.ID, 3_000)
	teller, _ := s.newUser(domain.RoleCollector)

	tx, err := s.transactions.Withdraw(s.ctx, WithdrawRequest{AccountID: customerAcc.ID, Amount: 3_000, ActorID: teller.ID})
	s.Require().NoError(err)
	s.Equal(int64(0), tx.Fee)
	s.Equal(int64(0), s.balance(customerAcc.ID))
	s.Equal(int64(0), s.balance(sourceAccountID))
}

func (s *LedgerSuite) TestCreditCollector_FundsCheckedBeforeCollectorLookup() {
	manager, _ := s.newUser(domain.RoleManager)
	s.fund(manager.ID, 500)

	_, err := s.transactions.CreditCollector(s.ctx, CreditCollectorRequest{CollectorID: 9_999, Amount: 1_000, ActorID: manager.ID})
	s.requireCode(err, errors.ErrInsufficientFunds)
}

func (s *LedgerSuite) TestCreditCollector_CollectorChecks() {
	manager, managerAcc := s.newUser(domain.RoleManager)
	s.fund(manager.ID, 5_000)
	accountant, _ := s.newUser(domain.RoleAccountant)

	inactive := &domain.User{FirstName: "Yaw", LastName: "Boateng", Email: "yaw@example.com", Role: domain.RoleCollector, State: domain.UserInactive}
	s.Require().NoError(s.store.Users().CreateUser(s.ctx, inactive))

	_, err := s.transactions.CreditCollector(s.ctx, CreditCollectorRequest{CollectorID: 9_999, Amount: 1_000, ActorID: manager.ID})
	s.requireCode(err, errors.ErrUserNotFound)

	_, err = s.transactions.CreditCollector(s.ctx, CreditCollectorRequest{CollectorID: inactive.ID, Amount: 1_000, ActorID: manager.ID})
	s.requireCode(err, errors.ErrInactiveUser)

	_, err = s.transactions.CreditCollector(s.ctx, CreditCollectorRequest{CollectorID: accountant.ID, Amount: 1_000, ActorID: manager.ID})
	s.requireCode(err, errors.ErrWrongRole)

	s.Equal(int64(5_000), s.balance(managerAcc.ID))
}

func (s *LedgerSuite) TestCreditCollector_Rejections() {
	manager, managerAcc := s.newUser(domain.RoleManager)
	s.fund(manager.ID, 5_000)
	closedManager, closedManagerAcc := s.newUser(domain.RoleManager)
	s.fund(closedManager.ID, 5_000)
	closeAccount(s, closedManagerAcc.ID)

	collector, collectorAcc := s.newUser(domain.RoleCollector)
	closedCollector, closedCollectorAcc := s.newUser(domain.RoleCollector)
	closeAccount(s, closedCollectorAcc.ID)

	tests := []struct {
		name string
		req  CreditCollectorRequest
		want *errors.AppError
	}{
		{"zero amount", CreditCollectorRequest{CollectorID: collector.ID, Amount: 0, ActorID: manager.ID}, errors.ErrInvalidAmount},
		{"amount above cap", CreditCollectorRequest{CollectorID: collector.ID, Amount: math.MaxInt64, ActorID: manager.ID}, errors.ErrAmountOutOfRange},
		{"closed collector account", CreditCollectorRequest{CollectorID: closedCollector.ID, Amount: 1_000, ActorID: manager.ID}, errors.ErrAccountClosed},
		{"closed manager account", CreditCollectorRequest{CollectorID: collector.ID, Amount: 1_000, ActorID: closedManager.ID}, errors.ErrAccountClosed},
		{"manager without account", CreditCollectorRequest{CollectorID: collector.ID, Amount: 1_000, ActorID: 9_999}, errors.ErrAccountNotFound},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.transactions.CreditCollector(s.ctx, tt.req)
			s.requireCode(err, tt.want)
		})
	}

	s.Equal(int64(5_000), s.balance(managerAcc.ID))
	s.Equal(int64(5_000), s.balance(closedManagerAcc.ID))
	s.Equal(int64(0), s.balance(collectorAcc.ID))
	s.Equal(int64(0), s.balance(closedCollectorAcc.ID))
}

func (s *LedgerSuite) TestCreditCollector_Transfers() {
	manager, managerAcc := s.newUser(domain.RoleManager)
	s.fund(manager.ID, 5_000)
	collector, collectorAcc := s.newUser(domain.RoleCollector)

	tx, err := s.transactions.CreditCollector(s.ctx, CreditCollectorRequest{CollectorID: collector.ID, Amount: 1_500, ActorID: manager.ID})
	s.Require().NoError(err)

	s.Equal(domain.TransactionCredit, tx.Type)
	s.Equal(collectorAcc.ID, tx.AccountID)
	s.Equal(int64(1_500), s.balance(collectorAcc.ID))
	s.Equal(int64(3_500), s.balance(managerAcc.ID))
}

func (s *LedgerSuite) TestDrawFromSource() {
	zone := s.newZone()
	src, err := s.sources.CreateSource(s.ctx, zone.ID, 1_000, nil)
	s.Require().NoError(err)
	user, userAcc := s.newUser(domain.RoleManager)

	_, err = s.transactions.DrawFromSource(s.ctx, DrawRequest{SourceID: 9_999, Amount: 100, ActorID: user.ID})
	s.requireCode(err, errors.ErrSourceNotFound)

	_, err = s.transactions.DrawFromSource(s.ctx, DrawRequest{SourceID: src.ID, Amount: 1_500, ActorID: user.ID})
	s.requireCode(err, errors.ErrInsufficientFunds)

	tx, err := s.transactions.DrawFromSource(s.ctx, DrawRequest{SourceID: src.ID, Amount: 400, ActorID: user.ID})
	s.Require().NoError(err)
	s.Equal(domain.TransactionSourceDraw, tx.Type)
	s.Equal(src.ID, *tx.SourceID)

	src, err = s.sources.GetSource(s.ctx, src.ID)
	s.Require().NoError(err)
	s.Equal(int64(600), src.Balance)
	s.Equal(int64(1_000), src.Amount)
	s.Equal(int64(600), s.balance(sourceAccountID))
	s.Equal(int64(400), s.balance(userAcc.ID))
}

func (s *LedgerSuite) TestDrawFromSource_Rejections() {
	zone := s.newZone()
	src, err := s.sources.CreateSource(s.ctx, zone.ID, 1_000, nil)
	s.Require().NoError(err)
	user, _ := s.newUser(domain.RoleManager)
	closedUser, closedAcc := s.newUser(domain.RoleCollector)
	closeAccount(s, closedAcc.ID)

	tests := []struct {
		name string
		req  DrawRequest
		want *errors.AppError
	}{
		{"zero amount", DrawRequest{SourceID: src.ID, Amount: 0, ActorID: user.ID}, errors.ErrInvalidAmount},
		{"amount above cap", DrawRequest{SourceID: src.ID, Amount: math.MaxInt64, ActorID: user.ID}, errors.ErrAmountOutOfRange},
		{"closed actor account", DrawRequest{SourceID: src.ID, Amount: 100, ActorID: closedUser.ID}, errors.ErrAccountClosed},
		{"actor without account", DrawRequest{SourceID: src.ID, Amount: 100, ActorID: 9_999}, errors.ErrAccountNotFound},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.transactions.DrawFromSource(s.ctx, tt.req)
			s.requireCode(err, tt.want)
		})
	}

	src, err = s.sources.GetSource(s.ctx, src.ID)
	s.Require().NoError(err)
	s.Equal(int64(1_000), src.Balance)
	s.Equal(int64(1_000), s.balance(sourceAccountID))
	s.Equal(int64(0), s.balance(closedAcc.ID))
}

func (s *LedgerSuite) TestReverse_Deposit() {
	collector, collectorAcc := s.newUser(domain.RoleCollector)
	s.fund(collector.ID, 4_000)
	_, customerAcc := s.newCustomer()
	tx, err := s.transactions.Deposit(s.ctx, DepositRequest{AccountID: customerAcc.ID, Amount: 1_000, ActorID: collector.ID})
	s.Require().NoError(err)

	reversed, err := s.transactions.ReverseTransaction(s.ctx, tx.ID, collector.ID)
	s.Require().NoError(err)
	s.True(reversed.IsReversed())
	s.Equal(int64(0), s.balance(customerAcc.ID))
	s.Equal(int64(4_000), s.balance(collectorAcc.ID))

	_, err = s.transactions.ReverseTransaction(s.ctx, tx.ID, collector.ID)
	s.requireCode(err, errors.ErrTransactionAlreadyReversed)

	stored, err := s.transactions.GetTransaction(s.ctx, tx.ID)
	s.Require().NoError(err)
	s.NotNil(stored.ReversedAt)
}

func (s *LedgerSuite) TestReverse_WithdrawalRefundsFee() {
	_, customerAcc := s.newCustomer()
	s.depositFor(customerAcc.ID, 10_000)
	teller, tellerAcc := s.newUser(domain.RoleCollector)
	tx, err := s.transactions.Withdraw(s.ctx, WithdrawRequest{AccountID: customerAcc.ID, Amount: 5_000, ActorID: teller.ID})
	s.Require().NoError(err)

	_, err = s.transactions.ReverseTransaction(s.ctx, tx.ID, teller.ID)
	s.Require().NoError(err)
	s.Equal(int64(10_000), s.balance(customerAcc.ID))
	s.Equal(int64(0), s.balance(tellerAcc.ID))
	s.Equal(int64(0), s.balance(sourceAccountID))
}

func (s *LedgerSuite) TestReverse_NeverDrivesBalanceNegative() {
	_, customerAcc := s.newCustomer()
	deposit := s.depositFor(customerAcc.ID, 5_000)
	teller, _ := s.newUser(domain.RoleCollector)
	_, err := s.transactions.Withdraw(s.ctx, WithdrawRequest{AccountID: customerAcc.ID, Amount: 1_000, ActorID: teller.ID})
	s.Require().NoError(err)
	s.Equal(int64(3_550), s.balance(customerAcc.ID))

	_, err = s.transactions.ReverseTransaction(s.ctx, deposit.ID, teller.ID)
	s.requireCode(err, errors.ErrInsufficientFunds)
	s.Equal(int64(3_550), s.balance(customerAcc.ID))

	stored, err := s.transactions.GetTransaction(s.ctx, deposit.ID)
	s.Require().NoError(err)
	s.False(stored.IsReversed())
}

func (s *LedgerSuite) TestReverse_SourceDrawRefundsSource() {
	zone := s.newZone()
	src, err := s.sources.CreateSource(s.ctx, zone.ID, 1_000, nil)
	s.Require().NoError(err)
	user, userAcc := s.newUser(domain.RoleManager)
	tx, err := s.transactions.DrawFromSource(s.ctx, DrawRequest{SourceID: src.ID, Amount: 1_000, ActorID: user.ID})
	s.Require().NoError(err)

	_, err = s.transactions.ReverseTransaction(s.ctx, tx.ID, user.ID)
	s.Require().NoError(err)

	src, err = s.sources.GetSource(s.ctx, src.ID)
	s.Require().NoError(err)
	s.Equal(int64(1_000), src.Balance)
	s.Equal(int64(1_000), s.balance(sourceAccountID))
	s.Equal(int64(0), s.balance(userAcc.ID))
}

func (s *LedgerSuite) TestReverse_UnknownTransaction() {
	_, err := s.transactions.ReverseTransaction(s.ctx, uuid.New(), 1)
	s.requireCode(err, errors.ErrTransactionNotFound)
}

func (s *LedgerSuite) TestConcurrentDeposits_NoLostUpdates() {
	const workers = 50
	collector, collectorAcc := s.newUser(domain.RoleCollector)
	s.fund(collector.ID, workers*1_000)
	_, customerAcc := s.newCustomer()

	var (
		wg     sync.WaitGroup
		failed atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.transactions.Deposit(s.ctx, DepositRequest{AccountID: customerAcc.ID, Amount: 1_000, ActorID: collector.ID}); err != nil {
				failed.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int64(0), failed.Load())
	s.Equal(int64(workers*1_000), s.balance(customerAcc.ID))
	s.Equal(int64(0), s.balance(collectorAcc.ID))
	s.Len(s.transactionsOf(customerAcc.ID), workers)
}

func (s *LedgerSuite) TestConcurrentDraws_NeverOverdraw() {
	zone := s.newZone()
	src, err := s.sources.CreateSource(s.ctx, zone.ID, 1_000, nil)
	s.Require().NoError(err)
	user, userAcc := s.newUser(domain.RoleManager)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		short     atomic.Int64
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.transactions.DrawFromSource(s.ctx, DrawRequest{SourceID: src.ID, Amount: 100, ActorID: user.ID})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, errors.ErrInsufficientFunds):
				short.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int64(10), succeeded.Load())
	s.Equal(int64(10), short.Load())
	s.Equal(int64(1_000), s.balance(userAcc.ID))
	s.Equal(int64(0), s.balance(sourceAccountID))
}

func closeAccount(s *LedgerSuite, accountID int64) {
	_, err := s.accounts.CloseAccount(s.ctx, accountID, nil)
	s.Require().NoError(err)
}
