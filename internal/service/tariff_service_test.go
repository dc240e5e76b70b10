package service

import (
	"io"
	"log/slog"
	"time"

	"microfinance/internal/domain"
	"microfinance/internal/errors"
)

var march2024 = domain.Period{Year: 2024, Month: time.March}

// closeMarch moves the clock into April so March can be charged.
func (s *LedgerSuite) closeMarch() {
	s.clock.Set(time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC))
}

func (s *LedgerSuite) TestChargeMonthlyTariff_UsesMonthlyDeposits() {
	_, account := s.newCustomer()
	s.depositFor(account.ID, 10_000)
	s.closeMarch()

	charge, err := s.tariffs.ChargeMonthlyTariff(s.ctx, account.ID, march2024, nil)
	s.Require().NoError(err)

	s.Equal(int64(10_000), charge.DepositTotal)
	s.Equal(int64(450), charge.Fee)
	s.Require().NotNil(charge.Transaction)
	s.Equal(domain.TransactionTariff, charge.Transaction.Type)
	s.Equal("2024-03", *charge.Transaction.Period)
	s.Equal(int64(9_550), s.balance(account.ID))
	s.Equal(int64(450), s.balance(sourceAccountID))

	_, err = s.tariffs.ChargeMonthlyTariff(s.ctx, account.ID, march2024, nil)
	s.requireCode(err, errors.ErrTariffAlreadyCharged)
	s.Equal(int64(9_550), s.balance(account.ID))
}

func (s *LedgerSuite) TestChargeMonthlyTariff_ZeroFeeWritesNothing() {
	_, account := s.newCustomer()
	s.depositFor(account.ID, 10_000)

	charge, err := s.tariffs.ChargeMonthlyTariff(s.ctx, account.ID, march2024.Previous(), nil)
	s.Require().NoError(err)
	s.Equal(int64(0), charge.DepositTotal)
	s.Equal(int64(0), charge.Fee)
	s.Nil(charge.Transaction)
	s.Equal(int64(10_000), s.balance(account.ID))
	s.Len(s.transactionsOf(account.ID), 1)
}

func (s *LedgerSuite) TestChargeMonthlyTariff_Rejections() {
	_, userAcc := s.newUser(domain.RoleCollector)
	_, closed := s.newCustomer()
	_, err := s.accounts.CloseAccount(s.ctx, closed.ID, nil)
	s.Require().NoError(err)
	_, active := s.newCustomer()
	s.depositFor(active.ID, 10_000)

	_, err = s.tariffs.ChargeMonthlyTariff(s.ctx, active.ID, march2024, nil)
	s.requireCode(err, errors.ErrInvalidPeriod)
	_, err = s.tariffs.ChargeMonthlyTariff(s.ctx, 9_999, march2024, nil)
	s.requireCode(err, errors.ErrInvalidPeriod)
	s.Equal(int64(10_000), s.balance(active.ID))

	s.closeMarch()
	_, err = s.tariffs.ChargeMonthlyTariff(s.ctx, active.ID, domain.Period{Year: 2024, Month: time.April}, nil)
	s.requireCode(err, errors.ErrInvalidPeriod)
	_, err = s.tariffs.ChargeMonthlyTariff(s.ctx, active.ID, domain.Period{Year: 2025, Month: time.January}, nil)
	s.requireCode(err, errors.ErrInvalidPeriod)
	s.Equal(int64(10_000), s.balance(active.ID))
	s.Len(s.transactionsOf(active.ID), 1)

	_, err = s.tariffs.ChargeMonthlyTariff(s.ctx, 9_999, march2024, nil)
	s.requireCode(err, errors.ErrAccountNotFound)

	_, err = s.tariffs.ChargeMonthlyTariff(s.ctx, userAcc.ID, march2024, nil)
	s.requireCode(err, errors.ErrWrongAccountType)

	_, err = s.tariffs.ChargeMonthlyTariff(s.ctx, closed.ID, march2024, nil)
	s.requireCode(err, errors.ErrAccountClosed)
}

func (s *LedgerSuite) TestChargeMonthlyTariff_ReversalAllowsRecharge() {
	_, account := s.newCustomer()
	s.depositFor(account.ID, 10_000)
	s.closeMarch()
	charge, err := s.tariffs.ChargeMonthlyTariff(s.ctx, account.ID, march2024, nil)
	s.Require().NoError(err)

	_, err = s.transactions.ReverseTransaction(s.ctx, charge.Transaction.ID, 1)
	s.Require().NoError(err)
	s.Equal(int64(10_000), s.balance(account.ID))
	s.Equal(int64(0), s.balance(sourceAccountID))

	_, err = s.tariffs.ChargeMonthlyTariff(s.ctx, account.ID, march2024, nil)
	s.Require().NoError(err)
	s.Equal(int64(9_550), s.balance(account.ID))
}

func (s *LedgerSuite) TestChargeMonthlyTariffs_CountsOutcomes() {
	_, charged := s.newCustomer()
	s.depositFor(charged.ID, 10_000)

	_, short := s.newCustomer()
	s.depositFor(short.ID, 4_000)
	teller, _ := s.newUser(domain.RoleCollector)
	_, err := s.transactions.Withdraw(s.ctx, WithdrawRequest{AccountID: short.ID, Amount: 3_300, ActorID: teller.ID})
	s.Require().NoError(err)
	s.Equal(int64(250), s.balance(short.ID))

	s.newCustomer()

	_, closed := s.newCustomer()
	_, err = s.accounts.CloseAccount(s.ctx, closed.ID, nil)
	s.Require().NoError(err)

	_, err = s.tariffs.ChargeMonthlyTariffs(s.ctx, march2024)
	s.requireCode(err, errors.ErrInvalidPeriod)

	s.closeMarch()
	run, err := s.tariffs.ChargeMonthlyTariffs(s.ctx, march2024)
	s.Require().NoError(err)

	s.Equal("2024-03", run.Period)
	s.Equal(3, run.Accounts)
	s.Equal(1, run.Charged)
	s.Equal(1, run.Skipped)
	s.Equal(1, run.Failed)
	s.Equal(int64(450), run.Total)
	s.Equal(int64(9_550), s.balance(charged.ID))
	s.Equal(int64(250), s.balance(short.ID))

	_, err = s.tariffs.ChargeMonthlyTariffs(s.ctx, march2024)
	s.requireCode(err, errors.ErrTariffRunAlreadyCompleted)
}

func (s *LedgerSuite) TestTariffScheduler_ChargesPreviousMonthOnce() {
	_, account := s.newCustomer()
	s.depositFor(account.ID, 10_000)
	s.clock.Set(time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC))

	scheduler := NewTariffScheduler(s.tariffs, s.clock, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))

	run := scheduler.RunOnce(s.ctx)
	s.Require().NotNil(run)
	s.Equal("2024-03", run.Period)
	s.Equal(int64(9_550), s.balance(account.ID))

	s.Nil(scheduler.RunOnce(s.ctx))
	s.Equal(int64(9_550), s.balance(account.ID))
}

func (s *LedgerSuite) TestTariffScheduler_StartRunsImmediately() {
	scheduler := NewTariffScheduler(s.tariffs, s.clock, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))

	scheduler.Start()
	scheduler.Stop()

	run, err := s.store.TariffRuns().GetTariffRun(s.ctx, "2024-02")
	s.Require().NoError(err)
	s.Require().NotNil(run)
	s.Equal(0, run.Accounts)
}
