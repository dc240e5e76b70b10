package service

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"microfinance/internal/clock"
	"microfinance/internal/domain"
	"microfinance/internal/errors"
)

const defaultTariffWorkers = 4

// TariffService charges the monthly account-keeping fee. The fee is looked up
// in the tariff table from the deposits the account received during the month
// and is credited to the system source account.
type TariffService struct {
	store   domain.Store
	clock   clock.Clock
	policy  domain.Policy
	workers int
	logger  *slog.Logger
}

func NewTariffService(store domain.Store, clk clock.Clock, policy domain.Policy, workers int, logger *slog.Logger) *TariffService {
	if workers < 1 {
		workers = defaultTariffWorkers
	}
	return &TariffService{
		store:   store,
		clock:   clk,
		policy:  policy,
		workers: workers,
		logger:  logger,
	}
}

// TariffCharge is the outcome of charging one account. Transaction is nil when
// the fee for the month is zero.
type TariffCharge struct {
	AccountID    int64               `json:"account_id"`
	Period       domain.Period       `json:"period"`
	DepositTotal int64               `json:"deposit_total"`
	Fee          int64               `json:"fee"`
	Transaction  *domain.Transaction `json:"transaction,omitempty"`
}

// checkEnded rejects the current and future months.
func (s *TariffService) checkEnded(period domain.Period) error {
	current := domain.PeriodOf(s.clock.Now())
	if !period.Before(current) {
		return errors.ErrInvalidPeriod.WithDetailsf("period %s has not ended, current period is %s", period, current)
	}
	return nil
}

// ChargeMonthlyTariff charges one customer account for an ended period. Each
// (account, period) can be charged once unless the charge is reversed.
func (s *TariffService) ChargeMonthlyTariff(ctx context.Context, accountID int64, period domain.Period, actorID *int64) (*TariffCharge, error) {
	if err := s.checkEnded(period); err != nil {
		return nil, err
	}

	charge := &TariffCharge{AccountID: accountID, Period: period}
	label := period.String()

	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		account, err := tx.Accounts().GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if err := account.CheckType(domain.AccountTypeCustomer); err != nil {
			return err
		}
		if err := account.CheckOpen(); err != nil {
			return err
		}
		charged, err := tx.Transactions().TariffCharged(ctx, accountID, label)
		if err != nil {
			return err
		}
		if charged {
			return errors.ErrTariffAlreadyCharged.WithDetailsf("account %d, period %s", accountID, label)
		}

		from, to := period.Bounds(s.clock.Now().Location())
		if charge.DepositTotal, err = tx.Transactions().SumDeposits(ctx, accountID, from, to); err != nil {
			return err
		}
		charge.Fee = s.policy.Tariffs.Fee(charge.DepositTotal)
		if charge.Fee == 0 {
			return nil
		}

		source, err := tx.Accounts().GetSourceAccount(ctx)
		if err != nil {
			return err
		}
		locked, err := lockAccounts(ctx, tx, account.ID, source.ID)
		if err != nil {
			return err
		}
		account, source = locked[account.ID], locked[source.ID]
		if err := account.CheckOpen(); err != nil {
			return err
		}

		p := newPosting(tx, string(domain.TransactionTariff), actorID, s.clock.Now())
		if err := p.apply(account, -charge.Fee); err != nil {
			return err
		}
		if err := p.apply(source, charge.Fee); err != nil {
			return err
		}

		charge.Transaction = &domain.Transaction{
			Type:                  domain.TransactionTariff,
			Amount:                charge.Fee,
			AccountID:             account.ID,
			CounterpartyAccountID: &source.ID,
			UserID:                actorID,
			AccountBalance:        account.Balance,
			CounterpartyBalance:   int64Ptr(source.Balance),
			Period:                &label,
		}
		return p.commit(ctx, charge.Transaction)
	})
	if err != nil {
		return nil, err
	}

	if charge.Transaction != nil {
		s.logger.Info("Tariff charged", "account_id", accountID, "period", label, "fee", charge.Fee)
	}
	return charge, nil
}

// ChargeMonthlyTariffs charges every open customer account for period using
// a bounded pool of workers, one transaction per account. Business failures
// on single accounts are counted and skipped; an internal error aborts the
// run without recording it so it can be retried.
func (s *TariffService) ChargeMonthlyTariffs(ctx context.Context, period domain.Period) (*domain.TariffRun, error) {
	label := period.String()
	s.logger.Info("Starting tariff run", "period", label, "workers", s.workers)

	if err := s.checkEnded(period); err != nil {
		return nil, err
	}

	existing, err := s.store.TariffRuns().GetTariffRun(ctx, label)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.ErrTariffRunAlreadyCompleted.WithDetails(label)
	}

	ids, err := s.store.Accounts().ListOpenCustomerAccountIDs(ctx)
	if err != nil {
		return nil, err
	}

	started := s.clock.Now()
	var charged, skipped, failed, total atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, id := range ids {
		g.Go(func() error {
			charge, err := s.ChargeMonthlyTariff(gctx, id, period, nil)
			switch {
			case err == nil && charge.Transaction != nil:
				charged.Add(1)
				total.Add(charge.Fee)
			case err == nil, errors.Is(err, errors.ErrTariffAlreadyCharged):
				skipped.Add(1)
			case errors.KindOf(err) == errors.KindInternal:
				return err
			default:
				s.logger.Warn("Tariff not charged", "account_id", id, "period", label, "error", err)
				failed.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("Tariff run aborted", "period", label, "error", err)
		return nil, err
	}

	run := &domain.TariffRun{
		Period:     label,
		Accounts:   len(ids),
		Charged:    int(charged.Load()),
		Skipped:    int(skipped.Load()),
		Failed:     int(failed.Load()),
		Total:      total.Load(),
		StartedAt:  started,
		FinishedAt: s.clock.Now(),
	}
	if err := s.store.TariffRuns().CreateTariffRun(ctx, run); err != nil {
		return nil, err
	}

	s.logger.Info("Tariff run completed", "period", label, "charged", run.Charged, "skipped", run.Skipped, "failed", run.Failed, "total", run.Total)
	return run, nil
}
