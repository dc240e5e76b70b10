package service

import (
	"context"
	"log/slog"

	"microfinance/internal/clock"
	"microfinance/internal/domain"
	"microfinance/internal/errors"
)

// SourceService manages the daily funding rows. The system source account
// always moves by the same amount as the row it backs.
type SourceService struct {
	store  domain.Store
	clock  clock.Clock
	policy domain.Policy
	logger *slog.Logger
}

func NewSourceService(store domain.Store, clk clock.Clock, policy domain.Policy, logger *slog.Logger) *SourceService {
	return &SourceService{
		store:  store,
		clock:  clk,
		policy: policy,
		logger: logger,
	}
}

// CreateSource funds a zone for today. Only one source may exist per zone and
// day.
func (s *SourceService) CreateSource(ctx context.Context, zoneID, amount int64, actorID *int64) (*domain.Source, error) {
	s.logger.Info("Creating source", "zone_id", zoneID, "amount", amount)

	if err := s.policy.CheckTransfer(amount); err != nil {
		return nil, err
	}

	var src *domain.Source
	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		if _, err := tx.Zones().GetZone(ctx, zoneID); err != nil {
			return err
		}
		today := s.clock.Today()
		exists, err := tx.Sources().ExistsForZoneAndDate(ctx, zoneID, today)
		if err != nil {
			return err
		}
		if exists {
			return errors.ErrDuplicateSourceForZoneAndDate.WithDetailsf("zone %d on %s", zoneID, today.Format("2006-01-02"))
		}

		src = &domain.Source{ZoneID: zoneID, Amount: amount, Balance: amount, Date: today}
		if err := tx.Sources().CreateSource(ctx, src); err != nil {
			return err
		}
		return s.adjustSourceAccount(ctx, tx, src, "create", nil, amount, actorID)
	})
	if err != nil {
		s.logger.Warn("Source creation failed", "zone_id", zoneID, "error", err)
		return nil, err
	}

	s.logger.Info("Source created", "source_id", src.ID, "zone_id", zoneID)
	return src, nil
}

// UpdateSource changes the amount of a source nobody has drawn from yet.
func (s *SourceService) UpdateSource(ctx context.Context, sourceID, amount int64, actorID *int64) (*domain.Source, error) {
	s.logger.Info("Updating source", "source_id", sourceID, "amount", amount)

	if err := s.policy.CheckTransfer(amount); err != nil {
		return nil, err
	}

	var src *domain.Source
	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		var err error
		src, err = tx.Sources().GetSourceForUpdate(ctx, sourceID)
		if err != nil {
			return err
		}
		before := src.Balance
		delta, err := src.Resize(amount)
		if err != nil {
			return err
		}
		if err := tx.Sources().UpdateSource(ctx, src); err != nil {
			return err
		}
		return s.adjustSourceAccount(ctx, tx, src, "update", &before, delta, actorID)
	})
	if err != nil {
		s.logger.Warn("Source update failed", "source_id", sourceID, "error", err)
		return nil, err
	}

	s.logger.Info("Source updated", "source_id", sourceID, "amount", amount)
	return src, nil
}

// DeleteSource removes a fully drawn source.
func (s *SourceService) DeleteSource(ctx context.Context, sourceID int64, actorID *int64) error {
	s.logger.Info("Deleting source", "source_id", sourceID)

	return s.store.WithTransaction(ctx, func(tx domain.Store) error {
		src, err := tx.Sources().GetSourceForUpdate(ctx, sourceID)
		if err != nil {
			return err
		}
		if err := src.CheckDeletable(); err != nil {
			return err
		}
		if err := tx.Sources().DeleteSource(ctx, sourceID); err != nil {
			return err
		}
		return writeAudit(ctx, tx, auditRecord{
			entityType: domain.EntitySource,
			entityID:   sourceID,
			action:     "delete",
			before:     &src.Balance,
			after:      0,
			actorID:    actorID,
			at:         s.clock.Now(),
		})
	})
}

func (s *SourceService) GetSource(ctx context.Context, sourceID int64) (*domain.Source, error) {
	return s.store.Sources().GetSource(ctx, sourceID)
}

// TodayStats sums the sources created today.
func (s *SourceService) TodayStats(ctx context.Context) (domain.Aggregate, error) {
	today := s.clock.Today()
	return s.store.Sources().StatsBetween(ctx, today, today.AddDate(0, 0, 1))
}

// MonthStats sums the sources of the current calendar month.
func (s *SourceService) MonthStats(ctx context.Context) (domain.Aggregate, error) {
	now := s.clock.Now()
	from, to := domain.PeriodOf(now).Bounds(now.Location())
	return s.store.Sources().StatsBetween(ctx, from, to)
}

// adjustSourceAccount applies delta to the system source account and audits
// both the source row and the account.
func (s *SourceService) adjustSourceAccount(ctx context.Context, tx domain.Store, src *domain.Source, action string, before *int64, delta int64, actorID *int64) error {
	now := s.clock.Now()
	if err := writeAudit(ctx, tx, auditRecord{
		entityType: domain.EntitySource,
		entityID:   src.ID,
		action:     action,
		before:     before,
		after:      src.Balance,
		actorID:    actorID,
		at:         now,
	}); err != nil {
		return err
	}
	if delta == 0 {
		return nil
	}

	account, err := tx.Accounts().GetSourceAccount(ctx)
	if err != nil {
		return err
	}
	locked, err := lockAccounts(ctx, tx, account.ID)
	if err != nil {
		return err
	}

	p := newPosting(tx, "source_"+action, actorID, now)
	if err := p.apply(locked[account.ID], delta); err != nil {
		return err
	}
	return p.commit(ctx, nil)
}
