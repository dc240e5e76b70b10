package service

import (
	"math"
	"time"

	"microfinance/internal/domain"
	"microfinance/internal/errors"
)

func (s *LedgerSuite) TestCreateSource_CreditsSourceAccount() {
	zone := s.newZone()

	src, err := s.sources.CreateSource(s.ctx, zone.ID, 20_000, nil)
	s.Require().NoError(err)

	s.Equal(int64(20_000), src.Amount)
	s.Equal(int64(20_000), src.Balance)
	s.Equal(s.clock.Today(), src.Date)
	s.Equal(int64(20_000), s.balance(sourceAccountID))
}

func (s *LedgerSuite) TestCreateSource_OncePerZoneAndDay() {
	zone := s.newZone()
	_, err := s.sources.CreateSource(s.ctx, zone.ID, 1_000, nil)
	s.Require().NoError(err)

	_, err = s.sources.CreateSource(s.ctx, zone.ID, 2_000, nil)
	s.requireCode(err, errors.ErrDuplicateSourceForZoneAndDate)
	s.Equal(int64(1_000), s.balance(sourceAccountID))

	s.clock.Advance(24 * time.Hour)
	_, err = s.sources.CreateSource(s.ctx, zone.ID, 2_000, nil)
	s.Require().NoError(err)
	s.Equal(int64(3_000), s.balance(sourceAccountID))
}

func (s *LedgerSuite) TestCreateSource_Validation() {
	zone := s.newZone()

	_, err := s.sources.CreateSource(s.ctx, 9_999, 1_000, nil)
	s.requireCode(err, errors.ErrZoneNotFound)

	_, err = s.sources.CreateSource(s.ctx, zone.ID, 0, nil)
	s.requireCode(err, errors.ErrInvalidAmount)

	_, err = s.sources.CreateSource(s.ctx, zone.ID, math.MaxInt64-10, nil)
	s.requireCode(err, errors.ErrAmountOutOfRange)
	s.Equal(int64(0), s.balance(sourceAccountID))

	// The source account keeps accepting funding after a rejected oversized one.
	_, err = s.sources.CreateSource(s.ctx, zone.ID, 100, nil)
	s.Require().NoError(err)
	s.Equal(int64(100), s.balance(sourceAccountID))
}

func (s *LedgerSuite) TestUpdateSource_AdjustsSourceAccountByDelta() {
	zone := s.newZone()
	src, err := s.sources.CreateSource(s.ctx, zone.ID, 10_000, nil)
	s.Require().NoError(err)

	src, err = s.sources.UpdateSource(s.ctx, src.ID, 7_500, nil)
	s.Require().NoError(err)
	s.Equal(int64(7_500), src.Amount)
	s.Equal(int64(7_500), src.Balance)
	s.Equal(int64(7_500), s.balance(sourceAccountID))

	src, err = s.sources.UpdateSource(s.ctx, src.ID, 12_000, nil)
	s.Require().NoError(err)
	s.Equal(int64(12_000), s.balance(sourceAccountID))
}

func (s *LedgerSuite) TestUpdateSource_RejectedAfterDraw() {
	zone := s.newZone()
	src, err := s.sources.CreateSource(s.ctx, zone.ID, 10_000, nil)
	s.Require().NoError(err)
	user, _ := s.newUser(domain.RoleManager)
	_, err = s.transactions.DrawFromSource(s.ctx, DrawRequest{SourceID: src.ID, Amount: 1, ActorID: user.ID})
	s.Require().NoError(err)

	_, err = s.sources.UpdateSource(s.ctx, src.ID, 5_000, nil)
	s.requireCode(err, errors.ErrIllegalStateTransition)
	s.Equal(int64(9_999), s.balance(sourceAccountID))
}

func (s *LedgerSuite) TestDeleteSource() {
	zone := s.newZone()
	src, err := s.sources.CreateSource(s.ctx, zone.ID, 1_000, nil)
	s.Require().NoError(err)

	err = s.sources.DeleteSource(s.ctx, src.ID, nil)
	s.requireCode(err, errors.ErrIllegalStateTransition)

	user, _ := s.newUser(domain.RoleManager)
	_, err = s.transactions.DrawFromSource(s.ctx, DrawRequest{SourceID: src.ID, Amount: 1_000, ActorID: user.ID})
	s.Require().NoError(err)

	s.Require().NoError(s.sources.DeleteSource(s.ctx, src.ID, nil))
	_, err = s.sources.GetSource(s.ctx, src.ID)
	s.requireCode(err, errors.ErrSourceNotFound)
}

func (s *LedgerSuite) TestSourceStats() {
	north, south := s.newZone(), s.newZone()

	s.clock.Set(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	_, err := s.sources.CreateSource(s.ctx, north.ID, 1_000, nil)
	s.Require().NoError(err)

	s.clock.Set(time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC))
	_, err = s.sources.CreateSource(s.ctx, north.ID, 2_000, nil)
	s.Require().NoError(err)
	_, err = s.sources.CreateSource(s.ctx, south.ID, 4_000, nil)
	s.Require().NoError(err)

	today, err := s.sources.TodayStats(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.Aggregate{Total: 6_000, Count: 2}, today)

	month, err := s.sources.MonthStats(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.Aggregate{Total: 7_000, Count: 3}, month)

	s.clock.Set(time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC))
	month, err = s.sources.MonthStats(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.Aggregate{}, month)
}
