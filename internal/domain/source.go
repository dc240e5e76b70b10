package domain

import (
	"context"
	"time"

	"microfinance/internal/errors"
)

// Source is a dated funding allocation for a zone. Its balance is mirrored
// in the system source account.
type Source struct {
	ID        int64     `json:"id"`
	ZoneID    int64     `json:"zone_id"`
	Amount    int64     `json:"amount"`
	Balance   int64     `json:"balance"`
	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CheckUpdatable allows edits only while nothing has been drawn.
func (s *Source) CheckUpdatable() error {
	if s.Balance != s.Amount {
		return errors.ErrIllegalStateTransition.WithDetailsf("source %d has already been drawn from", s.ID)
	}
	return nil
}

func (s *Source) CheckDeletable() error {
	if s.Balance != 0 {
		return errors.ErrIllegalStateTransition.WithDetailsf("source %d still holds %d", s.ID, s.Balance)
	}
	return nil
}

func (s *Source) Draw(amount int64) error {
	if amount > s.Balance {
		return errors.ErrInsufficientFunds.WithDetailsf("source %d has %d, needs %d", s.ID, s.Balance, amount)
	}
	s.Balance -= amount
	return nil
}

// Refund puts back a previously drawn amount.
func (s *Source) Refund(amount int64) error {
	if s.Balance+amount > s.Amount {
		return errors.ErrIllegalStateTransition.WithDetailsf("source %d cannot exceed its amount", s.ID)
	}
	s.Balance += amount
	return nil
}

// Resize changes an untouched source and returns the balance delta.
func (s *Source) Resize(amount int64) (int64, error) {
	if err := s.CheckUpdatable(); err != nil {
		return 0, err
	}
	delta := amount - s.Amount
	s.Amount = amount
	s.Balance = amount
	return delta, nil
}

type SourceRepository interface {
	CreateSource(ctx context.Context, source *Source) error
	GetSource(ctx context.Context, id int64) (*Source, error)
	GetSourceForUpdate(ctx context.Context, id int64) (*Source, error)
	ExistsForZoneAndDate(ctx context.Context, zoneID int64, date time.Time) (bool, error)
	UpdateSource(ctx context.Context, source *Source) error
	DeleteSource(ctx context.Context, id int64) error
	// StatsBetween sums source amounts dated in [from, to).
	StatsBetween(ctx context.Context, from, to time.Time) (Aggregate, error)
}

// Aggregate is a sum with the number of rows it covers.
type Aggregate struct {
	Total int64 `json:"total"`
	Count int64 `json:"count"`
}
