package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"microfinance/internal/domain"
	"microfinance/internal/errors"
)

const sourceColumns = `id, zone_id, amount, balance, date, created_at, updated_at`

type sourceRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewSourceRepository(db SQLExecutor, logger *slog.Logger) domain.SourceRepository {
	return &sourceRepository{db: db, logger: logger}
}

func (r *sourceRepository) CreateSource(ctx context.Context, source *domain.Source) error {
	query := `
		INSERT INTO sources (zone_id, amount, balance, date)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query, source.ZoneID, source.Amount, source.Balance, source.Date).
		Scan(&source.ID, &source.CreatedAt, &source.UpdatedAt)
	if err != nil {
		if _, ok := constraintViolation(err, pqUniqueViolation); ok {
			r.logger.Warn("Duplicate source for zone and date", "zone_id", source.ZoneID, "date", source.Date)
			return errors.ErrDuplicateSourceForZoneAndDate
		}
		if _, ok := constraintViolation(err, pqForeignKeyViolation); ok {
			return errors.ErrZoneNotFound.WithDetailsf("zone %d", source.ZoneID)
		}
		r.logger.Error("Failed to create source", "zone_id", source.ZoneID, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to create source").WithDetails(err.Error())
	}

	r.logger.Info("Source created successfully", "source_id", source.ID, "amount", source.Amount)
	return nil
}

func (r *sourceRepository) GetSource(ctx context.Context, id int64) (*domain.Source, error) {
	return r.getOne(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)
}

func (r *sourceRepository) GetSourceForUpdate(ctx context.Context, id int64) (*domain.Source, error) {
	return r.getOne(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = $1 FOR UPDATE`, id)
}

func (r *sourceRepository) getOne(ctx context.Context, query string, id int64) (*domain.Source, error) {
	var s domain.Source
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.ZoneID, &s.Amount, &s.Balance, &s.Date, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Warn("Source not found", "source_id", id)
			return nil, errors.ErrSourceNotFound.WithDetailsf("source %d", id)
		}
		r.logger.Error("Failed to get source", "source_id", id, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get source").WithDetails(err.Error())
	}
	return &s, nil
}

func (r *sourceRepository) ExistsForZoneAndDate(ctx context.Context, zoneID int64, date time.Time) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM sources WHERE zone_id = $1 AND date = $2)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, zoneID, date).Scan(&exists); err != nil {
		return false, errors.NewAppError(errors.InternalError, "failed to check source").WithDetails(err.Error())
	}
	return exists, nil
}

func (r *sourceRepository) UpdateSource(ctx context.Context, source *domain.Source) error {
	query := `UPDATE sources SET amount = $1, balance = $2, updated_at = NOW() WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, source.Amount, source.Balance, source.ID)
	if err != nil {
		r.logger.Error("Failed to update source", "source_id", source.ID, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to update source").WithDetails(err.Error())
	}
	return checkRowsAffected(result, errors.ErrSourceNotFound.WithDetailsf("source %d", source.ID))
}

func (r *sourceRepository) DeleteSource(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete source", "source_id", id, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to delete source").WithDetails(err.Error())
	}
	return checkRowsAffected(result, errors.ErrSourceNotFound.WithDetailsf("source %d", id))
}

func (r *sourceRepository) StatsBetween(ctx context.Context, from, to time.Time) (domain.Aggregate, error) {
	query := `SELECT COALESCE(SUM(amount), 0), COUNT(*) FROM sources WHERE date >= $1 AND date < $2`

	var agg domain.Aggregate
	if err := r.db.QueryRowContext(ctx, query, from, to).Scan(&agg.Total, &agg.Count); err != nil {
		return domain.Aggregate{}, errors.NewAppError(errors.InternalError, "failed to sum sources").WithDetails(err.Error())
	}
	return agg, nil
}
