package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"

	"microfinance/internal/domain"
	"microfinance/internal/errors"
)

type tariffRunRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewTariffRunRepository(db SQLExecutor, logger *slog.Logger) domain.TariffRunRepository {
	return &tariffRunRepository{db: db, logger: logger}
}

func (r *tariffRunRepository) CreateTariffRun(ctx context.Context, run *domain.TariffRun) error {
	query := `
		INSERT INTO tariff_runs (id, period, accounts, charged, skipped, failed, total, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.Period, run.Accounts, run.Charged, run.Skipped, run.Failed, run.Total, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		if _, ok := constraintViolation(err, pqUniqueViolation); ok {
			return errors.ErrTariffRunAlreadyCompleted.WithDetails(run.Period)
		}
		r.logger.Error("Failed to record tariff run", "period", run.Period, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to record tariff run").WithDetails(err.Error())
	}

	r.logger.Info("Tariff run recorded", "period", run.Period, "charged", run.Charged)
	return nil
}

func (r *tariffRunRepository) GetTariffRun(ctx context.Context, period string) (*domain.TariffRun, error) {
	query := `
		SELECT id, period, accounts, charged, skipped, failed, total, started_at, finished_at
		FROM tariff_runs WHERE period = $1
	`

	var run domain.TariffRun
	err := r.db.QueryRowContext(ctx, query, period).Scan(
		&run.ID, &run.Period, &run.Accounts, &run.Charged, &run.Skipped, &run.Failed, &run.Total, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.NewAppError(errors.InternalError, "failed to get tariff run").WithDetails(err.Error())
	}
	return &run, nil
}
