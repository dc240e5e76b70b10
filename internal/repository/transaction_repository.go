package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"microfinance/internal/domain"
	"microfinance/internal/errors"
)

const transactionColumns = `id, type, amount, fee, account_id, counterparty_account_id, user_id, loan_id, source_id,
	account_balance, counterparty_balance, period, reversed_at, created_at`

type transactionRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewTransactionRepository(db SQLExecutor, logger *slog.Logger) domain.TransactionRepository {
	return &transactionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *transactionRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions
		(id, type, amount, fee, account_id, counterparty_account_id, user_id, loan_id, source_id,
		 account_balance, counterparty_balance, period, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		tx.ID,
		tx.Type,
		tx.Amount,
		tx.Fee,
		tx.AccountID,
		tx.CounterpartyAccountID,
		tx.UserID,
		tx.LoanID,
		tx.SourceID,
		tx.AccountBalance,
		tx.CounterpartyBalance,
		tx.Period,
		tx.CreatedAt,
	)

	if err != nil {
		if constraint, ok := constraintViolation(err, pqUniqueViolation); ok && constraint == "idx_transactions_tariff_period" {
			r.logger.Warn("Duplicate tariff charge", "account_id", tx.AccountID, "period", tx.Period)
			return errors.ErrTariffAlreadyCharged
		}
		r.logger.Error("Failed to create transaction",
			"type", tx.Type,
			"account_id", tx.AccountID,
			"amount", tx.Amount,
			"error", err)
		return errors.NewAppError(errors.InternalError, "failed to create transaction").WithDetails(err.Error())
	}

	r.logger.Info("Transaction created successfully", "transaction_id", tx.ID, "type", tx.Type)
	return nil
}

func (r *transactionRepository) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return r.getOne(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
}

func (r *transactionRepository) GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return r.getOne(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
}

func (r *transactionRepository) getOne(ctx context.Context, query string, id uuid.UUID) (*domain.Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrTransactionNotFound.WithDetails(id.String())
		}
		r.logger.Error("Failed to get transaction", "transaction_id", id, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get transaction").WithDetails(err.Error())
	}
	return tx, nil
}

func (r *transactionRepository) MarkReversed(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE transactions SET reversed_at = $1 WHERE id = $2 AND reversed_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		r.logger.Error("Failed to mark transaction reversed", "transaction_id", id, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to reverse transaction").WithDetails(err.Error())
	}
	if err := checkRowsAffected(result, errors.ErrTransactionAlreadyReversed.WithDetails(id.String())); err != nil {
		return err
	}

	r.logger.Info("Transaction reversed", "transaction_id", id)
	return nil
}

func (r *transactionRepository) ListAccountTransactions(ctx context.Context, accountID int64) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE account_id = $1 OR counterparty_account_id = $1
		ORDER BY created_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to list transactions").WithDetails(err.Error())
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, errors.NewAppError(errors.InternalError, "failed to scan transaction").WithDetails(err.Error())
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to list transactions").WithDetails(err.Error())
	}
	return txs, nil
}

func (r *transactionRepository) SumDeposits(ctx context.Context, accountID int64, from, to time.Time) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE account_id = $1 AND type = 'deposit' AND reversed_at IS NULL
		AND created_at >= $2 AND created_at < $3
	`

	var total int64
	if err := r.db.QueryRowContext(ctx, query, accountID, from, to).Scan(&total); err != nil {
		return 0, errors.NewAppError(errors.InternalError, "failed to sum deposits").WithDetails(err.Error())
	}
	return total, nil
}

func (r *transactionRepository) TariffCharged(ctx context.Context, accountID int64, period string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE account_id = $1 AND type = 'tariff' AND period = $2 AND reversed_at IS NULL
		)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, accountID, period).Scan(&exists); err != nil {
		return false, errors.NewAppError(errors.InternalError, "failed to check tariff charge").WithDetails(err.Error())
	}
	return exists, nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		tx                  domain.Transaction
		counterparty        sql.NullInt64
		userID              sql.NullInt64
		loanID              sql.NullInt64
		sourceID            sql.NullInt64
		counterpartyBalance sql.NullInt64
		period              sql.NullString
		reversedAt          sql.NullTime
	)

	err := row.Scan(
		&tx.ID,
		&tx.Type,
		&tx.Amount,
		&tx.Fee,
		&tx.AccountID,
		&counterparty,
		&userID,
		&loanID,
		&sourceID,
		&tx.AccountBalance,
		&counterpartyBalance,
		&period,
		&reversedAt,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.CounterpartyAccountID = nullInt64(counterparty)
	tx.UserID = nullInt64(userID)
	tx.LoanID = nullInt64(loanID)
	tx.SourceID = nullInt64(sourceID)
	tx.CounterpartyBalance = nullInt64(counterpartyBalance)
	tx.Period = nullString(period)
	tx.ReversedAt = nullTime(reversedAt)
	return &tx, nil
}
