package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/shopspring/decimal"

	"microfinance/internal/domain"
	"microfinance/internal/errors"
)

const loanColumns = `id, customer_id, principal, interest_rate, amount, balance, status, date, created_at, updated_at`

type loanRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewLoanRepository(db SQLExecutor, logger *slog.Logger) domain.LoanRepository {
	return &loanRepository{db: db, logger: logger}
}

func (r *loanRepository) CreateLoan(ctx context.Context, loan *domain.Loan) error {
	query := `
		INSERT INTO loans (customer_id, principal, interest_rate, amount, balance, status, date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		loan.CustomerID,
		loan.Principal,
		loan.InterestRate.String(),
		loan.Amount,
		loan.Balance,
		loan.Status,
		loan.Date,
	).Scan(&loan.ID, &loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		if _, ok := constraintViolation(err, pqForeignKeyViolation); ok {
			return errors.ErrCustomerNotFound.WithDetailsf("customer %d", loan.CustomerID)
		}
		r.logger.Error("Failed to create loan", "customer_id", loan.CustomerID, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to create loan").WithDetails(err.Error())
	}

	r.logger.Info("Loan created successfully", "loan_id", loan.ID, "amount", loan.Amount)
	return nil
}

func (r *loanRepository) GetLoan(ctx context.Context, id int64) (*domain.Loan, error) {
	return r.getOne(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id)
}

func (r *loanRepository) GetLoanForUpdate(ctx context.Context, id int64) (*domain.Loan, error) {
	return r.getOne(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, id)
}

func (r *loanRepository) getOne(ctx context.Context, query string, id int64) (*domain.Loan, error) {
	loan, err := scanLoan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Warn("Loan not found", "loan_id", id)
			return nil, errors.ErrLoanNotFound.WithDetailsf("loan %d", id)
		}
		r.logger.Error("Failed to get loan", "loan_id", id, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get loan").WithDetails(err.Error())
	}
	return loan, nil
}

func (r *loanRepository) UpdateLoan(ctx context.Context, loan *domain.Loan) error {
	query := `UPDATE loans SET balance = $1, status = $2, updated_at = NOW() WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, loan.Balance, loan.Status, loan.ID)
	if err != nil {
		r.logger.Error("Failed to update loan", "loan_id", loan.ID, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to update loan").WithDetails(err.Error())
	}
	if err := checkRowsAffected(result, errors.ErrLoanNotFound.WithDetailsf("loan %d", loan.ID)); err != nil {
		return err
	}

	r.logger.Info("Loan updated", "loan_id", loan.ID, "balance", loan.Balance, "status", loan.Status)
	return nil
}

func (r *loanRepository) DeleteLoan(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM loans WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete loan", "loan_id", id, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to delete loan").WithDetails(err.Error())
	}
	return checkRowsAffected(result, errors.ErrLoanNotFound.WithDetailsf("loan %d", id))
}

func (r *loanRepository) ListCustomerLoans(ctx context.Context, customerID int64) ([]*domain.Loan, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE customer_id = $1 ORDER BY id`, customerID)
	if err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to list loans").WithDetails(err.Error())
	}
	defer rows.Close()

	var loans []*domain.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, errors.NewAppError(errors.InternalError, "failed to scan loan").WithDetails(err.Error())
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to list loans").WithDetails(err.Error())
	}
	return loans, nil
}

func scanLoan(row rowScanner) (*domain.Loan, error) {
	var (
		loan    domain.Loan
		rateStr string
	)
	err := row.Scan(
		&loan.ID,
		&loan.CustomerID,
		&loan.Principal,
		&rateStr,
		&loan.Amount,
		&loan.Balance,
		&loan.Status,
		&loan.Date,
		&loan.CreatedAt,
		&loan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rate, err := decimal.NewFromString(rateStr)
	if err != nil {
		return nil, err
	}
	loan.InterestRate = rate
	return &loan, nil
}
