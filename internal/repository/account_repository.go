package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"microfinance/internal/domain"
	"microfinance/internal/errors"
)

const accountColumns = `id, name, type, balance, state, customer_id, user_id, date_opened, date_closed, created_at, updated_at`

type accountRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewAccountRepository(db SQLExecutor, logger *slog.Logger) domain.AccountRepository {
	return &accountRepository{
		db:     db,
		logger: logger,
	}
}

func (r *accountRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (name, type, balance, state, customer_id, user_id, date_opened)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		account.Name,
		account.Type,
		account.Balance,
		account.State,
		account.CustomerID,
		account.UserID,
		account.DateOpened,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)

	if err != nil {
		if _, ok := constraintViolation(err, pqUniqueViolation); ok {
			r.logger.Warn("Duplicate account creation attempt", "type", account.Type, "user_id", account.UserID)
			return errors.ErrDuplicateAccount
		}
		r.logger.Error("Failed to create account", "type", account.Type, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to create account").WithDetails(err.Error())
	}

	r.logger.Info("Account created successfully", "account_id", account.ID, "type", account.Type)
	return nil
}

func (r *accountRepository) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *accountRepository) GetAccountForUpdate(ctx context.Context, id int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *accountRepository) GetSourceAccount(ctx context.Context) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE type = 'source'`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query))
	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Error("Source account missing")
			return nil, errors.ErrAccountNotFound.WithDetails("source account")
		}
		return nil, errors.NewAppError(errors.InternalError, "failed to get source account").WithDetails(err.Error())
	}
	return account, nil
}

func (r *accountRepository) GetUserAccount(ctx context.Context, userID int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 AND type = 'user'`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Warn("User account not found", "user_id", userID)
			return nil, errors.ErrAccountNotFound.WithDetailsf("no account for user %d", userID)
		}
		r.logger.Error("Failed to get user account", "user_id", userID, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get account").WithDetails(err.Error())
	}
	return account, nil
}

func (r *accountRepository) getOne(ctx context.Context, query string, id int64) (*domain.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Warn("Account not found", "account_id", id)
			return nil, errors.ErrAccountNotFound.WithDetailsf("account %d", id)
		}
		r.logger.Error("Failed to get account", "account_id", id, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get account").WithDetails(err.Error())
	}
	return account, nil
}

func (r *accountRepository) ListCustomerAccounts(ctx context.Context, customerID int64) ([]*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE customer_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to list accounts").WithDetails(err.Error())
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, errors.NewAppError(errors.InternalError, "failed to scan account").WithDetails(err.Error())
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to list accounts").WithDetails(err.Error())
	}
	return accounts, nil
}

func (r *accountRepository) ListOpenCustomerAccountIDs(ctx context.Context) ([]int64, error) {
	query := `SELECT id FROM accounts WHERE type = 'customer' AND state = 'open' ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to list accounts").WithDetails(err.Error())
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewAppError(errors.InternalError, "failed to scan account id").WithDetails(err.Error())
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to list accounts").WithDetails(err.Error())
	}
	return ids, nil
}

func (r *accountRepository) UpdateAccountBalance(ctx context.Context, id int64, balance int64) error {
	query := `
		UPDATE accounts
		SET balance = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.ExecContext(ctx, query, balance, id)
	if err != nil {
		r.logger.Error("Failed to update account balance", "account_id", id, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to update account balance").WithDetails(err.Error())
	}

	if err := checkRowsAffected(result, errors.ErrAccountNotFound.WithDetailsf("account %d", id)); err != nil {
		r.logger.Warn("No account found to update", "account_id", id)
		return err
	}

	r.logger.Info("Account balance updated", "account_id", id, "new_balance", balance)
	return nil
}

func (r *accountRepository) UpdateAccountState(ctx context.Context, account *domain.Account) error {
	query := `
		UPDATE accounts
		SET state = $1, date_closed = $2, updated_at = NOW()
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, account.State, account.DateClosed, account.ID)
	if err != nil {
		r.logger.Error("Failed to update account state", "account_id", account.ID, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to update account state").WithDetails(err.Error())
	}

	return checkRowsAffected(result, errors.ErrAccountNotFound.WithDetailsf("account %d", account.ID))
}

func (r *accountRepository) SumCustomerBalances(ctx context.Context) (domain.Aggregate, error) {
	query := `SELECT COALESCE(SUM(balance), 0), COUNT(*) FROM accounts WHERE type = 'customer' AND state = 'open'`

	var agg domain.Aggregate
	if err := r.db.QueryRowContext(ctx, query).Scan(&agg.Total, &agg.Count); err != nil {
		return domain.Aggregate{}, errors.NewAppError(errors.InternalError, "failed to sum balances").WithDetails(err.Error())
	}
	return agg, nil
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		account    domain.Account
		customerID sql.NullInt64
		userID     sql.NullInt64
		dateClosed sql.NullTime
	)

	err := row.Scan(
		&account.ID,
		&account.Name,
		&account.Type,
		&account.Balance,
		&account.State,
		&customerID,
		&userID,
		&account.DateOpened,
		&dateClosed,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.CustomerID = nullInt64(customerID)
	account.UserID = nullInt64(userID)
	account.DateClosed = nullTime(dateClosed)
	return &account, nil
}
