package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"microfinance/internal/domain"
	"microfinance/internal/errors"
)

// Store provides a unified interface for all repository operations with transaction support
type Store struct {
	db       DB
	executor SQLExecutor
	logger   *slog.Logger
}

var _ domain.Store = (*Store)(nil)

// NewStore creates a new Store instance
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		db:       db,
		executor: db,
		logger:   logger,
	}
}

func (s *Store) Accounts() domain.AccountRepository {
	return NewAccountRepository(s.executor, s.logger)
}

func (s *Store) Customers() domain.CustomerRepository {
	return NewCustomerRepository(s.executor, s.logger)
}

func (s *Store) Users() domain.UserRepository {
	return NewUserRepository(s.executor, s.logger)
}

func (s *Store) Zones() domain.ZoneRepository {
	return NewZoneRepository(s.executor, s.logger)
}

func (s *Store) Loans() domain.LoanRepository {
	return NewLoanRepository(s.executor, s.logger)
}

func (s *Store) Sources() domain.SourceRepository {
	return NewSourceRepository(s.executor, s.logger)
}

func (s *Store) Transactions() domain.TransactionRepository {
	return NewTransactionRepository(s.executor, s.logger)
}

func (s *Store) Audit() domain.AuditRepository {
	return NewAuditRepository(s.executor, s.logger)
}

func (s *Store) TariffRuns() domain.TariffRunRepository {
	return NewTariffRunRepository(s.executor, s.logger)
}

// WithTransaction executes fn within a database transaction. Row locks taken
// with the ForUpdate getters are held until commit or rollback. Calling it on
// a Store that is already inside a transaction joins that transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx domain.Store) error) error {
	if _, inTx := s.executor.(*sql.Tx); inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		s.logger.Error("Failed to begin transaction", "error", err)
		return errors.NewAppError(errors.InternalError, "failed to begin transaction").WithDetails(err.Error())
	}

	txStore := &Store{
		db:       s.db,
		executor: tx,
		logger:   s.logger,
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", "error", err)
		return errors.NewAppError(errors.InternalError, "failed to commit transaction").WithDetails(err.Error())
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if db, ok := s.db.(*sql.DB); ok {
		return db.PingContext(ctx)
	}
	return nil
}
