package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"microfinance/internal/domain"
	"microfinance/internal/errors"
)

type customerRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewCustomerRepository(db SQLExecutor, logger *slog.Logger) domain.CustomerRepository {
	return &customerRepository{db: db, logger: logger}
}

func (r *customerRepository) CreateCustomer(ctx context.Context, c *domain.Customer) error {
	query := `
		INSERT INTO customers (first_name, last_name, gender, identity_number, contact, email, address, zone_id, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		c.FirstName, c.LastName, c.Gender, c.IdentityNumber, c.Contact, c.Email, c.Address, c.ZoneID, c.State,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)

	if err != nil {
		if constraint, ok := constraintViolation(err, pqUniqueViolation); ok {
			r.logger.Warn("Duplicate customer", "constraint", constraint)
			return errors.ErrDuplicateCustomer.WithDetails(constraint)
		}
		if _, ok := constraintViolation(err, pqForeignKeyViolation); ok {
			return errors.ErrZoneNotFound.WithDetailsf("zone %d", c.ZoneID)
		}
		r.logger.Error("Failed to create customer", "error", err)
		return errors.NewAppError(errors.InternalError, "failed to create customer").WithDetails(err.Error())
	}

	r.logger.Info("Customer created successfully", "customer_id", c.ID)
	return nil
}

func (r *customerRepository) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	query := `
		SELECT id, first_name, last_name, gender, identity_number, contact, email, address, zone_id, state, created_at, updated_at
		FROM customers WHERE id = $1
	`

	var (
		c     domain.Customer
		email sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.Gender, &c.IdentityNumber, &c.Contact,
		&email, &c.Address, &c.ZoneID, &c.State, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Warn("Customer not found", "customer_id", id)
			return nil, errors.ErrCustomerNotFound.WithDetailsf("customer %d", id)
		}
		r.logger.Error("Failed to get customer", "customer_id", id, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get customer").WithDetails(err.Error())
	}

	c.Email = nullString(email)
	return &c, nil
}

type userRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewUserRepository(db SQLExecutor, logger *slog.Logger) domain.UserRepository {
	return &userRepository{db: db, logger: logger}
}

func (r *userRepository) CreateUser(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (first_name, last_name, email, role, state)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query, u.FirstName, u.LastName, u.Email, u.Role, u.State).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if _, ok := constraintViolation(err, pqUniqueViolation); ok {
			r.logger.Warn("Duplicate user", "email", u.Email)
			return errors.ErrDuplicateUser
		}
		r.logger.Error("Failed to create user", "error", err)
		return errors.NewAppError(errors.InternalError, "failed to create user").WithDetails(err.Error())
	}

	r.logger.Info("User created successfully", "user_id", u.ID, "role", u.Role)
	return nil
}

func (r *userRepository) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT id, first_name, last_name, email, role, state, created_at, updated_at FROM users WHERE id = $1`

	var u domain.User
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Role, &u.State, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Warn("User not found", "user_id", id)
			return nil, errors.ErrUserNotFound.WithDetailsf("user %d", id)
		}
		r.logger.Error("Failed to get user", "user_id", id, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get user").WithDetails(err.Error())
	}
	return &u, nil
}

type zoneRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewZoneRepository(db SQLExecutor, logger *slog.Logger) domain.ZoneRepository {
	return &zoneRepository{db: db, logger: logger}
}

func (r *zoneRepository) CreateZone(ctx context.Context, z *domain.Zone) error {
	query := `INSERT INTO zones (name) VALUES ($1) RETURNING id, created_at`

	if err := r.db.QueryRowContext(ctx, query, z.Name).Scan(&z.ID, &z.CreatedAt); err != nil {
		if _, ok := constraintViolation(err, pqUniqueViolation); ok {
			return errors.ErrDuplicateZone.WithDetails(z.Name)
		}
		r.logger.Error("Failed to create zone", "error", err)
		return errors.NewAppError(errors.InternalError, "failed to create zone").WithDetails(err.Error())
	}

	r.logger.Info("Zone created successfully", "zone_id", z.ID)
	return nil
}

func (r *zoneRepository) GetZone(ctx context.Context, id int64) (*domain.Zone, error) {
	query := `SELECT id, name, created_at FROM zones WHERE id = $1`

	var z domain.Zone
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&z.ID, &z.Name, &z.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrZoneNotFound.WithDetailsf("zone %d", id)
		}
		return nil, errors.NewAppError(errors.InternalError, "failed to get zone").WithDetails(err.Error())
	}
	return &z, nil
}
