package service

import (
	"context"
	"log/slog"
	"strings"

	"microfinance/internal/clock"
	"microfinance/internal/domain"
	"microfinance/internal/errors"
)

// DirectoryService registers the people and places the ledger refers to.
// Registering a customer or a user also opens their account.
type DirectoryService struct {
	store  domain.Store
	clock  clock.Clock
	logger *slog.Logger
}

func NewDirectoryService(store domain.Store, clk clock.Clock, logger *slog.Logger) *DirectoryService {
	return &DirectoryService{
		store:  store,
		clock:  clk,
		logger: logger,
	}
}

type CreateCustomerRequest struct {
	FirstName      string
	LastName       string
	Gender         string
	IdentityNumber string
	Contact        string
	Email          *string
	Address        string
	ZoneID         int64
}

type CreateUserRequest struct {
	FirstName string
	LastName  string
	Email     string
	Role      domain.Role
}

func (s *DirectoryService) CreateZone(ctx context.Context, name string) (*domain.Zone, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.ErrInvalidInput.WithDetails("zone name is required")
	}

	zone := &domain.Zone{Name: name}
	if err := s.store.Zones().CreateZone(ctx, zone); err != nil {
		return nil, err
	}

	s.logger.Info("Zone created", "zone_id", zone.ID, "name", zone.Name)
	return zone, nil
}

func (s *DirectoryService) GetZone(ctx context.Context, id int64) (*domain.Zone, error) {
	return s.store.Zones().GetZone(ctx, id)
}

// CreateCustomer registers an active customer and opens their first account.
func (s *DirectoryService) CreateCustomer(ctx context.Context, req CreateCustomerRequest, actorID *int64) (*domain.Customer, *domain.Account, error) {
	var (
		customer *domain.Customer
		account  *domain.Account
	)
	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		if _, err := tx.Zones().GetZone(ctx, req.ZoneID); err != nil {
			return err
		}

		customer = &domain.Customer{
			FirstName:      req.FirstName,
			LastName:       req.LastName,
			Gender:         req.Gender,
			IdentityNumber: req.IdentityNumber,
			Contact:        req.Contact,
			Email:          req.Email,
			Address:        req.Address,
			ZoneID:         req.ZoneID,
			State:          domain.CustomerActive,
		}
		if err := tx.Customers().CreateCustomer(ctx, customer); err != nil {
			return err
		}

		var err error
		account, err = openAccount(ctx, tx, s.clock, accountOwner{
			fallback:   customer.FullName(),
			kind:       domain.AccountTypeCustomer,
			customerID: &customer.ID,
		}, actorID)
		return err
	})
	if err != nil {
		s.logger.Warn("Customer registration failed", "identity_number", req.IdentityNumber, "error", err)
		return nil, nil, err
	}

	s.logger.Info("Customer created", "customer_id", customer.ID, "account_id", account.ID)
	return customer, account, nil
}

func (s *DirectoryService) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	return s.store.Customers().GetCustomer(ctx, id)
}

// CreateUser registers an active staff member and opens their account.
func (s *DirectoryService) CreateUser(ctx context.Context, req CreateUserRequest, actorID *int64) (*domain.User, *domain.Account, error) {
	if !req.Role.Valid() {
		return nil, nil, errors.ErrInvalidInput.WithDetailsf("unknown role %q", req.Role)
	}

	var (
		user    *domain.User
		account *domain.Account
	)
	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		user = &domain.User{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     strings.ToLower(strings.TrimSpace(req.Email)),
			Role:      req.Role,
			State:     domain.UserActive,
		}
		if err := tx.Users().CreateUser(ctx, user); err != nil {
			return err
		}

		var err error
		account, err = openAccount(ctx, tx, s.clock, accountOwner{
			fallback: user.FullName(),
			kind:     domain.AccountTypeUser,
			userID:   &user.ID,
		}, actorID)
		return err
	})
	if err != nil {
		s.logger.Warn("User registration failed", "email", req.Email, "error", err)
		return nil, nil, err
	}

	s.logger.Info("User created", "user_id", user.ID, "role", user.Role, "account_id", account.ID)
	return user, account, nil
}

func (s *DirectoryService) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return s.store.Users().GetUser(ctx, id)
}
