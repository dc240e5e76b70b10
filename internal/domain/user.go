package domain

import (
	"context"
	"time"

	"microfinance/internal/errors"
)

type Role string

const (
	RoleManager    Role = "manager"
	RoleAccountant Role = "accountant"
	RoleCollector  Role = "collector"
)

func (r Role) Valid() bool {
	switch r {
	case RoleManager, RoleAccountant, RoleCollector:
		return true
	default:
		return false
	}
}

type UserState string

const (
	UserActive   UserState = "active"
	UserInactive UserState = "inactive"
)

// User is a staff member. Every user owns one account of type user.
type User struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	State     UserState `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

func (u *User) IsActive() bool {
	switch u.State {
	case UserActive:
		return true
	case UserInactive:
		return false
	default:
		return false
	}
}

func (u *User) CheckActive() error {
	if !u.IsActive() {
		return errors.ErrInactiveUser.WithDetailsf("user %d", u.ID)
	}
	return nil
}

func (u *User) CheckRole(role Role) error {
	if u.Role != role {
		return errors.ErrWrongRole.WithDetailsf("user %d has role %s, expected %s", u.ID, u.Role, role)
	}
	return nil
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
}
