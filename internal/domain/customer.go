package domain

import (
	"context"
	"time"

	"microfinance/internal/errors"
)

type CustomerState string

const (
	CustomerActive   CustomerState = "active"
	CustomerInactive CustomerState = "inactive"
)

type Customer struct {
	ID             int64         `json:"id"`
	FirstName      string        `json:"first_name"`
	LastName       string        `json:"last_name"`
	Gender         string        `json:"gender"`
	IdentityNumber string        `json:"identity_number"`
	Contact        string        `json:"contact"`
	Email          *string       `json:"email,omitempty"`
	Address        string        `json:"address"`
	ZoneID         int64         `json:"zone_id"`
	State          CustomerState `json:"state"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (c *Customer) FullName() string {
	return c.FirstName + " " + c.LastName
}

func (c *Customer) IsActive() bool {
	switch c.State {
	case CustomerActive:
		return true
	case CustomerInactive:
		return false
	default:
		return false
	}
}

func (c *Customer) CheckActive() error {
	if !c.IsActive() {
		return errors.ErrCustomerInactive.WithDetailsf("customer %d", c.ID)
	}
	return nil
}

type CustomerRepository interface {
	CreateCustomer(ctx context.Context, customer *Customer) error
	GetCustomer(ctx context.Context, id int64) (*Customer, error)
}
