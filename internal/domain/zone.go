package domain

import (
	"context"
	"time"
)

type Zone struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type ZoneRepository interface {
	CreateZone(ctx context.Context, zone *Zone) error
	GetZone(ctx context.Context, id int64) (*Zone, error)
}
