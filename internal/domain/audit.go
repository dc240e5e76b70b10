package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EntityAccount = "account"
	EntityLoan    = "loan"
	EntitySource  = "source"
)

// AuditEntry records a balance mutation with before and after snapshots. It
// is written in the same database transaction as the mutation.
type AuditEntry struct {
	ID            uuid.UUID       `json:"id"`
	EntityType    string          `json:"entity_type"`
	EntityID      int64           `json:"entity_id"`
	Action        string          `json:"action"`
	OldValues     json.RawMessage `json:"old_values,omitempty"`
	NewValues     json.RawMessage `json:"new_values"`
	UserID        *int64          `json:"user_id,omitempty"`
	TransactionID *uuid.UUID      `json:"transaction_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type AuditRepository interface {
	CreateAuditEntry(ctx context.Context, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, entityType string, entityID int64) ([]*AuditEntry, error)
}
