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

type auditRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewAuditRepository(db SQLExecutor, logger *slog.Logger) domain.AuditRepository {
	return &auditRepository{db: db, logger: logger}
}

// CreateAuditEntry inserts an audit row using the current executor, so inside
// WithTransaction it commits or rolls back with the mutation it describes.
func (r *auditRepository) CreateAuditEntry(ctx context.Context, entry *domain.AuditEntry) error {
	query := `
		INSERT INTO audit_logs (id, entity_type, entity_id, action, old_values, new_values, user_id, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	var oldValues any
	if entry.OldValues != nil {
		oldValues = []byte(entry.OldValues)
	}

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.EntityType,
		entry.EntityID,
		entry.Action,
		oldValues,
		[]byte(entry.NewValues),
		entry.UserID,
		entry.TransactionID,
		entry.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create audit entry", "entity_type", entry.EntityType, "entity_id", entry.EntityID, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to create audit entry").WithDetails(err.Error())
	}
	return nil
}

func (r *auditRepository) ListAuditEntries(ctx context.Context, entityType string, entityID int64) ([]*domain.AuditEntry, error) {
	query := `
		SELECT id, entity_type, entity_id, action, old_values, new_values, user_id, transaction_id, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to list audit entries").WithDetails(err.Error())
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		var (
			entry         domain.AuditEntry
			oldValues     []byte
			newValues     []byte
			userID        sql.NullInt64
			transactionID uuid.NullUUID
		)
		if err := rows.Scan(
			&entry.ID, &entry.EntityType, &entry.EntityID, &entry.Action,
			&oldValues, &newValues, &userID, &transactionID, &entry.CreatedAt,
		); err != nil {
			return nil, errors.NewAppError(errors.InternalError, "failed to scan audit entry").WithDetails(err.Error())
		}

		if oldValues != nil {
			entry.OldValues = oldValues
		}
		entry.NewValues = newValues
		entry.UserID = nullInt64(userID)
		if transactionID.Valid {
			id := transactionID.UUID
			entry.TransactionID = &id
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to list audit entries").WithDetails(err.Error())
	}
	return entries, nil
}
