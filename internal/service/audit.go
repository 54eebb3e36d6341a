package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/wallet-transfer/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditService writes immutable audit trail entries.
type AuditService struct {
	db *pgxpool.Pool
}

func NewAuditService(db *pgxpool.Pool) *AuditService {
	return &AuditService{db: db}
}

// Write stores a single immutable audit record.
func (s *AuditService) Write(ctx context.Context, entry models.AuditEntry) error {
	var metadata any
	if len(entry.Metadata) > 0 {
		metadata = string(entry.Metadata)
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO audit_log (entity_type, entity_id, action, metadata, created_at)
		VALUES ($1, $2, $3, $4::jsonb, COALESCE($5, NOW()))`,
		entry.EntityType, entry.EntityID, entry.Action, metadata, nullTime(entry),
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListForEntity returns the trail of one entity, oldest first.
func (s *AuditService) ListForEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, entity_type, entity_id, action, COALESCE(metadata::text, ''), created_at
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY id`,
		entityType, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var (
			e        models.AuditEntry
			metadata string
		)
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		if metadata != "" {
			e.Metadata = []byte(metadata)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullTime(entry models.AuditEntry) any {
	if entry.CreatedAt.IsZero() {
		return nil
	}
	return entry.CreatedAt
}
