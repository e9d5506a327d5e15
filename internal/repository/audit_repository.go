package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ap-approvals/internal/database"
	"github.com/pesio-ai/be-ap-approvals/internal/errors"
)

// AuditRepository appends and reads immutable audit log entries. Append is
// the only mutation it exposes; the table carries a delete-prevention
// trigger as a second line of defense.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO audit_logs
		    (organization_id, actor_id, actor_email, actor_role,
		     action, entity_type, entity_id,
		     description, metadata)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7,
		        $8, $9)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		entry.OrganizationID,
		entry.ActorID,
		entry.ActorEmail,
		entry.ActorRole,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		entry.Description,
		metadataJSON,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

// GetByEntity returns the audit trail for one entity, oldest first.
func (r *AuditRepository) GetByEntity(ctx context.Context, orgID, entityID string) ([]*AuditEntry, error) {
	query := selectAudit + `
		WHERE organization_id = $1 AND entity_id = $2
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, orgID, entityID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit trail")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// GetByOrganization returns the most recent entries for an organization,
// newest first, capped at limit.
func (r *AuditRepository) GetByOrganization(ctx context.Context, orgID string, limit int) ([]*AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := selectAudit + `
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, orgID, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get organization audit log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

const selectAudit = `
	SELECT id, organization_id, actor_id, actor_email, actor_role,
	       action, entity_type, entity_id,
	       description, metadata, created_at
	FROM audit_logs`

func (r *AuditRepository) scanRows(rows pgx.Rows) ([]*AuditEntry, error) {
	var entries []*AuditEntry
	for rows.Next() {
		entry := &AuditEntry{}
		var metadataJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.OrganizationID,
			&entry.ActorID,
			&entry.ActorEmail,
			&entry.ActorRole,
			&entry.Action,
			&entry.EntityType,
			&entry.EntityID,
			&entry.Description,
			&metadataJSON,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
		}

		// Read side decodes metadata generically; the typed payloads are a
		// write-time contract.
		if metadataJSON != nil {
			var metadata map[string]any
			if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
			}
			entry.Metadata = metadata
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
