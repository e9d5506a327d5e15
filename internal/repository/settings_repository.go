package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ap-approvals/internal/database"
	"github.com/pesio-ai/be-ap-approvals/internal/errors"
)

// SettingsRepository reads and writes the approval_settings JSONB document on
// the organizations table. No structural validation happens on write;
// threshold semantics are enforced where the settings are consumed.
type SettingsRepository struct {
	db *database.DB
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db *database.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the organization's approval settings, falling back to defaults
// seeded with the billing email when none were ever persisted.
func (r *SettingsRepository) Get(ctx context.Context, orgID string) (*ApprovalSettings, error) {
	query := `
		SELECT approval_settings, billing_email
		FROM organizations
		WHERE id = $1
	`

	var settingsJSON []byte
	var billingEmail *string
	err := r.db.QueryRow(ctx, query, orgID).Scan(&settingsJSON, &billingEmail)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("organization", orgID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval settings")
	}

	if settingsJSON == nil {
		email := ""
		if billingEmail != nil {
			email = *billingEmail
		}
		return DefaultApprovalSettings(email), nil
	}

	settings := &ApprovalSettings{}
	if err := json.Unmarshal(settingsJSON, settings); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal approval settings")
	}
	return settings, nil
}

// Update persists the settings document for an organization.
func (r *SettingsRepository) Update(ctx context.Context, orgID string, settings *ApprovalSettings) error {
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal approval settings")
	}

	query := `
		UPDATE organizations
		SET approval_settings = $2,
		    updated_at        = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err = r.db.QueryRow(ctx, query, orgID, settingsJSON).Scan(&returnedID)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("organization", orgID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval settings")
	}
	return nil
}
