package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ap-approvals/internal/database"
	"github.com/pesio-ai/be-ap-approvals/internal/errors"
)

// OrganizationRepository is the read-side of the organization directory:
// membership and billing contact. Organization CRUD lives elsewhere.
type OrganizationRepository struct {
	db *database.DB
}

// NewOrganizationRepository creates a new OrganizationRepository.
func NewOrganizationRepository(db *database.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// GetByID returns the organization with its members decoded.
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*Organization, error) {
	query := `
		SELECT id, name, billing_email, members
		FROM organizations
		WHERE id = $1
	`

	org := &Organization{}
	var billingEmail *string
	var membersJSON []byte

	err := r.db.QueryRow(ctx, query, id).Scan(&org.ID, &org.Name, &billingEmail, &membersJSON)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("organization", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get organization")
	}

	if billingEmail != nil {
		org.BillingEmail = *billingEmail
	}
	if membersJSON != nil {
		if err := json.Unmarshal(membersJSON, &org.Members); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal organization members")
		}
	}
	return org, nil
}

// FindMember returns the membership record for a user, or nil when the user
// does not belong to the organization.
func (o *Organization) FindMember(userID string) *OrganizationMember {
	for i := range o.Members {
		if o.Members[i].UserID == userID {
			return &o.Members[i]
		}
	}
	return nil
}
