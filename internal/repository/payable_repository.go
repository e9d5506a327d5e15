package repository

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ap-approvals/internal/database"
	"github.com/pesio-ai/be-ap-approvals/internal/errors"
)

// PayableRepository is the engine's narrow view of the payable store: a
// read for notification content plus the workflow-id write-back. Payable
// CRUD belongs to the surrounding application.
type PayableRepository struct {
	db *database.DB
}

// NewPayableRepository creates a new PayableRepository.
func NewPayableRepository(db *database.DB) *PayableRepository {
	return &PayableRepository{db: db}
}

// GetByID retrieves a payable.
func (r *PayableRepository) GetByID(ctx context.Context, id string) (*Payable, error) {
	query := `
		SELECT id, organization_id, vendor_name, amount, currency,
		       description, due_date, workflow_id, created_by, created_at
		FROM payables
		WHERE id = $1
	`

	p := &Payable{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.OrganizationID,
		&p.VendorName,
		&p.Amount,
		&p.Currency,
		&p.Description,
		&p.DueDate,
		&p.WorkflowID,
		&p.CreatedBy,
		&p.CreatedAt,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("payable", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get payable")
	}
	return p, nil
}

// SetWorkflowID writes the generated workflow id back onto the payable.
func (r *PayableRepository) SetWorkflowID(ctx context.Context, payableID, workflowID string) error {
	query := `
		UPDATE payables
		SET workflow_id = $2,
		    updated_at  = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, payableID, workflowID).Scan(&returnedID)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("payable", payableID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to link workflow to payable")
	}
	return nil
}
