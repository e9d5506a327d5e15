package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pesio-ai/be-ap-approvals/internal/database"
	"github.com/pesio-ai/be-ap-approvals/internal/errors"
)

// uniqueViolation is the PostgreSQL error code raised by the unique index on
// approval_workflows.payable_id.
const uniqueViolation = "23505"

// WorkflowRepository persists the ApprovalWorkflow aggregate. Steps live
// inside the workflow row as an ordered JSONB array, so creation is a single
// atomic insert and decisions are a single conditional update.
type WorkflowRepository struct {
	db *database.DB
}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository(db *database.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Create inserts the workflow with all of its steps. The unique index on
// payable_id enforces the one-workflow-per-payable invariant; a violation
// surfaces as a conflict.
func (r *WorkflowRepository) Create(ctx context.Context, wf *ApprovalWorkflow) error {
	stepsJSON, err := json.Marshal(wf.Steps)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal approval steps")
	}
	rulesJSON, err := json.Marshal(wf.AppliedRules)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal applied rules")
	}

	query := `
		INSERT INTO approval_workflows
		    (payable_id, organization_id, status, current_step,
		     steps, applied_rules, created_by)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		wf.PayableID,
		wf.OrganizationID,
		wf.Status,
		wf.CurrentStep,
		stepsJSON,
		rulesJSON,
		wf.CreatedBy,
	).Scan(&wf.ID, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return errors.New(errors.ErrCodeConflict, "approval workflow already exists for payable")
		}
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval workflow")
	}
	return nil
}

// GetByID retrieves a workflow by its primary key.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*ApprovalWorkflow, error) {
	query := selectWorkflow + ` WHERE id = $1`

	wf, err := r.scanWorkflow(r.db.QueryRow(ctx, query, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("approval_workflow", id)
	}
	return wf, err
}

// GetByPayableID returns the workflow gating a payable. Returns nil (no
// error) when the payable never required approval.
func (r *WorkflowRepository) GetByPayableID(ctx context.Context, payableID string) (*ApprovalWorkflow, error) {
	query := selectWorkflow + ` WHERE payable_id = $1`

	wf, err := r.scanWorkflow(r.db.QueryRow(ctx, query, payableID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return wf, err
}

// GetPendingForApprover returns pending workflows containing an undecided
// step assigned to the approver. The step-turn guard (stepNumber must not
// exceed currentStep) is applied by the caller over the decoded steps.
func (r *WorkflowRepository) GetPendingForApprover(ctx context.Context, approverID string) ([]*ApprovalWorkflow, error) {
	query := selectWorkflow + `
		WHERE status = 'pending'
		  AND EXISTS (
		      SELECT 1 FROM jsonb_array_elements(steps) AS step
		      WHERE step->>'approverId' = $1
		        AND step->>'decision' = 'pending'
		  )
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, approverID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to query pending workflows")
	}
	defer rows.Close()

	var workflows []*ApprovalWorkflow
	for rows.Next() {
		wf, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan workflow")
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// CompleteDecision persists the updated step list, status and current step.
// The write is conditional on the workflow still being pending at the step
// the decision was validated against; a concurrent decision makes the update
// match zero rows, which surfaces as a conflict. This is the per-workflow
// serialization point.
func (r *WorkflowRepository) CompleteDecision(ctx context.Context, wf *ApprovalWorkflow, expectedStep int) error {
	stepsJSON, err := json.Marshal(wf.Steps)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal approval steps")
	}

	query := `
		UPDATE approval_workflows
		SET status       = $3,
		    steps        = $4,
		    current_step = $5,
		    updated_at   = NOW()
		WHERE id = $1
		  AND status = 'pending'
		  AND current_step = $2
		RETURNING updated_at
	`

	err = r.db.QueryRow(ctx, query,
		wf.ID,
		expectedStep,
		wf.Status,
		stepsJSON,
		wf.CurrentStep,
	).Scan(&wf.UpdatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.New(errors.ErrCodeConflict, "workflow was modified concurrently")
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to record decision")
	}
	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

const selectWorkflow = `
	SELECT id, payable_id, organization_id, status, current_step,
	       steps, applied_rules, created_by,
	       created_at, updated_at
	FROM approval_workflows`

type workflowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanWorkflow(row workflowScanner) (*ApprovalWorkflow, error) {
	wf := &ApprovalWorkflow{}
	var stepsJSON, rulesJSON []byte

	err := row.Scan(
		&wf.ID,
		&wf.PayableID,
		&wf.OrganizationID,
		&wf.Status,
		&wf.CurrentStep,
		&stepsJSON,
		&rulesJSON,
		&wf.CreatedBy,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(stepsJSON, &wf.Steps); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal approval steps")
	}
	if err := json.Unmarshal(rulesJSON, &wf.AppliedRules); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal applied rules")
	}
	return wf, nil
}
