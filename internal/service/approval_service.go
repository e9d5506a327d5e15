package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pesio-ai/be-ap-approvals/internal/errors"
	"github.com/pesio-ai/be-ap-approvals/internal/logger"
	"github.com/pesio-ai/be-ap-approvals/internal/repository"
)

// ── Collaborator interfaces ───────────────────────────────────────────────────

// SettingsStore is the per-organization approval policy store.
type SettingsStore interface {
	Get(ctx context.Context, orgID string) (*repository.ApprovalSettings, error)
	Update(ctx context.Context, orgID string, settings *repository.ApprovalSettings) error
}

// WorkflowStore persists the workflow aggregate.
type WorkflowStore interface {
	Create(ctx context.Context, wf *repository.ApprovalWorkflow) error
	GetByID(ctx context.Context, id string) (*repository.ApprovalWorkflow, error)
	GetByPayableID(ctx context.Context, payableID string) (*repository.ApprovalWorkflow, error)
	GetPendingForApprover(ctx context.Context, approverID string) ([]*repository.ApprovalWorkflow, error)
	CompleteDecision(ctx context.Context, wf *repository.ApprovalWorkflow, expectedStep int) error
}

// OrganizationDirectory resolves organizations and their membership.
type OrganizationDirectory interface {
	GetByID(ctx context.Context, id string) (*repository.Organization, error)
}

// PayableStore is the engine's view of the payable record.
type PayableStore interface {
	GetByID(ctx context.Context, id string) (*repository.Payable, error)
	SetWorkflowID(ctx context.Context, payableID, workflowID string) error
}

// AuditStore appends and reads the immutable compliance trail.
type AuditStore interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
	GetByEntity(ctx context.Context, orgID, entityID string) ([]*repository.AuditEntry, error)
	GetByOrganization(ctx context.Context, orgID string, limit int) ([]*repository.AuditEntry, error)
}

// Notifier dispatches approval events. Implementations are fire-and-forget;
// they must never return control-flow-affecting failures.
type Notifier interface {
	NotifyApprovalRequested(ctx context.Context, approverEmail string, payable *repository.Payable, wf *repository.ApprovalWorkflow, orgName string)
	NotifyApprovalDecision(ctx context.Context, creatorEmail string, decision repository.Decision, payable *repository.Payable, approverEmail string, comments *string, orgName string)
}

const autoApprovedReason = "Auto-approved based on rules"

// ApprovalService is the approval workflow engine: policy access, workflow
// building, decision processing, audit recording and read queries.
type ApprovalService struct {
	settings  SettingsStore
	workflows WorkflowStore
	orgs      OrganizationDirectory
	payables  PayableStore
	audit     AuditStore
	notifier  Notifier
	log       *logger.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	settings SettingsStore,
	workflows WorkflowStore,
	orgs OrganizationDirectory,
	payables PayableStore,
	audit AuditStore,
	notifier Notifier,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		settings:  settings,
		workflows: workflows,
		orgs:      orgs,
		payables:  payables,
		audit:     audit,
		notifier:  notifier,
		log:       log,
	}
}

// ── Policy store ──────────────────────────────────────────────────────────────

// GetSettings returns the organization's approval settings, defaulted when
// none were ever persisted.
func (s *ApprovalService) GetSettings(ctx context.Context, orgID string) (*repository.ApprovalSettings, error) {
	return s.settings.Get(ctx, orgID)
}

// UpdateSettings persists new approval settings. Only admins and owners may
// change policy. Threshold ordering is deliberately not validated here —
// partial updates are allowed and classification at use time tolerates any
// ordering.
func (s *ApprovalService) UpdateSettings(ctx context.Context, orgID, actorID string, settings *repository.ApprovalSettings) error {
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return err
	}

	member := org.FindMember(actorID)
	if member == nil || !member.Role.IsFallback() {
		return errors.New(errors.ErrCodeUnauthorized, "only admins and owners can change approval settings")
	}

	if err := s.settings.Update(ctx, orgID, settings); err != nil {
		return err
	}

	s.appendAudit(ctx, org, actorID, &repository.AuditEntry{
		OrganizationID: orgID,
		Action:         repository.AuditActionSettingsChange,
		EntityType:     repository.EntityOrganization,
		EntityID:       orgID,
		Description:    "Approval settings updated",
	})

	s.log.Info().
		Str("organization_id", orgID).
		Str("actor_id", actorID).
		Msg("Approval settings updated")

	return nil
}

// ── Workflow builder ──────────────────────────────────────────────────────────

// CreateWorkflow materializes the approval workflow for a payable amount:
// tier classification, auto-approval check, ordered step assignment with
// fallback wraparound, atomic persistence, audit entry, payable write-back
// and first-approver notification.
func (s *ApprovalService) CreateWorkflow(
	ctx context.Context,
	payableID, orgID, createdBy string,
	amount float64,
) (*repository.ApprovalWorkflow, error) {
	settings, err := s.settings.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}

	tier := classifyTier(amount, settings.ApprovalRules.AmountThresholds)
	required := settings.ApprovalRules.RequiredApprovers.ForTier(tier)
	autoApproved := shouldAutoApprove(amount, settings)

	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	primary, fallback := ResolveApprovers(org.Members)

	var steps []repository.ApprovalStep
	if !autoApproved {
		steps = buildSteps(required, primary, fallback)
	}

	wf := &repository.ApprovalWorkflow{
		PayableID:      payableID,
		OrganizationID: orgID,
		CreatedBy:      createdBy,
		Steps:          steps,
		AppliedRules: repository.AppliedRules{
			AmountThreshold:   tier,
			RequiredApprovers: required,
			AutoApproved:      autoApproved,
		},
	}
	if autoApproved {
		reason := autoApprovedReason
		wf.AppliedRules.Reason = &reason
		wf.Status = repository.WorkflowApproved
		wf.CurrentStep = len(steps) + 1
	} else {
		wf.Status = repository.WorkflowPending
		wf.CurrentStep = 1
	}

	if err := s.workflows.Create(ctx, wf); err != nil {
		return nil, err
	}

	// The workflow insert is the atomic operation; the payable link is a
	// collaborator side effect and must not undo it.
	if err := s.payables.SetWorkflowID(ctx, payableID, wf.ID); err != nil {
		s.log.Warn().Err(err).
			Str("payable_id", payableID).
			Str("workflow_id", wf.ID).
			Msg("Failed to link workflow to payable")
	}

	s.appendAudit(ctx, org, createdBy, &repository.AuditEntry{
		OrganizationID: orgID,
		Action:         repository.AuditActionCreate,
		EntityType:     repository.EntityApproval,
		EntityID:       wf.ID,
		Description:    "Approval workflow created",
		Metadata: repository.WorkflowCreatedMetadata{
			Amount:            amount,
			AmountThreshold:   tier,
			RequiredApprovers: required,
			AutoApproved:      autoApproved,
		},
	})

	s.log.Info().
		Str("payable_id", payableID).
		Str("workflow_id", wf.ID).
		Str("tier", string(tier)).
		Int("steps", len(wf.Steps)).
		Bool("auto_approved", autoApproved).
		Msg("Approval workflow created")

	if wf.Status == repository.WorkflowPending && len(wf.Steps) > 0 {
		s.notifyApprovalRequested(ctx, wf, org, wf.Steps[0].ApproverEmail)
	}

	return wf, nil
}

// classifyTier buckets an amount into its threshold tier. Boundary values
// belong to the upper bucket: an amount exactly at the low boundary is
// medium, exactly at the medium boundary is high.
func classifyTier(amount float64, t repository.AmountThresholds) repository.Tier {
	switch {
	case amount < t.Low:
		return repository.TierLow
	case amount < t.Medium:
		return repository.TierMedium
	default:
		return repository.TierHigh
	}
}

// shouldAutoApprove applies the auto-approval rules. Only the amount ceiling
// is evaluated; the vendor/category allow-lists in the settings schema are
// reserved configuration surface.
func shouldAutoApprove(amount float64, settings *repository.ApprovalSettings) bool {
	auto := settings.ApprovalRules.AutoApprove
	if !auto.Enabled {
		return false
	}
	return amount <= auto.Conditions.AmountLimit
}

// buildSteps assigns one approver per required step. Step i takes primary[i]
// when it exists, otherwise wraps through the fallback pool; when both pools
// are exhausted the step is skipped and the workflow shrinks.
func buildSteps(required int, primary, fallback []repository.OrganizationMember) []repository.ApprovalStep {
	now := time.Now().UTC()
	var steps []repository.ApprovalStep

	for i := 0; i < required; i++ {
		var approver *repository.OrganizationMember
		isFallback := false

		if i < len(primary) {
			approver = &primary[i]
		} else if len(fallback) > 0 {
			approver = &fallback[i%len(fallback)]
			isFallback = true
		}
		if approver == nil {
			continue
		}

		steps = append(steps, repository.ApprovalStep{
			StepNumber:    i + 1,
			ApproverID:    approver.UserID,
			ApproverEmail: approver.Email,
			ApproverRole:  approver.Role,
			Decision:      repository.DecisionPending,
			AssignedAt:    now,
			IsFallback:    isFallback,
		})
	}
	return steps
}

// ── Decision processor ────────────────────────────────────────────────────────

// RecordDecision applies one approver's decision to the current step and
// advances or terminates the workflow. A decision from anyone other than the
// current step's assigned approver is rejected as not-found so callers learn
// nothing about the workflow's internals.
func (s *ApprovalService) RecordDecision(
	ctx context.Context,
	workflowID, approverID string,
	decision repository.Decision,
	comments *string,
) error {
	if decision != repository.DecisionApproved && decision != repository.DecisionRejected {
		return errors.InvalidInput("decision", "must be 'approved' or 'rejected'")
	}

	wf, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return err
	}
	if wf.Status.Terminal() {
		return errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("workflow is not pending (status: %s)", wf.Status))
	}

	step := wf.CurrentPendingStep()
	if step == nil {
		return errors.NotFound("approval_step", workflowID)
	}
	if step.ApproverID != approverID {
		s.log.Warn().
			Str("workflow_id", workflowID).
			Str("approver_id", approverID).
			Int("current_step", wf.CurrentStep).
			Msg("Decision rejected: caller is not the current step's approver")
		return errors.NotFound("approval_workflow", workflowID)
	}

	now := time.Now().UTC()
	step.Decision = decision
	step.Comments = comments
	step.CompletedAt = &now

	decidedStep := wf.CurrentStep
	switch {
	case decision == repository.DecisionRejected:
		wf.Status = repository.WorkflowRejected
	case decidedStep == len(wf.Steps):
		wf.Status = repository.WorkflowApproved
		wf.CurrentStep = len(wf.Steps) + 1
	default:
		wf.CurrentStep++
	}

	if err := s.workflows.CompleteDecision(ctx, wf, decidedStep); err != nil {
		return err
	}

	action := repository.AuditActionApprove
	if decision == repository.DecisionRejected {
		action = repository.AuditActionReject
	}

	org, orgErr := s.orgs.GetByID(ctx, wf.OrganizationID)
	if orgErr != nil {
		s.log.Warn().Err(orgErr).
			Str("organization_id", wf.OrganizationID).
			Msg("Could not load organization for audit/notification context")
	}

	s.appendAudit(ctx, org, approverID, &repository.AuditEntry{
		OrganizationID: wf.OrganizationID,
		Action:         action,
		EntityType:     repository.EntityApproval,
		EntityID:       wf.ID,
		Description:    fmt.Sprintf("Payable %s by approver", decision),
		Metadata: repository.DecisionMetadata{
			PayableID:   wf.PayableID,
			StepNumber:  decidedStep,
			Comments:    comments,
			FinalStatus: wf.Status,
		},
	})

	s.log.Info().
		Str("workflow_id", wf.ID).
		Str("approver_id", approverID).
		Str("decision", string(decision)).
		Int("step", decidedStep).
		Str("status", string(wf.Status)).
		Msg("Approval decision recorded")

	s.notifyDecision(ctx, wf, org, step.ApproverEmail, decision, comments)

	return nil
}

// ── Query service ─────────────────────────────────────────────────────────────

// GetWorkflow returns the workflow gating a payable, or nil when none exists.
func (s *ApprovalService) GetWorkflow(ctx context.Context, payableID string) (*repository.ApprovalWorkflow, error) {
	return s.workflows.GetByPayableID(ctx, payableID)
}

// GetPendingApprovals returns the pending workflows awaiting a decision from
// the approver. Steps whose turn has not arrived are filtered out.
func (s *ApprovalService) GetPendingApprovals(ctx context.Context, approverID string) ([]*repository.ApprovalWorkflow, error) {
	candidates, err := s.workflows.GetPendingForApprover(ctx, approverID)
	if err != nil {
		return nil, err
	}

	workflows := make([]*repository.ApprovalWorkflow, 0, len(candidates))
	for _, wf := range candidates {
		for _, step := range wf.Steps {
			if step.ApproverID == approverID &&
				step.Decision == repository.DecisionPending &&
				step.StepNumber <= wf.CurrentStep {
				workflows = append(workflows, wf)
				break
			}
		}
	}
	return workflows, nil
}

// GetAuditTrail returns the full audit trail for an entity, oldest first.
func (s *ApprovalService) GetAuditTrail(ctx context.Context, orgID, entityID string) ([]*repository.AuditEntry, error) {
	return s.audit.GetByEntity(ctx, orgID, entityID)
}

// GetOrganizationAudit returns the most recent audit entries across an
// organization, newest first.
func (s *ApprovalService) GetOrganizationAudit(ctx context.Context, orgID string, limit int) ([]*repository.AuditEntry, error) {
	return s.audit.GetByOrganization(ctx, orgID, limit)
}

// ── Audit recorder ────────────────────────────────────────────────────────────

// appendAudit resolves the actor from the organization membership and writes
// an audit entry. Best-effort: failures are logged and never surface to the
// primary operation.
func (s *ApprovalService) appendAudit(ctx context.Context, org *repository.Organization, actorID string, entry *repository.AuditEntry) {
	entry.ActorID = actorID
	entry.ActorRole = "unknown"
	if org != nil {
		if member := org.FindMember(actorID); member != nil {
			entry.ActorEmail = member.Email
			entry.ActorRole = member.Role
		}
	}

	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("organization_id", entry.OrganizationID).
			Str("action", string(entry.Action)).
			Str("entity_id", entry.EntityID).
			Msg("Failed to write audit log entry")
	}
}

// ── Notification triggers ─────────────────────────────────────────────────────

func (s *ApprovalService) notifyApprovalRequested(ctx context.Context, wf *repository.ApprovalWorkflow, org *repository.Organization, approverEmail string) {
	if s.notifier == nil {
		return
	}
	payable, err := s.payables.GetByID(ctx, wf.PayableID)
	if err != nil {
		s.log.Warn().Err(err).
			Str("payable_id", wf.PayableID).
			Msg("Could not load payable for approval-requested notification")
		return
	}
	orgName := ""
	if org != nil {
		orgName = org.Name
	}
	s.notifier.NotifyApprovalRequested(ctx, approverEmail, payable, wf, orgName)
}

// notifyDecision informs the workflow creator of the decision and, when the
// workflow advanced to a new pending step, asks the next approver to act.
func (s *ApprovalService) notifyDecision(
	ctx context.Context,
	wf *repository.ApprovalWorkflow,
	org *repository.Organization,
	approverEmail string,
	decision repository.Decision,
	comments *string,
) {
	if s.notifier == nil {
		return
	}
	payable, err := s.payables.GetByID(ctx, wf.PayableID)
	if err != nil {
		s.log.Warn().Err(err).
			Str("payable_id", wf.PayableID).
			Msg("Could not load payable for decision notification")
		return
	}
	orgName := ""
	creatorEmail := ""
	if org != nil {
		orgName = org.Name
		if creator := org.FindMember(wf.CreatedBy); creator != nil {
			creatorEmail = creator.Email
		}
	}

	s.notifier.NotifyApprovalDecision(ctx, creatorEmail, decision, payable, approverEmail, comments, orgName)

	if wf.Status == repository.WorkflowPending {
		if next := wf.CurrentPendingStep(); next != nil {
			s.notifier.NotifyApprovalRequested(ctx, next.ApproverEmail, payable, wf, orgName)
		}
	}
}
