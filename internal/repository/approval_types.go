package repository

import "time"

// ── Domain types for the approval workflow engine ────────────────────────────

// Role is the closed set of organization member roles.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleAdmin    Role = "admin"
	RoleApprover Role = "approver"
	RoleMember   Role = "member"
)

// CanApprove reports whether the role is a dedicated approver.
func (r Role) CanApprove() bool {
	return r == RoleApprover
}

// IsFallback reports whether the role qualifies as a fallback approver.
func (r Role) IsFallback() bool {
	switch r {
	case RoleAdmin, RoleOwner:
		return true
	case RoleApprover, RoleMember:
		return false
	}
	return false
}

// MemberStatus is the closed set of membership states.
type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberInvited   MemberStatus = "invited"
	MemberSuspended MemberStatus = "suspended"
)

// OrganizationMember is one entry in an organization's members JSONB array.
type OrganizationMember struct {
	UserID string       `json:"userId"`
	Email  string       `json:"email"`
	Role   Role         `json:"role"`
	Status MemberStatus `json:"status"`
}

// Organization is the directory record the engine reads members and billing
// contact from.
type Organization struct {
	ID           string
	Name         string
	BillingEmail string
	Members      []OrganizationMember
}

// ── Approval settings (per organization, stored as JSONB) ────────────────────

// Tier is the threshold bucket an amount falls into.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// AmountThresholds are the tier boundaries in the reference currency.
type AmountThresholds struct {
	Low    float64 `json:"low"`
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`
}

// RequiredApprovers is the signer count per tier.
type RequiredApprovers struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

// ForTier returns the required approver count for a tier.
func (r RequiredApprovers) ForTier(t Tier) int {
	switch t {
	case TierLow:
		return r.Low
	case TierMedium:
		return r.Medium
	case TierHigh:
		return r.High
	}
	return r.High
}

// AutoApproveConditions gate auto-approval. The vendor and category
// allow-lists are configuration surface only; the builder evaluates just the
// amount limit.
type AutoApproveConditions struct {
	VendorWhitelist   []string `json:"vendorWhitelist"`
	CategoryWhitelist []string `json:"categoryWhitelist"`
	AmountLimit       float64  `json:"amountLimit"`
}

// AutoApprove toggles human-signoff bypass.
type AutoApprove struct {
	Enabled    bool                  `json:"enabled"`
	Conditions AutoApproveConditions `json:"conditions"`
}

// ApprovalRules is the rule block of the settings document.
type ApprovalRules struct {
	AmountThresholds  AmountThresholds  `json:"amountThresholds"`
	Currency          string            `json:"currency"`
	RequiredApprovers RequiredApprovers `json:"requiredApprovers"`
	FallbackApprovers []string          `json:"fallbackApprovers"`
	AutoApprove       AutoApprove       `json:"autoApprove"`
}

// EmailSettings are the notification targets for approval events.
type EmailSettings struct {
	PrimaryEmail          string   `json:"primaryEmail"`
	NotificationEmails    []string `json:"notificationEmails"`
	ApprovalNotifications bool     `json:"approvalNotifications"`
	PaymentNotifications  bool     `json:"paymentNotifications"`
}

// ApprovalSettings is the per-organization approval configuration.
type ApprovalSettings struct {
	RequireApproval bool          `json:"requireApproval"`
	ApprovalRules   ApprovalRules `json:"approvalRules"`
	EmailSettings   EmailSettings `json:"emailSettings"`
}

// DefaultApprovalSettings returns the settings applied when an organization
// has never configured approvals. billingEmail seeds the primary contact.
func DefaultApprovalSettings(billingEmail string) *ApprovalSettings {
	return &ApprovalSettings{
		RequireApproval: true,
		ApprovalRules: ApprovalRules{
			AmountThresholds: AmountThresholds{
				Low:    100,
				Medium: 1000,
				High:   1000,
			},
			Currency: "USD",
			RequiredApprovers: RequiredApprovers{
				Low:    1,
				Medium: 1,
				High:   2,
			},
			FallbackApprovers: []string{},
			AutoApprove: AutoApprove{
				Enabled: false,
				Conditions: AutoApproveConditions{
					VendorWhitelist:   []string{},
					CategoryWhitelist: []string{},
					AmountLimit:       100,
				},
			},
		},
		EmailSettings: EmailSettings{
			PrimaryEmail:          billingEmail,
			NotificationEmails:    []string{},
			ApprovalNotifications: true,
			PaymentNotifications:  true,
		},
	}
}

// ── Workflow aggregate ───────────────────────────────────────────────────────

// WorkflowStatus is the one-way workflow lifecycle.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowApproved  WorkflowStatus = "approved"
	WorkflowRejected  WorkflowStatus = "rejected"
	WorkflowCancelled WorkflowStatus = "cancelled"
)

// Terminal reports whether no further step transitions are possible.
func (s WorkflowStatus) Terminal() bool {
	return s != WorkflowPending
}

// Decision is an approver's verdict on a step.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// ApprovalStep is one ordered unit of required sign-off. Immutable once
// completed.
type ApprovalStep struct {
	StepNumber    int        `json:"stepNumber"`
	ApproverID    string     `json:"approverId"`
	ApproverEmail string     `json:"approverEmail"`
	ApproverRole  Role       `json:"approverRole"`
	Decision      Decision   `json:"decision"`
	Comments      *string    `json:"comments,omitempty"`
	AssignedAt    time.Time  `json:"assignedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	IsFallback    bool       `json:"isFallback"`
}

// AppliedRules is the snapshot of the rule outcome taken at workflow creation.
type AppliedRules struct {
	AmountThreshold   Tier    `json:"amountThreshold"`
	RequiredApprovers int     `json:"requiredApprovers"`
	AutoApproved      bool    `json:"autoApproved"`
	Reason            *string `json:"reason,omitempty"`
}

// ApprovalWorkflow is the aggregate root. Steps are embedded and ordered by
// StepNumber; CurrentStep equals len(Steps)+1 once fully approved.
type ApprovalWorkflow struct {
	ID             string
	PayableID      string
	OrganizationID string
	Status         WorkflowStatus
	Steps          []ApprovalStep
	CurrentStep    int
	CreatedBy      string
	AppliedRules   AppliedRules
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CurrentPendingStep returns the step awaiting a decision, or nil when the
// workflow is finalized.
func (w *ApprovalWorkflow) CurrentPendingStep() *ApprovalStep {
	for i := range w.Steps {
		if w.Steps[i].StepNumber == w.CurrentStep {
			return &w.Steps[i]
		}
	}
	return nil
}

// ── Payable (external collaborator, read-mostly) ─────────────────────────────

// Payable is the obligation a workflow gates. The engine reads it for
// notification content and writes back the workflow id after creation.
type Payable struct {
	ID             string
	OrganizationID string
	VendorName     string
	Amount         float64
	Currency       string
	Description    string
	DueDate        *time.Time
	WorkflowID     *string
	CreatedBy      string
	CreatedAt      time.Time
}

// ── Audit log ────────────────────────────────────────────────────────────────

// AuditAction is the verb recorded on an audit entry.
type AuditAction string

const (
	AuditActionCreate         AuditAction = "create"
	AuditActionApprove        AuditAction = "approve"
	AuditActionReject         AuditAction = "reject"
	AuditActionSettingsChange AuditAction = "settings_change"
)

// EntityType identifies what an audit entry refers to.
type EntityType string

const (
	EntityApproval     EntityType = "approval"
	EntityOrganization EntityType = "organization"
)

// WorkflowCreatedMetadata is the metadata payload for action=create entries.
type WorkflowCreatedMetadata struct {
	Amount            float64 `json:"amount"`
	AmountThreshold   Tier    `json:"amountThreshold"`
	RequiredApprovers int     `json:"requiredApprovers"`
	AutoApproved      bool    `json:"autoApproved"`
}

// DecisionMetadata is the metadata payload for approve/reject entries.
type DecisionMetadata struct {
	PayableID   string         `json:"payableId"`
	StepNumber  int            `json:"stepNumber"`
	Comments    *string        `json:"comments,omitempty"`
	FinalStatus WorkflowStatus `json:"finalStatus"`
}

// AuditEntry is one immutable compliance record. Never updated or deleted.
type AuditEntry struct {
	ID             string
	OrganizationID string
	ActorID        string
	ActorEmail     string
	ActorRole      Role
	Action         AuditAction
	EntityType     EntityType
	EntityID       string
	Description    string
	Metadata       any // WorkflowCreatedMetadata, DecisionMetadata, or nil
	CreatedAt      time.Time
}
