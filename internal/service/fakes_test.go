package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pesio-ai/be-ap-approvals/internal/errors"
	"github.com/pesio-ai/be-ap-approvals/internal/logger"
	"github.com/pesio-ai/be-ap-approvals/internal/repository"
)

// In-memory fakes mirroring the repository contracts, including the
// conditional-update semantics of the workflow store.

type fakeSettingsStore struct {
	settings map[string]*repository.ApprovalSettings
	orgs     *fakeOrgDirectory
	getErr   error
}

func (f *fakeSettingsStore) Get(_ context.Context, orgID string) (*repository.ApprovalSettings, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if s, ok := f.settings[orgID]; ok {
		return s, nil
	}
	org, ok := f.orgs.orgs[orgID]
	if !ok {
		return nil, errors.NotFound("organization", orgID)
	}
	return repository.DefaultApprovalSettings(org.BillingEmail), nil
}

func (f *fakeSettingsStore) Update(_ context.Context, orgID string, settings *repository.ApprovalSettings) error {
	if _, ok := f.orgs.orgs[orgID]; !ok {
		return errors.NotFound("organization", orgID)
	}
	if f.settings == nil {
		f.settings = make(map[string]*repository.ApprovalSettings)
	}
	f.settings[orgID] = settings
	return nil
}

type fakeWorkflowStore struct {
	byID      map[string]*repository.ApprovalWorkflow
	byPayable map[string]string
	nextID    int
	createErr error

	// beforeComplete runs at the top of CompleteDecision, letting tests
	// interleave a racing write between a load and its conditional update.
	beforeComplete func()
}

func newFakeWorkflowStore() *fakeWorkflowStore {
	return &fakeWorkflowStore{
		byID:      make(map[string]*repository.ApprovalWorkflow),
		byPayable: make(map[string]string),
	}
}

func (f *fakeWorkflowStore) Create(_ context.Context, wf *repository.ApprovalWorkflow) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.byPayable[wf.PayableID]; exists {
		return errors.New(errors.ErrCodeConflict, "approval workflow already exists for payable")
	}
	f.nextID++
	wf.ID = fmt.Sprintf("wf-%d", f.nextID)
	wf.CreatedAt = time.Now().UTC()
	wf.UpdatedAt = wf.CreatedAt
	stored := *wf
	stored.Steps = append([]repository.ApprovalStep(nil), wf.Steps...)
	f.byID[wf.ID] = &stored
	f.byPayable[wf.PayableID] = wf.ID
	return nil
}

func (f *fakeWorkflowStore) GetByID(_ context.Context, id string) (*repository.ApprovalWorkflow, error) {
	stored, ok := f.byID[id]
	if !ok {
		return nil, errors.NotFound("approval_workflow", id)
	}
	cp := *stored
	cp.Steps = append([]repository.ApprovalStep(nil), stored.Steps...)
	return &cp, nil
}

func (f *fakeWorkflowStore) GetByPayableID(_ context.Context, payableID string) (*repository.ApprovalWorkflow, error) {
	id, ok := f.byPayable[payableID]
	if !ok {
		return nil, nil
	}
	return f.GetByID(context.Background(), id)
}

func (f *fakeWorkflowStore) GetPendingForApprover(_ context.Context, approverID string) ([]*repository.ApprovalWorkflow, error) {
	var out []*repository.ApprovalWorkflow
	for _, wf := range f.byID {
		if wf.Status != repository.WorkflowPending {
			continue
		}
		for _, step := range wf.Steps {
			if step.ApproverID == approverID && step.Decision == repository.DecisionPending {
				cp, _ := f.GetByID(context.Background(), wf.ID)
				out = append(out, cp)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeWorkflowStore) CompleteDecision(_ context.Context, wf *repository.ApprovalWorkflow, expectedStep int) error {
	if f.beforeComplete != nil {
		f.beforeComplete()
	}
	stored, ok := f.byID[wf.ID]
	if !ok {
		return errors.NotFound("approval_workflow", wf.ID)
	}
	if stored.Status != repository.WorkflowPending || stored.CurrentStep != expectedStep {
		return errors.New(errors.ErrCodeConflict, "workflow was modified concurrently")
	}
	updated := *wf
	updated.Steps = append([]repository.ApprovalStep(nil), wf.Steps...)
	updated.UpdatedAt = time.Now().UTC()
	f.byID[wf.ID] = &updated
	return nil
}

type fakeOrgDirectory struct {
	orgs map[string]*repository.Organization
}

func (f *fakeOrgDirectory) GetByID(_ context.Context, id string) (*repository.Organization, error) {
	org, ok := f.orgs[id]
	if !ok {
		return nil, errors.NotFound("organization", id)
	}
	return org, nil
}

type fakePayableStore struct {
	payables map[string]*repository.Payable
	linked   map[string]string
}

func (f *fakePayableStore) GetByID(_ context.Context, id string) (*repository.Payable, error) {
	p, ok := f.payables[id]
	if !ok {
		return nil, errors.NotFound("payable", id)
	}
	return p, nil
}

func (f *fakePayableStore) SetWorkflowID(_ context.Context, payableID, workflowID string) error {
	if _, ok := f.payables[payableID]; !ok {
		return errors.NotFound("payable", payableID)
	}
	if f.linked == nil {
		f.linked = make(map[string]string)
	}
	f.linked[payableID] = workflowID
	return nil
}

type fakeAuditStore struct {
	entries   []*repository.AuditEntry
	appendErr error
}

func (f *fakeAuditStore) Append(_ context.Context, entry *repository.AuditEntry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditStore) GetByEntity(_ context.Context, orgID, entityID string) ([]*repository.AuditEntry, error) {
	var out []*repository.AuditEntry
	for _, e := range f.entries {
		if e.OrganizationID == orgID && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAuditStore) GetByOrganization(_ context.Context, orgID string, limit int) ([]*repository.AuditEntry, error) {
	var out []*repository.AuditEntry
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].OrganizationID == orgID {
			out = append(out, f.entries[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type notifyCall struct {
	kind     string // "requested" | "decision"
	email    string
	decision repository.Decision
}

type fakeNotifier struct {
	calls []notifyCall
}

func (f *fakeNotifier) NotifyApprovalRequested(_ context.Context, approverEmail string, _ *repository.Payable, _ *repository.ApprovalWorkflow, _ string) {
	f.calls = append(f.calls, notifyCall{kind: "requested", email: approverEmail})
}

func (f *fakeNotifier) NotifyApprovalDecision(_ context.Context, creatorEmail string, decision repository.Decision, _ *repository.Payable, _ string, _ *string, _ string) {
	f.calls = append(f.calls, notifyCall{kind: "decision", email: creatorEmail, decision: decision})
}

// ── test fixture ──────────────────────────────────────────────────────────────

type fixture struct {
	svc       *ApprovalService
	settings  *fakeSettingsStore
	workflows *fakeWorkflowStore
	orgs      *fakeOrgDirectory
	payables  *fakePayableStore
	audit     *fakeAuditStore
	notifier  *fakeNotifier
}

const testOrgID = "org-1"

func member(id, email string, role repository.Role) repository.OrganizationMember {
	return repository.OrganizationMember{
		UserID: id,
		Email:  email,
		Role:   role,
		Status: repository.MemberActive,
	}
}

func newFixture(members []repository.OrganizationMember) *fixture {
	orgs := &fakeOrgDirectory{orgs: map[string]*repository.Organization{
		testOrgID: {
			ID:           testOrgID,
			Name:         "Acme Corp",
			BillingEmail: "billing@acme.test",
			Members:      members,
		},
	}}
	payables := &fakePayableStore{payables: map[string]*repository.Payable{
		"pay-1": {
			ID:             "pay-1",
			OrganizationID: testOrgID,
			VendorName:     "Office Supplies Inc",
			Amount:         500,
			Currency:       "USD",
			Description:    "Q3 supplies",
			CreatedBy:      "creator-1",
		},
	}}

	f := &fixture{
		settings:  &fakeSettingsStore{orgs: orgs},
		workflows: newFakeWorkflowStore(),
		orgs:      orgs,
		payables:  payables,
		audit:     &fakeAuditStore{},
		notifier:  &fakeNotifier{},
	}
	log := logger.New(logger.Config{Level: "error", ServiceName: "test"})
	f.svc = NewApprovalService(f.settings, f.workflows, f.orgs, f.payables, f.audit, f.notifier, log)
	return f
}

func (f *fixture) withSettings(mutate func(*repository.ApprovalSettings)) {
	s := repository.DefaultApprovalSettings("billing@acme.test")
	mutate(s)
	f.settings.settings = map[string]*repository.ApprovalSettings{testOrgID: s}
}
