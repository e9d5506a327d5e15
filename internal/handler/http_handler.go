// Package handler exposes the approvals engine over HTTP.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pesio-ai/be-ap-approvals/internal/errors"
	"github.com/pesio-ai/be-ap-approvals/internal/logger"
	"github.com/pesio-ai/be-ap-approvals/internal/repository"
	"github.com/pesio-ai/be-ap-approvals/internal/service"
)

// HTTPHandler handles HTTP requests.
type HTTPHandler struct {
	service *service.ApprovalService
	log     *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(service *service.ApprovalService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		service: service,
		log:     log,
	}
}

// GetSettings handles GET /api/v1/approvals/settings.
func (h *HTTPHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	orgID := r.URL.Query().Get("organization_id")
	if orgID == "" {
		http.Error(w, "organization_id is required", http.StatusBadRequest)
		return
	}

	settings, err := h.service.GetSettings(r.Context(), orgID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

// UpdateSettingsRequest is the body of PUT /api/v1/approvals/settings.
type UpdateSettingsRequest struct {
	OrganizationID string                       `json:"organization_id"`
	ActorID        string                       `json:"actor_id"`
	Settings       *repository.ApprovalSettings `json:"settings"`
}

// UpdateSettings handles PUT /api/v1/approvals/settings.
func (h *HTTPHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.OrganizationID == "" || req.ActorID == "" || req.Settings == nil {
		http.Error(w, "organization_id, actor_id and settings are required", http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateSettings(r.Context(), req.OrganizationID, req.ActorID, req.Settings); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// CreateWorkflowRequest is the body of POST /api/v1/approvals/workflows,
// sent by the payable-creation flow.
type CreateWorkflowRequest struct {
	PayableID      string  `json:"payable_id"`
	OrganizationID string  `json:"organization_id"`
	CreatedBy      string  `json:"created_by"`
	Amount         float64 `json:"amount"`
}

// CreateWorkflow handles POST /api/v1/approvals/workflows.
func (h *HTTPHandler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CreateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.PayableID == "" || req.OrganizationID == "" {
		http.Error(w, "payable_id and organization_id are required", http.StatusBadRequest)
		return
	}

	wf, err := h.service.CreateWorkflow(r.Context(), req.PayableID, req.OrganizationID, req.CreatedBy, req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, wf)
}

// DecisionRequest is the body of POST /api/v1/approvals/decision.
type DecisionRequest struct {
	WorkflowID string  `json:"workflow_id"`
	ApproverID string  `json:"approver_id"`
	Decision   string  `json:"decision"`
	Comments   *string `json:"comments,omitempty"`
}

// RecordDecision handles POST /api/v1/approvals/decision.
func (h *HTTPHandler) RecordDecision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.WorkflowID == "" || req.ApproverID == "" {
		http.Error(w, "workflow_id and approver_id are required", http.StatusBadRequest)
		return
	}

	err := h.service.RecordDecision(r.Context(), req.WorkflowID, req.ApproverID, repository.Decision(req.Decision), req.Comments)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// GetWorkflow handles GET /api/v1/approvals/workflow.
func (h *HTTPHandler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payableID := r.URL.Query().Get("payable_id")
	if payableID == "" {
		http.Error(w, "payable_id is required", http.StatusBadRequest)
		return
	}

	wf, err := h.service.GetWorkflow(r.Context(), payableID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if wf == nil {
		http.Error(w, "no approval workflow for payable", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, wf)
}

// GetPendingApprovals handles GET /api/v1/approvals/pending.
func (h *HTTPHandler) GetPendingApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	approverID := r.URL.Query().Get("approver_id")
	if approverID == "" {
		http.Error(w, "approver_id is required", http.StatusBadRequest)
		return
	}

	workflows, err := h.service.GetPendingApprovals(r.Context(), approverID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"workflows": workflows,
		"total":     len(workflows),
	})
}

// GetAuditTrail handles GET /api/v1/approvals/audit.
func (h *HTTPHandler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	orgID := r.URL.Query().Get("organization_id")
	if orgID == "" {
		http.Error(w, "organization_id is required", http.StatusBadRequest)
		return
	}

	// Without an entity_id the trail is organization-wide, newest first.
	var entries []*repository.AuditEntry
	var err error
	if entityID := r.URL.Query().Get("entity_id"); entityID != "" {
		entries, err = h.service.GetAuditTrail(r.Context(), orgID, entityID)
	} else {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		entries, err = h.service.GetOrganizationAudit(r.Context(), orgID, limit)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   len(entries),
	})
}

// ── response helpers ──────────────────────────────────────────────────────────

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}
	http.Error(w, errors.Message(err), status)
}
