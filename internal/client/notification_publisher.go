// Package client holds outbound integrations of the approvals engine.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ap-approvals/internal/repository"
)

// NotificationPublisher publishes approval workflow events to NATS JetStream
// for consumption by the notifications service.
//
// Subject convention: <prefix>.<event_type>
// Event types: approval_requested, approval_decision
//
// All publish operations are non-fatal — errors are logged but never
// propagated, so notification failures never interrupt approval operations.
// A nil publisher is valid and drops every event (used when NATS is not
// configured).
type NotificationPublisher struct {
	js     jetstream.JetStream
	prefix string
	log    zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventID      string         `json:"event_id"`
	EventType    string         `json:"event_type"`
	OrgID        string         `json:"organization_id"`
	OrgName      string         `json:"organization_name,omitempty"`
	Recipients   []string       `json:"recipients"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	IsActionable bool           `json:"is_actionable,omitempty"`
	Severity     string         `json:"severity,omitempty"`
	Category     string         `json:"category,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	EmittedAt    time.Time      `json:"emitted_at"`
}

// NewNotificationPublisher wraps a NATS connection with a JetStream context.
func NewNotificationPublisher(nc *nats.Conn, subjectPrefix string, log zerolog.Logger) (*NotificationPublisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return &NotificationPublisher{js: js, prefix: subjectPrefix, log: log}, nil
}

// NotifyApprovalRequested tells an approver their sign-off is now required.
func (p *NotificationPublisher) NotifyApprovalRequested(
	ctx context.Context,
	approverEmail string,
	payable *repository.Payable,
	wf *repository.ApprovalWorkflow,
	orgName string,
) {
	if p == nil || approverEmail == "" {
		return
	}

	p.publish(ctx, &NotificationEvent{
		EventType:    "approval_requested",
		OrgID:        wf.OrganizationID,
		OrgName:      orgName,
		Recipients:   []string{approverEmail},
		ResourceType: "approval_workflow",
		ResourceID:   wf.ID,
		IsActionable: true,
		Severity:     "info",
		Category:     "ap_approval",
		Payload: map[string]any{
			"payable_id":   payable.ID,
			"vendor":       payable.VendorName,
			"amount":       payable.Amount,
			"currency":     payable.Currency,
			"description":  payable.Description,
			"current_step": wf.CurrentStep,
			"total_steps":  len(wf.Steps),
		},
	})
}

// NotifyApprovalDecision tells the workflow creator how a step was decided.
func (p *NotificationPublisher) NotifyApprovalDecision(
	ctx context.Context,
	creatorEmail string,
	decision repository.Decision,
	payable *repository.Payable,
	approverEmail string,
	comments *string,
	orgName string,
) {
	if p == nil || creatorEmail == "" {
		return
	}

	payload := map[string]any{
		"payable_id":  payable.ID,
		"vendor":      payable.VendorName,
		"amount":      payable.Amount,
		"currency":    payable.Currency,
		"description": payable.Description,
		"decision":    string(decision),
		"approver":    approverEmail,
	}
	if comments != nil {
		payload["comments"] = *comments
	}

	p.publish(ctx, &NotificationEvent{
		EventType:    "approval_decision",
		OrgID:        payable.OrganizationID,
		OrgName:      orgName,
		Recipients:   []string{creatorEmail},
		ResourceType: "payable",
		ResourceID:   payable.ID,
		Severity:     "info",
		Category:     "ap_approval",
		Payload:      payload,
	})
}

func (p *NotificationPublisher) publish(ctx context.Context, event *NotificationEvent) {
	event.EventID = uuid.NewString()
	event.EmittedAt = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", event.EventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("%s.%s", p.prefix, event.EventType)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("resource_id", event.ResourceID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("resource_id", event.ResourceID).
		Int("recipients", len(event.Recipients)).
		Msg("notification: event published")
}
