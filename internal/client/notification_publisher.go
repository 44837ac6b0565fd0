package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
)

// msgPublisher is the part of *nats.Conn the publisher uses.
type msgPublisher interface {
	Publish(subject string, data []byte) error
}

// NotificationPublisher publishes workflow transition events to NATS for
// downstream consumers (notifications, reporting).
//
// Subject convention: p2p.events.<document_type>.<action>
// e.g. p2p.events.purchase_order.approved, p2p.events.invoice.paid
//
// All publish operations are non-fatal. Errors are logged and never
// propagated.
type NotificationPublisher struct {
	conn msgPublisher
	log  zerolog.Logger
}

// WorkflowEvent is the JSON schema published to NATS.
type WorkflowEvent struct {
	EventID      string                  `json:"event_id"`
	EventType    string                  `json:"event_type"`
	DocumentType repository.DocumentType `json:"document_type"`
	DocumentID   string                  `json:"document_id"`
	ActorID      string                  `json:"actor_id,omitempty"`
	StatusBefore string                  `json:"status_before,omitempty"`
	StatusAfter  string                  `json:"status_after,omitempty"`
	OccurredAt   time.Time               `json:"occurred_at"`
	Payload      map[string]any          `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by conn. A nil conn
// yields a publisher that drops every event.
func NewNotificationPublisher(conn *nats.Conn, log zerolog.Logger) *NotificationPublisher {
	p := &NotificationPublisher{log: log}
	if conn != nil {
		p.conn = conn
	}
	return p
}

// Subject returns the subject an entry is published on.
func Subject(entry *repository.AuditEntry) string {
	return fmt.Sprintf("p2p.events.%s.%s", entry.DocumentType, entry.Action)
}

// PublishWorkflowEvent publishes one applied transition.
func (p *NotificationPublisher) PublishWorkflowEvent(_ context.Context, entry *repository.AuditEntry) {
	if p.conn == nil || entry == nil {
		return
	}

	event := &WorkflowEvent{
		EventID:      entry.ID,
		EventType:    entry.Action,
		DocumentType: entry.DocumentType,
		DocumentID:   entry.DocumentID,
		ActorID:      entry.PerformedBy,
		StatusBefore: entry.StatusBefore,
		StatusAfter:  entry.StatusAfter,
		OccurredAt:   entry.PerformedAt,
		Payload:      entry.Metadata,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", entry.Action).Msg("notification: failed to marshal event")
		return
	}

	subject := Subject(entry)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("document_id", entry.DocumentID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("document_id", entry.DocumentID).
		Msg("notification: event published")
}
