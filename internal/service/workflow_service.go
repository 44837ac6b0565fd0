package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-p2p-workflow/internal/logger"
	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
)

// AuditSink receives one entry per applied transition.
type AuditSink interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
}

// AuditReader reads back the persisted audit trail of one document.
type AuditReader interface {
	GetByDocumentID(ctx context.Context, documentID string) ([]*repository.AuditEntry, error)
}

// EventPublisher broadcasts applied transitions to interested parties.
// Implementations must not block on delivery failures.
type EventPublisher interface {
	PublishWorkflowEvent(ctx context.Context, entry *repository.AuditEntry)
}

// WorkflowService is the P2P workflow engine. It owns the document registries
// and enforces the legal state transitions, approval routing and the three-way
// match precondition.
//
// Mutations are serialized by a single lock and applied to a copy of the
// document, which replaces the stored one only when every check passed.
type WorkflowService struct {
	mu       sync.RWMutex
	store    *repository.DocumentStore
	resolver *ApprovalResolver
	revision uint64
	instance string

	audit    AuditSink
	auditLog AuditReader
	events   EventPublisher
	log      *logger.Logger
	now      func() time.Time
	newID    func(prefix string) string
}

// Option configures a WorkflowService.
type Option func(*WorkflowService)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *WorkflowService) { s.now = now }
}

// WithAuditSink records every transition in sink.
func WithAuditSink(sink AuditSink) Option {
	return func(s *WorkflowService) { s.audit = sink }
}

// WithAuditReader serves document audit trails from reader.
func WithAuditReader(reader AuditReader) Option {
	return func(s *WorkflowService) { s.auditLog = reader }
}

// WithEventPublisher publishes every transition to pub.
func WithEventPublisher(pub EventPublisher) Option {
	return func(s *WorkflowService) { s.events = pub }
}

// WithIDGenerator overrides document id generation.
func WithIDGenerator(gen func(prefix string) string) Option {
	return func(s *WorkflowService) { s.newID = gen }
}

// NewWorkflowService creates an empty workflow engine.
func NewWorkflowService(resolver *ApprovalResolver, log *logger.Logger, opts ...Option) *WorkflowService {
	s := &WorkflowService{
		store:    repository.NewDocumentStore(),
		resolver: resolver,
		instance: uuid.NewString(),
		log:      log,
		now:      time.Now,
		newID:    newDocumentID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newDocumentID returns ids shaped like PO-1A2B3C4D.
func newDocumentID(prefix string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(hex[:8]))
}

// Resolver exposes the approval resolver used for routing.
func (s *WorkflowService) Resolver() *ApprovalResolver { return s.resolver }

// Revision increases by one with every applied mutation. Equal revisions mean
// identical document state within one process.
func (s *WorkflowService) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// InstanceID identifies this engine instance; revisions restart per instance.
func (s *WorkflowService) InstanceID() string { return s.instance }

// Snapshot returns a deep copy of every document together with the revision
// it was taken at.
func (s *WorkflowService) Snapshot() (repository.Snapshot, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Snapshot(), s.revision
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// commit bumps the revision. Callers hold the write lock.
func (s *WorkflowService) commit() {
	s.revision++
}

func (s *WorkflowService) auditEntry(
	docType repository.DocumentType,
	docID, action, performedBy, before, after string,
	metadata map[string]any,
) *repository.AuditEntry {
	return &repository.AuditEntry{
		ID:           uuid.NewString(),
		DocumentID:   docID,
		DocumentType: docType,
		Action:       action,
		PerformedBy:  performedBy,
		StatusBefore: before,
		StatusAfter:  after,
		PerformedAt:  s.now(),
		Metadata:     metadata,
	}
}

// emit forwards entries to the audit sink and event publisher after the lock
// is released. Failures are logged and never propagated, so a sink outage
// cannot undo or block a transition.
func (s *WorkflowService) emit(ctx context.Context, entries ...*repository.AuditEntry) {
	for _, entry := range entries {
		if s.audit != nil {
			if err := s.audit.Append(ctx, entry); err != nil {
				s.log.Warn().Err(err).
					Str("document_id", entry.DocumentID).
					Str("action", entry.Action).
					Msg("Failed to write audit log entry")
			}
		}
		if s.events != nil {
			s.events.PublishWorkflowEvent(ctx, entry)
		}
	}
}
