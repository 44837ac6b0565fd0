package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pesio-ai/be-p2p-workflow/internal/errors"
)

const auditSchema = `
	CREATE TABLE IF NOT EXISTS p2p_audit_log (
	    id             UUID PRIMARY KEY,
	    document_id    TEXT        NOT NULL,
	    document_type  TEXT        NOT NULL,
	    action         TEXT        NOT NULL,
	    performed_by   TEXT,
	    status_before  TEXT,
	    status_after   TEXT        NOT NULL,
	    performed_at   TIMESTAMPTZ NOT NULL,
	    metadata       JSONB
	);
	CREATE INDEX IF NOT EXISTS p2p_audit_log_document_idx ON p2p_audit_log (document_id, performed_at);
`

// AuditRepository appends and reads immutable transition audit entries in
// Postgres. It records what happened to documents; it does not hold document
// state.
type AuditRepository struct {
	db *pgxpool.Pool
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

// EnsureSchema creates the audit table when missing.
func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, auditSchema); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create audit schema")
	}
	return nil
}

// Append inserts one audit entry. Append is the only mutation exposed.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO p2p_audit_log
		    (id, document_id, document_type, action, performed_by,
		     status_before, status_after, performed_at, metadata)
		VALUES ($1, $2, $3, $4, $5,
		        $6, $7, $8, $9)
	`

	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.DocumentID,
		string(entry.DocumentType),
		entry.Action,
		nullable(entry.PerformedBy),
		nullable(entry.StatusBefore),
		entry.StatusAfter,
		entry.PerformedAt,
		metadataJSON,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

// GetByDocumentID returns the audit trail for a document ordered oldest-first.
func (r *AuditRepository) GetByDocumentID(ctx context.Context, documentID string) ([]*AuditEntry, error) {
	query := `
		SELECT id, document_id, document_type, action, performed_by,
		       status_before, status_after, performed_at, metadata
		FROM p2p_audit_log
		WHERE document_id = $1
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *AuditRepository) scanRows(rows pgx.Rows) ([]*AuditEntry, error) {
	var entries []*AuditEntry
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read audit log")
	}
	return entries, nil
}

type auditScanner interface {
	Scan(dest ...any) error
}

func (r *AuditRepository) scanEntry(sc auditScanner) (*AuditEntry, error) {
	entry := &AuditEntry{}
	var (
		documentType string
		performedBy  *string
		statusBefore *string
		metadataJSON []byte
	)

	err := sc.Scan(
		&entry.ID,
		&entry.DocumentID,
		&documentType,
		&entry.Action,
		&performedBy,
		&statusBefore,
		&entry.StatusAfter,
		&entry.PerformedAt,
		&metadataJSON,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
	}

	entry.DocumentType = DocumentType(documentType)
	if performedBy != nil {
		entry.PerformedBy = *performedBy
	}
	if statusBefore != nil {
		entry.StatusBefore = *statusBefore
	}
	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
		}
	}

	return entry, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
