package repository

import "time"

// ── Domain types for approval routing ────────────────────────────────────────

// PolicyTarget tags which document class an approval policy routes.
type PolicyTarget string

const (
	TargetPurchaseOrder PolicyTarget = "purchase_order"
	TargetInvoice       PolicyTarget = "invoice"
)

// ApprovalPolicy maps an amount bracket [MinAmount, MaxAmount) to an ordered
// approver chain.
type ApprovalPolicy struct {
	Name              string       `json:"name" yaml:"name"`
	Description       string       `json:"description" yaml:"description"`
	Target            PolicyTarget `json:"target" yaml:"target"`
	MinAmount         int64        `json:"min_amount" yaml:"min_amount"`                     // cents, inclusive
	MaxAmount         *int64       `json:"max_amount,omitempty" yaml:"max_amount,omitempty"` // cents, exclusive; nil = no upper bound
	RequiredApprovers []string     `json:"required_approvers" yaml:"required_approvers"`
}

// Levels is the number of sign-offs the policy requires.
func (p ApprovalPolicy) Levels() int {
	return len(p.RequiredApprovers)
}

// Covers reports whether amount falls inside the policy bracket.
func (p ApprovalPolicy) Covers(amount int64) bool {
	if amount < p.MinAmount {
		return false
	}
	return p.MaxAmount == nil || amount < *p.MaxAmount
}

// Clone returns a copy that shares no slices or pointers with p.
func (p ApprovalPolicy) Clone() ApprovalPolicy {
	out := p
	out.RequiredApprovers = append([]string(nil), p.RequiredApprovers...)
	if p.MaxAmount != nil {
		upper := *p.MaxAmount
		out.MaxAmount = &upper
	}
	return out
}

// ApprovalDecision is the state of one approver's slot in a chain.
type ApprovalDecision string

const (
	DecisionPending  ApprovalDecision = "Pending"
	DecisionApproved ApprovalDecision = "Approved"
	DecisionRejected ApprovalDecision = "Rejected"
)

// ApprovalRecord is one approver's slot on a document.
type ApprovalRecord struct {
	Approver  string           `json:"approver"`
	Decision  ApprovalDecision `json:"decision"`
	Comments  string           `json:"comments,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// DocumentType names the three P2P document kinds.
type DocumentType string

const (
	DocumentPurchaseOrder DocumentType = "purchase_order"
	DocumentGoodsReceipt  DocumentType = "goods_receipt"
	DocumentInvoice       DocumentType = "invoice"
)

// AuditEntry is one immutable record in the transition audit log.
type AuditEntry struct {
	ID           string         `json:"id"`
	DocumentID   string         `json:"document_id"`
	DocumentType DocumentType   `json:"document_type"`
	Action       string         `json:"action"` // created | submitted | approved | rejected | received | quality_checked | paid | overdue | blocked | unblocked | cancelled
	PerformedBy  string         `json:"performed_by,omitempty"`
	StatusBefore string         `json:"status_before,omitempty"`
	StatusAfter  string         `json:"status_after"`
	PerformedAt  time.Time      `json:"performed_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}
