package service

import (
	"context"
	"fmt"

	"github.com/pesio-ai/be-p2p-workflow/internal/errors"
	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
)

// CreatePurchaseOrderRequest represents a create purchase order request
type CreatePurchaseOrderRequest struct {
	VendorID        string                  `json:"vendor_id"`
	VendorName      string                  `json:"vendor_name"`
	Requester       string                  `json:"requester"`
	Department      string                  `json:"department"`
	LineItems       []repository.LineItem   `json:"line_items"`
	PaymentTerms    repository.PaymentTerms `json:"payment_terms"`
	DeliveryAddress string                  `json:"delivery_address"`
	Notes           string                  `json:"notes"`
}

// ApprovalRequest carries one approver's decision on a document.
type ApprovalRequest struct {
	Approver string                      `json:"approver"`
	Decision repository.ApprovalDecision `json:"decision"`
	Comments string                      `json:"comments"`
}

// purchaseOrderCopy returns a working copy of a stored purchase order.
// Callers hold the lock.
func (s *WorkflowService) purchaseOrderCopy(id string) (*repository.PurchaseOrder, error) {
	po, ok := s.store.PurchaseOrder(id)
	if !ok {
		return nil, errors.NotFound("purchase order", id)
	}
	return po.Clone(), nil
}

// CreatePurchaseOrder creates a purchase order in Draft
func (s *WorkflowService) CreatePurchaseOrder(ctx context.Context, req *CreatePurchaseOrderRequest) (*repository.PurchaseOrder, error) {
	if err := requireField("vendor_id", req.VendorID); err != nil {
		return nil, err
	}
	if err := requireField("requester", req.Requester); err != nil {
		return nil, err
	}
	if err := validateLineItems(req.LineItems); err != nil {
		return nil, err
	}
	terms, err := normalizePaymentTerms(req.PaymentTerms, repository.PaymentTermsNet30)
	if err != nil {
		return nil, err
	}

	vendorName := req.VendorName
	if vendorName == "" {
		vendorName = req.VendorID
	}

	s.mu.Lock()
	now := s.now()
	po := &repository.PurchaseOrder{
		ID:              s.newID("PO"),
		VendorID:        req.VendorID,
		VendorName:      vendorName,
		Requester:       req.Requester,
		Department:      req.Department,
		OrderedOn:       now,
		LineItems:       append([]repository.LineItem(nil), req.LineItems...),
		PaymentTerms:    terms,
		DeliveryAddress: req.DeliveryAddress,
		Notes:           req.Notes,
		Status:          repository.POStatusDraft,
		UpdatedAt:       now,
	}
	s.store.PutPurchaseOrder(po)
	s.commit()
	out := po.Clone()
	s.mu.Unlock()

	s.log.Info().
		Str("po_id", out.ID).
		Str("vendor_id", out.VendorID).
		Str("requester", out.Requester).
		Int64("total_amount", out.Total()).
		Int("line_count", len(out.LineItems)).
		Msg("Purchase order created")

	s.emit(ctx, s.auditEntry(repository.DocumentPurchaseOrder, out.ID, "created", out.Requester,
		"", string(out.Status), map[string]any{"vendor_id": out.VendorID, "total_amount": out.Total()}))

	return out, nil
}

// SubmitPurchaseOrder routes a Draft purchase order to its approval chain. A
// policy without approvers approves the order immediately.
func (s *WorkflowService) SubmitPurchaseOrder(ctx context.Context, id string) (*repository.PurchaseOrder, error) {
	s.mu.Lock()
	po, err := s.purchaseOrderCopy(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if po.Status != repository.POStatusDraft {
		s.mu.Unlock()
		return nil, errors.Newf(errors.ErrCodeInvalidPrecondition,
			"cannot submit purchase order with status '%s', must be %s", po.Status, repository.POStatusDraft)
	}

	policy, err := s.resolver.Resolve(repository.TargetPurchaseOrder, po.Total())
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	now := s.now()
	before := po.Status
	po.PolicyName = policy.Name
	po.Approvals = newApprovalChain(policy, now)
	if policy.Levels() == 0 {
		po.Status = repository.POStatusApproved
		po.ApprovedAt = &now
	} else {
		po.Status = repository.POStatusPendingApproval
	}
	po.UpdatedAt = now

	s.store.PutPurchaseOrder(po)
	s.commit()
	out := po.Clone()
	s.mu.Unlock()

	s.log.Info().
		Str("po_id", id).
		Str("policy", policy.Name).
		Int("approval_levels", policy.Levels()).
		Str("status", string(out.Status)).
		Msg("Purchase order submitted for approval")

	s.emit(ctx, s.auditEntry(repository.DocumentPurchaseOrder, id, "submitted", "",
		string(before), string(out.Status), map[string]any{
			"policy":    policy.Name,
			"approvers": repository.PendingApprovers(out.Approvals),
		}))

	return out, nil
}

// RecordPurchaseOrderApproval applies one approver's decision. A rejection
// rejects the order immediately; the last approval approves it.
func (s *WorkflowService) RecordPurchaseOrderApproval(ctx context.Context, id string, req *ApprovalRequest) (*repository.PurchaseOrder, error) {
	if err := validateDecision(req.Decision); err != nil {
		return nil, err
	}

	s.mu.Lock()
	po, err := s.purchaseOrderCopy(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if po.Status != repository.POStatusPendingApproval {
		s.mu.Unlock()
		return nil, errors.Newf(errors.ErrCodeNotPending,
			"purchase order %s is '%s', not pending approval", id, po.Status)
	}

	now := s.now()
	outcome, err := applyDecision(po.Approvals, req.Approver, req.Decision, req.Comments, now)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	before := po.Status
	switch outcome {
	case repository.DecisionRejected:
		po.Status = repository.POStatusRejected
	case repository.DecisionApproved:
		po.Status = repository.POStatusApproved
		po.ApprovedAt = &now
	}
	po.UpdatedAt = now

	s.store.PutPurchaseOrder(po)
	s.commit()
	out := po.Clone()
	s.mu.Unlock()

	s.log.Info().
		Str("po_id", id).
		Str("approver", req.Approver).
		Str("decision", string(req.Decision)).
		Str("status", string(out.Status)).
		Msg("Purchase order approval recorded")

	s.emit(ctx, s.auditEntry(repository.DocumentPurchaseOrder, id, approvalAction(req.Decision), req.Approver,
		string(before), string(out.Status), map[string]any{
			"comments":  req.Comments,
			"remaining": repository.PendingApprovers(out.Approvals),
		}))

	return out, nil
}

// CancelPurchaseOrder cancels an order that has not reached a terminal state.
// Blocked orders must be unblocked first.
func (s *WorkflowService) CancelPurchaseOrder(ctx context.Context, id, reason string) (*repository.PurchaseOrder, error) {
	s.mu.Lock()
	po, err := s.purchaseOrderCopy(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if po.Status == repository.POStatusBlocked {
		s.mu.Unlock()
		return nil, errors.Newf(errors.ErrCodeInvalidPrecondition,
			"purchase order %s is blocked (%s), unblock it before cancelling", id, po.BlockedReason)
	}
	if err := poTransitions.check("purchase order", id, po.Status, repository.POStatusCancelled); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	before := po.Status
	po.Status = repository.POStatusCancelled
	if reason != "" {
		po.Notes = appendNote(po.Notes, fmt.Sprintf("Cancelled: %s", reason))
	}
	po.UpdatedAt = s.now()

	s.store.PutPurchaseOrder(po)
	s.commit()
	out := po.Clone()
	s.mu.Unlock()

	s.log.Info().
		Str("po_id", id).
		Str("reason", reason).
		Msg("Purchase order cancelled")

	s.emit(ctx, s.auditEntry(repository.DocumentPurchaseOrder, id, "cancelled", "",
		string(before), string(out.Status), map[string]any{"reason": reason}))

	return out, nil
}

func approvalAction(decision repository.ApprovalDecision) string {
	if decision == repository.DecisionRejected {
		return "rejected"
	}
	return "approved"
}

func appendNote(notes, line string) string {
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}
