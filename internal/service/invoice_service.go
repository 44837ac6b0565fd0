package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-p2p-workflow/internal/errors"
	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
)

// CreateInvoiceRequest represents a create invoice request. InvoiceDate
// defaults to now; PaymentTerms default to the purchase order's terms.
type CreateInvoiceRequest struct {
	POID         string                  `json:"po_id"`
	GRID         string                  `json:"gr_id"`
	LineItems    []repository.LineItem   `json:"line_items"`
	PaymentTerms repository.PaymentTerms `json:"payment_terms"`
	InvoiceDate  *time.Time              `json:"invoice_date,omitempty"`
	Notes        string                  `json:"notes"`
}

func (s *WorkflowService) invoiceCopy(id string) (*repository.Invoice, error) {
	inv, ok := s.store.Invoice(id)
	if !ok {
		return nil, errors.NotFound("invoice", id)
	}
	return inv.Clone(), nil
}

// CreateInvoice records a vendor invoice after the three-way match
// precondition holds: the purchase order and goods receipt exist, the receipt
// belongs to the order and it passed quality inspection.
func (s *WorkflowService) CreateInvoice(ctx context.Context, req *CreateInvoiceRequest) (*repository.Invoice, error) {
	if err := validateLineItems(req.LineItems); err != nil {
		return nil, err
	}

	s.mu.Lock()
	po, ok := s.store.PurchaseOrder(req.POID)
	if !ok {
		s.mu.Unlock()
		return nil, errors.Newf(errors.ErrCodeMatchPrecondition, "purchase order '%s' not found", req.POID)
	}
	gr, ok := s.store.GoodsReceipt(req.GRID)
	if !ok {
		s.mu.Unlock()
		return nil, errors.Newf(errors.ErrCodeMatchPrecondition, "goods receipt '%s' not found", req.GRID)
	}
	if gr.POID != po.ID {
		s.mu.Unlock()
		return nil, errors.Newf(errors.ErrCodeMatchPrecondition,
			"goods receipt %s belongs to purchase order %s, not %s", gr.ID, gr.POID, po.ID)
	}
	if gr.Status != repository.GRStatusAccepted {
		s.mu.Unlock()
		return nil, errors.Newf(errors.ErrCodeInvalidPrecondition,
			"goods receipt %s is '%s', only accepted receipts can be invoiced", gr.ID, gr.Status)
	}

	terms, err := normalizePaymentTerms(req.PaymentTerms, po.PaymentTerms)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	now := s.now()
	invoiceDate := now
	if req.InvoiceDate != nil {
		invoiceDate = *req.InvoiceDate
	}

	inv := &repository.Invoice{
		ID:           s.newID("INV"),
		POID:         po.ID,
		GRID:         gr.ID,
		VendorID:     po.VendorID,
		VendorName:   po.VendorName,
		InvoiceDate:  invoiceDate,
		DueDate:      invoiceDate.AddDate(0, 0, terms.Days()),
		PaymentTerms: terms,
		LineItems:    append([]repository.LineItem(nil), req.LineItems...),
		Notes:        req.Notes,
		Status:       repository.InvoiceStatusDraft,
		UpdatedAt:    now,
	}
	s.store.PutInvoice(inv)
	s.commit()
	out := inv.Clone()
	s.mu.Unlock()

	s.log.Info().
		Str("invoice_id", out.ID).
		Str("po_id", out.POID).
		Str("gr_id", out.GRID).
		Str("vendor_id", out.VendorID).
		Int64("total_amount", out.Total()).
		Time("due_date", out.DueDate).
		Msg("Invoice created")

	s.emit(ctx, s.auditEntry(repository.DocumentInvoice, out.ID, "created", "",
		"", string(out.Status), map[string]any{
			"po_id":        out.POID,
			"gr_id":        out.GRID,
			"total_amount": out.Total(),
		}))
	return out, nil
}

// SubmitInvoice routes a Draft invoice to its approval chain.
func (s *WorkflowService) SubmitInvoice(ctx context.Context, id string) (*repository.Invoice, error) {
	s.mu.Lock()
	inv, err := s.invoiceCopy(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if inv.Status != repository.InvoiceStatusDraft {
		s.mu.Unlock()
		return nil, errors.Newf(errors.ErrCodeInvalidPrecondition,
			"cannot submit invoice with status '%s', must be %s", inv.Status, repository.InvoiceStatusDraft)
	}

	policy, err := s.resolver.Resolve(repository.TargetInvoice, inv.Total())
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	now := s.now()
	before := inv.Status
	inv.PolicyName = policy.Name
	inv.Approvals = newApprovalChain(policy, now)
	if policy.Levels() == 0 {
		inv.Status = repository.InvoiceStatusApproved
	} else {
		inv.Status = repository.InvoiceStatusPendingApproval
	}
	inv.UpdatedAt = now

	s.store.PutInvoice(inv)
	s.commit()
	out := inv.Clone()
	s.mu.Unlock()

	s.log.Info().
		Str("invoice_id", id).
		Str("policy", policy.Name).
		Int("approval_levels", policy.Levels()).
		Str("status", string(out.Status)).
		Msg("Invoice submitted for approval")

	s.emit(ctx, s.auditEntry(repository.DocumentInvoice, id, "submitted", "",
		string(before), string(out.Status), map[string]any{
			"policy":    policy.Name,
			"approvers": repository.PendingApprovers(out.Approvals),
		}))
	return out, nil
}

// RecordInvoiceApproval applies one approver's decision to an invoice.
func (s *WorkflowService) RecordInvoiceApproval(ctx context.Context, id string, req *ApprovalRequest) (*repository.Invoice, error) {
	if err := validateDecision(req.Decision); err != nil {
		return nil, err
	}

	s.mu.Lock()
	inv, err := s.invoiceCopy(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if inv.Status != repository.InvoiceStatusPendingApproval {
		s.mu.Unlock()
		return nil, errors.Newf(errors.ErrCodeNotPending,
			"invoice %s is '%s', not pending approval", id, inv.Status)
	}

	now := s.now()
	outcome, err := applyDecision(inv.Approvals, req.Approver, req.Decision, req.Comments, now)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	before := inv.Status
	switch outcome {
	case repository.DecisionRejected:
		inv.Status = repository.InvoiceStatusRejected
	case repository.DecisionApproved:
		inv.Status = repository.InvoiceStatusApproved
	}
	inv.UpdatedAt = now

	s.store.PutInvoice(inv)
	s.commit()
	out := inv.Clone()
	s.mu.Unlock()

	s.log.Info().
		Str("invoice_id", id).
		Str("approver", req.Approver).
		Str("decision", string(req.Decision)).
		Str("status", string(out.Status)).
		Msg("Invoice approval recorded")

	s.emit(ctx, s.auditEntry(repository.DocumentInvoice, id, approvalAction(req.Decision), req.Approver,
		string(before), string(out.Status), map[string]any{
			"comments":  req.Comments,
			"remaining": repository.PendingApprovers(out.Approvals),
		}))
	return out, nil
}

// ProcessPayment pays an approved invoice.
func (s *WorkflowService) ProcessPayment(ctx context.Context, id string) (*repository.Invoice, error) {
	s.mu.Lock()
	inv, err := s.invoiceCopy(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if inv.Status != repository.InvoiceStatusApproved {
		s.mu.Unlock()
		return nil, errors.Newf(errors.ErrCodeNotApproved,
			"can only pay approved invoices, invoice %s is '%s'", id, inv.Status)
	}

	before := inv.Status
	now := s.now()
	inv.Status = repository.InvoiceStatusPaid
	inv.PaymentDate = &now
	inv.UpdatedAt = now

	s.store.PutInvoice(inv)
	s.commit()
	out := inv.Clone()
	s.mu.Unlock()

	s.log.Info().
		Str("invoice_id", id).
		Int64("amount", out.Total()).
		Msg("Invoice paid")

	s.emit(ctx, s.auditEntry(repository.DocumentInvoice, id, "paid", "",
		string(before), string(out.Status), map[string]any{"amount": out.Total()}))
	return out, nil
}

// CheckOverdue marks approved invoices past their due date as Overdue and
// returns their ids. Running it again without clock movement changes nothing.
func (s *WorkflowService) CheckOverdue(ctx context.Context) []string {
	s.mu.Lock()
	now := s.now()
	var (
		ids     []string
		entries []*repository.AuditEntry
	)
	for _, stored := range s.store.Invoices() {
		if stored.Status != repository.InvoiceStatusApproved || !stored.DueDate.Before(now) {
			continue
		}
		inv := stored.Clone()
		inv.Status = repository.InvoiceStatusOverdue
		inv.UpdatedAt = now
		s.store.PutInvoice(inv)
		ids = append(ids, inv.ID)
		entries = append(entries, s.auditEntry(repository.DocumentInvoice, inv.ID, "overdue", "",
			string(repository.InvoiceStatusApproved), string(inv.Status), map[string]any{
				"due_date": inv.DueDate,
			}))
	}
	if len(ids) > 0 {
		s.commit()
	}
	s.mu.Unlock()

	if len(ids) > 0 {
		s.log.Info().Strs("invoice_ids", ids).Msg("Invoices marked overdue")
	}
	s.emit(ctx, entries...)
	return ids
}
