package service

import (
	"context"

	"github.com/pesio-ai/be-p2p-workflow/internal/errors"
	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
)

// ── Blocking overlay ──────────────────────────────────────────────────────────
//
// Blocked is entered from (almost) any status and saves the status it left.
// A document is Blocked exactly when it carries a blocking reason.

// BlockPurchaseOrder blocks a non-terminal purchase order. Blocking an already
// blocked order replaces the reason.
func (s *WorkflowService) BlockPurchaseOrder(ctx context.Context, id, reason string) (*repository.PurchaseOrder, error) {
	if err := requireReason(reason); err != nil {
		return nil, err
	}

	s.mu.Lock()
	po, err := s.purchaseOrderCopy(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if poTerminal(po.Status) {
		s.mu.Unlock()
		return nil, errors.Newf(errors.ErrCodeInvalidPrecondition,
			"purchase order %s is '%s' and cannot be blocked", id, po.Status)
	}

	before := po.Status
	if po.Status != repository.POStatusBlocked {
		po.PreviousStatus = po.Status
		po.Status = repository.POStatusBlocked
	}
	po.BlockedReason = reason
	po.UpdatedAt = s.now()

	s.store.PutPurchaseOrder(po)
	s.commit()
	out := po.Clone()
	s.mu.Unlock()

	s.log.Warn().Str("po_id", id).Str("reason", reason).Msg("Purchase order blocked")

	s.emit(ctx, s.auditEntry(repository.DocumentPurchaseOrder, id, "blocked", "",
		string(before), string(out.Status), map[string]any{"reason": reason}))
	return out, nil
}

// UnblockPurchaseOrder restores the status the order had when it was blocked.
func (s *WorkflowService) UnblockPurchaseOrder(ctx context.Context, id string) (*repository.PurchaseOrder, error) {
	s.mu.Lock()
	po, err := s.purchaseOrderCopy(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if po.Status != repository.POStatusBlocked {
		s.mu.Unlock()
		return nil, notBlocked("purchase order", id)
	}

	reason := po.BlockedReason
	po.Status = po.PreviousStatus
	po.PreviousStatus = ""
	po.BlockedReason = ""
	po.UpdatedAt = s.now()

	s.store.PutPurchaseOrder(po)
	s.commit()
	out := po.Clone()
	s.mu.Unlock()

	s.log.Info().Str("po_id", id).Str("status", string(out.Status)).Msg("Purchase order unblocked")

	s.emit(ctx, s.auditEntry(repository.DocumentPurchaseOrder, id, "unblocked", "",
		string(repository.POStatusBlocked), string(out.Status), map[string]any{"previous_reason": reason}))
	return out, nil
}

// BlockGoodsReceipt blocks a goods receipt in any status.
func (s *WorkflowService) BlockGoodsReceipt(ctx context.Context, id, reason string) (*repository.GoodsReceipt, error) {
	if err := requireReason(reason); err != nil {
		return nil, err
	}

	s.mu.Lock()
	gr, err := s.goodsReceiptCopy(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	before := gr.Status
	if gr.Status != repository.GRStatusBlocked {
		gr.PreviousStatus = gr.Status
		gr.Status = repository.GRStatusBlocked
	}
	gr.BlockedReason = reason
	gr.UpdatedAt = s.now()

	s.store.PutGoodsReceipt(gr)
	s.commit()
	out := gr.Clone()
	s.mu.Unlock()

	s.log.Warn().Str("gr_id", id).Str("reason", reason).Msg("Goods receipt blocked")

	s.emit(ctx, s.auditEntry(repository.DocumentGoodsReceipt, id, "blocked", "",
		string(before), string(out.Status), map[string]any{"reason": reason}))
	return out, nil
}

// UnblockGoodsReceipt restores the status the receipt had when it was blocked.
func (s *WorkflowService) UnblockGoodsReceipt(ctx context.Context, id string) (*repository.GoodsReceipt, error) {
	s.mu.Lock()
	gr, err := s.goodsReceiptCopy(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if gr.Status != repository.GRStatusBlocked {
		s.mu.Unlock()
		return nil, notBlocked("goods receipt", id)
	}

	reason := gr.BlockedReason
	gr.Status = gr.PreviousStatus
	gr.PreviousStatus = ""
	gr.BlockedReason = ""
	gr.UpdatedAt = s.now()

	s.store.PutGoodsReceipt(gr)
	s.commit()
	out := gr.Clone()
	s.mu.Unlock()

	s.log.Info().Str("gr_id", id).Str("status", string(out.Status)).Msg("Goods receipt unblocked")

	s.emit(ctx, s.auditEntry(repository.DocumentGoodsReceipt, id, "unblocked", "",
		string(repository.GRStatusBlocked), string(out.Status), map[string]any{"previous_reason": reason}))
	return out, nil
}

// BlockInvoice blocks an invoice in any status except Paid. A paid invoice
// would unblock to Draft and could be paid a second time.
func (s *WorkflowService) BlockInvoice(ctx context.Context, id, reason string) (*repository.Invoice, error) {
	if err := requireReason(reason); err != nil {
		return nil, err
	}

	s.mu.Lock()
	inv, err := s.invoiceCopy(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if inv.Status == repository.InvoiceStatusPaid {
		s.mu.Unlock()
		return nil, errors.Newf(errors.ErrCodeInvalidPrecondition,
			"invoice %s is '%s' and cannot be blocked", id, inv.Status)
	}

	before := inv.Status
	if inv.Status != repository.InvoiceStatusBlocked {
		inv.PreviousStatus = inv.Status
		inv.Status = repository.InvoiceStatusBlocked
	}
	inv.BlockedReason = reason
	inv.UpdatedAt = s.now()

	s.store.PutInvoice(inv)
	s.commit()
	out := inv.Clone()
	s.mu.Unlock()

	s.log.Warn().Str("invoice_id", id).Str("reason", reason).Msg("Invoice blocked")

	s.emit(ctx, s.auditEntry(repository.DocumentInvoice, id, "blocked", "",
		string(before), string(out.Status), map[string]any{"reason": reason}))
	return out, nil
}

// UnblockInvoice returns a blocked invoice to Draft, whatever status it was
// blocked from, so it goes through approval again.
func (s *WorkflowService) UnblockInvoice(ctx context.Context, id string) (*repository.Invoice, error) {
	s.mu.Lock()
	inv, err := s.invoiceCopy(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if inv.Status != repository.InvoiceStatusBlocked {
		s.mu.Unlock()
		return nil, notBlocked("invoice", id)
	}

	reason := inv.BlockedReason
	previous := inv.PreviousStatus
	inv.Status = repository.InvoiceStatusDraft
	inv.PreviousStatus = ""
	inv.BlockedReason = ""
	inv.UpdatedAt = s.now()

	s.store.PutInvoice(inv)
	s.commit()
	out := inv.Clone()
	s.mu.Unlock()

	s.log.Info().
		Str("invoice_id", id).
		Str("blocked_from", string(previous)).
		Msg("Invoice unblocked")

	s.emit(ctx, s.auditEntry(repository.DocumentInvoice, id, "unblocked", "",
		string(repository.InvoiceStatusBlocked), string(out.Status), map[string]any{
			"previous_reason": reason,
			"blocked_from":    string(previous),
		}))
	return out, nil
}

func notBlocked(kind, id string) error {
	return errors.Newf(errors.ErrCodeInvalidPrecondition, "%s %s is not blocked", kind, id)
}
