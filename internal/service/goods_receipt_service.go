package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pesio-ai/be-p2p-workflow/internal/errors"
	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
)

// CreateGoodsReceiptRequest represents a create goods receipt request
type CreateGoodsReceiptRequest struct {
	POID       string                `json:"po_id"`
	ReceivedBy string                `json:"received_by"`
	LineItems  []repository.LineItem `json:"line_items"`
}

// QualityCheckRequest represents a goods receipt quality check
type QualityCheckRequest struct {
	Checker string `json:"checker"`
	Passed  bool   `json:"passed"`
	Notes   string `json:"notes"`
}

func (s *WorkflowService) goodsReceiptCopy(id string) (*repository.GoodsReceipt, error) {
	gr, ok := s.store.GoodsReceipt(id)
	if !ok {
		return nil, errors.NotFound("goods receipt", id)
	}
	return gr.Clone(), nil
}

// CreateGoodsReceipt records goods received against an approved purchase
// order. The first receipt moves the order to In Progress.
func (s *WorkflowService) CreateGoodsReceipt(ctx context.Context, req *CreateGoodsReceiptRequest) (*repository.GoodsReceipt, error) {
	if err := requireField("po_id", req.POID); err != nil {
		return nil, err
	}
	if err := requireField("received_by", req.ReceivedBy); err != nil {
		return nil, err
	}
	if err := validateLineItems(req.LineItems); err != nil {
		return nil, err
	}

	s.mu.Lock()
	po, err := s.purchaseOrderCopy(req.POID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if po.Status != repository.POStatusApproved && po.Status != repository.POStatusInProgress {
		s.mu.Unlock()
		return nil, errors.Newf(errors.ErrCodeInvalidPrecondition,
			"cannot receive goods against purchase order %s with status '%s'", po.ID, po.Status)
	}

	ordered := make(map[string]bool, len(po.LineItems))
	for _, l := range po.LineItems {
		ordered[l.ItemCode] = true
	}
	for i, l := range req.LineItems {
		if !ordered[l.ItemCode] {
			s.mu.Unlock()
			return nil, errors.InvalidInput(fmt.Sprintf("line_items[%d].item_code", i),
				fmt.Sprintf("item '%s' is not on purchase order %s", l.ItemCode, po.ID))
		}
	}

	now := s.now()
	gr := &repository.GoodsReceipt{
		ID:            s.newID("GR"),
		POID:          po.ID,
		ReceiptDate:   now,
		ReceivedBy:    req.ReceivedBy,
		LineItems:     append([]repository.LineItem(nil), req.LineItems...),
		QualityResult: repository.QualityPending,
		Status:        repository.GRStatusDraft,
		UpdatedAt:     now,
	}
	s.store.PutGoodsReceipt(gr)

	entries := []*repository.AuditEntry{
		s.auditEntry(repository.DocumentGoodsReceipt, gr.ID, "created", req.ReceivedBy,
			"", string(gr.Status), map[string]any{"po_id": po.ID}),
	}
	if po.Status == repository.POStatusApproved {
		po.Status = repository.POStatusInProgress
		po.UpdatedAt = now
		s.store.PutPurchaseOrder(po)
		entries = append(entries, s.auditEntry(repository.DocumentPurchaseOrder, po.ID, "in_progress", req.ReceivedBy,
			string(repository.POStatusApproved), string(po.Status), map[string]any{"gr_id": gr.ID}))
	}
	s.commit()
	out := gr.Clone()
	s.mu.Unlock()

	s.log.Info().
		Str("gr_id", out.ID).
		Str("po_id", out.POID).
		Str("received_by", out.ReceivedBy).
		Int64("total_amount", out.Total()).
		Msg("Goods receipt created")

	s.emit(ctx, entries...)
	return out, nil
}

// MarkReceived confirms physical receipt of a Draft goods receipt.
func (s *WorkflowService) MarkReceived(ctx context.Context, id string) (*repository.GoodsReceipt, error) {
	s.mu.Lock()
	gr, err := s.goodsReceiptCopy(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := grTransitions.check("goods receipt", id, gr.Status, repository.GRStatusReceived); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	before := gr.Status
	now := s.now()
	gr.Status = repository.GRStatusReceived
	gr.ReceiptDate = now
	gr.UpdatedAt = now

	s.store.PutGoodsReceipt(gr)
	s.commit()
	out := gr.Clone()
	s.mu.Unlock()

	s.log.Info().Str("gr_id", id).Msg("Goods marked as received")

	s.emit(ctx, s.auditEntry(repository.DocumentGoodsReceipt, id, "received", out.ReceivedBy,
		string(before), string(out.Status), nil))
	return out, nil
}

// PerformQualityCheck accepts or rejects a received goods receipt. When every
// receipt of an in-progress order is accepted the order completes.
func (s *WorkflowService) PerformQualityCheck(ctx context.Context, id string, req *QualityCheckRequest) (*repository.GoodsReceipt, error) {
	if err := requireField("checker", req.Checker); err != nil {
		return nil, err
	}

	s.mu.Lock()
	gr, err := s.goodsReceiptCopy(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if gr.Status != repository.GRStatusReceived {
		s.mu.Unlock()
		return nil, errors.Newf(errors.ErrCodeNotReceived,
			"goods receipt %s is '%s', goods must be received before quality check", id, gr.Status)
	}

	before := gr.Status
	now := s.now()
	if req.Passed {
		gr.Status = repository.GRStatusAccepted
		gr.QualityResult = repository.QualityPass
	} else {
		gr.Status = repository.GRStatusRejected
		gr.QualityResult = repository.QualityFail
	}
	gr.QualityChecker = req.Checker
	gr.QualityNotes = req.Notes
	gr.QualityCheckedAt = &now
	gr.UpdatedAt = now
	s.store.PutGoodsReceipt(gr)

	entries := []*repository.AuditEntry{
		s.auditEntry(repository.DocumentGoodsReceipt, id, "quality_checked", req.Checker,
			string(before), string(gr.Status), map[string]any{
				"result": string(gr.QualityResult),
				"notes":  req.Notes,
			}),
	}
	if entry := s.completeIfFullyAccepted(gr.POID, now); entry != nil {
		entries = append(entries, entry)
	}
	s.commit()
	out := gr.Clone()
	s.mu.Unlock()

	s.log.Info().
		Str("gr_id", id).
		Str("po_id", out.POID).
		Str("checker", req.Checker).
		Str("result", string(out.QualityResult)).
		Msg("Quality check performed")

	s.emit(ctx, entries...)
	return out, nil
}

// completeIfFullyAccepted moves an In Progress order to Completed once all of
// its receipts are accepted. Callers hold the write lock.
func (s *WorkflowService) completeIfFullyAccepted(poID string, now time.Time) *repository.AuditEntry {
	po, ok := s.store.PurchaseOrder(poID)
	if !ok || po.Status != repository.POStatusInProgress {
		return nil
	}
	receipts := s.store.GoodsReceiptsForPO(poID)
	if len(receipts) == 0 {
		return nil
	}
	for _, gr := range receipts {
		if gr.Status != repository.GRStatusAccepted {
			return nil
		}
	}

	updated := po.Clone()
	updated.Status = repository.POStatusCompleted
	updated.UpdatedAt = now
	s.store.PutPurchaseOrder(updated)

	s.log.Info().Str("po_id", poID).Int("receipts", len(receipts)).Msg("Purchase order completed")

	return s.auditEntry(repository.DocumentPurchaseOrder, poID, "completed", "",
		string(repository.POStatusInProgress), string(updated.Status), nil)
}
