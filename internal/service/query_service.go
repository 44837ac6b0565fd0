package service

import (
	"context"

	"github.com/pesio-ai/be-p2p-workflow/internal/errors"
	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
)

// DocumentStats summarizes one document kind.
type DocumentStats struct {
	Total          int              `json:"total"`
	ByStatus       map[string]int   `json:"by_status"`
	TotalAmount    int64            `json:"total_amount"`
	AmountByStatus map[string]int64 `json:"amount_by_status"`
}

func newDocumentStats() DocumentStats {
	return DocumentStats{ByStatus: map[string]int{}, AmountByStatus: map[string]int64{}}
}

func (d *DocumentStats) add(status string, amount int64) {
	d.ByStatus[status]++
	d.TotalAmount += amount
	d.AmountByStatus[status] += amount
}

// Statistics is the workflow dashboard summary.
type Statistics struct {
	PurchaseOrders   DocumentStats `json:"purchase_orders"`
	GoodsReceipts    DocumentStats `json:"goods_receipts"`
	Invoices         DocumentStats `json:"invoices"`
	TotalPOValue     int64         `json:"total_po_value"`
	TotalInvoiced    int64         `json:"total_invoiced"`
	TotalPaid        int64         `json:"total_paid"`
	BlockedDocuments int           `json:"blocked_documents"`
	PendingApprovals int           `json:"pending_approvals"`
	Revision         uint64        `json:"revision"`
}

// BlockedDocument is one blocked document with its reason.
type BlockedDocument struct {
	DocumentID     string                  `json:"document_id"`
	DocumentType   repository.DocumentType `json:"document_type"`
	VendorID       string                  `json:"vendor_id"`
	Reason         string                  `json:"reason"`
	PreviousStatus string                  `json:"previous_status"`
	Amount         int64                   `json:"amount"`
}

// PendingApproval is a document waiting on approvers.
type PendingApproval struct {
	DocumentID         string                  `json:"document_id"`
	DocumentType       repository.DocumentType `json:"document_type"`
	VendorID           string                  `json:"vendor_id"`
	VendorName         string                  `json:"vendor_name"`
	Amount             int64                   `json:"amount"`
	PolicyName         string                  `json:"policy_name"`
	RemainingApprovers []string                `json:"remaining_approvers"`
}

// PurchaseOrderSummary relates a purchase order to its receipts and invoices.
type PurchaseOrderSummary struct {
	PurchaseOrder *repository.PurchaseOrder  `json:"purchase_order"`
	GoodsReceipts []*repository.GoodsReceipt `json:"goods_receipts"`
	Invoices      []*repository.Invoice      `json:"invoices"`
	TotalOrdered  int64                      `json:"total_ordered"`
	TotalReceived int64                      `json:"total_received"`
	TotalInvoiced int64                      `json:"total_invoiced"`
	TotalPaid     int64                      `json:"total_paid"`

	AllowedTransitions []repository.POStatus `json:"allowed_transitions"`
}

// GetPurchaseOrder retrieves a purchase order by ID
func (s *WorkflowService) GetPurchaseOrder(id string) (*repository.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.purchaseOrderCopy(id)
}

// GetGoodsReceipt retrieves a goods receipt by ID
func (s *WorkflowService) GetGoodsReceipt(id string) (*repository.GoodsReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.goodsReceiptCopy(id)
}

// GetInvoice retrieves an invoice by ID
func (s *WorkflowService) GetInvoice(id string) (*repository.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.invoiceCopy(id)
}

// ListPurchaseOrders lists purchase orders in creation order, optionally
// filtered by status.
func (s *WorkflowService) ListPurchaseOrders(status repository.POStatus) []*repository.PurchaseOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*repository.PurchaseOrder, 0)
	for _, po := range s.store.PurchaseOrders() {
		if status == "" || po.Status == status {
			out = append(out, po.Clone())
		}
	}
	return out
}

// ListGoodsReceipts lists goods receipts, optionally filtered by status.
func (s *WorkflowService) ListGoodsReceipts(status repository.GRStatus) []*repository.GoodsReceipt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*repository.GoodsReceipt, 0)
	for _, gr := range s.store.GoodsReceipts() {
		if status == "" || gr.Status == status {
			out = append(out, gr.Clone())
		}
	}
	return out
}

// ListInvoices lists invoices, optionally filtered by status.
func (s *WorkflowService) ListInvoices(status repository.InvoiceStatus) []*repository.Invoice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*repository.Invoice, 0)
	for _, inv := range s.store.Invoices() {
		if status == "" || inv.Status == status {
			out = append(out, inv.Clone())
		}
	}
	return out
}

// Statistics counts documents by status and sums their amounts.
func (s *WorkflowService) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Statistics{
		PurchaseOrders: newDocumentStats(),
		GoodsReceipts:  newDocumentStats(),
		Invoices:       newDocumentStats(),
		Revision:       s.revision,
	}
	stats.PurchaseOrders.Total, stats.GoodsReceipts.Total, stats.Invoices.Total = s.store.Counts()
	for _, po := range s.store.PurchaseOrders() {
		stats.PurchaseOrders.add(string(po.Status), po.Total())
		stats.TotalPOValue += po.Total()
		if po.Status == repository.POStatusBlocked {
			stats.BlockedDocuments++
		}
		if po.Status == repository.POStatusPendingApproval {
			stats.PendingApprovals++
		}
	}
	for _, gr := range s.store.GoodsReceipts() {
		stats.GoodsReceipts.add(string(gr.Status), gr.Total())
		if gr.Status == repository.GRStatusBlocked {
			stats.BlockedDocuments++
		}
	}
	for _, inv := range s.store.Invoices() {
		stats.Invoices.add(string(inv.Status), inv.Total())
		stats.TotalInvoiced += inv.Total()
		switch inv.Status {
		case repository.InvoiceStatusPaid:
			stats.TotalPaid += inv.Total()
		case repository.InvoiceStatusBlocked:
			stats.BlockedDocuments++
		case repository.InvoiceStatusPendingApproval:
			stats.PendingApprovals++
		}
	}
	return stats
}

// BlockedDocuments lists every blocked document with its reason.
func (s *WorkflowService) BlockedDocuments() []BlockedDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]BlockedDocument, 0)
	for _, po := range s.store.PurchaseOrders() {
		if po.Status == repository.POStatusBlocked {
			out = append(out, BlockedDocument{
				DocumentID:     po.ID,
				DocumentType:   repository.DocumentPurchaseOrder,
				VendorID:       po.VendorID,
				Reason:         po.BlockedReason,
				PreviousStatus: string(po.PreviousStatus),
				Amount:         po.Total(),
			})
		}
	}
	for _, gr := range s.store.GoodsReceipts() {
		if gr.Status == repository.GRStatusBlocked {
			doc := BlockedDocument{
				DocumentID:     gr.ID,
				DocumentType:   repository.DocumentGoodsReceipt,
				Reason:         gr.BlockedReason,
				PreviousStatus: string(gr.PreviousStatus),
				Amount:         gr.Total(),
			}
			if po, ok := s.store.PurchaseOrder(gr.POID); ok {
				doc.VendorID = po.VendorID
			}
			out = append(out, doc)
		}
	}
	for _, inv := range s.store.Invoices() {
		if inv.Status == repository.InvoiceStatusBlocked {
			out = append(out, BlockedDocument{
				DocumentID:     inv.ID,
				DocumentType:   repository.DocumentInvoice,
				VendorID:       inv.VendorID,
				Reason:         inv.BlockedReason,
				PreviousStatus: string(inv.PreviousStatus),
				Amount:         inv.Total(),
			})
		}
	}
	return out
}

// PendingApprovals lists documents awaiting approval and who still has to sign.
func (s *WorkflowService) PendingApprovals() []PendingApproval {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PendingApproval, 0)
	for _, po := range s.store.PurchaseOrders() {
		if po.Status == repository.POStatusPendingApproval {
			out = append(out, PendingApproval{
				DocumentID:         po.ID,
				DocumentType:       repository.DocumentPurchaseOrder,
				VendorID:           po.VendorID,
				VendorName:         po.VendorName,
				Amount:             po.Total(),
				PolicyName:         po.PolicyName,
				RemainingApprovers: repository.PendingApprovers(po.Approvals),
			})
		}
	}
	for _, inv := range s.store.Invoices() {
		if inv.Status == repository.InvoiceStatusPendingApproval {
			out = append(out, PendingApproval{
				DocumentID:         inv.ID,
				DocumentType:       repository.DocumentInvoice,
				VendorID:           inv.VendorID,
				VendorName:         inv.VendorName,
				Amount:             inv.Total(),
				PolicyName:         inv.PolicyName,
				RemainingApprovers: repository.PendingApprovers(inv.Approvals),
			})
		}
	}
	return out
}

// AuditTrail returns the persisted audit entries of a document, oldest first.
// A document with no history that the engine does not hold is NotFound.
func (s *WorkflowService) AuditTrail(ctx context.Context, documentID string) ([]*repository.AuditEntry, error) {
	if s.auditLog == nil {
		return nil, errors.New(errors.ErrCodeUnavailable, "audit log is not configured")
	}
	entries, err := s.auditLog.GetByDocumentID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 && !s.holds(documentID) {
		return nil, errors.NotFound("document", documentID)
	}
	return entries, nil
}

func (s *WorkflowService) holds(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.store.PurchaseOrder(id); ok {
		return true
	}
	if _, ok := s.store.GoodsReceipt(id); ok {
		return true
	}
	_, ok := s.store.Invoice(id)
	return ok
}

// Policies lists the configured approval policies.
func (s *WorkflowService) Policies() []repository.ApprovalPolicy {
	return s.resolver.AllPolicies()
}

// PurchaseOrderSummary returns a purchase order with its receipts, invoices
// and the received, invoiced and paid totals.
func (s *WorkflowService) PurchaseOrderSummary(id string) (*PurchaseOrderSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, ok := s.store.PurchaseOrder(id)
	if !ok {
		return nil, errors.NotFound("purchase order", id)
	}
	summary := &PurchaseOrderSummary{
		PurchaseOrder: po.Clone(),
		GoodsReceipts: make([]*repository.GoodsReceipt, 0),
		Invoices:      make([]*repository.Invoice, 0),
		TotalOrdered:  po.Total(),

		AllowedTransitions: AllowedPOTransitions(po.Status),
	}
	for _, gr := range s.store.GoodsReceiptsForPO(id) {
		summary.GoodsReceipts = append(summary.GoodsReceipts, gr.Clone())
		if gr.Status == repository.GRStatusAccepted {
			summary.TotalReceived += gr.Total()
		}
	}
	for _, inv := range s.store.InvoicesForPO(id) {
		summary.Invoices = append(summary.Invoices, inv.Clone())
		summary.TotalInvoiced += inv.Total()
		if inv.Status == repository.InvoiceStatusPaid {
			summary.TotalPaid += inv.Total()
		}
	}
	return summary, nil
}
