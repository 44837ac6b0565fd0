package repository

import (
	"math"
	"time"
)

// POStatus is the lifecycle status of a purchase order.
type POStatus string

const (
	POStatusDraft           POStatus = "Draft"
	POStatusPendingApproval POStatus = "Pending Approval"
	POStatusApproved        POStatus = "Approved"
	POStatusRejected        POStatus = "Rejected"
	POStatusInProgress      POStatus = "In Progress"
	POStatusCompleted       POStatus = "Completed"
	POStatusCancelled       POStatus = "Cancelled"
	POStatusBlocked         POStatus = "Blocked"
)

// GRStatus is the lifecycle status of a goods receipt.
type GRStatus string

const (
	GRStatusDraft    GRStatus = "Draft"
	GRStatusReceived GRStatus = "Received"
	GRStatusAccepted GRStatus = "Accepted"
	GRStatusRejected GRStatus = "Rejected"
	GRStatusBlocked  GRStatus = "Blocked"
)

// InvoiceStatus is the lifecycle status of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft           InvoiceStatus = "Draft"
	InvoiceStatusPendingApproval InvoiceStatus = "Pending Approval"
	InvoiceStatusApproved        InvoiceStatus = "Approved"
	InvoiceStatusRejected        InvoiceStatus = "Rejected"
	InvoiceStatusPaid            InvoiceStatus = "Paid"
	InvoiceStatusOverdue         InvoiceStatus = "Overdue"
	InvoiceStatusBlocked         InvoiceStatus = "Blocked"
)

// QualityResult is the outcome of a goods receipt quality check.
type QualityResult string

const (
	QualityPending QualityResult = "pending"
	QualityPass    QualityResult = "pass"
	QualityFail    QualityResult = "fail"
)

// PaymentTerms determines the invoice due date offset.
type PaymentTerms string

const (
	PaymentTermsImmediate    PaymentTerms = "Immediate"
	PaymentTermsDueOnReceipt PaymentTerms = "Due on Receipt"
	PaymentTermsNet30        PaymentTerms = "Net 30 Days"
	PaymentTermsNet60        PaymentTerms = "Net 60 Days"
	PaymentTermsNet90        PaymentTerms = "Net 90 Days"
)

// Days returns the due-date offset. Unrecognized terms fall back to 30 days.
func (t PaymentTerms) Days() int {
	switch t {
	case PaymentTermsImmediate, PaymentTermsDueOnReceipt:
		return 0
	case PaymentTermsNet60:
		return 60
	case PaymentTermsNet90:
		return 90
	default:
		return 30
	}
}

// LineItem is a priced line on a PO, GR or invoice. Amounts are in cents.
type LineItem struct {
	ItemCode    string  `json:"item_code"`
	Description string  `json:"description"`
	Category    string  `json:"category,omitempty"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   int64   `json:"unit_price"`
	TaxRate     float64 `json:"tax_rate"` // fraction, 0.10 = 10%
}

// Subtotal is quantity × unit price, rounded to the cent.
func (l LineItem) Subtotal() int64 {
	return int64(math.Round(l.Quantity * float64(l.UnitPrice)))
}

// TaxAmount is subtotal × tax rate, rounded to the cent.
func (l LineItem) TaxAmount() int64 {
	return int64(math.Round(float64(l.Subtotal()) * l.TaxRate))
}

// Total is the line total including tax.
func (l LineItem) Total() int64 {
	return l.Subtotal() + l.TaxAmount()
}

func sumLines(lines []LineItem) int64 {
	var total int64
	for _, l := range lines {
		total += l.Total()
	}
	return total
}

func cloneLines(lines []LineItem) []LineItem {
	if lines == nil {
		return nil
	}
	return append([]LineItem(nil), lines...)
}

func cloneApprovals(records []ApprovalRecord) []ApprovalRecord {
	if records == nil {
		return nil
	}
	return append([]ApprovalRecord(nil), records...)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// PurchaseOrder is a request to buy goods or services from a vendor.
type PurchaseOrder struct {
	ID              string           `json:"id"`
	VendorID        string           `json:"vendor_id"`
	VendorName      string           `json:"vendor_name"`
	Requester       string           `json:"requester"`
	Department      string           `json:"department"`
	OrderedOn       time.Time        `json:"ordered_on"`
	LineItems       []LineItem       `json:"line_items"`
	PaymentTerms    PaymentTerms     `json:"payment_terms"`
	DeliveryAddress string           `json:"delivery_address,omitempty"`
	Notes           string           `json:"notes,omitempty"`
	Status          POStatus         `json:"status"`
	PreviousStatus  POStatus         `json:"previous_status,omitempty"` // set while Blocked
	Approvals       []ApprovalRecord `json:"approvals"`
	PolicyName      string           `json:"policy_name,omitempty"`
	BlockedReason   string           `json:"blocked_reason,omitempty"`
	ApprovedAt      *time.Time       `json:"approved_at,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Total is the sum of line totals.
func (po *PurchaseOrder) Total() int64 { return sumLines(po.LineItems) }

// Clone returns a deep copy.
func (po *PurchaseOrder) Clone() *PurchaseOrder {
	out := *po
	out.LineItems = cloneLines(po.LineItems)
	out.Approvals = cloneApprovals(po.Approvals)
	out.ApprovedAt = cloneTime(po.ApprovedAt)
	return &out
}

// GoodsReceipt records goods received against a purchase order.
type GoodsReceipt struct {
	ID               string        `json:"id"`
	POID             string        `json:"po_id"`
	ReceiptDate      time.Time     `json:"receipt_date"`
	ReceivedBy       string        `json:"received_by"`
	LineItems        []LineItem    `json:"line_items"`
	QualityResult    QualityResult `json:"quality_result"`
	QualityChecker   string        `json:"quality_checker,omitempty"`
	QualityNotes     string        `json:"quality_notes,omitempty"`
	QualityCheckedAt *time.Time    `json:"quality_checked_at,omitempty"`
	Status           GRStatus      `json:"status"`
	PreviousStatus   GRStatus      `json:"previous_status,omitempty"`
	BlockedReason    string        `json:"blocked_reason,omitempty"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Total is the sum of received line totals.
func (gr *GoodsReceipt) Total() int64 { return sumLines(gr.LineItems) }

// Clone returns a deep copy.
func (gr *GoodsReceipt) Clone() *GoodsReceipt {
	out := *gr
	out.LineItems = cloneLines(gr.LineItems)
	out.QualityCheckedAt = cloneTime(gr.QualityCheckedAt)
	return &out
}

// Invoice is a vendor's bill matched against a PO and an accepted GR.
type Invoice struct {
	ID             string           `json:"id"`
	POID           string           `json:"po_id"`
	GRID           string           `json:"gr_id"`
	VendorID       string           `json:"vendor_id"`
	VendorName     string           `json:"vendor_name"`
	InvoiceDate    time.Time        `json:"invoice_date"`
	DueDate        time.Time        `json:"due_date"`
	PaymentTerms   PaymentTerms     `json:"payment_terms"`
	LineItems      []LineItem       `json:"line_items"`
	Notes          string           `json:"notes,omitempty"`
	Status         InvoiceStatus    `json:"status"`
	PreviousStatus InvoiceStatus    `json:"previous_status,omitempty"`
	Approvals      []ApprovalRecord `json:"approvals"`
	PolicyName     string           `json:"policy_name,omitempty"`
	PaymentDate    *time.Time       `json:"payment_date,omitempty"`
	BlockedReason  string           `json:"blocked_reason,omitempty"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Total is the sum of line totals.
func (inv *Invoice) Total() int64 { return sumLines(inv.LineItems) }

// Clone returns a deep copy.
func (inv *Invoice) Clone() *Invoice {
	out := *inv
	out.LineItems = cloneLines(inv.LineItems)
	out.Approvals = cloneApprovals(inv.Approvals)
	out.PaymentDate = cloneTime(inv.PaymentDate)
	return &out
}

// PendingApprovers returns the approvers whose slot is still undecided.
func PendingApprovers(records []ApprovalRecord) []string {
	var out []string
	for _, r := range records {
		if r.Decision == DecisionPending {
			out = append(out, r.Approver)
		}
	}
	return out
}
