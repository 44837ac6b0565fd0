package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-p2p-workflow/internal/errors"
	"github.com/pesio-ai/be-p2p-workflow/internal/logger"
	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
)

const (
	deptManager    = "John Smith (Dept Manager)"
	financeManager = "Sarah Johnson (Finance Manager)"
	cfo            = "Michael Brown (CFO)"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu      sync.Mutex
	entries []*repository.AuditEntry
	events  []*repository.AuditEntry
	fail    bool
}

func (r *recordingSink) Append(_ context.Context, entry *repository.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return stderrors.New("audit store unavailable")
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recordingSink) GetByDocumentID(_ context.Context, documentID string) ([]*repository.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return nil, errors.New(errors.ErrCodeInternal, "audit store unavailable")
	}
	var out []*repository.AuditEntry
	for _, e := range r.entries {
		if e.DocumentID == documentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *recordingSink) PublishWorkflowEvent(_ context.Context, entry *repository.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, entry)
}

func (r *recordingSink) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.entries {
		out = append(out, fmt.Sprintf("%s:%s", e.DocumentID, e.Action))
	}
	return out
}

func sequentialIDs() func(string) string {
	var mu sync.Mutex
	counters := map[string]int{}
	return func(prefix string) string {
		mu.Lock()
		defer mu.Unlock()
		counters[prefix]++
		return fmt.Sprintf("%s-%04d", prefix, counters[prefix])
	}
}

type fixture struct {
	svc   *WorkflowService
	clock *testClock
	sink  *recordingSink
}

func newFixture(t *testing.T, policies ...repository.ApprovalPolicy) *fixture {
	t.Helper()
	if len(policies) == 0 {
		policies = DefaultPolicies()
	}
	resolver, err := NewApprovalResolver(policies)
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)}
	sink := &recordingSink{}
	svc := NewWorkflowService(resolver, logger.Nop(),
		WithClock(clock.Now),
		WithAuditSink(sink),
		WithEventPublisher(sink),
		WithIDGenerator(sequentialIDs()),
	)
	return &fixture{svc: svc, clock: clock, sink: sink}
}

// laptopLine totals $5,709.18 including 10% tax.
func laptopLine() repository.LineItem {
	return repository.LineItem{ItemCode: "IT-101", Description: "Business laptop", Quantity: 1, UnitPrice: 519016, TaxRate: 0.10}
}

func paperLine() repository.LineItem {
	return repository.LineItem{ItemCode: "OFF-001", Description: "Copy paper box", Quantity: 10, UnitPrice: 2599, TaxRate: 0.10}
}

func (f *fixture) createPO(t *testing.T, vendor string, lines ...repository.LineItem) *repository.PurchaseOrder {
	t.Helper()
	po, err := f.svc.CreatePurchaseOrder(context.Background(), &CreatePurchaseOrderRequest{
		VendorID:   vendor,
		VendorName: vendor + " Inc",
		Requester:  "alice",
		Department: "IT",
		LineItems:  lines,
	})
	require.NoError(t, err)
	return po
}

func (f *fixture) approveAll(t *testing.T, po *repository.PurchaseOrder) *repository.PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	po, err := f.svc.SubmitPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	for _, approver := range repository.PendingApprovers(po.Approvals) {
		po, err = f.svc.RecordPurchaseOrderApproval(ctx, po.ID, &ApprovalRequest{Approver: approver, Decision: repository.DecisionApproved})
		require.NoError(t, err)
	}
	require.Equal(t, repository.POStatusApproved, po.Status)
	return po
}

func (f *fixture) acceptedGR(t *testing.T, po *repository.PurchaseOrder) *repository.GoodsReceipt {
	t.Helper()
	ctx := context.Background()
	gr, err := f.svc.CreateGoodsReceipt(ctx, &CreateGoodsReceiptRequest{POID: po.ID, ReceivedBy: "warehouse", LineItems: po.LineItems})
	require.NoError(t, err)
	_, err = f.svc.MarkReceived(ctx, gr.ID)
	require.NoError(t, err)
	gr, err = f.svc.PerformQualityCheck(ctx, gr.ID, &QualityCheckRequest{Checker: "qa", Passed: true})
	require.NoError(t, err)
	return gr
}

// ── Purchase orders ──────────────────────────────────────────────────────────

func TestCreatePurchaseOrder_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		req  CreatePurchaseOrderRequest
	}{
		{"missing vendor", CreatePurchaseOrderRequest{Requester: "a", LineItems: []repository.LineItem{paperLine()}}},
		{"missing requester", CreatePurchaseOrderRequest{VendorID: "V1", LineItems: []repository.LineItem{paperLine()}}},
		{"no lines", CreatePurchaseOrderRequest{VendorID: "V1", Requester: "a"}},
		{"zero quantity", CreatePurchaseOrderRequest{VendorID: "V1", Requester: "a",
			LineItems: []repository.LineItem{{ItemCode: "X", Quantity: 0, UnitPrice: 1}}}},
		{"negative price", CreatePurchaseOrderRequest{VendorID: "V1", Requester: "a",
			LineItems: []repository.LineItem{{ItemCode: "X", Quantity: 1, UnitPrice: -1}}}},
		{"tax rate above one", CreatePurchaseOrderRequest{VendorID: "V1", Requester: "a",
			LineItems: []repository.LineItem{{ItemCode: "X", Quantity: 1, UnitPrice: 1, TaxRate: 1.5}}}},
		{"unknown terms", CreatePurchaseOrderRequest{VendorID: "V1", Requester: "a", PaymentTerms: "Net 45",
			LineItems: []repository.LineItem{paperLine()}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreatePurchaseOrder(context.Background(), &tt.req)
			assert.ErrorIs(t, err, errors.ErrInvalidInput)
		})
	}
	assert.Empty(t, f.svc.ListPurchaseOrders(""))
	assert.Equal(t, uint64(0), f.svc.Revision())
}

func TestCreatePurchaseOrder_Defaults(t *testing.T) {
	f := newFixture(t)
	po := f.createPO(t, "V1", paperLine())

	assert.Equal(t, "PO-0001", po.ID)
	assert.Equal(t, repository.POStatusDraft, po.Status)
	assert.Equal(t, repository.PaymentTermsNet30, po.PaymentTerms)
	assert.Equal(t, int64(28589), po.Total())
	assert.Equal(t, f.clock.Now(), po.OrderedOn)
	assert.Equal(t, []string{"PO-0001:created"}, f.sink.actions())
}

func TestPurchaseOrder_TwoApproverChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.createPO(t, "V1", laptopLine())
	require.Equal(t, int64(570918), po.Total())

	po, err := f.svc.SubmitPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.POStatusPendingApproval, po.Status)
	assert.Equal(t, "Medium Value Purchase Policy", po.PolicyName)
	require.Len(t, po.Approvals, 2)
	assert.Equal(t, []string{deptManager, financeManager}, repository.PendingApprovers(po.Approvals))

	po, err = f.svc.RecordPurchaseOrderApproval(ctx, po.ID, &ApprovalRequest{Approver: deptManager, Decision: repository.DecisionApproved, Comments: "ok"})
	require.NoError(t, err)
	assert.Equal(t, repository.POStatusPendingApproval, po.Status)
	assert.Equal(t, []string{financeManager}, repository.PendingApprovers(po.Approvals))
	assert.Nil(t, po.ApprovedAt)

	po, err = f.svc.RecordPurchaseOrderApproval(ctx, po.ID, &ApprovalRequest{Approver: financeManager, Decision: repository.DecisionApproved})
	require.NoError(t, err)
	assert.Equal(t, repository.POStatusApproved, po.Status)
	require.NotNil(t, po.ApprovedAt)
	assert.Empty(t, repository.PendingApprovers(po.Approvals))
}

func TestPurchaseOrder_RejectionShortCircuits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.createPO(t, "V1", repository.LineItem{ItemCode: "MFG-1", Quantity: 1, UnitPrice: 2500000})

	po, err := f.svc.SubmitPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Len(t, po.Approvals, 3)

	po, err = f.svc.RecordPurchaseOrderApproval(ctx, po.ID, &ApprovalRequest{Approver: financeManager, Decision: repository.DecisionRejected, Comments: "over budget"})
	require.NoError(t, err)
	assert.Equal(t, repository.POStatusRejected, po.Status)
	assert.ElementsMatch(t, []string{deptManager, cfo}, repository.PendingApprovers(po.Approvals))

	_, err = f.svc.RecordPurchaseOrderApproval(ctx, po.ID, &ApprovalRequest{Approver: cfo, Decision: repository.DecisionApproved})
	assert.ErrorIs(t, err, errors.ErrNotPending)
}

func TestPurchaseOrder_ApprovalErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.createPO(t, "V1", laptopLine())

	_, err := f.svc.RecordPurchaseOrderApproval(ctx, po.ID, &ApprovalRequest{Approver: deptManager, Decision: repository.DecisionApproved})
	assert.ErrorIs(t, err, errors.ErrNotPending)

	_, err = f.svc.SubmitPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)

	_, err = f.svc.RecordPurchaseOrderApproval(ctx, po.ID, &ApprovalRequest{Approver: "Mallory", Decision: repository.DecisionApproved})
	assert.ErrorIs(t, err, errors.ErrUnknownApprover)

	_, err = f.svc.RecordPurchaseOrderApproval(ctx, po.ID, &ApprovalRequest{Approver: deptManager, Decision: "Maybe"})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = f.svc.RecordPurchaseOrderApproval(ctx, po.ID, &ApprovalRequest{Approver: deptManager, Decision: repository.DecisionApproved})
	require.NoError(t, err)
	_, err = f.svc.RecordPurchaseOrderApproval(ctx, po.ID, &ApprovalRequest{Approver: deptManager, Decision: repository.DecisionApproved})
	assert.ErrorIs(t, err, errors.ErrUnknownApprover)

	_, err = f.svc.SubmitPurchaseOrder(ctx, po.ID)
	assert.ErrorIs(t, err, errors.ErrInvalidPrecondition)

	_, err = f.svc.SubmitPurchaseOrder(ctx, "PO-9999")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestPurchaseOrder_ZeroApproverPolicyApprovesDirectly(t *testing.T) {
	f := newFixture(t, repository.ApprovalPolicy{Name: "Auto", Target: repository.TargetPurchaseOrder})
	po := f.createPO(t, "V1", paperLine())

	po, err := f.svc.SubmitPurchaseOrder(context.Background(), po.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.POStatusApproved, po.Status)
	assert.Empty(t, po.Approvals)
	assert.NotNil(t, po.ApprovedAt)
}

func TestPurchaseOrder_NoPolicyMatchLeavesDraft(t *testing.T) {
	f := newFixture(t, repository.ApprovalPolicy{
		Name: "Small only", Target: repository.TargetPurchaseOrder, MaxAmount: bounded(100000),
		RequiredApprovers: []string{deptManager},
	})
	po := f.createPO(t, "V1", laptopLine())
	rev := f.svc.Revision()

	_, err := f.svc.SubmitPurchaseOrder(context.Background(), po.ID)
	assert.ErrorIs(t, err, errors.ErrNoPolicyMatch)

	stored, err := f.svc.GetPurchaseOrder(po.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.POStatusDraft, stored.Status)
	assert.Empty(t, stored.Approvals)
	assert.Equal(t, rev, f.svc.Revision())
}

func TestPurchaseOrder_Cancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	po := f.createPO(t, "V1", paperLine())
	po, err := f.svc.CancelPurchaseOrder(ctx, po.ID, "duplicate")
	require.NoError(t, err)
	assert.Equal(t, repository.POStatusCancelled, po.Status)
	assert.Contains(t, po.Notes, "duplicate")

	_, err = f.svc.CancelPurchaseOrder(ctx, po.ID, "again")
	assert.ErrorIs(t, err, errors.ErrInvalidPrecondition)

	blocked := f.createPO(t, "V1", paperLine())
	_, err = f.svc.BlockPurchaseOrder(ctx, blocked.ID, "vendor dispute")
	require.NoError(t, err)
	_, err = f.svc.CancelPurchaseOrder(ctx, blocked.ID, "")
	assert.ErrorIs(t, err, errors.ErrInvalidPrecondition)
}

// ── Goods receipts ───────────────────────────────────────────────────────────

func TestGoodsReceipt_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.approveAll(t, f.createPO(t, "V1", laptopLine()))

	gr, err := f.svc.CreateGoodsReceipt(ctx, &CreateGoodsReceiptRequest{POID: po.ID, ReceivedBy: "warehouse", LineItems: po.LineItems})
	require.NoError(t, err)
	assert.Equal(t, repository.GRStatusDraft, gr.Status)
	assert.Equal(t, repository.QualityPending, gr.QualityResult)

	po, err = f.svc.GetPurchaseOrder(po.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.POStatusInProgress, po.Status)

	_, err = f.svc.PerformQualityCheck(ctx, gr.ID, &QualityCheckRequest{Checker: "qa", Passed: true})
	assert.ErrorIs(t, err, errors.ErrNotReceived)

	gr, err = f.svc.MarkReceived(ctx, gr.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.GRStatusReceived, gr.Status)

	_, err = f.svc.MarkReceived(ctx, gr.ID)
	assert.ErrorIs(t, err, errors.ErrInvalidPrecondition)

	gr, err = f.svc.PerformQualityCheck(ctx, gr.ID, &QualityCheckRequest{Checker: "qa", Passed: true, Notes: "all sealed"})
	require.NoError(t, err)
	assert.Equal(t, repository.GRStatusAccepted, gr.Status)
	assert.Equal(t, repository.QualityPass, gr.QualityResult)
	assert.NotNil(t, gr.QualityCheckedAt)

	po, err = f.svc.GetPurchaseOrder(po.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.POStatusCompleted, po.Status)
}

func TestGoodsReceipt_FailedQualityCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.approveAll(t, f.createPO(t, "V1", paperLine()))

	gr, err := f.svc.CreateGoodsReceipt(ctx, &CreateGoodsReceiptRequest{POID: po.ID, ReceivedBy: "warehouse", LineItems: po.LineItems})
	require.NoError(t, err)
	_, err = f.svc.MarkReceived(ctx, gr.ID)
	require.NoError(t, err)
	gr, err = f.svc.PerformQualityCheck(ctx, gr.ID, &QualityCheckRequest{Checker: "qa", Passed: false, Notes: "water damage"})
	require.NoError(t, err)
	assert.Equal(t, repository.GRStatusRejected, gr.Status)
	assert.Equal(t, repository.QualityFail, gr.QualityResult)

	po, err = f.svc.GetPurchaseOrder(po.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.POStatusInProgress, po.Status)
}

func TestCreateGoodsReceipt_Preconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft := f.createPO(t, "V1", paperLine())

	_, err := f.svc.CreateGoodsReceipt(ctx, &CreateGoodsReceiptRequest{POID: draft.ID, ReceivedBy: "w", LineItems: draft.LineItems})
	assert.ErrorIs(t, err, errors.ErrInvalidPrecondition)

	_, err = f.svc.CreateGoodsReceipt(ctx, &CreateGoodsReceiptRequest{POID: "PO-9999", ReceivedBy: "w", LineItems: draft.LineItems})
	assert.ErrorIs(t, err, errors.ErrNotFound)

	approved := f.approveAll(t, f.createPO(t, "V1", paperLine()))
	_, err = f.svc.CreateGoodsReceipt(ctx, &CreateGoodsReceiptRequest{POID: approved.ID, ReceivedBy: "w",
		LineItems: []repository.LineItem{{ItemCode: "NOT-ORDERED", Quantity: 1}}})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	po, err := f.svc.GetPurchaseOrder(approved.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.POStatusApproved, po.Status)
	assert.Empty(t, f.svc.ListGoodsReceipts(""))
}

// ── Invoices ─────────────────────────────────────────────────────────────────

func TestCreateInvoice_ThreeWayMatchPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	po := f.approveAll(t, f.createPO(t, "V1", laptopLine()))
	gr := f.acceptedGR(t, po)
	other := f.approveAll(t, f.createPO(t, "V2", paperLine()))
	pendingGR, err := f.svc.CreateGoodsReceipt(ctx, &CreateGoodsReceiptRequest{POID: other.ID, ReceivedBy: "w", LineItems: other.LineItems})
	require.NoError(t, err)

	lines := []repository.LineItem{laptopLine()}
	tests := []struct {
		name   string
		poID   string
		grID   string
		target error
	}{
		{"unknown purchase order", "PO-9999", gr.ID, errors.ErrMatchPrecondition},
		{"unknown goods receipt", po.ID, "GR-9999", errors.ErrMatchPrecondition},
		{"receipt of another order", po.ID, pendingGR.ID, errors.ErrMatchPrecondition},
		{"receipt not accepted", other.ID, pendingGR.ID, errors.ErrInvalidPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateInvoice(ctx, &CreateInvoiceRequest{POID: tt.poID, GRID: tt.grID, LineItems: lines})
			assert.ErrorIs(t, err, tt.target)
		})
	}
	assert.Empty(t, f.svc.ListInvoices(""))

	inv, err := f.svc.CreateInvoice(ctx, &CreateInvoiceRequest{POID: po.ID, GRID: gr.ID, LineItems: lines})
	require.NoError(t, err)
	assert.Equal(t, "V1", inv.VendorID)
	assert.Equal(t, "V1 Inc", inv.VendorName)
	assert.Equal(t, repository.InvoiceStatusDraft, inv.Status)
}

func TestInvoice_DueDateApprovalAndPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.approveAll(t, f.createPO(t, "V1", laptopLine()))
	gr := f.acceptedGR(t, po)

	inv, err := f.svc.CreateInvoice(ctx, &CreateInvoiceRequest{POID: po.ID, GRID: gr.ID, LineItems: po.LineItems})
	require.NoError(t, err)
	assert.Equal(t, repository.PaymentTermsNet30, inv.PaymentTerms)
	assert.Equal(t, inv.InvoiceDate.AddDate(0, 0, 30), inv.DueDate)

	net60, err := f.svc.CreateInvoice(ctx, &CreateInvoiceRequest{POID: po.ID, GRID: gr.ID, LineItems: po.LineItems, PaymentTerms: repository.PaymentTermsNet60})
	require.NoError(t, err)
	assert.Equal(t, net60.InvoiceDate.AddDate(0, 0, 60), net60.DueDate)

	_, err = f.svc.ProcessPayment(ctx, inv.ID)
	assert.ErrorIs(t, err, errors.ErrNotApproved)

	inv, err = f.svc.SubmitInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.InvoiceStatusPendingApproval, inv.Status)
	assert.Equal(t, []string{deptManager, financeManager}, repository.PendingApprovers(inv.Approvals))

	for _, approver := range []string{financeManager, deptManager} {
		inv, err = f.svc.RecordInvoiceApproval(ctx, inv.ID, &ApprovalRequest{Approver: approver, Decision: repository.DecisionApproved})
		require.NoError(t, err)
	}
	assert.Equal(t, repository.InvoiceStatusApproved, inv.Status)

	f.clock.Advance(48 * time.Hour)
	inv, err = f.svc.ProcessPayment(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.InvoiceStatusPaid, inv.Status)
	require.NotNil(t, inv.PaymentDate)
	assert.Equal(t, f.clock.Now(), *inv.PaymentDate)

	_, err = f.svc.ProcessPayment(ctx, inv.ID)
	assert.ErrorIs(t, err, errors.ErrNotApproved)
}

func TestInvoice_RejectedByApprover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.approveAll(t, f.createPO(t, "V1", paperLine()))
	gr := f.acceptedGR(t, po)
	inv, err := f.svc.CreateInvoice(ctx, &CreateInvoiceRequest{POID: po.ID, GRID: gr.ID, LineItems: po.LineItems})
	require.NoError(t, err)
	_, err = f.svc.SubmitInvoice(ctx, inv.ID)
	require.NoError(t, err)

	inv, err = f.svc.RecordInvoiceApproval(ctx, inv.ID, &ApprovalRequest{Approver: deptManager, Decision: repository.DecisionRejected})
	require.NoError(t, err)
	assert.Equal(t, repository.InvoiceStatusRejected, inv.Status)
}

func TestCheckOverdue_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.approveAll(t, f.createPO(t, "V1", paperLine()))
	gr := f.acceptedGR(t, po)

	inv, err := f.svc.CreateInvoice(ctx, &CreateInvoiceRequest{POID: po.ID, GRID: gr.ID, LineItems: po.LineItems})
	require.NoError(t, err)
	_, err = f.svc.SubmitInvoice(ctx, inv.ID)
	require.NoError(t, err)
	_, err = f.svc.RecordInvoiceApproval(ctx, inv.ID, &ApprovalRequest{Approver: deptManager, Decision: repository.DecisionApproved})
	require.NoError(t, err)

	draft, err := f.svc.CreateInvoice(ctx, &CreateInvoiceRequest{POID: po.ID, GRID: gr.ID, LineItems: po.LineItems})
	require.NoError(t, err)

	assert.Empty(t, f.svc.CheckOverdue(ctx))

	f.clock.Advance(31 * 24 * time.Hour)
	assert.Equal(t, []string{inv.ID}, f.svc.CheckOverdue(ctx))

	rev := f.svc.Revision()
	assert.Empty(t, f.svc.CheckOverdue(ctx))
	assert.Equal(t, rev, f.svc.Revision())

	stored, err := f.svc.GetInvoice(inv.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.InvoiceStatusOverdue, stored.Status)

	untouched, err := f.svc.GetInvoice(draft.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.InvoiceStatusDraft, untouched.Status)

	_, err = f.svc.ProcessPayment(ctx, inv.ID)
	assert.ErrorIs(t, err, errors.ErrNotApproved)
}

// ── Blocking ─────────────────────────────────────────────────────────────────

func TestBlocking_PurchaseOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.createPO(t, "V1", laptopLine())
	po, err := f.svc.SubmitPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)

	_, err = f.svc.BlockPurchaseOrder(ctx, po.ID, "  ")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	po, err = f.svc.BlockPurchaseOrder(ctx, po.ID, "Price mismatch")
	require.NoError(t, err)
	assert.Equal(t, repository.POStatusBlocked, po.Status)
	assert.Equal(t, repository.POStatusPendingApproval, po.PreviousStatus)
	assert.Equal(t, "Price mismatch", po.BlockedReason)

	_, err = f.svc.RecordPurchaseOrderApproval(ctx, po.ID, &ApprovalRequest{Approver: deptManager, Decision: repository.DecisionApproved})
	assert.ErrorIs(t, err, errors.ErrNotPending)

	po, err = f.svc.BlockPurchaseOrder(ctx, po.ID, "Vendor under review")
	require.NoError(t, err)
	assert.Equal(t, "Vendor under review", po.BlockedReason)
	assert.Equal(t, repository.POStatusPendingApproval, po.PreviousStatus)

	po, err = f.svc.UnblockPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.POStatusPendingApproval, po.Status)
	assert.Empty(t, po.BlockedReason)
	assert.Empty(t, po.PreviousStatus)

	_, err = f.svc.UnblockPurchaseOrder(ctx, po.ID)
	assert.ErrorIs(t, err, errors.ErrInvalidPrecondition)

	rejected, err := f.svc.RecordPurchaseOrderApproval(ctx, po.ID, &ApprovalRequest{Approver: deptManager, Decision: repository.DecisionRejected})
	require.NoError(t, err)
	_, err = f.svc.BlockPurchaseOrder(ctx, rejected.ID, "late")
	assert.ErrorIs(t, err, errors.ErrInvalidPrecondition)
}

func TestBlocking_GoodsReceiptRestoresPreviousStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.approveAll(t, f.createPO(t, "V1", paperLine()))
	gr := f.acceptedGR(t, po)

	gr, err := f.svc.BlockGoodsReceipt(ctx, gr.ID, "Damaged pallets found")
	require.NoError(t, err)
	assert.Equal(t, repository.GRStatusBlocked, gr.Status)

	gr, err = f.svc.UnblockGoodsReceipt(ctx, gr.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.GRStatusAccepted, gr.Status)
}

func TestBlocking_InvoiceUnblocksToDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.approveAll(t, f.createPO(t, "V1", paperLine()))
	gr := f.acceptedGR(t, po)
	inv, err := f.svc.CreateInvoice(ctx, &CreateInvoiceRequest{POID: po.ID, GRID: gr.ID, LineItems: po.LineItems})
	require.NoError(t, err)
	inv, err = f.svc.SubmitInvoice(ctx, inv.ID)
	require.NoError(t, err)

	inv, err = f.svc.BlockInvoice(ctx, inv.ID, "Duplicate invoice number")
	require.NoError(t, err)
	assert.Equal(t, repository.InvoiceStatusBlocked, inv.Status)
	assert.Equal(t, repository.InvoiceStatusPendingApproval, inv.PreviousStatus)

	_, err = f.svc.ProcessPayment(ctx, inv.ID)
	assert.ErrorIs(t, err, errors.ErrNotApproved)

	inv, err = f.svc.UnblockInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.InvoiceStatusDraft, inv.Status)

	inv, err = f.svc.SubmitInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.InvoiceStatusPendingApproval, inv.Status)
}

func TestBlocking_PaidInvoiceCannotBeBlocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.approveAll(t, f.createPO(t, "V1", paperLine()))
	gr := f.acceptedGR(t, po)
	inv, err := f.svc.CreateInvoice(ctx, &CreateInvoiceRequest{POID: po.ID, GRID: gr.ID, LineItems: po.LineItems})
	require.NoError(t, err)
	_, err = f.svc.SubmitInvoice(ctx, inv.ID)
	require.NoError(t, err)
	_, err = f.svc.RecordInvoiceApproval(ctx, inv.ID, &ApprovalRequest{Approver: deptManager, Decision: repository.DecisionApproved})
	require.NoError(t, err)
	_, err = f.svc.ProcessPayment(ctx, inv.ID)
	require.NoError(t, err)
	revision := f.svc.Revision()

	_, err = f.svc.BlockInvoice(ctx, inv.ID, "Duplicate invoice number")
	assert.ErrorIs(t, err, errors.ErrInvalidPrecondition)
	assert.Equal(t, revision, f.svc.Revision())

	stored, err := f.svc.GetInvoice(inv.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.InvoiceStatusPaid, stored.Status)
	assert.Empty(t, stored.BlockedReason)

	_, err = f.svc.ProcessPayment(ctx, inv.ID)
	assert.ErrorIs(t, err, errors.ErrNotApproved)
}

func TestBlocking_BlockedIffReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.approveAll(t, f.createPO(t, "V1", paperLine()))
	gr := f.acceptedGR(t, po)
	inv, err := f.svc.CreateInvoice(ctx, &CreateInvoiceRequest{POID: po.ID, GRID: gr.ID, LineItems: po.LineItems})
	require.NoError(t, err)
	draftPO := f.createPO(t, "V2", paperLine())

	_, err = f.svc.BlockGoodsReceipt(ctx, gr.ID, "audit")
	require.NoError(t, err)
	_, err = f.svc.BlockInvoice(ctx, inv.ID, "audit")
	require.NoError(t, err)
	_, err = f.svc.BlockPurchaseOrder(ctx, draftPO.ID, "audit")
	require.NoError(t, err)
	_, err = f.svc.UnblockGoodsReceipt(ctx, gr.ID)
	require.NoError(t, err)

	snap, _ := f.svc.Snapshot()
	for _, p := range snap.PurchaseOrders {
		assert.Equal(t, p.Status == repository.POStatusBlocked, p.BlockedReason != "", p.ID)
	}
	for _, g := range snap.GoodsReceipts {
		assert.Equal(t, g.Status == repository.GRStatusBlocked, g.BlockedReason != "", g.ID)
	}
	for _, i := range snap.Invoices {
		assert.Equal(t, i.Status == repository.InvoiceStatusBlocked, i.BlockedReason != "", i.ID)
	}

	blocked := f.svc.BlockedDocuments()
	require.Len(t, blocked, 2)
	assert.Equal(t, draftPO.ID, blocked[0].DocumentID)
	assert.Equal(t, inv.ID, blocked[1].DocumentID)
	assert.Equal(t, "V1", blocked[1].VendorID)
}

// ── Side channels and queries ────────────────────────────────────────────────

func TestAuditTrailAndEvents(t *testing.T) {
	f := newFixture(t)
	po := f.approveAll(t, f.createPO(t, "V1", laptopLine()))
	f.acceptedGR(t, po)

	assert.Equal(t, []string{
		"PO-0001:created",
		"PO-0001:submitted",
		"PO-0001:approved",
		"PO-0001:approved",
		"GR-0001:created",
		"PO-0001:in_progress",
		"GR-0001:received",
		"GR-0001:quality_checked",
		"PO-0001:completed",
	}, f.sink.actions())
	assert.Len(t, f.sink.events, len(f.sink.entries))

	last := f.sink.entries[len(f.sink.entries)-1]
	assert.Equal(t, repository.DocumentPurchaseOrder, last.DocumentType)
	assert.Equal(t, string(repository.POStatusInProgress), last.StatusBefore)
	assert.Equal(t, string(repository.POStatusCompleted), last.StatusAfter)
}

func TestAuditSinkFailureIsNonFatal(t *testing.T) {
	f := newFixture(t)
	f.sink.fail = true

	po := f.createPO(t, "V1", paperLine())
	po, err := f.svc.SubmitPurchaseOrder(context.Background(), po.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.POStatusPendingApproval, po.Status)
	assert.Empty(t, f.sink.entries)
	assert.Len(t, f.sink.events, 2)
}

func TestAuditTrail(t *testing.T) {
	resolver, err := NewApprovalResolver(DefaultPolicies())
	require.NoError(t, err)
	sink := &recordingSink{}
	svc := NewWorkflowService(resolver, logger.Nop(),
		WithAuditSink(sink),
		WithAuditReader(sink),
		WithIDGenerator(sequentialIDs()),
	)
	ctx := context.Background()

	po, err := svc.CreatePurchaseOrder(ctx, &CreatePurchaseOrderRequest{
		VendorID: "V1", Requester: "bob", LineItems: []repository.LineItem{paperLine()},
	})
	require.NoError(t, err)
	_, err = svc.SubmitPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)

	trail, err := svc.AuditTrail(ctx, po.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "created", trail[0].Action)
	assert.Equal(t, "submitted", trail[1].Action)

	_, err = svc.AuditTrail(ctx, "PO-9999")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	sink.entries = append(sink.entries, &repository.AuditEntry{DocumentID: "INV-0042", Action: "paid"})
	trail, err = svc.AuditTrail(ctx, "INV-0042")
	require.NoError(t, err)
	assert.Len(t, trail, 1)

	sink.fail = true
	_, err = svc.AuditTrail(ctx, po.ID)
	assert.Error(t, err)
}

func TestAuditTrail_NotConfigured(t *testing.T) {
	f := newFixture(t)
	po := f.createPO(t, "V1", paperLine())

	_, err := f.svc.AuditTrail(context.Background(), po.ID)
	assert.ErrorIs(t, err, errors.ErrUnavailable)
}

func TestRevisionAdvancesOnlyOnMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assert.Equal(t, uint64(0), f.svc.Revision())

	po := f.createPO(t, "V1", paperLine())
	assert.Equal(t, uint64(1), f.svc.Revision())

	_, _ = f.svc.GetPurchaseOrder(po.ID)
	_ = f.svc.Statistics()
	_, _ = f.svc.RecordPurchaseOrderApproval(ctx, po.ID, &ApprovalRequest{Approver: deptManager, Decision: repository.DecisionApproved})
	assert.Equal(t, uint64(1), f.svc.Revision())

	_, err := f.svc.SubmitPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), f.svc.Revision())
}

func TestStatisticsAndPendingApprovals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paid := f.approveAll(t, f.createPO(t, "V1", paperLine()))
	gr := f.acceptedGR(t, paid)
	inv, err := f.svc.CreateInvoice(ctx, &CreateInvoiceRequest{POID: paid.ID, GRID: gr.ID, LineItems: paid.LineItems})
	require.NoError(t, err)
	_, err = f.svc.SubmitInvoice(ctx, inv.ID)
	require.NoError(t, err)
	_, err = f.svc.RecordInvoiceApproval(ctx, inv.ID, &ApprovalRequest{Approver: deptManager, Decision: repository.DecisionApproved})
	require.NoError(t, err)
	_, err = f.svc.ProcessPayment(ctx, inv.ID)
	require.NoError(t, err)

	pending := f.createPO(t, "V2", laptopLine())
	_, err = f.svc.SubmitPurchaseOrder(ctx, pending.ID)
	require.NoError(t, err)
	_, err = f.svc.RecordPurchaseOrderApproval(ctx, pending.ID, &ApprovalRequest{Approver: deptManager, Decision: repository.DecisionApproved})
	require.NoError(t, err)

	stats := f.svc.Statistics()
	assert.Equal(t, 2, stats.PurchaseOrders.Total)
	assert.Equal(t, 1, stats.GoodsReceipts.Total)
	assert.Equal(t, 1, stats.Invoices.Total)
	assert.Equal(t, 1, stats.PurchaseOrders.ByStatus[string(repository.POStatusCompleted)])
	assert.Equal(t, 1, stats.PurchaseOrders.ByStatus[string(repository.POStatusPendingApproval)])
	assert.Equal(t, int64(28589+570918), stats.TotalPOValue)
	assert.Equal(t, int64(28589), stats.TotalInvoiced)
	assert.Equal(t, int64(28589), stats.TotalPaid)
	assert.Equal(t, 1, stats.PendingApprovals)
	assert.Equal(t, f.svc.Revision(), stats.Revision)

	approvals := f.svc.PendingApprovals()
	require.Len(t, approvals, 1)
	assert.Equal(t, pending.ID, approvals[0].DocumentID)
	assert.Equal(t, []string{financeManager}, approvals[0].RemainingApprovers)

	assert.Len(t, f.svc.ListPurchaseOrders(repository.POStatusCompleted), 1)
	assert.Len(t, f.svc.ListInvoices(repository.InvoiceStatusPaid), 1)

	summary, err := f.svc.PurchaseOrderSummary(paid.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(28589), summary.TotalReceived)
	assert.Equal(t, int64(28589), summary.TotalPaid)
	assert.Len(t, summary.Invoices, 1)
	assert.Empty(t, summary.AllowedTransitions)
	assert.NotNil(t, summary.AllowedTransitions)

	_, err = f.svc.PurchaseOrderSummary("PO-9999")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestPurchaseOrderSummary_AllowedTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.createPO(t, "V1", laptopLine())

	summary, err := f.svc.PurchaseOrderSummary(po.ID)
	require.NoError(t, err)
	assert.Equal(t, []repository.POStatus{
		repository.POStatusPendingApproval,
		repository.POStatusApproved,
		repository.POStatusCancelled,
	}, summary.AllowedTransitions)

	_, err = f.svc.SubmitPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	summary, err = f.svc.PurchaseOrderSummary(po.ID)
	require.NoError(t, err)
	assert.Equal(t, []repository.POStatus{
		repository.POStatusApproved,
		repository.POStatusRejected,
		repository.POStatusCancelled,
	}, summary.AllowedTransitions)

	_, err = f.svc.BlockPurchaseOrder(ctx, po.ID, "vendor dispute")
	require.NoError(t, err)
	summary, err = f.svc.PurchaseOrderSummary(po.ID)
	require.NoError(t, err)
	assert.Empty(t, summary.AllowedTransitions)

	next := AllowedPOTransitions(repository.POStatusDraft)
	next[0] = repository.POStatusCompleted
	assert.Equal(t, repository.POStatusPendingApproval, AllowedPOTransitions(repository.POStatusDraft)[0])
}

func TestStatistics_TotalsMatchStoredDocuments(t *testing.T) {
	f := newFixture(t)
	stats := f.svc.Statistics()
	assert.Zero(t, stats.PurchaseOrders.Total)
	assert.Zero(t, stats.Invoices.Total)

	for i := 0; i < 3; i++ {
		f.createPO(t, "V1", paperLine())
	}
	po := f.approveAll(t, f.createPO(t, "V2", paperLine()))
	f.acceptedGR(t, po)

	stats = f.svc.Statistics()
	assert.Equal(t, 4, stats.PurchaseOrders.Total)
	assert.Equal(t, 1, stats.GoodsReceipts.Total)
	assert.Zero(t, stats.Invoices.Total)

	sum := 0
	for _, n := range stats.PurchaseOrders.ByStatus {
		sum += n
	}
	assert.Equal(t, stats.PurchaseOrders.Total, sum)
}

func TestReturnedDocumentsAreCopies(t *testing.T) {
	f := newFixture(t)
	po := f.createPO(t, "V1", paperLine())
	po.LineItems[0].Quantity = 1000
	po.Status = repository.POStatusApproved

	stored, err := f.svc.GetPurchaseOrder(po.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(10), stored.LineItems[0].Quantity)
	assert.Equal(t, repository.POStatusDraft, stored.Status)
}

func TestConcurrentMutationsAreSerialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			po, err := f.svc.CreatePurchaseOrder(ctx, &CreatePurchaseOrderRequest{
				VendorID: fmt.Sprintf("V%d", i%3), Requester: "bob", LineItems: []repository.LineItem{paperLine()},
			})
			if assert.NoError(t, err) {
				_, err = f.svc.SubmitPurchaseOrder(ctx, po.ID)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, f.svc.ListPurchaseOrders(repository.POStatusPendingApproval), 20)
	assert.Equal(t, uint64(40), f.svc.Revision())
}
