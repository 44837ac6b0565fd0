package graph

import (
	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
)

type builder struct {
	g *Graph
}

// Build constructs the knowledge graph for a workflow snapshot. Documents are
// added in snapshot order, so the result is deterministic for equal input.
// References to documents missing from the snapshot produce no edge.
func Build(snap repository.Snapshot) *Graph {
	b := &builder{g: &Graph{
		byKey:  make(map[string]int),
		byKind: make(map[NodeKind][]int),
	}}

	for _, po := range snap.PurchaseOrders {
		b.addPurchaseOrder(po)
	}
	for _, gr := range snap.GoodsReceipts {
		b.addGoodsReceipt(gr)
	}
	for _, inv := range snap.Invoices {
		b.addInvoice(inv)
	}
	return b.g
}

// node returns the index of the node with the given key, creating it from
// proto when missing.
func (b *builder) node(proto Node) int {
	proto.Key = Key(proto.Kind, proto.ID)
	if i, ok := b.g.byKey[proto.Key]; ok {
		return i
	}
	i := len(b.g.nodes)
	proto.Index = i
	b.g.nodes = append(b.g.nodes, proto)
	b.g.byKey[proto.Key] = i
	b.g.byKind[proto.Kind] = append(b.g.byKind[proto.Kind], i)
	b.g.out = append(b.g.out, nil)
	b.g.in = append(b.g.in, nil)
	return i
}

func (b *builder) edge(e Edge) {
	i := len(b.g.edges)
	b.g.edges = append(b.g.edges, e)
	b.g.out[e.From] = append(b.g.out[e.From], i)
	b.g.in[e.To] = append(b.g.in[e.To], i)
}

func (b *builder) vendor(id, name string) int {
	if name == "" {
		name = id
	}
	return b.node(Node{Kind: KindVendor, ID: id, Name: name})
}

func (b *builder) approvals(from int, records []repository.ApprovalRecord) {
	for _, rec := range records {
		to := b.node(Node{Kind: KindApprover, ID: rec.Approver, Name: rec.Approver})
		b.edge(Edge{From: from, To: to, Relation: RelRequiresApproval, Decision: string(rec.Decision)})
	}
}

func (b *builder) addPurchaseOrder(po *repository.PurchaseOrder) {
	vendor := b.vendor(po.VendorID, po.VendorName)
	idx := b.node(Node{
		Kind:           KindPurchaseOrder,
		ID:             po.ID,
		Name:           po.ID,
		Amount:         po.Total(),
		Status:         string(po.Status),
		PreviousStatus: string(po.PreviousStatus),
		Date:           po.OrderedOn,
		Blocked:        po.Status == repository.POStatusBlocked,
		BlockedReason:  po.BlockedReason,
		VendorID:       po.VendorID,
		Department:     po.Department,
		PolicyName:     po.PolicyName,
		Approvers:      repository.PendingApprovers(po.Approvals),
	})
	b.edge(Edge{From: vendor, To: idx, Relation: RelSupplies, Amount: po.Total()})

	if po.Department != "" {
		dept := b.node(Node{Kind: KindDepartment, ID: po.Department, Name: po.Department})
		b.edge(Edge{From: idx, To: dept, Relation: RelBelongsTo})
	}

	b.approvals(idx, po.Approvals)

	for _, line := range po.LineItems {
		category := InferCategory(line.Category, line.Description)
		cat := b.node(Node{Kind: KindCategory, ID: category, Name: category})
		b.edge(Edge{
			From:      idx,
			To:        cat,
			Relation:  RelContains,
			ItemCode:  line.ItemCode,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Amount:    line.Total(),
		})
	}
}

func (b *builder) addGoodsReceipt(gr *repository.GoodsReceipt) {
	n := Node{
		Kind:           KindGoodsReceipt,
		ID:             gr.ID,
		Name:           gr.ID,
		Amount:         gr.Total(),
		Status:         string(gr.Status),
		PreviousStatus: string(gr.PreviousStatus),
		Date:           gr.ReceiptDate,
		Blocked:        gr.Status == repository.GRStatusBlocked,
		BlockedReason:  gr.BlockedReason,
		POID:           gr.POID,
		QualityResult:  string(gr.QualityResult),
	}
	po, hasPO := b.g.byKey[Key(KindPurchaseOrder, gr.POID)]
	if hasPO {
		n.VendorID = b.g.nodes[po].VendorID
	}
	idx := b.node(n)
	if hasPO {
		b.edge(Edge{From: po, To: idx, Relation: RelFulfilledBy, Amount: gr.Total()})
	}
}

func (b *builder) addInvoice(inv *repository.Invoice) {
	vendor := b.vendor(inv.VendorID, inv.VendorName)
	idx := b.node(Node{
		Kind:           KindInvoice,
		ID:             inv.ID,
		Name:           inv.ID,
		Amount:         inv.Total(),
		Status:         string(inv.Status),
		PreviousStatus: string(inv.PreviousStatus),
		Date:           inv.InvoiceDate,
		DueDate:        inv.DueDate,
		Blocked:        inv.Status == repository.InvoiceStatusBlocked,
		BlockedReason:  inv.BlockedReason,
		VendorID:       inv.VendorID,
		POID:           inv.POID,
		GRID:           inv.GRID,
		PolicyName:     inv.PolicyName,
		Approvers:      repository.PendingApprovers(inv.Approvals),
	})
	b.edge(Edge{From: vendor, To: idx, Relation: RelBilledBy, Amount: inv.Total()})

	if gr, ok := b.g.byKey[Key(KindGoodsReceipt, inv.GRID)]; ok {
		b.edge(Edge{From: gr, To: idx, Relation: RelInvoicedBy, Amount: inv.Total()})
	}
	if po, ok := b.g.byKey[Key(KindPurchaseOrder, inv.POID)]; ok {
		b.edge(Edge{From: idx, To: po, Relation: RelReferences})
	}

	b.approvals(idx, inv.Approvals)
}
