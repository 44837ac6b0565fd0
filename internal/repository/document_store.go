package repository

// registry is an id → document map that remembers insertion order so listings
// are deterministic.
type registry[T any] struct {
	order []string
	items map[string]T
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{items: make(map[string]T)}
}

func (r *registry[T]) put(id string, v T) {
	if _, exists := r.items[id]; !exists {
		r.order = append(r.order, id)
	}
	r.items[id] = v
}

func (r *registry[T]) get(id string) (T, bool) {
	v, ok := r.items[id]
	return v, ok
}

func (r *registry[T]) list() []T {
	out := make([]T, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.items[id])
	}
	return out
}

func (r *registry[T]) len() int { return len(r.order) }

// DocumentStore holds the in-memory PO, GR and invoice registries owned by
// the workflow engine. It is not safe for concurrent use; the engine
// serializes access.
type DocumentStore struct {
	purchaseOrders *registry[*PurchaseOrder]
	goodsReceipts  *registry[*GoodsReceipt]
	invoices       *registry[*Invoice]
}

// NewDocumentStore creates an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		purchaseOrders: newRegistry[*PurchaseOrder](),
		goodsReceipts:  newRegistry[*GoodsReceipt](),
		invoices:       newRegistry[*Invoice](),
	}
}

// PutPurchaseOrder inserts or replaces a purchase order.
func (s *DocumentStore) PutPurchaseOrder(po *PurchaseOrder) { s.purchaseOrders.put(po.ID, po) }

// PurchaseOrder returns the stored purchase order (not a copy).
func (s *DocumentStore) PurchaseOrder(id string) (*PurchaseOrder, bool) {
	return s.purchaseOrders.get(id)
}

// PurchaseOrders lists purchase orders in insertion order.
func (s *DocumentStore) PurchaseOrders() []*PurchaseOrder { return s.purchaseOrders.list() }

// PutGoodsReceipt inserts or replaces a goods receipt.
func (s *DocumentStore) PutGoodsReceipt(gr *GoodsReceipt) { s.goodsReceipts.put(gr.ID, gr) }

// GoodsReceipt returns the stored goods receipt (not a copy).
func (s *DocumentStore) GoodsReceipt(id string) (*GoodsReceipt, bool) {
	return s.goodsReceipts.get(id)
}

// GoodsReceipts lists goods receipts in insertion order.
func (s *DocumentStore) GoodsReceipts() []*GoodsReceipt { return s.goodsReceipts.list() }

// GoodsReceiptsForPO lists the receipts referencing a purchase order.
func (s *DocumentStore) GoodsReceiptsForPO(poID string) []*GoodsReceipt {
	var out []*GoodsReceipt
	for _, gr := range s.goodsReceipts.list() {
		if gr.POID == poID {
			out = append(out, gr)
		}
	}
	return out
}

// PutInvoice inserts or replaces an invoice.
func (s *DocumentStore) PutInvoice(inv *Invoice) { s.invoices.put(inv.ID, inv) }

// Invoice returns the stored invoice (not a copy).
func (s *DocumentStore) Invoice(id string) (*Invoice, bool) { return s.invoices.get(id) }

// Invoices lists invoices in insertion order.
func (s *DocumentStore) Invoices() []*Invoice { return s.invoices.list() }

// InvoicesForPO lists the invoices referencing a purchase order.
func (s *DocumentStore) InvoicesForPO(poID string) []*Invoice {
	var out []*Invoice
	for _, inv := range s.invoices.list() {
		if inv.POID == poID {
			out = append(out, inv)
		}
	}
	return out
}

// Counts returns the number of stored documents per kind.
func (s *DocumentStore) Counts() (pos, grs, invoices int) {
	return s.purchaseOrders.len(), s.goodsReceipts.len(), s.invoices.len()
}

// Snapshot is a deep copy of every registry, safe to hand to readers.
type Snapshot struct {
	PurchaseOrders []*PurchaseOrder
	GoodsReceipts  []*GoodsReceipt
	Invoices       []*Invoice
}

// Snapshot deep-copies the store contents.
func (s *DocumentStore) Snapshot() Snapshot {
	snap := Snapshot{
		PurchaseOrders: make([]*PurchaseOrder, 0, s.purchaseOrders.len()),
		GoodsReceipts:  make([]*GoodsReceipt, 0, s.goodsReceipts.len()),
		Invoices:       make([]*Invoice, 0, s.invoices.len()),
	}
	for _, po := range s.purchaseOrders.list() {
		snap.PurchaseOrders = append(snap.PurchaseOrders, po.Clone())
	}
	for _, gr := range s.goodsReceipts.list() {
		snap.GoodsReceipts = append(snap.GoodsReceipts, gr.Clone())
	}
	for _, inv := range s.invoices.list() {
		snap.Invoices = append(snap.Invoices, inv.Clone())
	}
	return snap
}
