// Package graph builds an immutable knowledge graph over a snapshot of the
// workflow documents. Nodes and edges live in flat slices addressed by index;
// the graph is rebuilt whenever the workflow state changes.
package graph

import "time"

// NodeKind classifies a node.
type NodeKind string

const (
	KindVendor        NodeKind = "Vendor"
	KindPurchaseOrder NodeKind = "PurchaseOrder"
	KindGoodsReceipt  NodeKind = "GoodsReceipt"
	KindInvoice       NodeKind = "Invoice"
	KindApprover      NodeKind = "Approver"
	KindDepartment    NodeKind = "Department"
	KindCategory      NodeKind = "Category"
)

// Relation names a directed edge type.
type Relation string

const (
	RelSupplies         Relation = "supplies"          // Vendor → PurchaseOrder
	RelFulfilledBy      Relation = "fulfilled_by"      // PurchaseOrder → GoodsReceipt
	RelInvoicedBy       Relation = "invoiced_by"       // GoodsReceipt → Invoice
	RelRequiresApproval Relation = "requires_approval" // PurchaseOrder/Invoice → Approver
	RelBelongsTo        Relation = "belongs_to"        // PurchaseOrder → Department
	RelContains         Relation = "contains"          // PurchaseOrder → Category, one per line
	RelBilledBy         Relation = "billed_by"         // Vendor → Invoice
	RelReferences       Relation = "references"        // Invoice → PurchaseOrder
)

// Node is a graph vertex. Document attributes are copied from the snapshot;
// fields that do not apply to a kind stay zero.
type Node struct {
	Index int      `json:"-"`
	Key   string   `json:"key"`
	Kind  NodeKind `json:"kind"`
	ID    string   `json:"id"`
	Name  string   `json:"name,omitempty"`

	Amount         int64     `json:"amount,omitempty"`
	Status         string    `json:"status,omitempty"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	Date           time.Time `json:"date,omitempty"`
	DueDate        time.Time `json:"due_date,omitempty"`
	Blocked        bool      `json:"blocked,omitempty"`
	BlockedReason  string    `json:"blocked_reason,omitempty"`
	VendorID       string    `json:"vendor_id,omitempty"`
	POID           string    `json:"po_id,omitempty"`
	GRID           string    `json:"gr_id,omitempty"`
	Department     string    `json:"department,omitempty"`
	QualityResult  string    `json:"quality_result,omitempty"`
	PolicyName     string    `json:"policy_name,omitempty"`
	Approvers      []string  `json:"pending_approvers,omitempty"`
}

// Edge is a directed, typed link between two nodes.
type Edge struct {
	From     int      `json:"from"`
	To       int      `json:"to"`
	Relation Relation `json:"relation"`

	Decision  string  `json:"decision,omitempty"`
	ItemCode  string  `json:"item_code,omitempty"`
	UnitPrice int64   `json:"unit_price,omitempty"`
	Quantity  float64 `json:"quantity,omitempty"`
	Amount    int64   `json:"amount,omitempty"`
}

// Graph is an immutable arena of nodes and edges with lookup indices.
type Graph struct {
	nodes  []Node
	edges  []Edge
	byKey  map[string]int
	byKind map[NodeKind][]int
	out    [][]int
	in     [][]int
}

// Key returns the unique node key for a kind and domain id.
func Key(kind NodeKind, id string) string {
	return string(kind) + ":" + id
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node at index i.
func (g *Graph) Node(i int) Node { return g.nodes[i] }

// Lookup finds a node by kind and domain id.
func (g *Graph) Lookup(kind NodeKind, id string) (Node, bool) {
	i, ok := g.byKey[Key(kind, id)]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Nodes lists the nodes of one kind in build order.
func (g *Graph) Nodes(kind NodeKind) []Node {
	idx := g.byKind[kind]
	out := make([]Node, 0, len(idx))
	for _, i := range idx {
		out = append(out, g.nodes[i])
	}
	return out
}

// Out lists n's outgoing edges of the given relation. An empty relation
// matches every edge.
func (g *Graph) Out(n Node, rel Relation) []Edge {
	return g.filter(g.out[n.Index], rel)
}

// In lists n's incoming edges of the given relation.
func (g *Graph) In(n Node, rel Relation) []Edge {
	return g.filter(g.in[n.Index], rel)
}

// Successors returns the targets of n's outgoing edges of one relation.
func (g *Graph) Successors(n Node, rel Relation) []Node {
	edges := g.Out(n, rel)
	out := make([]Node, 0, len(edges))
	for _, e := range edges {
		out = append(out, g.nodes[e.To])
	}
	return out
}

// Predecessors returns the sources of n's incoming edges of one relation.
func (g *Graph) Predecessors(n Node, rel Relation) []Node {
	edges := g.In(n, rel)
	out := make([]Node, 0, len(edges))
	for _, e := range edges {
		out = append(out, g.nodes[e.From])
	}
	return out
}

func (g *Graph) filter(idx []int, rel Relation) []Edge {
	out := make([]Edge, 0, len(idx))
	for _, i := range idx {
		if rel == "" || g.edges[i].Relation == rel {
			out = append(out, g.edges[i])
		}
	}
	return out
}

// Stats summarizes graph size.
type Stats struct {
	Nodes           int              `json:"nodes"`
	Edges           int              `json:"edges"`
	NodesByKind     map[NodeKind]int `json:"nodes_by_kind"`
	EdgesByRelation map[Relation]int `json:"edges_by_relation"`
}

// Stats counts nodes per kind and edges per relation.
func (g *Graph) Stats() Stats {
	s := Stats{
		Nodes:           len(g.nodes),
		Edges:           len(g.edges),
		NodesByKind:     make(map[NodeKind]int),
		EdgesByRelation: make(map[Relation]int),
	}
	for kind, idx := range g.byKind {
		s.NodesByKind[kind] = len(idx)
	}
	for _, e := range g.edges {
		s.EdgesByRelation[e.Relation]++
	}
	return s
}
