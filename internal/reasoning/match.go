package reasoning

import (
	"fmt"

	"github.com/pesio-ai/be-p2p-workflow/internal/graph"
	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
)

// MatchIssue is one three-way match discrepancy.
type MatchIssue struct {
	InvoiceID     string  `json:"invoice_id"`
	POID          string  `json:"po_id,omitempty"`
	GRID          string  `json:"gr_id,omitempty"`
	Issue         string  `json:"issue"`
	Severity      Level   `json:"severity"`
	InvoiceAmount int64   `json:"invoice_amount,omitempty"`
	POAmount      int64   `json:"po_amount,omitempty"`
	VariancePct   float64 `json:"variance_pct,omitempty"`
}

// ValidateThreeWayMatch re-checks every invoice against its purchase order and
// goods receipt as captured in the graph. Variance is compared in integer
// cents so the 5% boundary is exact: a variance of exactly 5% is flagged
// MEDIUM, anything above 10% is HIGH.
func (e *Engine) ValidateThreeWayMatch(g *graph.Graph) []MatchIssue {
	issues := make([]MatchIssue, 0)
	for _, inv := range g.Nodes(graph.KindInvoice) {
		po, hasPO := g.Lookup(graph.KindPurchaseOrder, inv.POID)
		gr, hasGR := g.Lookup(graph.KindGoodsReceipt, inv.GRID)
		if !hasPO || !hasGR {
			issues = append(issues, MatchIssue{
				InvoiceID: inv.ID,
				POID:      inv.POID,
				GRID:      inv.GRID,
				Issue:     "Missing PO or GR reference",
				Severity:  LevelHigh,
			})
			continue
		}
		if gr.POID != po.ID {
			issues = append(issues, MatchIssue{
				InvoiceID: inv.ID,
				POID:      po.ID,
				GRID:      gr.ID,
				Issue:     fmt.Sprintf("GR %s references PO %s, not %s", gr.ID, gr.POID, po.ID),
				Severity:  LevelHigh,
			})
		}

		if issue, ok := e.varianceIssue(inv, po); ok {
			issues = append(issues, issue)
		}

		if gr.Status != string(repository.GRStatusAccepted) {
			issues = append(issues, MatchIssue{
				InvoiceID: inv.ID,
				GRID:      gr.ID,
				Issue:     fmt.Sprintf("GR not accepted (status: %s)", gr.Status),
				Severity:  LevelHigh,
			})
		}
	}
	return issues
}

func (e *Engine) varianceIssue(inv, po graph.Node) (MatchIssue, bool) {
	diff := inv.Amount - po.Amount
	if diff < 0 {
		diff = -diff
	}
	issue := MatchIssue{
		InvoiceID:     inv.ID,
		POID:          po.ID,
		InvoiceAmount: inv.Amount,
		POAmount:      po.Amount,
		Issue: fmt.Sprintf("Invoice amount %s differs from PO %s",
			formatCents(inv.Amount), formatCents(po.Amount)),
	}

	if po.Amount <= 0 {
		if diff == 0 {
			return MatchIssue{}, false
		}
		issue.Severity = LevelHigh
		return issue, true
	}

	if diff*100 < e.thresholds.VarianceFlagPercent*po.Amount {
		return MatchIssue{}, false
	}
	issue.VariancePct = float64(diff) * 100 / float64(po.Amount)
	if diff*100 > e.thresholds.VarianceHighPercent*po.Amount {
		issue.Severity = LevelHigh
	} else {
		issue.Severity = LevelMedium
	}
	return issue, true
}
